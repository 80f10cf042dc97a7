// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package wait implements the retry queues behind the Watchdog
// (spec.md §4.8): a fixed-interval Queue, which xbridge/session uses for
// its per-order retry-later packet park, and a TaperingQueue whose delay
// backs off the longer a waiter keeps returning TryAgain; xbridge/session
// does not use the TaperingQueue. Structurally this is dcrdex's
// dex/wait.TickerQueue / TaperingTickerQueue, generalized to carry an
// order id alongside each waiter so Queue.CancelOrder can drop every
// waiter for an order in one call (spec.md §5, "Cancellation:
// cooperative"); xbridge/session does not call CancelOrder.
package wait

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// TryDirective is returned by a Waiter's TryFunc to tell the queue whether
// to try again later or stop tracking the waiter.
type TryDirective bool

const (
	// TryAgain means: run TryFunc again after the next tick.
	TryAgain TryDirective = false
	// DontTryAgain means: the waiter is done, successfully or not; stop
	// tracking it.
	DontTryAgain TryDirective = true
)

// Waiter is one retry-later packet, or one pending chain-confirmation
// check, tracked until it resolves or expires.
type Waiter struct {
	// OrderID lets the Watchdog cancel every waiter belonging to an order
	// in one sweep (e.g. on TransactionCancel).
	OrderID order.ID
	// Expiration is checked after TryFunc returns TryAgain. Past this time,
	// ExpireFunc runs and the waiter is dropped.
	Expiration time.Time
	// TryFunc runs on every tick until it returns DontTryAgain.
	TryFunc func() TryDirective
	// ExpireFunc runs once, if TryFunc is still returning TryAgain past
	// Expiration.
	ExpireFunc func()
}

// Queue runs every tracked Waiter's TryFunc on a fixed interval. This is
// the queue behind the Watchdog's retry-later packet park (spec.md §4.8):
// "Retries are placed at the tail of the retry queue; no fairness
// guarantee beyond FIFO" is naturally satisfied since Run walks waiters in
// append order every tick.
type Queue struct {
	mtx     sync.Mutex
	waiters []*Waiter
	period  time.Duration
}

// NewQueue constructs a Queue that ticks every period.
func NewQueue(period time.Duration) *Queue {
	return &Queue{period: period, waiters: make([]*Waiter, 0, 64)}
}

// Add enqueues w. If w.TryFunc already succeeds immediately, Add runs it
// synchronously and never enqueues it.
func (q *Queue) Add(w *Waiter) {
	if w.TryFunc() == DontTryAgain {
		return
	}
	q.mtx.Lock()
	q.waiters = append(q.waiters, w)
	q.mtx.Unlock()
}

// CancelOrder removes every waiter belonging to oid without running their
// ExpireFunc (a deliberate cancel is not a timeout).
func (q *Queue) CancelOrder(oid order.ID) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	kept := q.waiters[:0]
	for _, w := range q.waiters {
		if w.OrderID != oid {
			kept = append(kept, w)
		}
	}
	q.waiters = kept
}

// Len reports the number of waiters currently tracked.
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.waiters)
}

// Run drives the queue until ctx is cancelled. On shutdown, every
// remaining waiter's ExpireFunc is invoked.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.tick()
		case <-ctx.Done():
			q.mtx.Lock()
			leftover := q.waiters
			q.waiters = nil
			q.mtx.Unlock()
			for _, w := range leftover {
				w.ExpireFunc()
			}
			return
		}
	}
}

func (q *Queue) tick() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	now := time.Now()
	kept := q.waiters[:0]
	for _, w := range q.waiters {
		if w.TryFunc() == DontTryAgain {
			continue
		}
		if w.Expiration.Before(now) {
			w.ExpireFunc()
			continue
		}
		kept = append(kept, w)
	}
	q.waiters = kept
}

// Tapering-queue tuning constants (mirrors dcrdex's dex/wait taper curve):
// attempts are frequent at first, then back off toward slowestInterval.
const (
	fullSpeedTicks = 3
	fullyTapered   = 15
)

type taperingWaiter struct {
	*Waiter
	tick     int
	nextTick time.Time
}

// TaperingQueue runs Waiters on a backing-off schedule: fast at first,
// slower the longer a check (such as a chain-confirmation poll) keeps
// returning TryAgain, for waits where hammering a node's RPC every second
// for 30 minutes is wasteful. Nothing in this module runs one.
type TaperingQueue struct {
	fastest, slowest time.Duration
	incoming         chan *taperingWaiter
}

// NewTaperingQueue constructs a TaperingQueue with the given fastest and
// slowest retry intervals.
func NewTaperingQueue(fastest, slowest time.Duration) *TaperingQueue {
	return &TaperingQueue{fastest: fastest, slowest: slowest, incoming: make(chan *taperingWaiter, 32)}
}

// Add enqueues w for tapering retry.
func (q *TaperingQueue) Add(w *Waiter) {
	q.incoming <- &taperingWaiter{Waiter: w, nextTick: time.Now()}
}

// Run drives the tapering queue until ctx is cancelled, running any
// in-flight checks to completion via an internal WaitGroup before
// returning remaining waiters to ExpireFunc.
func (q *TaperingQueue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	runOne := func(w *taperingWaiter) {
		defer wg.Done()
		if w.TryFunc() == DontTryAgain {
			return
		}
		if w.Expiration.Before(time.Now()) {
			w.ExpireFunc()
			return
		}
		w.tick++
		w.nextTick = nextTick(w.tick, q.slowest, q.fastest, time.Now(), w.Expiration)
		q.incoming <- w
	}

	waiters := make([]*taperingWaiter, 0, 32)
	var timer *time.Timer
	for {
		var tick <-chan time.Time
		if len(waiters) > 0 {
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(time.Until(waiters[0].nextTick))
			tick = timer.C
		}

		select {
		case <-tick:
			w := waiters[0]
			waiters = waiters[1:]
			wg.Add(1)
			go runOne(w)
		case w := <-q.incoming:
			if time.Until(w.nextTick) <= 0 {
				wg.Add(1)
				go runOne(w)
				continue
			}
			waiters = append(waiters, w)
			sort.Slice(waiters, func(i, j int) bool { return waiters[i].nextTick.Before(waiters[j].nextTick) })
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			for _, w := range waiters {
				w.ExpireFunc()
			}
			return
		}
	}
}

func nextTick(ticksPassed int, slowest, fastest time.Duration, now, expiration time.Time) time.Time {
	var t time.Time
	switch {
	case ticksPassed < fullSpeedTicks:
		t = now.Add(fastest)
	case ticksPassed < fullyTapered:
		prog := float64(ticksPassed+1-fullSpeedTicks) / float64(fullyTapered-fullSpeedTicks)
		taper := float64(slowest - fastest)
		t = now.Add(fastest + time.Duration(math.Round(prog*taper)))
	default:
		t = now.Add(slowest)
	}
	if t.After(expiration) {
		return expiration
	}
	return t
}
