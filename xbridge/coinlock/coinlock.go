// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package coinlock implements the process-wide UTXO lock table described
// in spec.md §5 (I7): a UTXO committed to an order is pinned until the
// order terminates, and a distinct fee-UTXO pool is released as soon as
// the fee transaction broadcasts. This is a direct generalization of
// dcrdex's server/coinlock.AssetCoinLocker to the multi-currency,
// multi-pool shape the swap core needs.
package coinlock

import (
	"fmt"
	"sync"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// Outpoint identifies a UTXO: a currency plus a (txid, vout) pair.
type Outpoint struct {
	Currency order.Currency
	TxID     string
	Vout     uint32
}

func (o Outpoint) key() string {
	return fmt.Sprintf("%s:%s:%d", o.Currency.String(), o.TxID, o.Vout)
}

// Pool is a single lock table: a set of locked outpoints plus the reverse
// index from order id to the outpoints it holds. The swap core keeps two
// Pools (see Locker): one for trade UTXOs, one for fee UTXOs, since fee
// UTXOs are released earlier than trade UTXOs (spec.md §5).
type Pool struct {
	mtx     sync.RWMutex
	locked  map[string]order.ID
	byOrder map[order.ID][]Outpoint
}

// NewPool constructs an empty Pool.
func NewPool() *Pool {
	return &Pool{
		locked:  make(map[string]order.ID),
		byOrder: make(map[order.ID][]Outpoint),
	}
}

// TryLock locks coins for oid if none of them are already locked by a
// different order. It returns the outpoint that conflicted, and false, on
// failure; the pool is left unchanged in that case. A double-spend attempt
// (spec.md §5) is detected by the caller getting false back.
func (p *Pool) TryLock(oid order.ID, coins []Outpoint) (conflict Outpoint, ok bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, c := range coins {
		if holder, locked := p.locked[c.key()]; locked && holder != oid {
			return c, false
		}
	}
	for _, c := range coins {
		p.locked[c.key()] = oid
	}
	p.byOrder[oid] = append(p.byOrder[oid], coins...)
	return Outpoint{}, true
}

// Locked reports whether an outpoint is presently locked by any order.
func (p *Pool) Locked(o Outpoint) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, locked := p.locked[o.key()]
	return locked
}

// OrderCoins lists the outpoints locked by oid.
func (p *Pool) OrderCoins(oid order.ID) []Outpoint {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return append([]Outpoint(nil), p.byOrder[oid]...)
}

// Unlock releases every outpoint held by oid. Idempotent: unlocking an
// order with nothing locked is a no-op.
func (p *Pool) Unlock(oid order.ID) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, c := range p.byOrder[oid] {
		delete(p.locked, c.key())
	}
	delete(p.byOrder, oid)
}

// Locker pairs the trade-UTXO pool with the fee-UTXO pool, matching
// spec.md §5's "Fee-UTXO set is a distinct pool released once the fee tx
// is broadcast" and "UTXOs committed to an order are locked... until the
// order terminates".
type Locker struct {
	Trade *Pool
	Fee   *Pool
}

// NewLocker constructs a Locker with both pools empty.
func NewLocker() *Locker {
	return &Locker{Trade: NewPool(), Fee: NewPool()}
}

// ReleaseOrder unlocks both the trade and fee pools for oid. Safe to call
// on order termination even if the fee pool was already released earlier.
func (l *Locker) ReleaseOrder(oid order.ID) {
	l.Trade.Unlock(oid)
	l.Fee.Unlock(oid)
}
