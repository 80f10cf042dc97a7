// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package session implements the Dispatcher (spec.md §4.2) and every Hub
// and trader handler (§4.5, §4.6) on top of the lower packages: packet
// framing, wire payload codecs, the order-state machine, coin locking, the
// retry queue, and a ChainBridge. A Session is one participant's process:
// a Hub session runs the Hub handler table over xchange.ExchangeOrder
// records; a trader session runs the trader handler table over
// trader.Order records.
//
// Per spec.md §9's re-architecture note, there is no "working" boolean
// guarding reentrancy: Process takes the Session's single mutex for its
// whole duration, so packets are inherently handled one at a time, and
// Run pulls them off a channel in series rather than fanning dispatch out
// across goroutines.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/coinlock"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/registry"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/txlog"
	"github.com/blocknetdx/xbridge-go/xbridge/wait"
	"github.com/blocknetdx/xbridge-go/xbridge/xchange"

	"github.com/blocknetdx/xbridge-go"
)

// Status is the outcome of processing one packet (spec.md §9: "the
// retry-later return should be an explicit result variant").
type Status uint8

const (
	// Ok: the packet was fully handled; drop it.
	Ok Status = iota
	// RetryLater: a prerequisite (usually a chain RPC result) was not yet
	// met; park the packet and try again on the next Watchdog tick.
	RetryLater
	// Fatal: the packet is invalid or the order it names cannot proceed;
	// drop it. Returning Fatal changes no order state by itself.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case RetryLater:
		return "retry-later"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is returned by every handler and by Process.
type Result struct {
	Status Status
	Reason string
}

func ok() Result                      { return Result{Status: Ok} }
func fatal(format string, a ...any) Result {
	return Result{Status: Fatal, Reason: fmt.Sprintf(format, a...)}
}
func retryLater(format string, a ...any) Result {
	return Result{Status: RetryLater, Reason: fmt.Sprintf(format, a...)}
}

// Transport is the outbound half of the p2p substrate, out of this core's
// scope per spec.md §1; a Session only needs to hand it signed packets.
type Transport interface {
	SendTo(addr [account.AddrSize]byte, pkt *packet.Packet)
	Broadcast(pkt *packet.Packet)
}

// Timeout and retry tuning (spec.md §4.8, §8 scenario 2: "30 minutes").
const (
	DefaultOrderTimeout    = 30 * time.Minute
	DefaultMaxCreateRetries = 30
)

// Session is one participant's process: either the Hub, or a single
// trader managing any number of concurrent orders.
type Session struct {
	IsHub bool
	Keys  *account.KeyPair
	Addr  [account.AddrSize]byte

	// HubPK is the pinned Hub public key (I3), set on first contact by a
	// trader session. Nil until then. Unused by Hub sessions.
	HubPK []byte
	// HubAddr is the Hub's routing address, pinned alongside HubPK so the
	// Watchdog can address the Hub without a live packet on hand.
	HubAddr [account.AddrSize]byte

	Chains    map[string]chainbridge.ChainBridge
	Locker    *coinlock.Locker
	Transport Transport
	Log       xbridge.Logger

	OrderTimeout  time.Duration
	MaxCreateRetries int

	mtx sync.Mutex

	hubOrders    *registry.Registry[*xchange.ExchangeOrder]
	traderOrders *registry.Registry[*trader.Order]

	retry *wait.Queue

	// txlog is nil unless SetTxLog is called; every write site treats a
	// nil *txlog.Writer as a silent no-op.
	txlog *txlog.Writer
}

// SetTxLog attaches a raw-transaction log to the session (spec.md §6); w
// may be nil to disable it.
func (s *Session) SetTxLog(w *txlog.Writer) {
	s.txlog = w
}

// New constructs a Session. isHub selects the Hub handler table; chains
// should contain one ChainBridge per currency this session trades.
func New(isHub bool, keys *account.KeyPair, chains []chainbridge.ChainBridge, transport Transport, log xbridge.Logger) *Session {
	chainMap := make(map[string]chainbridge.ChainBridge, len(chains))
	for _, c := range chains {
		chainMap[c.Currency().String()] = c
	}
	s := &Session{
		IsHub:            isHub,
		Keys:             keys,
		Addr:             keys.Address(),
		Chains:           chainMap,
		Locker:           coinlock.NewLocker(),
		Transport:        transport,
		Log:              log,
		OrderTimeout:     DefaultOrderTimeout,
		MaxCreateRetries: DefaultMaxCreateRetries,
		hubOrders:        registry.New[*xchange.ExchangeOrder](),
		traderOrders:     registry.New[*trader.Order](),
		retry:            wait.NewQueue(time.Second),
	}
	return s
}

// chain looks up the ChainBridge for a currency, by name to avoid a
// circular import on order.Currency's zero-padding details.
func (s *Session) chain(cur string) (chainbridge.ChainBridge, error) {
	cb, ok := s.Chains[cur]
	if !ok {
		return nil, fmt.Errorf("session: no ChainBridge configured for currency %q", cur)
	}
	return cb, nil
}

// Process dispatches one already-decoded packet through the signature
// check and the appropriate handler table. It is the whole of the
// Dispatcher (spec.md §4.2): the Session's mutex is the "process one
// packet at a time" guarantee, replacing the source's working-flag.
func (s *Session) Process(pkt *packet.Packet) Result {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !pkt.Command.Valid() {
		return ok() // Invalid routes to a no-op handler.
	}
	if err := pkt.Verify(); err != nil {
		s.logf("dropping packet %s: %v", pkt.Command, err)
		return ok() // fails closed: silently dropped, not propagated.
	}

	table := traderHandlers
	if s.IsHub {
		table = hubHandlers
	}
	h, ok := table[pkt.Command]
	if !ok {
		return Result{Status: Ok}
	}
	return h(s, pkt)
}

// Run pulls packets off inbound and calls Process on each, serially,
// until ctx is cancelled. Retry-later results are re-parked on the
// internal retry queue rather than requeued onto inbound.
func (s *Session) Run(ctx context.Context, inbound <-chan *packet.Packet) {
	go s.retry.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, chOk := <-inbound:
			if !chOk {
				return
			}
			s.handleAndMaybeRetry(pkt)
		}
	}
}

func (s *Session) handleAndMaybeRetry(pkt *packet.Packet) {
	res := s.Process(pkt)
	if res.Status != RetryLater {
		return
	}
	id, ok := orderIDOf(pkt)
	if !ok {
		return
	}
	s.retry.Add(&wait.Waiter{
		OrderID:    id,
		Expiration: time.Now().Add(s.OrderTimeout),
		TryFunc: func() wait.TryDirective {
			if s.Process(pkt).Status == RetryLater {
				return wait.TryAgain
			}
			return wait.DontTryAgain
		},
		ExpireFunc: func() {
			s.logf("order %s: packet %s expired in retry queue", id, pkt.Command)
		},
	})
}

func (s *Session) logf(format string, a ...any) {
	if s.Log != nil {
		s.Log.Warnf(format, a...)
	}
}

func (s *Session) send(to [account.AddrSize]byte, cmd packet.Command, payload []byte) {
	pkt, err := packet.Sign(cmd, payload, s.Keys.Priv)
	if err != nil {
		s.logf("sign %s: %v", cmd, err)
		return
	}
	s.Transport.SendTo(to, pkt)
}

func (s *Session) broadcast(cmd packet.Command, payload []byte) {
	pkt, err := packet.Sign(cmd, payload, s.Keys.Priv)
	if err != nil {
		s.logf("sign %s: %v", cmd, err)
		return
	}
	s.Transport.Broadcast(pkt)
}
