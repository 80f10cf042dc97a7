// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/htlc"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/registry"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
	"github.com/blocknetdx/xbridge-go/xbridge/xchange"
)

func newHubSession(t *testing.T) *Session {
	t.Helper()
	s := newStandaloneSession(t, true)
	s.OrderTimeout = time.Hour
	return s
}

func activeOrder(id order.ID, state xbstate.State, updatedAt time.Time) *xchange.ExchangeOrder {
	ex := xchange.NewFromTransaction(id, xchange.Side{Currency: order.NewCurrency("BLOCK"), Amount: 10 * order.UnitsPerCoin},
		order.NewCurrency("LTC"), 1*order.UnitsPerCoin, [32]byte{}, updatedAt)
	ex.State = state
	ex.UpdatedAt = updatedAt
	return ex
}

// TestSweepHubMovesCancelledToHistorySilently covers the "drop silently"
// category: an already-Cancelled order moves to history without a fresh
// TransactionCancel broadcast (whatever cancelled it already sent one).
func TestSweepHubMovesCancelledToHistorySilently(t *testing.T) {
	s := newHubSession(t)
	ex := activeOrder(order.ID{1}, xbstate.Cancelled, time.Now())
	if err := s.hubOrders.AddPending(ex); err != nil {
		t.Fatal(err)
	}
	if err := s.hubOrders.Accept(ex.ID, ex); err != nil {
		t.Fatal(err)
	}

	s.sweepHub()

	if _, loc := s.hubOrders.Get(ex.ID); loc != registry.History {
		t.Fatalf("location = %v, want History", loc)
	}
}

// TestSweepHubMovesFinishedToHistory covers the "move to history" category
// for a terminal state the sweep did not itself originate.
func TestSweepHubMovesFinishedToHistory(t *testing.T) {
	s := newHubSession(t)
	ex := activeOrder(order.ID{2}, xbstate.Finished, time.Now())
	if err := s.hubOrders.AddPending(ex); err != nil {
		t.Fatal(err)
	}
	if err := s.hubOrders.Accept(ex.ID, ex); err != nil {
		t.Fatal(err)
	}

	s.sweepHub()

	if _, loc := s.hubOrders.Get(ex.ID); loc != registry.History {
		t.Fatalf("location = %v, want History", loc)
	}
}

// TestSweepHubTimesOutStaleActiveOrder covers the "time out" category: a
// stale non-terminal active order is cancelled and a TransactionCancel is
// broadcast.
func TestSweepHubTimesOutStaleActiveOrder(t *testing.T) {
	s := newHubSession(t)
	s.OrderTimeout = time.Millisecond
	ex := activeOrder(order.ID{3}, xbstate.Hold, time.Now().Add(-time.Hour))
	if err := s.hubOrders.AddPending(ex); err != nil {
		t.Fatal(err)
	}
	if err := s.hubOrders.Accept(ex.ID, ex); err != nil {
		t.Fatal(err)
	}

	s.sweepHub()

	got, loc := s.hubOrders.Get(ex.ID)
	if loc != registry.History {
		t.Fatalf("location = %v, want History", loc)
	}
	if got.State != xbstate.Cancelled {
		t.Fatalf("state = %s, want Cancelled", got.State)
	}
}

// TestSweepHubDropsStalePendingOrder covers pending-order cleanup: no
// coins are committed yet, so a stale pending order is dropped, not moved
// to history.
func TestSweepHubDropsStalePendingOrder(t *testing.T) {
	s := newHubSession(t)
	s.OrderTimeout = time.Millisecond
	ex := activeOrder(order.ID{4}, xbstate.Pending, time.Now().Add(-time.Hour))
	if err := s.hubOrders.AddPending(ex); err != nil {
		t.Fatal(err)
	}

	s.sweepHub()

	if _, loc := s.hubOrders.Get(ex.ID); loc != registry.NotFound {
		t.Fatalf("location = %v, want NotFound", loc)
	}
}

// TestHousekeepRebroadcastsEveryPendingOrder covers the periodic Maker-order
// re-advertisement: every still-pending order should be re-sent as a
// PendingTransaction using its preserved requested destination terms.
func TestHousekeepRebroadcastsEveryPendingOrder(t *testing.T) {
	r := newRouter()
	s := newStandaloneSession(t, true)
	s.Transport = &fakeTransport{r: r}
	r.register(s.Addr, s)

	other := newStandaloneSession(t, false)
	r.register(other.Addr, other)

	ex := activeOrder(order.ID{5}, xbstate.Pending, time.Now())
	if err := s.hubOrders.AddPending(ex); err != nil {
		t.Fatal(err)
	}

	s.Housekeep()

	r.mu.Lock()
	n := len(r.queue)
	var found bool
	for _, rp := range r.queue {
		if rp.pkt.Command == packet.PendingTransaction {
			found = true
		}
	}
	r.mu.Unlock()
	if n == 0 || !found {
		t.Fatalf("expected a PendingTransaction broadcast, got %d queued packets", n)
	}
}

// newTakerWithDeposit builds a Taker session and order mid-flight: the
// Taker's own deposit (on chainA) is already on chain, and its redeem
// counterpart (on chainB) is the one the Watchdog still needs to create.
func newTakerWithDeposit(t *testing.T) (s *Session, o *trader.Order, chainA, chainB *fakeChain, secret []byte) {
	t.Helper()
	chainA = newFakeChain("BLOCK")
	chainB = newFakeChain("LTC")
	keys, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}
	s = New(false, keys, []chainbridge.ChainBridge{chainA, chainB}, &fakeTransport{r: newRouter()}, nil)

	dep, err := chainA.CreateDepositTransaction(context.Background(), nil, "p2sh:taker", 1*order.UnitsPerCoin, 0, "taker-src")
	if err != nil {
		t.Fatal(err)
	}
	o = &trader.Order{
		ID:           order.ID{9},
		Role:         trader.RoleB,
		State:        xbstate.Created,
		FromCurrency: chainA.cur,
		ToCurrency:   chainB.cur,
		BinTxID:      dep.TxID,
		BinTxVout:    dep.Vout,
		OBinTxID:     "maker-dep-1",
		OBinTxVout:   0,
		Keys:         keys,
		To:           "taker-dst",
	}
	if err := s.traderOrders.AddPending(o); err != nil {
		t.Fatal(err)
	}
	if err := s.traderOrders.Accept(o.ID, o); err != nil {
		t.Fatal(err)
	}
	return s, o, chainA, chainB, []byte("the-htlc-secret")
}

// TestRedeemOrderCounterpartyDepositVoutScanFindsRedeem covers the vout-scan
// fallback (spec.md §4.6): once UseVoutScan is set, a spend of the Taker's
// own deposit output is picked up without any hinted spend txid, and the
// revealed secret is used to redeem the Maker's deposit in turn.
func TestRedeemOrderCounterpartyDepositVoutScanFindsRedeem(t *testing.T) {
	s, o, chainA, _, secret := newTakerWithDeposit(t)
	o.HashedSecret = htlc.ScriptHash160(secret)
	o.Watch.UseVoutScan = true

	if _, err := chainA.CreatePaymentTransaction(context.Background(), o.BinTxID, o.BinTxVout, nil, nil, secret, "maker-dst"); err != nil {
		t.Fatal(err)
	}

	redeemOrderCounterpartyDeposit(s, o)

	got, _ := s.traderOrders.Get(o.ID)
	if !got.Watch.DoneWatching {
		t.Fatal("expected DoneWatching = true after vout scan found the redeem")
	}
	if got.PayTxID == "" {
		t.Fatal("expected a redeem tx against the Maker's deposit")
	}
	if got.State != xbstate.Committed {
		t.Fatalf("state = %s, want Committed", got.State)
	}
}

// TestRedeemOrderCounterpartyDepositVoutScanWaitsUntilSpent covers the
// still-unspent case: the scan finds nothing and the watcher simply waits
// for the next tick rather than erroring.
func TestRedeemOrderCounterpartyDepositVoutScanWaitsUntilSpent(t *testing.T) {
	s, o, _, _, _ := newTakerWithDeposit(t)
	o.Watch.UseVoutScan = true

	redeemOrderCounterpartyDeposit(s, o)

	got, _ := s.traderOrders.Get(o.ID)
	if got.Watch.DoneWatching {
		t.Fatal("expected DoneWatching to remain false while the deposit is still unspent")
	}
}
