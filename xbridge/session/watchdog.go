// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/txlog"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// RunWatchdog ticks Tick on a fixed interval until ctx is cancelled
// (spec.md §4.8).
func (s *Session) RunWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one pass of the Watchdog's non-retry-queue responsibilities
// (spec.md §4.8): the per-packet retry-later park itself is driven by the
// wait.Queue started in Run.
func (s *Session) Tick() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.IsHub {
		s.sweepHub()
		s.Housekeep()
		return
	}
	for _, o := range s.traderOrders.Active() {
		s.tickTraderOrder(o)
	}
}

func (s *Session) tickTraderOrder(o *trader.Order) {
	switch o.State {
	case xbstate.Rollback, xbstate.RollbackFailed:
		redeemOrderDeposit(s, o)
	case xbstate.Created:
		if o.IsTaker() && !o.Watch.DoneWatching {
			redeemOrderCounterpartyDeposit(s, o)
		}
	}
}

// redeemOrderCounterpartyDeposit drives the Taker's watch for the Maker's
// on-chain redeem of the Taker's own HTLC (spec.md §4.6, §4.8,
// "redeemOrderCounterpartyDeposit"): extract the secret as soon as it
// appears on chain, then redeem the Maker's deposit. This is the retry
// path for the same lookup traderProcessTransactionConfirmB performs
// inline; it runs even if the ConfirmB packet itself never arrives again,
// which is how a restarted Taker session recovers scenario 3 of spec.md
// §8 (reconnect after the Maker has already redeemed on chain).
//
// Once o.Watch.UseVoutScan is set (traderProcessTransactionConfirmB gives
// up on the hinted OtherPayTxID after MaxCreateRetries), this switches from
// GetSecretFromPaymentTransaction's hinted lookup to FindSpendOfOutput,
// which needs no spend-txid hint at all: it scans the deposit output
// itself for any spend (spec.md §4.6, "the watcher switches from relying
// on the A-supplied tx hint to scanning B's deposit vout for any spend").
func redeemOrderCounterpartyDeposit(s *Session, o *trader.Order) {
	// o.BinTxID is the Taker's own deposit: A's redeem of it lands on the
	// Taker's own (From) chain. o.OBinTxID is A's deposit, redeemed here on
	// A's chain (the Taker's To chain).
	ownChain, err := s.chain(o.FromCurrency.String())
	if err != nil {
		s.logf("order %s: %v", o.ID, err)
		return
	}

	var secret []byte
	if o.Watch.UseVoutScan {
		_, scanned, found, err := ownChain.FindSpendOfOutput(context.Background(), o.BinTxID, o.BinTxVout, o.HashedSecret)
		if err != nil {
			s.logf("order %s: vout scan: %v", o.ID, err)
			return
		}
		if !found {
			return // still unspent; try again next tick
		}
		if scanned == nil {
			return // spent, but not a redeem that revealed the secret (e.g. a refund)
		}
		secret = scanned
	} else {
		if o.Watch.OtherPayTxID == "" {
			return // no hint yet; wait for a ConfirmB delivery to supply one
		}
		secret, err = ownChain.GetSecretFromPaymentTransaction(context.Background(), o.Watch.OtherPayTxID, o.BinTxID, o.BinTxVout, o.HashedSecret)
		if err != nil {
			o.Watch.OtherPayTxTries++
			s.traderOrders.Update(o.ID, o)
			return
		}
	}

	counterpartyChain, err := s.chain(o.ToCurrency.String())
	if err != nil {
		s.logf("order %s: %v", o.ID, err)
		return
	}
	pay, err := counterpartyChain.CreatePaymentTransaction(context.Background(), o.OBinTxID, o.OBinTxVout, o.UnlockScript,
		o.Keys.Priv.Serialize(), secret, o.To)
	if err != nil {
		s.logf("order %s: redeem counterparty deposit: %v", o.ID, err)
		return
	}
	s.txlog.Log(txlog.KindRedeem, o.ID, pay.TxID, pay.RawTx)
	o.PayTx = pay.RawTx
	o.PayTxID = pay.TxID
	o.Watch.DoneWatching = true
	if o.State != xbstate.Committed {
		if err := o.Advance(xbstate.Committed); err != nil {
			s.logf("order %s: %v", o.ID, err)
			return
		}
	}
	s.traderOrders.Update(o.ID, o)

	confirmed := &wire.TransactionConfirmedB{HubAddr: s.HubAddr, Hash: o.ID, BPayTxID: pay.TxID}
	s.send(s.HubAddr, packet.TransactionConfirmedB, confirmed.Marshal())
}

// sweepHub is the Hub's half of the Watchdog (spec.md §4.8,
// "checkFinishedTransactions"). The original distinguishes three cleanup
// categories rather than collapsing them into one terminal-state check, and
// this keeps them as three explicit passes:
//
//   - already Cancelled: drop silently. Whatever cancelled it already
//     broadcast the reason; the sweep has nothing new to say.
//   - Finished, Dropped, Expired, Rollback, RollbackFailed: move to history.
//     These are terminal but not a cancel this sweep originated, so no
//     TransactionCancel goes out.
//   - anything else still active past OrderTimeout: a genuine stall. Cancel
//     it with crTimeout and broadcast so both sides release their locks.
//
// Pending orders get a fourth, simpler rule: drop if stale, since nobody has
// committed coins to them yet.
func (s *Session) sweepHub() {
	now := time.Now()
	for _, ex := range s.hubOrders.Active() {
		switch {
		case ex.State == xbstate.Cancelled:
			s.hubOrders.MoveToHistory(ex.ID, ex)
			s.Locker.ReleaseOrder(ex.ID)
		case xbstate.IsTerminal(ex.State):
			s.hubOrders.MoveToHistory(ex.ID, ex)
			s.Locker.ReleaseOrder(ex.ID)
		case now.Sub(ex.UpdatedAt) > s.OrderTimeout:
			ex.Cancel(now)
			s.hubOrders.MoveToHistory(ex.ID, ex)
			s.Locker.ReleaseOrder(ex.ID)
			cancel := &wire.TransactionCancel{Hash: ex.ID, Reason: wire.ReasonTimeout}
			s.broadcast(packet.TransactionCancel, cancel.Marshal())
		}
	}
	for _, ex := range s.hubOrders.Pending() {
		if now.Sub(ex.UpdatedAt) > s.OrderTimeout {
			s.hubOrders.Drop(ex.ID)
			s.Locker.ReleaseOrder(ex.ID)
		}
	}
}

// Housekeep re-broadcasts every still-pending order as a PendingTransaction
// (spec.md's "sendListOfTransactions"), so a Taker session that starts up
// or reconnects after the order's original broadcast still sees it on the
// next Watchdog tick rather than only at the moment of first placement.
func (s *Session) Housekeep() {
	now := time.Now()
	for _, ex := range s.hubOrders.Pending() {
		pending := &wire.PendingTransaction{
			Hash:       ex.ID,
			SrcCur:     ex.A.Currency,
			SrcAmt:     ex.A.Amount,
			DstCur:     ex.ReqDstCur,
			DstAmt:     ex.ReqDstAmt,
			HubAddr:    s.Addr,
			Timestamp:  uint64(now.Unix()),
			AnchorHash: ex.BlockHash,
		}
		s.broadcast(packet.PendingTransaction, pending.Marshal())
	}
}
