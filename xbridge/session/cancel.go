// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"

	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/txlog"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// cancelTrader implements the trader-side half of spec.md §4.7. Behavior
// branches on how far the order got before the cancel arrived.
func cancelTrader(s *Session, o *trader.Order, reason wire.CancelReason) Result {
	switch {
	case o.State == xbstate.Cancelled:
		return ok() // idempotent

	case o.State == xbstate.Committed:
		// The counterparty's deposit was already redeemed; the trade has
		// effectively settled. Let TransactionFinished close it out.
		return ok()

	case !xbstate.GreaterOrEqual(o.State, xbstate.Created):
		// No deposit sent yet: nothing to roll back on chain.
		o.Cancel(reason.String())
		s.traderOrders.MoveToHistory(o.ID, o)
		s.Locker.ReleaseOrder(o.ID)
		return ok()

	case len(o.RefTx) == 0:
		// Deposit is out but we have no refund transaction to fall back on.
		o.Cancel(reason.String())
		s.traderOrders.MoveToHistory(o.ID, o)
		s.logf("order %s: cancelled with no refund tx on hand, funds may be unreachable", o.ID)
		return ok()

	default:
		o.State = xbstate.Rollback
		o.Reason = reason.String()
		return redeemOrderDeposit(s, o)
	}
}

// redeemOrderDeposit broadcasts a trRollback order's refund transaction.
// Retry-later until the deposit's locktime has passed (the chain rejects
// a non-final nLockTime with a verify-style error); any other broadcast
// failure marks the order trRollbackFailed and the Watchdog keeps
// retrying it (spec.md §4.7, §4.8).
func redeemOrderDeposit(s *Session, o *trader.Order) Result {
	chain, err := s.chain(o.FromCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	signed, err := chain.CreateRefundTransaction(context.Background(), o.BinTxID, o.BinTxVout, o.LockScript,
		o.Keys.Priv.Serialize(), o.RefundAddress, o.LockTime)
	if err != nil {
		if chainbridge.ClassifyErr(err) == chainbridge.StatusVerifyError {
			s.traderOrders.Update(o.ID, o)
			return retryLater("order %s: locktime %d not yet reached", o.ID, o.LockTime)
		}
		o.State = xbstate.RollbackFailed
		s.traderOrders.Update(o.ID, o)
		return retryLater("refund broadcast for order %s failed: %v", o.ID, err)
	}
	s.txlog.Log(txlog.KindRefund, o.ID, signed.TxID, signed.RawTx)
	o.RefTxID = signed.TxID
	o.RefTx = signed.RawTx
	o.State = xbstate.Cancelled
	s.traderOrders.MoveToHistory(o.ID, o)
	s.Locker.ReleaseOrder(o.ID)
	return ok()
}
