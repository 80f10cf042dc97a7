// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/htlc"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/txlog"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

var traderHandlers = map[packet.Command]handlerFunc{
	packet.PendingTransaction:  traderProcessPendingTransaction,
	packet.TransactionHold:     traderProcessTransactionHold,
	packet.TransactionInit:     traderProcessTransactionInit,
	packet.TransactionCreateA:  traderProcessTransactionCreateA,
	packet.TransactionCreateB:  traderProcessTransactionCreateB,
	packet.TransactionConfirmA: traderProcessTransactionConfirmA,
	packet.TransactionConfirmB: traderProcessTransactionConfirmB,
	packet.TransactionCancel:   traderProcessTransactionCancel,
	packet.TransactionFinished: traderProcessTransactionFinished,
}

// checkHubPin enforces I3: the first Hub-signed packet a trader session
// sees pins the Hub's key; every later Hub-signed packet must match it.
func (s *Session) checkHubPin(pkt *packet.Packet) bool {
	if s.HubPK == nil {
		s.HubPK = append([]byte(nil), pkt.PubKey...)
		copy(s.HubAddr[:], btcutil.Hash160(s.HubPK))
		return true
	}
	return bytesEqual(s.HubPK, pkt.PubKey)
}

func (s *Session) order(id order.ID) (*trader.Order, bool) {
	o, loc := s.traderOrders.Get(id)
	return o, loc != 0
}

// traderProcessPendingTransaction advances an order this trader already
// placed from trNew to trPending. A PendingTransaction for an order we
// don't know about is somebody else's order book entry; ignored (spec.md
// §2: an Order record exists only once a Maker publishes or a Taker
// accepts).
func traderProcessPendingTransaction(s *Session, pkt *packet.Packet) Result {
	p, err := wire.UnmarshalPendingTransaction(pkt.Payload)
	if err != nil {
		return fatal("malformed PendingTransaction: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("PendingTransaction not signed by pinned hub key")
	}
	o, found := s.order(p.Hash)
	if !found {
		return ok()
	}
	if o.State != xbstate.New {
		return ok() // duplicate/out-of-order delivery
	}
	if err := o.Advance(xbstate.Pending); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)
	return ok()
}

// traderProcessTransactionHold advances trPending/trAccepting to trHold and
// replies with TransactionHoldApply.
func traderProcessTransactionHold(s *Session, pkt *packet.Packet) Result {
	h, err := wire.UnmarshalTransactionHold(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionHold: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionHold not signed by pinned hub key")
	}
	o, found := s.order(h.Hash)
	if !found {
		return fatal("unknown order %s", h.Hash)
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Hold) {
		return ok()
	}
	if err := o.CatchUpTo(xbstate.Hold); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	apply := &wire.TransactionHoldApply{HubAddr: h.HubAddr, FromAddr: s.Addr, Hash: h.Hash}
	s.send(h.HubAddr, packet.TransactionHoldApply, apply.Marshal())
	return ok()
}

// traderProcessTransactionInit advances trHold to trInitialized. A Taker
// broadcasts its fee payment here (spec.md trHold→trInitialized).
func traderProcessTransactionInit(s *Session, pkt *packet.Packet) Result {
	in, err := wire.UnmarshalTransactionInit(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionInit: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionInit not signed by pinned hub key")
	}
	o, found := s.order(in.Hash)
	if !found {
		return fatal("unknown order %s", in.Hash)
	}
	// TransactionInit is broadcast once per side (spec.md §6 carries a
	// RecipientAddr precisely so each side can tell which copy is its own,
	// since the routing address it names is derived from the order's own
	// chain address, not the session's identity key); the other side's copy
	// names the counterparty's currencies, not ours, so drop it rather than
	// act on it.
	if !bytesEqual(in.RecipientAddr[:], decodeAddr(o.From)) {
		return ok()
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Initialized) {
		return ok()
	}

	var feeTxHash [32]byte
	if o.IsTaker() {
		chain, err := s.chain(in.SrcCur.String())
		if err != nil {
			return fatal("%v", err)
		}
		// Nominal service fee: two dust thresholds on the Taker's source
		// chain. The protocol does not fix an exact fee schedule.
		feeAmt := chain.DustThreshold() * 2
		signed, err := chain.CreateFeeTransaction(context.Background(), o.FeeInputs, feeAddressOf(in), feeAmt)
		if err != nil {
			return retryLater("fee tx: %v", err)
		}
		s.txlog.Log(txlog.KindFee, o.ID, signed.TxID, signed.RawTx)
		copy(feeTxHash[:], []byte(signed.TxID))
		o.FeeUTXOTxIDs = append(o.FeeUTXOTxIDs, signed.TxID)
		// The fee tx has now been broadcast; the Fee pool's job (spec.md §5,
		// "released once the fee tx is broadcast") is done regardless of how
		// the rest of the order plays out.
		s.Locker.Fee.Unlock(o.ID)
	}

	if err := o.Advance(xbstate.Initialized); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	initialized := &wire.TransactionInitialized{HubAddr: in.HubAddr, FromAddr: s.Addr, Hash: in.Hash, FeeTxHash: feeTxHash}
	s.send(in.HubAddr, packet.TransactionInitialized, initialized.Marshal())
	return ok()
}

// feeAddressOf is a placeholder for the service-fee destination, which the
// protocol leaves to deployment configuration; routing it through the
// recipient field keeps the call site honest about where it comes from.
func feeAddressOf(in *wire.TransactionInit) string { return string(in.RecipientAddr[:]) }

// traderProcessTransactionCreateA builds and submits the Maker's deposit.
func traderProcessTransactionCreateA(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCreateA(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCreateA: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionCreateA not signed by pinned hub key")
	}
	o, found := s.order(c.Hash)
	if !found || !o.IsMaker() {
		return fatal("TransactionCreateA for unknown or non-Maker order %s", c.Hash)
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Created) {
		return ok()
	}

	chain, err := s.chain(o.FromCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	o.CounterpartyPK = append([]byte(nil), c.CounterpartyPK[:]...)

	lockTime, err := chain.LockTime(context.Background(), chainbridge.RoleMaker)
	if err != nil {
		return retryLater("lockTime: %v", err)
	}
	script, err := chain.CreateDepositUnlockScript(o.Keys.PubKeyCompressed(), o.CounterpartyPK, o.HashedSecret, lockTime)
	if err != nil {
		return fatal("build deposit script: %v", err)
	}
	p2sh, err := chain.ScriptIDToString(htlc.ScriptHash160(script))
	if err != nil {
		return fatal("script id: %v", err)
	}

	dep, err := chain.CreateDepositTransaction(context.Background(), o.Inputs, p2sh, o.FromAmount, 0, o.From)
	if err != nil {
		return retryLater("deposit tx: %v", err)
	}
	s.txlog.Log(txlog.KindDeposit, o.ID, dep.TxID, dep.RawTx)
	refundAddr, err := chain.GetNewAddress(context.Background())
	if err != nil {
		return retryLater("refund address: %v", err)
	}
	ref, err := chain.CreateRefundTransaction(context.Background(), dep.TxID, dep.Vout, script,
		o.Keys.Priv.Serialize(), refundAddr, lockTime)
	if err != nil {
		return retryLater("refund tx: %v", err)
	}
	s.txlog.Log(txlog.KindRefund, o.ID, ref.TxID, ref.RawTx)

	o.LockScript = script
	o.LockP2SHAddress = p2sh
	o.BinTx = dep.RawTx
	o.BinTxID = dep.TxID
	o.BinTxVout = dep.Vout
	o.LockTime = lockTime
	o.RefundAddress = refundAddr
	o.RefTx = ref.RawTx
	o.RefTxID = ref.TxID
	if err := o.Advance(xbstate.Created); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	created := &wire.TransactionCreatedA{
		HubAddr: c.HubAddr, Hash: c.Hash, BinTxID: dep.TxID, HashedSecret: o.HashedSecret,
		LockTimeA: uint32(lockTime), RefTxID: ref.TxID, RefTxHex: hex.EncodeToString(ref.RawTx),
	}
	s.send(c.HubAddr, packet.TransactionCreatedA, created.Marshal())
	return ok()
}

// traderProcessTransactionCreateB verifies A's deposit and submits the
// Taker's own HTLC. Retry-later while A's deposit isn't yet visible on
// chain (spec.md §4.6).
func traderProcessTransactionCreateB(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCreateB(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCreateB: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionCreateB not signed by pinned hub key")
	}
	o, found := s.order(c.Hash)
	if !found || !o.IsTaker() {
		return fatal("TransactionCreateB for unknown or non-Taker order %s", c.Hash)
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Created) {
		return ok()
	}

	fromChain, err := s.chain(o.ToCurrency.String()) // A's deposit is on the Maker's source chain, the Taker's "to" chain
	if err != nil {
		return fatal("%v", err)
	}
	o.CounterpartyPK = append([]byte(nil), c.CounterpartyPK[:]...)
	o.HashedSecret = c.HashedSecret
	o.OpponentLockTime = int64(c.LockTimeA)
	if !fromChain.AcceptableLockTimeDrift(chainbridge.RoleTaker, o.OpponentLockTime) {
		return cancelTrader(s, o, wire.ReasonBadADepositTx)
	}

	expectedScript, err := fromChain.CreateDepositUnlockScript(o.CounterpartyPK, o.Keys.PubKeyCompressed(), o.HashedSecret, o.OpponentLockTime)
	if err != nil {
		return fatal("build expected script: %v", err)
	}
	expectedP2SH, err := fromChain.ScriptIDToString(htlc.ScriptHash160(expectedScript))
	if err != nil {
		return fatal("script id: %v", err)
	}
	if !o.OwnsDestination(expectedP2SH) {
		return cancelTrader(s, o, wire.ReasonBadADepositTx)
	}
	check, err := fromChain.CheckDepositTransaction(context.Background(), c.ABinTxID, o.ToAmount, expectedP2SH)
	if err != nil {
		if chainbridge.ClassifyErr(err) == chainbridge.StatusVerifyError {
			o.UsedCoins = append(o.UsedCoins, "") // marker: at least one retry attempted
			s.traderOrders.Update(o.ID, o)
			if len(o.UsedCoins) >= s.MaxCreateRetries {
				return cancelTrader(s, o, wire.ReasonBadADepositTx)
			}
			return retryLater("waiting for A's deposit %s", c.ABinTxID)
		}
		return fatal("check A deposit: %v", err)
	}
	if !check.Good {
		return cancelTrader(s, o, wire.ReasonBadADepositTx)
	}
	o.OBinTxID = c.ABinTxID
	o.OBinTxVout = check.Vout
	o.UnlockScript = expectedScript
	o.UnlockP2SHAddress = expectedP2SH
	o.OOverpayment = check.Overpayment

	toChain, err := s.chain(o.FromCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	lockTime, err := toChain.LockTime(context.Background(), chainbridge.RoleTaker)
	if err != nil {
		return retryLater("lockTime: %v", err)
	}
	script, err := toChain.CreateDepositUnlockScript(o.Keys.PubKeyCompressed(), o.CounterpartyPK, o.HashedSecret, lockTime)
	if err != nil {
		return fatal("build deposit script: %v", err)
	}
	p2sh, err := toChain.ScriptIDToString(htlc.ScriptHash160(script))
	if err != nil {
		return fatal("script id: %v", err)
	}
	dep, err := toChain.CreateDepositTransaction(context.Background(), o.Inputs, p2sh, o.FromAmount, 0, o.From)
	if err != nil {
		return retryLater("deposit tx: %v", err)
	}
	s.txlog.Log(txlog.KindDeposit, o.ID, dep.TxID, dep.RawTx)
	refundAddr, err := toChain.GetNewAddress(context.Background())
	if err != nil {
		return retryLater("refund address: %v", err)
	}
	ref, err := toChain.CreateRefundTransaction(context.Background(), dep.TxID, dep.Vout, script,
		o.Keys.Priv.Serialize(), refundAddr, lockTime)
	if err != nil {
		return retryLater("refund tx: %v", err)
	}
	s.txlog.Log(txlog.KindRefund, o.ID, ref.TxID, ref.RawTx)

	o.LockScript = script
	o.LockP2SHAddress = p2sh
	o.BinTx = dep.RawTx
	o.BinTxID = dep.TxID
	o.BinTxVout = dep.Vout
	o.LockTime = lockTime
	o.RefundAddress = refundAddr
	o.RefTx = ref.RawTx
	o.RefTxID = ref.TxID
	if err := o.Advance(xbstate.Created); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	created := &wire.TransactionCreatedB{
		HubAddr: c.HubAddr, Hash: c.Hash, BinTxID: dep.TxID, LockTimeB: uint32(lockTime),
		RefTxID: ref.TxID, RefTxHex: hex.EncodeToString(ref.RawTx),
	}
	s.send(c.HubAddr, packet.TransactionCreatedB, created.Marshal())
	return ok()
}

// traderProcessTransactionConfirmA verifies B's deposit and redeems it,
// revealing the secret on chain.
func traderProcessTransactionConfirmA(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionConfirmA(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionConfirmA: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionConfirmA not signed by pinned hub key")
	}
	o, found := s.order(c.Hash)
	if !found || !o.IsMaker() {
		return fatal("TransactionConfirmA for unknown or non-Maker order %s", c.Hash)
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Committed) {
		return ok()
	}

	toChain, err := s.chain(o.ToCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	o.OpponentLockTime = int64(c.LockTimeB)
	if !toChain.AcceptableLockTimeDrift(chainbridge.RoleMaker, o.OpponentLockTime) {
		return cancelTrader(s, o, wire.ReasonBadBDepositTx)
	}
	expectedScript, err := toChain.CreateDepositUnlockScript(o.CounterpartyPK, o.Keys.PubKeyCompressed(), o.HashedSecret, o.OpponentLockTime)
	if err != nil {
		return fatal("build expected script: %v", err)
	}
	expectedP2SH, err := toChain.ScriptIDToString(htlc.ScriptHash160(expectedScript))
	if err != nil {
		return fatal("script id: %v", err)
	}
	if !o.OwnsDestination(expectedP2SH) {
		return cancelTrader(s, o, wire.ReasonBadBDepositTx)
	}
	check, err := toChain.CheckDepositTransaction(context.Background(), c.BBinTxID, o.ToAmount, expectedP2SH)
	if err != nil {
		if chainbridge.ClassifyErr(err) == chainbridge.StatusVerifyError {
			return retryLater("waiting for B's deposit %s", c.BBinTxID)
		}
		return fatal("check B deposit: %v", err)
	}
	if !check.Good {
		return cancelTrader(s, o, wire.ReasonBadBDepositTx)
	}
	o.OBinTxID = c.BBinTxID
	o.OBinTxVout = check.Vout
	o.UnlockScript = expectedScript
	o.UnlockP2SHAddress = expectedP2SH
	o.OOverpayment = check.Overpayment

	pay, err := toChain.CreatePaymentTransaction(context.Background(), o.OBinTxID, o.OBinTxVout, o.UnlockScript,
		o.Keys.Priv.Serialize(), o.Secret[:], o.To)
	if err != nil {
		return retryLater("redeem B's deposit: %v", err)
	}
	s.txlog.Log(txlog.KindRedeem, o.ID, pay.TxID, pay.RawTx)
	o.PayTx = pay.RawTx
	o.PayTxID = pay.TxID
	if err := o.Advance(xbstate.Committed); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	confirmed := &wire.TransactionConfirmedA{HubAddr: c.HubAddr, Hash: c.Hash, APayTxID: pay.TxID}
	s.send(c.HubAddr, packet.TransactionConfirmedA, confirmed.Marshal())
	return ok()
}

// traderProcessTransactionConfirmB watches A's redeem of B's HTLC, extracts
// the secret, and redeems A's deposit on the Taker's own chain.
func traderProcessTransactionConfirmB(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionConfirmB(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionConfirmB: %v", err)
	}
	if !s.checkHubPin(pkt) {
		return fatal("TransactionConfirmB not signed by pinned hub key")
	}
	o, found := s.order(c.Hash)
	if !found || !o.IsTaker() {
		return fatal("TransactionConfirmB for unknown or non-Taker order %s", c.Hash)
	}
	if xbstate.GreaterOrEqual(o.State, xbstate.Committed) {
		return ok()
	}

	// o.BinTxID is the Taker's own deposit, so A's redeem of it lands on the
	// Taker's own (From) chain; o.OBinTxID is A's deposit, redeemed here on
	// A's (the Taker's To) chain.
	ownChain, err := s.chain(o.FromCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	o.Watch.OtherPayTxID = c.APayTxID
	secret, err := ownChain.GetSecretFromPaymentTransaction(context.Background(), c.APayTxID, o.BinTxID, o.BinTxVout, o.HashedSecret)
	if err != nil {
		o.Watch.OtherPayTxTries++
		s.traderOrders.Update(o.ID, o)
		if o.Watch.OtherPayTxTries >= s.MaxCreateRetries {
			// The hinted APayTxID keeps failing; leave DoneWatching false so
			// the Watchdog's redeemOrderCounterpartyDeposit takes over and
			// scans o.BinTxID:o.BinTxVout for any spend directly, rather than
			// retrying this same hint forever (spec.md §4.6).
			o.Watch.UseVoutScan = true
			s.traderOrders.Update(o.ID, o)
		}
		return retryLater("waiting for A's redeem %s", c.APayTxID)
	}

	counterpartyChain, err := s.chain(o.ToCurrency.String())
	if err != nil {
		return fatal("%v", err)
	}
	pay, err := counterpartyChain.CreatePaymentTransaction(context.Background(), o.OBinTxID, o.OBinTxVout, o.UnlockScript,
		o.Keys.Priv.Serialize(), secret, o.To)
	if err != nil {
		return retryLater("redeem A's deposit: %v", err)
	}
	s.txlog.Log(txlog.KindRedeem, o.ID, pay.TxID, pay.RawTx)
	o.PayTx = pay.RawTx
	o.PayTxID = pay.TxID
	o.Watch.DoneWatching = true
	if err := o.Advance(xbstate.Committed); err != nil {
		return fatal("%v", err)
	}
	s.traderOrders.Update(o.ID, o)

	confirmed := &wire.TransactionConfirmedB{HubAddr: c.HubAddr, Hash: c.Hash, BPayTxID: pay.TxID}
	s.send(c.HubAddr, packet.TransactionConfirmedB, confirmed.Marshal())
	return ok()
}

// traderProcessTransactionFinished moves a settled order to history.
func traderProcessTransactionFinished(s *Session, pkt *packet.Packet) Result {
	f, err := wire.UnmarshalTransactionFinished(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionFinished: %v", err)
	}
	o, found := s.order(f.Hash)
	if !found {
		return ok()
	}
	if err := o.Advance(xbstate.Finished); err != nil {
		return ok() // already finished or otherwise terminal; idempotent drop
	}
	s.traderOrders.MoveToHistory(o.ID, o)
	s.Locker.ReleaseOrder(o.ID)
	return ok()
}

// traderProcessTransactionCancel is the trader-side half of §4.7, dispatched
// when the Hub rebroadcasts a cancel.
func traderProcessTransactionCancel(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCancel(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCancel: %v", err)
	}
	o, found := s.order(c.Hash)
	if !found {
		return ok()
	}
	return cancelTrader(s, o, c.Reason)
}
