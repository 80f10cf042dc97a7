// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/coinlock"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/registry"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
	"github.com/blocknetdx/xbridge-go/xbridge/xchange"
)

type handlerFunc func(s *Session, pkt *packet.Packet) Result

var hubHandlers = map[packet.Command]handlerFunc{
	packet.Transaction:            hubProcessTransaction,
	packet.TransactionAccepting:   hubProcessTransactionAccepting,
	packet.TransactionHoldApply:   hubProcessTransactionHoldApply,
	packet.TransactionInitialized: hubProcessTransactionInitialized,
	packet.TransactionCreatedA:    hubProcessTransactionCreatedA,
	packet.TransactionCreatedB:    hubProcessTransactionCreatedB,
	packet.TransactionConfirmedA:  hubProcessTransactionConfirmedA,
	packet.TransactionConfirmedB:  hubProcessTransactionConfirmedB,
	packet.TransactionCancel:      hubProcessTransactionCancel,
}

// verifyCommittedUTXOs checks every committed UTXO against the chain and
// the signer's claimed ownership (spec.md §4.5: "verify each UTXO (chain-
// queryable, matches claimed address, signature over canonical
// serialization valid)"). It returns the summed on-chain amount so the
// caller can separately confirm it covers the order.
func verifyCommittedUTXOs(ctx context.Context, chain chainbridge.ChainBridge, utxos []wire.UTXORef, signer []byte) (order.Amount, error) {
	var total order.Amount
	for _, u := range utxos {
		if !wire.VerifyUTXORef(u, signer) {
			return 0, fmt.Errorf("utxo %x:%d has an invalid ownership signature", u.TxID, u.Vout)
		}
		info, ok, err := chain.GetTxOut(ctx, hex.EncodeToString(u.TxID[:]), u.Vout)
		if err != nil {
			return 0, fmt.Errorf("utxo %x:%d: %w", u.TxID, u.Vout, err)
		}
		if !ok {
			return 0, fmt.Errorf("utxo %x:%d not found or already spent", u.TxID, u.Vout)
		}
		if !bytesEqual(decodeAddr(info.Address), u.Addr[:]) {
			return 0, fmt.Errorf("utxo %x:%d address mismatch", u.TxID, u.Vout)
		}
		total += info.Amount
	}
	return total, nil
}

func outpointsOf(cur order.Currency, utxos []wire.UTXORef) []coinlock.Outpoint {
	out := make([]coinlock.Outpoint, len(utxos))
	for i, u := range utxos {
		out[i] = coinlock.Outpoint{Currency: cur, TxID: hex.EncodeToString(u.TxID[:]), Vout: u.Vout}
	}
	return out
}

// hubProcessTransaction handles a Maker's initial order broadcast
// (spec.md §4.5, "ProcessTransaction").
func hubProcessTransaction(s *Session, pkt *packet.Packet) Result {
	t, err := wire.UnmarshalTransaction(pkt.Payload)
	if err != nil {
		return fatal("malformed Transaction: %v", err)
	}

	// I1: recompute the canonical id and reject a mismatch. The anti-replay
	// anchor and first-utxo signature are exactly what DeriveID folds in.
	recomputed := order.DeriveID(string(t.SrcAddr[:]), t.SrcCur, t.SrcAmt, string(t.DstAddr[:]), t.DstCur,
		t.DstAmt, t.Timestamp, t.AnchorHash, t.Utxos[0].Sig[:])
	if recomputed != t.Hash {
		return fatal("order id mismatch: got %s, recomputed %s", t.Hash, recomputed)
	}

	srcChain, err := s.chain(t.SrcCur.String())
	if err != nil {
		return fatal("%v", err)
	}
	if t.SrcAmt < srcChain.DustThreshold() {
		return fatal("source amount %d is dust", t.SrcAmt)
	}

	total, err := verifyCommittedUTXOs(context.Background(), srcChain, t.Utxos, pkt.PubKey)
	if err != nil {
		return fatal("order %s: %v", t.Hash, err)
	}
	if total < t.SrcAmt {
		return fatal("order %s: committed utxos total %d below amount %d", t.Hash, total, t.SrcAmt)
	}

	outpoints := outpointsOf(t.SrcCur, t.Utxos)
	if conflict, lockOk := s.Locker.Trade.TryLock(t.Hash, outpoints); !lockOk {
		return fatal("utxo %+v already committed to another order", conflict)
	}

	now := time.Now()
	ex := xchange.NewFromTransaction(t.Hash, xchange.Side{
		Address:     string(t.SrcAddr[:]),
		Destination: string(t.DstAddr[:]),
		Currency:    t.SrcCur,
		Amount:      t.SrcAmt,
		PK:          pkt.PubKey,
		Utxos:       t.Utxos,
	}, t.DstCur, t.DstAmt, t.AnchorHash, now)
	if err := s.hubOrders.AddPending(ex); err != nil {
		s.Locker.Trade.Unlock(t.Hash)
		return fatal("%v", err)
	}

	pending := &wire.PendingTransaction{
		Hash:       t.Hash,
		SrcCur:     t.SrcCur,
		SrcAmt:     t.SrcAmt,
		DstCur:     t.DstCur,
		DstAmt:     t.DstAmt,
		HubAddr:    s.Addr,
		Timestamp:  t.Timestamp,
		AnchorHash: t.AnchorHash,
	}
	s.broadcast(packet.PendingTransaction, pending.Marshal())
	return ok()
}

// hubProcessTransactionAccepting handles a Taker's claim on an advertised
// order (spec.md §4.5, "ProcessTransactionAccepting"). I2 is enforced by
// registry.Accept: the first valid Accepting wins.
func hubProcessTransactionAccepting(s *Session, pkt *packet.Packet) Result {
	ta, err := wire.UnmarshalTransactionAccepting(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionAccepting: %v", err)
	}
	ex, loc := s.hubOrders.Get(ta.Hash)
	if loc == 0 {
		return fatal("unknown order %s", ta.Hash)
	}
	// Idempotency: an order already joined (or past joining) silently
	// drops any further Accepting, including a losing racer's retry.
	if ex.State != xbstate.Pending {
		return ok()
	}

	// Re-verify the Maker's own committed utxos are still unspent before
	// joining a Taker: spec.md §8, "Maker utxo spent between Transaction
	// and Accepting causes crBadUtxo cancel".
	makerChain, err := s.chain(ex.A.Currency.String())
	if err != nil {
		return fatal("%v", err)
	}
	if _, err := verifyCommittedUTXOs(context.Background(), makerChain, ex.A.Utxos, ex.A.PK); err != nil {
		ex.Cancel(time.Now())
		s.hubOrders.MoveToHistory(ta.Hash, ex)
		s.Locker.ReleaseOrder(ta.Hash)
		cancel := &wire.TransactionCancel{Hash: ta.Hash, Reason: wire.ReasonBadUTXO}
		s.broadcast(packet.TransactionCancel, cancel.Marshal())
		return ok()
	}

	dstChain, err := s.chain(ta.DstCur.String())
	if err != nil {
		return fatal("%v", err)
	}
	if ta.DstAmt < dstChain.DustThreshold() {
		return fatal("destination amount %d is dust", ta.DstAmt)
	}

	// The Taker's committed utxos are denominated in its own source
	// currency (what it sends), not the destination it expects back.
	takerSrcChain, err := s.chain(ta.SrcCur.String())
	if err != nil {
		return fatal("%v", err)
	}
	total, err := verifyCommittedUTXOs(context.Background(), takerSrcChain, ta.Utxos, pkt.PubKey)
	if err != nil {
		return fatal("order %s: taker utxo: %v", ta.Hash, err)
	}
	if total < ta.SrcAmt {
		return fatal("order %s: taker committed utxos total %d below amount %d", ta.Hash, total, ta.SrcAmt)
	}

	outpoints := outpointsOf(ta.SrcCur, ta.Utxos)
	if conflict, lockOk := s.Locker.Trade.TryLock(ta.Hash, outpoints); !lockOk {
		return fatal("utxo %+v already committed to another order", conflict)
	}

	if err := s.hubOrders.Accept(ta.Hash, ex); err != nil {
		s.Locker.Trade.Unlock(ta.Hash) // this Taker lost the race; release its locks (I2).
		s.logf("order %s: %v", ta.Hash, err)
		return ok()
	}
	if err := ex.Join(xchange.Side{
		Address:     string(ta.SrcAddr[:]),
		Destination: string(ta.DstAddr[:]),
		Currency:    ta.SrcCur,
		Amount:      ta.SrcAmt,
		PK:          pkt.PubKey,
		Utxos:       ta.Utxos,
	}, time.Now()); err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(ta.Hash, ex)

	hold := &wire.TransactionHold{HubAddr: s.Addr, Hash: ta.Hash}
	s.broadcast(packet.TransactionHold, hold.Marshal())
	return ok()
}

func (s *Session) roleOf(ex *xchange.ExchangeOrder, pub []byte) (xchange.Role, bool) {
	if bytesEqual(ex.A.PK, pub) {
		return xchange.RoleA, true
	}
	if bytesEqual(ex.B.PK, pub) {
		return xchange.RoleB, true
	}
	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hubProcessTransactionHoldApply(s *Session, pkt *packet.Packet) Result {
	h, err := wire.UnmarshalTransactionHoldApply(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionHoldApply: %v", err)
	}
	ex, loc := s.hubOrders.Get(h.Hash)
	if loc == 0 {
		return fatal("unknown order %s", h.Hash)
	}
	role, known := s.roleOf(ex, pkt.PubKey)
	if !known {
		return fatal("HoldApply from unrecognized key for order %s", h.Hash)
	}
	both, err := ex.AckHold(role, time.Now())
	if err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(h.Hash, ex)
	if !both {
		return ok()
	}
	initA := &wire.TransactionInit{
		RecipientAddr: [20]byte(decodeAddr(ex.A.Address)), HubAddr: s.Addr, Hash: h.Hash,
		SrcAddr: [20]byte(decodeAddr(ex.A.Address)), SrcCur: ex.A.Currency, SrcAmt: ex.A.Amount,
		DstAddr: [20]byte(decodeAddr(ex.A.Destination)), DstCur: ex.B.Currency, DstAmt: ex.B.Amount,
	}
	initB := &wire.TransactionInit{
		RecipientAddr: [20]byte(decodeAddr(ex.B.Address)), HubAddr: s.Addr, Hash: h.Hash,
		SrcAddr: [20]byte(decodeAddr(ex.B.Address)), SrcCur: ex.B.Currency, SrcAmt: ex.B.Amount,
		DstAddr: [20]byte(decodeAddr(ex.B.Destination)), DstCur: ex.A.Currency, DstAmt: ex.A.Amount,
	}
	s.broadcast(packet.TransactionInit, initA.Marshal())
	s.broadcast(packet.TransactionInit, initB.Marshal())
	return ok()
}

// decodeAddr recovers the 20-byte routing address this session encoded as
// a string field; routing addresses are fixed-width, so this is a plain
// truncate/pad rather than a real address codec (out of scope, §1).
func decodeAddr(s string) []byte {
	var b [20]byte
	copy(b[:], s)
	return b[:]
}

func hubProcessTransactionInitialized(s *Session, pkt *packet.Packet) Result {
	init, err := wire.UnmarshalTransactionInitialized(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionInitialized: %v", err)
	}
	ex, loc := s.hubOrders.Get(init.Hash)
	if loc == 0 {
		return fatal("unknown order %s", init.Hash)
	}
	role, known := s.roleOf(ex, pkt.PubKey)
	if !known {
		return fatal("Initialized from unrecognized key for order %s", init.Hash)
	}
	both, err := ex.AckInit(role, time.Now())
	if err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(init.Hash, ex)
	if !both {
		return ok()
	}
	// A goes first (spec.md §4.5).
	create := &wire.TransactionCreateA{HubAddr: s.Addr, Hash: init.Hash, CounterpartyPK: [33]byte(padPub(ex.B.PK))}
	s.send([20]byte(decodeAddr(ex.A.Address)), packet.TransactionCreateA, create.Marshal())
	return ok()
}

func padPub(pk []byte) []byte {
	var b [33]byte
	copy(b[:], pk)
	return b[:]
}

func hubProcessTransactionCreatedA(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCreatedA(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCreatedA: %v", err)
	}
	ex, loc := s.hubOrders.Get(c.Hash)
	if loc == 0 {
		return fatal("unknown order %s", c.Hash)
	}
	refTx, err := hex.DecodeString(c.RefTxHex)
	if err != nil {
		return fatal("malformed refund tx hex: %v", err)
	}
	if err := ex.RecordCreatedA(c.BinTxID, c.RefTxID, refTx, int64(c.LockTimeA), time.Now()); err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(c.Hash, ex)

	createB := &wire.TransactionCreateB{
		HubAddr: s.Addr, Hash: c.Hash, CounterpartyPK: [33]byte(padPub(ex.A.PK)),
		ABinTxID: c.BinTxID, HashedSecret: c.HashedSecret, LockTimeA: c.LockTimeA,
	}
	s.send([20]byte(decodeAddr(ex.B.Address)), packet.TransactionCreateB, createB.Marshal())
	return ok()
}

func hubProcessTransactionCreatedB(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCreatedB(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCreatedB: %v", err)
	}
	ex, loc := s.hubOrders.Get(c.Hash)
	if loc == 0 {
		return fatal("unknown order %s", c.Hash)
	}
	refTx, err := hex.DecodeString(c.RefTxHex)
	if err != nil {
		return fatal("malformed refund tx hex: %v", err)
	}
	if err := ex.RecordCreatedB(c.BinTxID, c.RefTxID, refTx, int64(c.LockTimeB), time.Now()); err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(c.Hash, ex)

	confirmA := &wire.TransactionConfirmA{HubAddr: s.Addr, Hash: c.Hash, BBinTxID: c.BinTxID, LockTimeB: c.LockTimeB}
	s.send([20]byte(decodeAddr(ex.A.Address)), packet.TransactionConfirmA, confirmA.Marshal())
	return ok()
}

func hubProcessTransactionConfirmedA(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionConfirmedA(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionConfirmedA: %v", err)
	}
	ex, loc := s.hubOrders.Get(c.Hash)
	if loc == 0 {
		return fatal("unknown order %s", c.Hash)
	}
	ex.RecordConfirmedA(c.APayTxID, time.Now())
	s.hubOrders.Update(c.Hash, ex)

	confirmB := &wire.TransactionConfirmB{HubAddr: s.Addr, Hash: c.Hash, APayTxID: c.APayTxID}
	s.send([20]byte(decodeAddr(ex.B.Address)), packet.TransactionConfirmB, confirmB.Marshal())
	return ok()
}

func hubProcessTransactionConfirmedB(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionConfirmedB(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionConfirmedB: %v", err)
	}
	ex, loc := s.hubOrders.Get(c.Hash)
	if loc == 0 {
		return fatal("unknown order %s", c.Hash)
	}
	both, err := ex.RecordConfirmedB(c.BPayTxID, time.Now())
	if err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.Update(c.Hash, ex)
	if !both {
		return ok()
	}
	if err := ex.Finish(time.Now()); err != nil {
		return fatal("%v", err)
	}
	s.hubOrders.MoveToHistory(c.Hash, ex)
	s.Locker.ReleaseOrder(c.Hash)

	finished := &wire.TransactionFinished{Hash: c.Hash}
	s.broadcast(packet.TransactionFinished, finished.Marshal())
	return ok()
}

// hubProcessTransactionCancel deletes the pending/active record and
// rebroadcasts the cancel so all participants converge (spec.md §4.7). A
// cancel for an order that is unknown or already in history (including
// this Hub's own rebroadcast coming back to it) is dropped.
func hubProcessTransactionCancel(s *Session, pkt *packet.Packet) Result {
	c, err := wire.UnmarshalTransactionCancel(pkt.Payload)
	if err != nil {
		return fatal("malformed TransactionCancel: %v", err)
	}
	ex, loc := s.hubOrders.Get(c.Hash)
	if loc != registry.Pending && loc != registry.Active {
		return ok()
	}
	ex.Cancel(time.Now())
	s.hubOrders.MoveToHistory(c.Hash, ex)
	s.Locker.ReleaseOrder(c.Hash)
	s.broadcast(packet.TransactionCancel, c.Marshal())
	return ok()
}
