// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/coinlock"
	"github.com/blocknetdx/xbridge-go/xbridge/htlc"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// feeOutpointsOf converts a trader's declared fee inputs, denominated in
// cur (the chain the fee transaction will itself be broadcast on), into
// coinlock.Outpoints for the Fee pool (spec.md §5: "Fee-UTXO set is a
// distinct pool").
func feeOutpointsOf(cur order.Currency, inputs []chainbridge.UTXO) []coinlock.Outpoint {
	out := make([]coinlock.Outpoint, len(inputs))
	for i, in := range inputs {
		out[i] = coinlock.Outpoint{Currency: cur, TxID: in.TxID, Vout: in.Vout}
	}
	return out
}

// PlaceOrderArgs is everything a Maker supplies to originate an order
// (spec.md's Data flow, "A Maker broadcasts an order"). Utxos must already
// carry each committed coin's ownership signature (spec.md §6); producing
// that signature is a wallet-layer concern outside this core (spec.md §1),
// so it is supplied here rather than derived.
type PlaceOrderArgs struct {
	FromCurrency, ToCurrency order.Currency
	FromAmount, ToAmount     order.Amount
	From, To                 string // the trader's own chain addresses, src and dst
	Inputs                   []chainbridge.UTXO
	FeeInputs                []chainbridge.UTXO
	Utxos                    []wire.UTXORef
	AnchorHash               [32]byte
	HubAddr                  [account.AddrSize]byte
}

// PlaceOrder originates a Maker's order: generates the HTLC secret, derives
// the canonical order id (I1), opens the local bookkeeping record, and
// broadcasts the signed Transaction packet the Hub will validate.
func (s *Session) PlaceOrder(args PlaceOrderArgs) (*trader.Order, error) {
	if s.IsHub {
		return nil, fmt.Errorf("session: PlaceOrder called on a Hub session")
	}
	if len(args.Utxos) == 0 {
		return nil, fmt.Errorf("session: order must commit at least one utxo")
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("session: generate secret: %w", err)
	}
	hashedSecret := htlc.ScriptHash160(secret[:])

	keys, err := account.Generate()
	if err != nil {
		return nil, fmt.Errorf("session: generate order keypair: %w", err)
	}

	now := time.Now()
	id := order.DeriveID(args.From, args.FromCurrency, args.FromAmount, args.To, args.ToCurrency,
		args.ToAmount, uint64(now.Unix()), args.AnchorHash, args.Utxos[0].Sig[:])

	o := &trader.Order{
		ID:           id,
		Role:         trader.RoleA,
		State:        xbstate.New,
		FromCurrency: args.FromCurrency,
		ToCurrency:   args.ToCurrency,
		FromAmount:   args.FromAmount,
		ToAmount:     args.ToAmount,
		From:         args.From,
		To:           args.To,
		Keys:         keys,
		Secret:       secret,
		HasSecret:    true,
		HashedSecret: hashedSecret,
		Inputs:       args.Inputs,
		FeeInputs:    args.FeeInputs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(args.FeeInputs) > 0 {
		if conflict, lockOk := s.Locker.Fee.TryLock(o.ID, feeOutpointsOf(args.FromCurrency, args.FeeInputs)); !lockOk {
			return nil, fmt.Errorf("session: fee utxo %+v already committed to another order", conflict)
		}
	}
	if err := s.traderOrders.AddPending(o); err != nil {
		s.Locker.Fee.Unlock(o.ID)
		return nil, err
	}

	t := &wire.Transaction{
		Hash:       id,
		SrcAddr:    [wire.AddrSize]byte(decodeAddr(args.From)),
		SrcCur:     args.FromCurrency,
		SrcAmt:     args.FromAmount,
		DstAddr:    [wire.AddrSize]byte(decodeAddr(args.To)),
		DstCur:     args.ToCurrency,
		DstAmt:     args.ToAmount,
		Timestamp:  uint64(now.Unix()),
		AnchorHash: args.AnchorHash,
		Utxos:      args.Utxos,
	}
	s.send(args.HubAddr, packet.Transaction, t.Marshal())
	return o, nil
}

// AcceptOrderArgs is everything a Taker supplies to accept an advertised
// order (spec.md's Data flow, "any Taker that matches sends Accepting").
// Deciding which PendingTransaction to match is a strategy concern outside
// this core; pending is whatever the Hub most recently broadcast for the
// order being accepted.
type AcceptOrderArgs struct {
	From, To  string
	Inputs    []chainbridge.UTXO
	FeeInputs []chainbridge.UTXO
	Utxos     []wire.UTXORef
}

// AcceptOrder originates a Taker's claim on pending. The Hub enforces
// at-most-one-accept (I2); losing the race surfaces later as a dropped
// TransactionHold that never arrives, not as an error returned here.
func (s *Session) AcceptOrder(pending *wire.PendingTransaction, args AcceptOrderArgs) (*trader.Order, error) {
	if s.IsHub {
		return nil, fmt.Errorf("session: AcceptOrder called on a Hub session")
	}
	if len(args.Utxos) == 0 {
		return nil, fmt.Errorf("session: order must commit at least one utxo")
	}

	keys, err := account.Generate()
	if err != nil {
		return nil, fmt.Errorf("session: generate order keypair: %w", err)
	}

	now := time.Now()
	o := &trader.Order{
		ID:           pending.Hash,
		Role:         trader.RoleB,
		State:        xbstate.New,
		FromCurrency: pending.DstCur,
		ToCurrency:   pending.SrcCur,
		FromAmount:   pending.DstAmt,
		ToAmount:     pending.SrcAmt,
		From:         args.From,
		To:           args.To,
		Keys:         keys,
		Inputs:       args.Inputs,
		FeeInputs:    args.FeeInputs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(args.FeeInputs) > 0 {
		if conflict, lockOk := s.Locker.Fee.TryLock(o.ID, feeOutpointsOf(pending.DstCur, args.FeeInputs)); !lockOk {
			return nil, fmt.Errorf("session: fee utxo %+v already committed to another order", conflict)
		}
	}
	if err := s.traderOrders.AddPending(o); err != nil {
		s.Locker.Fee.Unlock(o.ID)
		return nil, err
	}

	ta := &wire.TransactionAccepting{
		HubAddr: pending.HubAddr,
		Hash:    pending.Hash,
		SrcAddr: [wire.AddrSize]byte(decodeAddr(args.From)),
		SrcCur:  pending.DstCur,
		SrcAmt:  pending.DstAmt,
		DstAddr: [wire.AddrSize]byte(decodeAddr(args.To)),
		DstCur:  pending.SrcCur,
		DstAmt:  pending.SrcAmt,
		Utxos:   args.Utxos,
	}
	s.send(pending.HubAddr, packet.TransactionAccepting, ta.Marshal())
	return o, nil
}
