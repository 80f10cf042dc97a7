// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package xchange implements ExchangeSide (spec.md §2/§3): the Hub's view
// of an order, accumulating both parties' commitments and driving the
// Hub's half of the state machine. This is the Hub-side analogue of
// dcrdex's server/market.Match — a record that advances only once both
// parties involved have acknowledged a step, tracked here as two
// independent ack flags per step rather than dcrdex's sign-count
// bitmask, since there are always exactly two parties to watch.
package xchange

import (
	"fmt"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// Role identifies a side of the trade from the Hub's point of view.
type Role uint8

const (
	RoleA Role = iota
	RoleB
)

// Side is one party's contribution to a Hub-tracked order.
type Side struct {
	Address     string
	Destination string
	Currency    order.Currency
	Amount      order.Amount
	PK          []byte
	UTXOTxIDs   []string
	Utxos       []wire.UTXORef
	LockTime    int64
	BinTxID     string
	RefTxID     string
	RefTx       []byte
	PayTxID     string

	AckedHold      bool
	AckedInit      bool
	AckedCreated   bool
	AckedConfirmed bool
}

// ExchangeOrder is the Hub's bookkeeping record for one order (spec.md
// §3, "ExchangeOrder (Hub view)").
type ExchangeOrder struct {
	ID        order.ID
	State     xbstate.State
	CreatedAt time.Time
	UpdatedAt time.Time

	A, B Side

	// BlockHash anchors the order against replay (spec.md I1): the source
	// chain's tip hash at order-creation time.
	BlockHash [32]byte

	// ReqDstCur/ReqDstAmt are the Maker's requested terms for the side that
	// hasn't joined yet. B.Currency/B.Amount only exist once Join runs, so a
	// still-Pending order needs its own copy to rebroadcast PendingTransaction
	// (spec.md's "sendListOfTransactions" periodic re-advertisement).
	ReqDstCur order.Currency
	ReqDstAmt order.Amount
}

// OrderID implements registry.Record.
func (e *ExchangeOrder) OrderID() order.ID { return e.ID }

// NewFromTransaction creates a pending ExchangeOrder from a Maker's
// Transaction broadcast; side B is left zero until a Taker joins. reqDstCur
// and reqDstAmt are the Maker's requested destination terms, preserved so a
// still-pending order can be re-advertised.
func NewFromTransaction(id order.ID, a Side, reqDstCur order.Currency, reqDstAmt order.Amount, blockHash [32]byte, now time.Time) *ExchangeOrder {
	return &ExchangeOrder{
		ID:        id,
		State:     xbstate.Pending,
		CreatedAt: now,
		UpdatedAt: now,
		A:         a,
		BlockHash: blockHash,
		ReqDstCur: reqDstCur,
		ReqDstAmt: reqDstAmt,
	}
}

// Join attaches a Taker's side B to a pending order (I2's effect on the
// Hub's own record — the registry's Accept enforces at-most-one-accept
// across calls; Join just fills in the fields once that has happened).
func (e *ExchangeOrder) Join(b Side, now time.Time) error {
	if e.State != xbstate.Pending {
		return fmt.Errorf("xchange: order %s is not pending (state %s)", e.ID, e.State)
	}
	e.B = b
	e.UpdatedAt = now
	return e.advance(xbstate.Accepting, now)
}

func (e *ExchangeOrder) advance(next xbstate.State, now time.Time) error {
	if !xbstate.Advance(e.State, next) {
		return fmt.Errorf("xchange: order %s illegal transition %s -> %s", e.ID, e.State, next)
	}
	e.State = next
	e.UpdatedAt = now
	return nil
}

// AckHold records a HoldApply from role and reports whether both sides
// have now acked, in which case the Hub advances the order to Hold and
// should emit TransactionInit to both parties.
func (e *ExchangeOrder) AckHold(role Role, now time.Time) (bothAcked bool, err error) {
	switch role {
	case RoleA:
		e.A.AckedHold = true
	case RoleB:
		e.B.AckedHold = true
	}
	if e.A.AckedHold && e.B.AckedHold {
		if err := e.advance(xbstate.Hold, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// AckInit records an Initialized ack from role. Per spec.md §4.5's
// ProcessTransactionInitialized, once both sides ack the Hub advances to
// Initialized and sends TransactionCreateA to A only.
func (e *ExchangeOrder) AckInit(role Role, now time.Time) (bothAcked bool, err error) {
	switch role {
	case RoleA:
		e.A.AckedInit = true
	case RoleB:
		e.B.AckedInit = true
	}
	if e.A.AckedInit && e.B.AckedInit {
		if err := e.advance(xbstate.Initialized, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// RecordCreatedA records A's deposit and advances the order once (A goes
// first; there is no "both" to wait for here — CreatedB follows serially).
func (e *ExchangeOrder) RecordCreatedA(binTxID, refTxID string, refTx []byte, lockTime int64, now time.Time) error {
	e.A.BinTxID = binTxID
	e.A.RefTxID = refTxID
	e.A.RefTx = refTx
	e.A.LockTime = lockTime
	e.A.AckedCreated = true
	return e.advance(xbstate.Created, now)
}

// RecordCreatedB records B's deposit. The order is already Created (set by
// RecordCreatedA); this just fills in B's fields so ProcessTransactionCreatedB
// can emit TransactionConfirmA.
func (e *ExchangeOrder) RecordCreatedB(binTxID, refTxID string, refTx []byte, lockTime int64, now time.Time) error {
	if e.State != xbstate.Created {
		return fmt.Errorf("xchange: order %s not yet Created (state %s)", e.ID, e.State)
	}
	e.B.BinTxID = binTxID
	e.B.RefTxID = refTxID
	e.B.RefTx = refTx
	e.B.LockTime = lockTime
	e.B.AckedCreated = true
	e.UpdatedAt = now
	return nil
}

// RecordConfirmedA records A's pay-tx id.
func (e *ExchangeOrder) RecordConfirmedA(payTxID string, now time.Time) {
	e.A.PayTxID = payTxID
	e.A.AckedConfirmed = true
	e.UpdatedAt = now
}

// RecordConfirmedB records B's pay-tx id and advances to Committed once
// both sides have confirmed (spec.md §4.5, ProcessTransactionConfirmedB:
// "on both sides confirmed, emit TransactionFinished").
func (e *ExchangeOrder) RecordConfirmedB(payTxID string, now time.Time) (bothConfirmed bool, err error) {
	e.B.PayTxID = payTxID
	e.B.AckedConfirmed = true
	if e.A.AckedConfirmed && e.B.AckedConfirmed {
		if err := e.advance(xbstate.Committed, now); err != nil {
			return false, err
		}
		return true, nil
	}
	e.UpdatedAt = now
	return false, nil
}

// Finish moves the order to its terminal Finished state.
func (e *ExchangeOrder) Finish(now time.Time) error {
	return e.advance(xbstate.Finished, now)
}

// Cancel moves the order to Cancelled immediately, regardless of its
// current non-terminal state (spec.md §4.7).
func (e *ExchangeOrder) Cancel(now time.Time) {
	e.State = xbstate.Cancelled
	e.UpdatedAt = now
}
