// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package trader implements TraderSide (spec.md §2/§3): a trader's own
// view of an order, whichever of Maker or Taker it happens to be playing.
// This mirrors the shape of dcrdex's client/core.Order — a single struct
// accreting everything the client side of a trade needs to remember, kept
// current by the session's handlers rather than recomputed per packet.
package trader

import (
	"fmt"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// Role is which side of the trade this Order represents.
type Role uint8

const (
	RoleA Role = iota // Maker
	RoleB             // Taker
)

func (r Role) String() string {
	if r == RoleA {
		return "A"
	}
	return "B"
}

// WatchState tracks the counterparty-deposit-spend watcher (spec.md §4.6,
// §4.8: "redeemOrderCounterpartyDeposit").
type WatchState struct {
	WatchBlock      int64
	OtherPayTxTries int
	OtherPayTxID    string
	DoneWatching    bool
	// UseVoutScan is set once OtherPayTxTries against the hinted
	// OtherPayTxID has been exhausted; it switches the watcher to scanning
	// the deposit output itself for any spend (spec.md §4.6).
	UseVoutScan bool
}

// Order is a trader's (Maker's or Taker's) view of a swap in progress.
type Order struct {
	ID    order.ID
	Role  Role
	State xbstate.State

	FromCurrency, ToCurrency order.Currency
	FromAmount, ToAmount     order.Amount
	From, To                string // source/destination address strings

	Keys           *account.KeyPair
	CounterpartyPK []byte
	HubPK          []byte // pinned per I3

	Secret       [32]byte // Maker only; zero for Taker
	HasSecret    bool
	HashedSecret [20]byte // 20-byte HASH160, present for both roles

	LockTime         int64
	OpponentLockTime int64

	LockScript      []byte // own HTLC redeem script
	LockP2SHAddress string
	BinTx           []byte
	BinTxID         string
	BinTxVout       uint32
	Inputs          []chainbridge.UTXO // deposit inputs, supplied at order placement/acceptance
	FeeInputs       []chainbridge.UTXO
	FeeUTXOTxIDs    []string
	UsedCoins       []string
	RefundAddress   string
	RefTx           []byte
	RefTxID         string

	OBinTxID          string
	OBinTxVout        uint32
	UnlockScript      []byte // counterparty's HTLC redeem script, once learned
	UnlockP2SHAddress string
	OOverpayment      order.Amount

	PayTx   []byte
	PayTxID string
	Watch   WatchState

	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderID implements registry.Record.
func (o *Order) OrderID() order.ID { return o.ID }

// Advance applies I4 (monotone state transitions): next is only accepted
// if it is a legal successor of the Order's current state. A regression or
// an already-applied transition is reported, not silently ignored, so the
// caller can decide whether to drop the packet or treat it as a duplicate.
func (o *Order) Advance(next xbstate.State) error {
	if !xbstate.Advance(o.State, next) {
		return fmt.Errorf("trader: order %s illegal transition %s -> %s", o.ID, o.State, next)
	}
	o.State = next
	o.UpdatedAt = time.Now()
	return nil
}

// CatchUpTo advances the Order one step at a time up to target. Local
// bookkeeping only observes some of the steps the Hub's view goes through
// (e.g. a Maker's own order never sees an explicit "someone accepted"
// packet before TransactionHold arrives), so a handler receiving target
// may need to walk several positions in the canonical sequence rather than
// apply one direct transition (spec.md I4: "defensive against out-of-order
// delivery").
func (o *Order) CatchUpTo(target xbstate.State) error {
	for o.State != target {
		if err := o.Advance(o.State + 1); err != nil {
			return err
		}
	}
	return nil
}

// IsMaker reports whether this Order plays the Maker (A) role.
func (o *Order) IsMaker() bool { return o.Role == RoleA }

// IsTaker reports whether this Order plays the Taker (B) role.
func (o *Order) IsTaker() bool { return o.Role == RoleB }

// OwnsDestination reports whether addr is the counterparty deposit address
// this order is already watching. CreateB/ConfirmA recompute the expected
// P2SH from the counterparty's pubkey, the hashed secret, and the locktime
// on every delivery (including retries); this confirms the recomputed
// address didn't drift out from under a deposit already being watched,
// mirroring the original session's isAddressInTransaction guard before it
// trusts a claimed destination. The first call for an order always passes,
// since UnlockP2SHAddress is still unset.
func (o *Order) OwnsDestination(addr string) bool {
	if o.UnlockP2SHAddress == "" {
		return true
	}
	return o.UnlockP2SHAddress == addr
}

// Cancel moves the order to a terminal state with reason, freeing nothing
// itself — callers are responsible for releasing coin locks via
// xbridge/coinlock before or after calling Cancel (spec.md §4.7).
func (o *Order) Cancel(reason string) {
	o.State = xbstate.Cancelled
	o.Reason = reason
	o.UpdatedAt = time.Now()
}
