// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package registry implements the OrderRegistry described in spec.md §2:
// an in-memory order-id → order-record map split into three disjoint
// subsets (pending, active, history) behind one mutex with short critical
// sections, the same shape dcrdex's server/market bookrouter and
// server/db keep their order maps in (a single coarse lock guarding a
// handful of plain Go maps, rather than a database round trip per
// lookup). It is generic over the record type so both the Hub's
// ExchangeOrder index and a trader session's trader.Order index reuse it
// without an import cycle.
package registry

import (
	"fmt"
	"sync"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// Record is the minimal capability the registry needs from an order
// record: a stable identity.
type Record interface {
	OrderID() order.ID
}

// Location names which of the registry's three subsets a record lives in.
type Location uint8

const (
	NotFound Location = iota
	Pending
	Active
	History
)

func (l Location) String() string {
	switch l {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case History:
		return "history"
	default:
		return "not-found"
	}
}

// Registry is the OrderRegistry. Zero value is not usable; use New.
type Registry[T Record] struct {
	mtx      sync.Mutex
	pending  map[order.ID]T
	active   map[order.ID]T
	history  map[order.ID]T
	accepted map[order.ID]bool // I2: at-most-one-accept per order id
}

// New constructs an empty Registry.
func New[T Record]() *Registry[T] {
	return &Registry[T]{
		pending:  make(map[order.ID]T),
		active:   make(map[order.ID]T),
		history:  make(map[order.ID]T),
		accepted: make(map[order.ID]bool),
	}
}

// AddPending inserts a freshly-seen order into the pending set. It fails if
// the id is already known in any subset (duplicate Transaction packet).
func (r *Registry[T]) AddPending(rec T) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	id := rec.OrderID()
	if r.locationLocked(id) != NotFound {
		return fmt.Errorf("registry: order %s already known", id)
	}
	r.pending[id] = rec
	return nil
}

// Accept enforces I2 (at-most-one-accept): the first caller to Accept an
// id moves it from pending to active and wins; every subsequent Accept for
// the same id is rejected, even if called again after the record moves on.
func (r *Registry[T]) Accept(id order.ID, accepted T) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.accepted[id] {
		return fmt.Errorf("registry: order %s already accepted", id)
	}
	if _, ok := r.pending[id]; !ok {
		return fmt.Errorf("registry: order %s is not pending", id)
	}
	delete(r.pending, id)
	r.active[id] = accepted
	r.accepted[id] = true
	return nil
}

// Get returns the record for id and where it currently lives.
func (r *Registry[T]) Get(id order.ID) (rec T, loc Location) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	switch r.locationLocked(id) {
	case Pending:
		return r.pending[id], Pending
	case Active:
		return r.active[id], Active
	case History:
		return r.history[id], History
	default:
		var zero T
		return zero, NotFound
	}
}

// Update replaces the active record for id in place (mutation of an
// ExchangeOrder/Order as it advances through its state machine).
func (r *Registry[T]) Update(id order.ID, rec T) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	switch r.locationLocked(id) {
	case Pending:
		r.pending[id] = rec
	case Active:
		r.active[id] = rec
	case History:
		r.history[id] = rec
	default:
		return fmt.Errorf("registry: order %s not found", id)
	}
	return nil
}

// MoveToHistory moves id out of pending/active into the terminal history
// set (spec.md: "destroyed by move-to-history when Finished, Cancelled, or
// Dropped").
func (r *Registry[T]) MoveToHistory(id order.ID, final T) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.pending, id)
	delete(r.active, id)
	r.history[id] = final
}

// Drop removes id entirely without moving it to history (a pending order
// whose validation failed, for example).
func (r *Registry[T]) Drop(id order.ID) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.pending, id)
	delete(r.active, id)
	delete(r.accepted, id)
}

// Active returns a snapshot slice of every active-set record.
func (r *Registry[T]) Active() []T {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]T, 0, len(r.active))
	for _, rec := range r.active {
		out = append(out, rec)
	}
	return out
}

// Pending returns a snapshot slice of every pending-set record.
func (r *Registry[T]) Pending() []T {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]T, 0, len(r.pending))
	for _, rec := range r.pending {
		out = append(out, rec)
	}
	return out
}

func (r *Registry[T]) locationLocked(id order.ID) Location {
	if _, ok := r.pending[id]; ok {
		return Pending
	}
	if _, ok := r.active[id]; ok {
		return Active
	}
	if _, ok := r.history[id]; ok {
		return History
	}
	return NotFound
}
