// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package xbstate defines the shared order-state enum and the monotonicity
// rule (spec.md I4) that both trader-side and Hub-side state machines
// enforce. Having one enum for both sides, rather than two parallel ones,
// is what lets a single Advance check guard every handler in
// xbridge/session.
package xbstate

import "fmt"

// State is a step in an order's lifecycle. The non-terminal states form the
// canonical sequence from spec.md §4.3; the terminal states are reachable
// from any non-terminal state via cancellation, timeout, or completion.
type State uint8

const (
	New State = iota
	Pending
	Accepting
	Hold
	Initialized
	Created
	Committed
	Finished
	Cancelled
	Rollback
	RollbackFailed
	Dropped
	Expired
)

var names = map[State]string{
	New:            "New",
	Pending:        "Pending",
	Accepting:      "Accepting",
	Hold:           "Hold",
	Initialized:    "Initialized",
	Created:        "Created",
	Committed:      "Committed",
	Finished:       "Finished",
	Cancelled:      "Cancelled",
	Rollback:       "Rollback",
	RollbackFailed: "RollbackFailed",
	Dropped:        "Dropped",
	Expired:        "Expired",
}

// String satisfies fmt.Stringer.
func (s State) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// sequence gives the non-terminal states their position in the canonical
// forward sequence, ending at Finished, the one terminal state reached by
// moving forward. The other terminal states aren't part of the sequence;
// they're reached sideways from wherever the order was.
var sequence = map[State]int{
	New:         0,
	Pending:     1,
	Accepting:   2,
	Hold:        3,
	Initialized: 4,
	Created:     5,
	Committed:   6,
	Finished:    7,
}

// IsTerminal reports whether s is one of the terminal states: no further
// transitions are possible once an order reaches one of these.
func IsTerminal(s State) bool {
	switch s {
	case Finished, Cancelled, Rollback, RollbackFailed, Dropped, Expired:
		return true
	default:
		return false
	}
}

// Advance reports whether moving from cur to next is a legal, monotone
// transition (spec.md I4). Terminal states never advance further except
// that Rollback may proceed to RollbackFailed and back to Rollback (retried
// broadcast), and Rollback/RollbackFailed may both resolve to Cancelled.
// Any transition into a terminal state from a non-terminal state is always
// allowed. A handler that finds state >= target for a forward transition
// must drop the packet as a duplicate/out-of-order delivery.
func Advance(cur, next State) bool {
	if cur == next {
		return false // idempotency: re-applying the same state is a duplicate, not a transition
	}

	curSeq, curIsSeq := sequence[cur]
	nextSeq, nextIsSeq := sequence[next]

	switch {
	case curIsSeq && nextIsSeq:
		// Forward-only movement through the canonical sequence.
		return nextSeq == curSeq+1
	case curIsSeq && !nextIsSeq:
		// Falling out of the sequence into a terminal state is always
		// allowed (cancel/timeout/drop can happen at any non-terminal step);
		// Finished, the sequence's terminal last step, falls nowhere.
		return !IsTerminal(cur) && IsTerminal(next)
	case !curIsSeq:
		// cur is itself terminal (or unrecognized). Only a few terminal-to-
		// terminal moves are legal: rollback retry bookkeeping.
		switch cur {
		case Rollback:
			return next == RollbackFailed || next == Cancelled
		case RollbackFailed:
			return next == Rollback || next == Cancelled
		default:
			return false
		}
	default:
		return false
	}
}

// GreaterOrEqual reports whether a is at or past b in the canonical
// sequence, treating any terminal state as past every non-terminal state.
// Handlers use this to detect and drop replays: "if state >= target, drop".
func GreaterOrEqual(a, b State) bool {
	if a == b {
		return true
	}
	aSeq, aIsSeq := sequence[a]
	bSeq, bIsSeq := sequence[b]
	switch {
	case aIsSeq && bIsSeq:
		return aSeq >= bSeq
	case !aIsSeq && bIsSeq:
		return true // a is terminal, which is always past any sequence state
	case aIsSeq && !bIsSeq:
		return false // non-terminal a cannot be >= a terminal b unless equal
	default:
		return false // two different terminal states are incomparable
	}
}
