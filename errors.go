// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package xbridge

// ErrorKind identifies a kind of error. New sentinel errors are declared as
// const SomeError = xbridge.ErrorKind("something"), and detected with
// errors.Is.
type ErrorKind string

// Error satisfies the error interface.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error pairs a sentinel ErrorKind with a detail string.
type Error struct {
	wrapped error
	detail  string
}

// Error satisfies the error interface.
func (e Error) Error() string {
	return e.wrapped.Error() + ": " + e.detail
}

// Unwrap returns the wrapped error, so errors.Is and errors.As work against
// the sentinel ErrorKind.
func (e Error) Unwrap() error {
	return e.wrapped
}

// NewError wraps err with a detail string.
func NewError(err error, detail string) Error {
	return Error{wrapped: err, detail: detail}
}

// Sentinel error kinds shared across the core. Components define their own
// more specific kinds; these are the ones that cross package boundaries.
const (
	// ErrBadSignature is returned when a packet signature fails to verify.
	ErrBadSignature = ErrorKind("bad signature")
	// ErrBadVersion is returned when a packet's protocol version does not
	// match PROTOCOL_VERSION.
	ErrBadVersion = ErrorKind("bad protocol version")
	// ErrMalformed is returned when a packet or payload is too short or has
	// an invalid shape for its command.
	ErrMalformed = ErrorKind("malformed packet")
	// ErrUnknownOrder is returned when a packet references an order id the
	// receiver has no record of.
	ErrUnknownOrder = ErrorKind("unknown order")
	// ErrOrderIDMismatch is returned when a recomputed order id does not
	// match the one carried in the packet (I1).
	ErrOrderIDMismatch = ErrorKind("order id mismatch")
	// ErrStateRegression is returned when a handler would move an order's
	// state backward (I4).
	ErrStateRegression = ErrorKind("state regression")
	// ErrAlreadyAccepted is returned when a second Accepting packet arrives
	// for an order that already has a Taker (I2).
	ErrAlreadyAccepted = ErrorKind("order already accepted")
	// ErrBadUTXO is returned when a claimed UTXO fails verification, is
	// already spent, or is already locked by another order.
	ErrBadUTXO = ErrorKind("bad utxo")
	// ErrDust is returned when a trade amount is below the chain's dust
	// threshold.
	ErrDust = ErrorKind("dust amount")
	// ErrInsufficientFunds is returned when committed UTXOs do not cover
	// the claimed trade amount.
	ErrInsufficientFunds = ErrorKind("insufficient funds")
	// ErrBadScript is returned when a counterparty's deposit script does
	// not match the expected HTLC shape.
	ErrBadScript = ErrorKind("bad htlc script")
)
