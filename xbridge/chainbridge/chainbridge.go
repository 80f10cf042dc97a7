// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package chainbridge defines the ChainBridge contract described in
// spec.md §4.4: the abstraction a per-currency wallet driver must satisfy
// so the swap core can build, sign, submit, and probe HTLC transactions
// without knowing anything about a particular chain's RPC surface. Real
// implementations (bitcoind-RPC, dcrwallet, etc.) are out of this core's
// scope per spec.md §1; this package only specifies the interface plus the
// RPC-status classification handlers need for spec.md §7's error taxonomy.
package chainbridge

import (
	"context"
	"errors"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// Role identifies which side of a swap a locktime or script belongs to.
type Role uint8

const (
	RoleMaker Role = iota // "A"
	RoleTaker             // "B"
)

// UTXO is a single spendable output committed to an order.
type UTXO struct {
	TxID     string
	Vout     uint32
	Address  string
	Amount   order.Amount
	ScriptPK []byte
}

// Output is a single transaction output to create.
type Output struct {
	Address string
	Amount  order.Amount
}

// RPCStatus classifies the outcome of a chain RPC call beyond plain
// success/failure, per spec.md §7:
//
//   - StatusOK: the call succeeded.
//   - StatusVerifyError: the node reported missing inputs — the deposit
//     this call depends on has not been seen yet. Treated as transient:
//     the caller should retry-later, not fail the order.
//   - StatusAlreadyInChain: the node reports the transaction is already
//     confirmed (e.g. submitting a refund that was already broadcast and
//     mined). Treated as success (spec.md §8, "Refund replay-ability").
//   - StatusError: any other RPC error. Transient; retried through the
//     Watchdog unless the caller decides otherwise.
type RPCStatus uint8

const (
	StatusOK RPCStatus = iota
	StatusVerifyError
	StatusAlreadyInChain
	StatusError
)

// ErrMissingInputs is a sentinel a ChainBridge implementation can wrap to
// signal StatusVerifyError conditions to callers that only have an error
// value, not a result struct.
var ErrMissingInputs = errors.New("chainbridge: missing inputs, deposit not yet seen")

// ErrAlreadyInChain is the sentinel for StatusAlreadyInChain.
var ErrAlreadyInChain = errors.New("chainbridge: transaction already in chain")

// ClassifyErr maps a raw RPC error to an RPCStatus using the sentinels
// above, falling back to StatusError for anything unrecognized.
func ClassifyErr(err error) RPCStatus {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrMissingInputs):
		return StatusVerifyError
	case errors.Is(err, ErrAlreadyInChain):
		return StatusAlreadyInChain
	default:
		return StatusError
	}
}

// DepositResult is returned by CreateDepositTransaction.
type DepositResult struct {
	TxID  string
	Vout  uint32
	RawTx []byte
}

// SignedTx is returned by CreateRefundTransaction, CreatePaymentTransaction,
// and CreateFeeTransaction.
type SignedTx struct {
	TxID  string
	RawTx []byte
}

// DepositCheck is returned by CheckDepositTransaction.
type DepositCheck struct {
	Vout        uint32
	Overpayment order.Amount
	Good        bool
}

// UTXOInfo describes a previous output as currently seen on chain,
// returned by GetTxOut.
type UTXOInfo struct {
	Address string
	Amount  order.Amount
}

// ChainBridge is the per-currency wallet driver contract (spec.md §4.4).
// Every method may block on a chain RPC call (spec.md §5, "Suspension
// points") and must be assumed to fail transiently; callers distinguish
// transient failure from fatal failure via ClassifyErr / the returned
// RPCStatus where applicable.
type ChainBridge interface {
	// Currency is this bridge's ticker, e.g. "BLOCK" or "LTC".
	Currency() order.Currency

	// DustThreshold is the minimum non-dust output amount on this chain.
	DustThreshold() order.Amount

	// LockTime returns a conservative absolute block height locktime for
	// role, chosen so the Maker's locktime exceeds the Taker's by a safe
	// margin (I6).
	LockTime(ctx context.Context, role Role) (int64, error)

	// AcceptableLockTimeDrift validates a counterparty-claimed locktime
	// for role against this bridge's own policy (I6).
	AcceptableLockTimeDrift(role Role, candidate int64) bool

	// CreateDepositUnlockScript builds the HTLC redeem script for a
	// deposit locking funds between ownerPub and counterpartyPub under
	// hashedSecret and lockTime.
	CreateDepositUnlockScript(ownerPub, counterpartyPub []byte, hashedSecret [20]byte, lockTime int64) (script []byte, err error)

	// ScriptIDToString renders a script's HASH160 as this chain's P2SH
	// address string.
	ScriptIDToString(scriptHash160 [20]byte) (address string, err error)

	// CreateDepositTransaction funds the P2SH output carrying amount+fee,
	// sending change (if non-dust) to changeAddress. The address comes from
	// the caller; it is not derived from the inputs (the session's handlers
	// pass the order's own source address).
	CreateDepositTransaction(ctx context.Context, inputs []UTXO, p2shAddress string, amount, fee order.Amount, changeAddress string) (*DepositResult, error)

	// CreateRefundTransaction signs a transaction spending the deposit
	// output (identified by depositTxID/Vout/script) back to refundAddress,
	// with nLockTime set to lockTime.
	CreateRefundTransaction(ctx context.Context, depositTxID string, depositVout uint32, script []byte, ownerPriv []byte, refundAddress string, lockTime int64) (*SignedTx, error)

	// CreatePaymentTransaction signs a transaction redeeming the
	// counterparty's deposit by revealing secret.
	CreatePaymentTransaction(ctx context.Context, counterpartyDepositTxID string, counterpartyDepositVout uint32, counterpartyScript []byte, ownerPriv []byte, secret []byte, payToAddress string) (*SignedTx, error)

	// CreateFeeTransaction broadcasts the service fee payment to the
	// given address (spec.md's trInitialized step, "if role B, broadcast
	// fee-tx").
	CreateFeeTransaction(ctx context.Context, inputs []UTXO, feeAddress string, amount order.Amount) (*SignedTx, error)

	// CheckDepositTransaction verifies that txid's output at the expected
	// vout pays expectedP2SH at least amount, returning any overpayment to
	// be folded into the redeem amount.
	CheckDepositTransaction(ctx context.Context, txid string, amount order.Amount, expectedP2SH string) (*DepositCheck, error)

	// GetSecretFromPaymentTransaction extracts the HTLC preimage from the
	// counterparty's redeem of prevTxid:prevVout, found in spendTxid.
	GetSecretFromPaymentTransaction(ctx context.Context, spendTxid, prevTxid string, prevVout uint32, hashedSecret [20]byte) (secret []byte, err error)

	// GetNewAddress returns a fresh address owned by the local wallet
	// (used for refund/redeem destinations).
	GetNewAddress(ctx context.Context) (string, error)

	// GetTxOut is the UTXO/TxOut query spec.md §1 names as part of the
	// WalletConnector contract: it looks up txid:vout in the chain's
	// current UTXO set, reporting ok=false if the output is unknown or
	// already spent. Callers use this to confirm a committed UTXO still
	// exists and belongs to the address its owner claimed before trusting
	// it (spec.md §4.5, §8's "Maker utxo spent between Transaction and
	// Accepting").
	GetTxOut(ctx context.Context, txid string, vout uint32) (info UTXOInfo, ok bool, err error)

	// FindSpendOfOutput scans for any transaction spending prevTxid:prevVout,
	// independent of a previously hinted spend txid, and extracts the HTLC
	// preimage from it if found (spec.md §4.6: "the watcher switches from
	// relying on the A-supplied tx hint to scanning B's deposit vout for any
	// spend"). found is false if the output is still unspent as of this
	// call; secret is nil unless a spend was found and it actually redeemed
	// the HTLC locked by hashedSecret (a refund spend, for instance, leaves
	// secret nil with found true).
	FindSpendOfOutput(ctx context.Context, prevTxid string, prevVout uint32, hashedSecret [20]byte) (spendTxid string, secret []byte, found bool, err error)
}
