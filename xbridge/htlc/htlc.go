// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package htlc builds and parses the hash-time-locked-contract redeem
// script described in spec.md §4.4: spendable by
// <counterpartyPub> <secret> (the redeem path, gated on HASH160(secret) ==
// hashedSecret) or by <ownerPub> after lockTime (the refund path). This is
// the same two-branch OP_IF/OP_ELSE/OP_ENDIF shape dcrdex's
// dex/networks/dcr/script.go builds for its own atomic swaps, adjusted to
// HASH160 (RIPEMD160(SHA256(x))) rather than bare SHA256 so the secret hash
// matches the 20-byte hashedSecret field spec.md's wire payloads carry
// (TransactionCreatedA/TransactionCreateB), rather than the 32-byte one
// dcrdex uses internally.
//
// Building and parsing the script is the one piece of "ChainBridge" logic
// this core specifies concretely; everything else a real ChainBridge does
// (fee estimation, RPC calls, key management) is out of scope per spec.md
// §1 and lives behind the xbridge/chainbridge.ChainBridge interface.
package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// HashedSecretSize is the length of the RIPEMD160(SHA256(secret)) digest
// carried on the wire (spec.md §6, "hashedSecret20").
const HashedSecretSize = 20

// SecretSize is the length of the HTLC preimage.
const SecretSize = 32

// PubKeyHashSize is the length of a HASH160(pubkey) or HASH160(script).
const PubKeyHashSize = 20

// MakeContract builds the HTLC redeem script locking funds to either:
//   - recipientHash, by presenting a signature from the recipient key plus
//     a 32-byte secret whose HASH160 equals hashedSecret (redeem path), or
//   - senderHash, by a signature from the sender key after lockTime
//     (refund path).
func MakeContract(recipientHash, senderHash [PubKeyHashSize]byte, hashedSecret [HashedSecretSize]byte, lockTime int64) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddOp(txscript.OP_HASH160).
		AddData(hashedSecret[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(recipientHash[:]).
		AddOp(txscript.OP_ELSE).
		AddInt64(lockTime).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(senderHash[:]).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// RedeemScript builds the signature script that spends contract via the
// redeem path, revealing secret.
func RedeemScript(contract, sig, pubkey, secret []byte) ([]byte, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", SecretSize, len(secret))
	}
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubkey).
		AddData(secret).
		AddInt64(1). // true branch: OP_IF
		AddData(contract).
		Script()
}

// RefundScript builds the signature script that spends contract via the
// refund path after lockTime has passed.
func RefundScript(contract, sig, pubkey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubkey).
		AddInt64(0). // false branch: OP_ELSE
		AddData(contract).
		Script()
}

// P2SHAddress derives the pay-to-script-hash address for contract under
// the given network parameters.
func P2SHAddress(contract []byte, params *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.NewAddressScriptHash(contract, params)
}

// ScriptHash160 returns HASH160(script), the value embedded in a P2SH
// pkScript.
func ScriptHash160(script []byte) [PubKeyHashSize]byte {
	var h [PubKeyHashSize]byte
	copy(h[:], btcutil.Hash160(script))
	return h
}

// Details is the information recoverable from a serialized HTLC contract
// script.
type Details struct {
	RecipientHash [PubKeyHashSize]byte
	SenderHash    [PubKeyHashSize]byte
	HashedSecret  [HashedSecretSize]byte
	LockTime      int64
}

// ExtractDetails parses a contract script previously built by MakeContract
// and returns its fields. It returns an error if contract does not have
// exactly the shape MakeContract produces (spec.md §7: "bad script in
// counterparty deposit" is a validation error, not a panic).
//
// The four data pushes in a MakeContract script appear, in order, as
// hashedSecret, recipientHash, the locktime scriptNum, and senderHash;
// PushedData walks the script collecting exactly those pushes in order,
// so we don't need to hand-roll opcode disassembly to recover them.
func ExtractDetails(contract []byte) (*Details, error) {
	pushes, err := txscript.PushedData(contract)
	if err != nil {
		return nil, fmt.Errorf("bad contract script: %w", err)
	}
	const wantPushes = 4
	if len(pushes) != wantPushes {
		return nil, fmt.Errorf("contract script has %d data pushes, want %d", len(pushes), wantPushes)
	}

	d := &Details{}
	if len(pushes[0]) != HashedSecretSize {
		return nil, fmt.Errorf("hashed secret push is %d bytes, want %d", len(pushes[0]), HashedSecretSize)
	}
	copy(d.HashedSecret[:], pushes[0])

	if len(pushes[1]) != PubKeyHashSize {
		return nil, fmt.Errorf("recipient hash push is %d bytes, want %d", len(pushes[1]), PubKeyHashSize)
	}
	copy(d.RecipientHash[:], pushes[1])

	lockTime, err := txscript.MakeScriptNum(pushes[2], true, 5)
	if err != nil {
		return nil, fmt.Errorf("bad locktime push: %w", err)
	}
	d.LockTime = int64(lockTime)

	if len(pushes[3]) != PubKeyHashSize {
		return nil, fmt.Errorf("sender hash push is %d bytes, want %d", len(pushes[3]), PubKeyHashSize)
	}
	copy(d.SenderHash[:], pushes[3])

	return d, nil
}
