// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package order defines the identifiers and fixed-point amount type shared
// by both the trader-side and Hub-side views of an order: the 32-byte
// content-hash OrderID (spec.md I1) and the satoshi-style Amount.
package order

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// UnitsPerCoin is the fixed-point scale: 1 coin == 1e8 units, the same
// convention dcrdex and every UTXO-chain wallet in the pack use.
const UnitsPerCoin = 1e8

// Amount is a signed, fixed-point quantity in units of 1/UnitsPerCoin of a
// coin.
type Amount int64

// IDSize is the length in bytes of an OrderID.
const IDSize = 32

// ID is the 32-byte content hash that uniquely names an order (spec.md I1).
type ID [IDSize]byte

// String renders the ID as hex, most-significant byte first.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (no order).
func (id ID) IsZero() bool {
	return id == ID{}
}

// Currency is an 8-byte, zero-padded ASCII ticker, matching the wire
// payload shapes of spec.md §6.
type Currency [8]byte

// NewCurrency zero-pads sym into a Currency. Panics if sym is longer than 8
// bytes; callers pass compile-time-known tickers.
func NewCurrency(sym string) Currency {
	var c Currency
	if len(sym) > len(c) {
		panic("currency symbol too long: " + sym)
	}
	copy(c[:], sym)
	return c
}

// String trims the zero padding and returns the ticker.
func (c Currency) String() string {
	n := len(c)
	for n > 0 && c[n-1] == 0 {
		n--
	}
	return string(c[:n])
}

// DeriveID computes the canonical order id per spec.md I1/§6:
//
//	SHA256d(srcAddr ‖ srcCur ‖ LE64(srcAmt) ‖ dstAddr ‖ dstCur ‖ LE64(dstAmt)
//	        ‖ LE64(timestamp) ‖ anchorBlockHash ‖ firstUtxoSig)
//
// srcAddr and dstAddr are the string (not binary) form of the trading
// addresses, matching the original implementation, which hashes the
// base58/bech32 address text rather than its decoded bytes.
func DeriveID(srcAddr string, srcCur Currency, srcAmt Amount, dstAddr string, dstCur Currency,
	dstAmt Amount, timestamp uint64, anchorBlockHash [32]byte, firstUTXOSig []byte) ID {

	buf := make([]byte, 0, len(srcAddr)+8+8+len(dstAddr)+8+8+8+32+len(firstUTXOSig))
	buf = append(buf, srcAddr...)
	buf = append(buf, srcCur[:]...)
	buf = appendLE64(buf, uint64(srcAmt))
	buf = append(buf, dstAddr...)
	buf = append(buf, dstCur[:]...)
	buf = appendLE64(buf, uint64(dstAmt))
	buf = appendLE64(buf, timestamp)
	buf = append(buf, anchorBlockHash[:]...)
	buf = append(buf, firstUTXOSig...)

	return ID(chainhash.DoubleHashH(buf))
}

func appendLE64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
