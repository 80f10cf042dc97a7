// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package packet implements the PacketCodec: the framed, signed envelope
// that carries every command on the wire. A packet is parsed and its
// signature verified here; everything above this layer (command dispatch,
// per-command payload shapes) lives in xbridge/wire and xbridge/session.
//
// The codec fails closed: Decode refuses anything with a bad version or an
// implausible length, and Verify refuses a non-matching signature. Neither
// ever returns a partially-trusted packet for the caller to use on a "maybe
// it's fine" basis.
package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blocknetdx/xbridge-go"
)

// ProtocolVersion is the fixed wire protocol version. Packets carrying any
// other value are dropped by Decode. This constant is part of the wire
// protocol and must never change casually (see REDESIGN FLAGS in spec.md).
const ProtocolVersion uint32 = 40

// Sizes of the fixed-width trailer fields, per spec.md §6.
const (
	PubKeySize = 33 // compressed secp256k1 public key
	SigSize    = 65 // recoverable compact signature: 1 header byte + r(32) + s(32)
	headerSize = 4 + 1
	minSize    = headerSize + PubKeySize + SigSize
)

// Command identifies the handler that should process a Packet's payload.
// Values are part of the wire protocol and must be preserved exactly.
type Command uint8

// The complete command set used by the core. Commands not in this list
// (anything >= numCommands) are treated as Invalid.
const (
	Invalid Command = iota
	Announce
	XChatMessage
	ServicesPing
	Transaction
	PendingTransaction
	TransactionAccepting
	TransactionHoldApply
	TransactionHold
	TransactionInit
	TransactionInitialized
	TransactionCreateA
	TransactionCreateB
	TransactionCreatedA
	TransactionCreatedB
	TransactionConfirmA
	TransactionConfirmB
	TransactionConfirmedA
	TransactionConfirmedB
	TransactionCancel
	TransactionFinished
	numCommands
)

var commandNames = [numCommands]string{
	"Invalid", "Announce", "XChatMessage", "ServicesPing", "Transaction",
	"PendingTransaction", "TransactionAccepting", "TransactionHoldApply",
	"TransactionHold", "TransactionInit", "TransactionInitialized",
	"TransactionCreateA", "TransactionCreateB", "TransactionCreatedA",
	"TransactionCreatedB", "TransactionConfirmA", "TransactionConfirmB",
	"TransactionConfirmedA", "TransactionConfirmedB", "TransactionCancel",
	"TransactionFinished",
}

// String satisfies fmt.Stringer, mainly for logging.
func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// Valid reports whether c is a known, non-Invalid command.
func (c Command) Valid() bool {
	return c > Invalid && c < numCommands
}

// Packet is a fully parsed, NOT YET VERIFIED wire packet. Callers must call
// Verify before trusting Payload.
type Packet struct {
	Version uint32
	Command Command
	Payload []byte
	PubKey  []byte // PubKeySize bytes, compressed secp256k1
	Sig     []byte // SigSize bytes, recoverable compact
}

// Decode parses a raw wire packet. It fails closed: a short buffer or a
// version mismatch returns an error and a nil Packet, never a partially
// filled one. It does not check the signature; call Verify for that.
func Decode(data []byte) (*Packet, error) {
	if len(data) < minSize {
		return nil, xbridge.NewError(xbridge.ErrMalformed,
			fmt.Sprintf("packet too short: %d bytes", len(data)))
	}
	version := binary.LittleEndian.Uint32(data[0:4])
	if version != ProtocolVersion {
		return nil, xbridge.NewError(xbridge.ErrBadVersion,
			fmt.Sprintf("got %d, want %d", version, ProtocolVersion))
	}
	command := Command(data[4])
	rest := data[headerSize:]
	sigStart := len(rest) - SigSize
	pubStart := sigStart - PubKeySize
	if pubStart < 0 {
		return nil, xbridge.NewError(xbridge.ErrMalformed, "packet missing pubkey/sig trailer")
	}
	return &Packet{
		Version: version,
		Command: command,
		Payload: append([]byte(nil), rest[:pubStart]...),
		PubKey:  append([]byte(nil), rest[pubStart:sigStart]...),
		Sig:     append([]byte(nil), rest[sigStart:]...),
	}, nil
}

// signedDigest is the hash signed over version‖command‖payload.
func signedDigest(version uint32, command Command, payload []byte) chainhash.Hash {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], version)
	buf[4] = byte(command)
	copy(buf[headerSize:], payload)
	return chainhash.HashH(buf)
}

// Verify checks that p.Sig is a valid recoverable signature over
// p.Version‖p.Command‖p.Payload, and that the recovered public key matches
// p.PubKey exactly. A packet that fails Verify must be silently dropped,
// never partially processed (spec.md §4.1, §7).
func (p *Packet) Verify() error {
	if len(p.Sig) != SigSize {
		return xbridge.NewError(xbridge.ErrBadSignature,
			fmt.Sprintf("signature length %d, want %d", len(p.Sig), SigSize))
	}
	if len(p.PubKey) != PubKeySize {
		return xbridge.NewError(xbridge.ErrBadSignature,
			fmt.Sprintf("pubkey length %d, want %d", len(p.PubKey), PubKeySize))
	}
	digest := signedDigest(p.Version, p.Command, p.Payload)
	recovered, _, err := ecdsa.RecoverCompact(p.Sig, digest[:])
	if err != nil {
		return xbridge.NewError(xbridge.ErrBadSignature, err.Error())
	}
	if !bytesEqual(recovered.SerializeCompressed(), p.PubKey) {
		return xbridge.NewError(xbridge.ErrBadSignature, "recovered key does not match attached pubkey")
	}
	return nil
}

// VerifyAs checks the same signature as Verify, but requires the recovered
// key to equal a specific, already-known public key (I3: the Hub's key is
// pinned on first contact, and later packets must verify under that same
// key rather than merely under the key they happen to carry).
func (p *Packet) VerifyAs(pub *btcec.PublicKey) error {
	if err := p.Verify(); err != nil {
		return err
	}
	if !bytesEqual(p.PubKey, pub.SerializeCompressed()) {
		return xbridge.NewError(xbridge.ErrBadSignature, "packet not signed by pinned key")
	}
	return nil
}

// Sign builds a complete signed Packet for command/payload using priv.
func Sign(command Command, payload []byte, priv *btcec.PrivateKey) (*Packet, error) {
	digest := signedDigest(ProtocolVersion, command, payload)
	sig := ecdsa.SignCompact(priv, digest[:], true)
	return &Packet{
		Version: ProtocolVersion,
		Command: command,
		Payload: payload,
		PubKey:  priv.PubKey().SerializeCompressed(),
		Sig:     sig,
	}, nil
}

// Encode serializes p back to wire form. Callers normally only do this
// after Sign produced p, or when relaying an already-verified packet
// unchanged (e.g. the Hub rebroadcasting a Transaction as PendingTransaction
// under its own signature, which calls Sign again rather than Encode).
func (p *Packet) Encode() []byte {
	buf := make([]byte, headerSize+len(p.Payload)+PubKeySize+SigSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.Version)
	buf[4] = byte(p.Command)
	n := headerSize
	n += copy(buf[n:], p.Payload)
	n += copy(buf[n:], p.PubKey)
	copy(buf[n:], p.Sig)
	return buf
}

// Encrypt is a hook point for payload encryption. It is presently a no-op:
// the wire layout already reserves no extra space for it, so enabling
// encryption later does not require a layout change (spec.md §4.1, §9 open
// question: whether the p2p substrate already authenticates/encrypts).
func (p *Packet) Encrypt() error { return nil }

// Decrypt is the inverse hook point of Encrypt. Also presently a no-op.
func (p *Packet) Decrypt() error { return nil }

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
