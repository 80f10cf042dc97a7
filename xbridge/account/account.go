// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package account wraps the secp256k1 keypair every role (Maker, Taker,
// Hub) uses to sign packets and derive its routing identity, following
// the same pubkey-derived-identity pattern dcrdex's server/account uses
// for client accounts, adapted from a blake256-hashed account id to this
// protocol's 20-byte routing address (spec.md §5, "Session-id: 20 random
// bytes ... used as the hubAddress for routing replies" — an identity
// derived from the session's own keypair rather than generated
// separately keeps the routing address and the signing key consistent).
package account

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// AddrSize is the length of a routing address derived from a public key
// (spec.md §6, "addr=20").
const AddrSize = 20

// KeyPair is a session's or trader's signing identity.
type KeyPair struct {
	Priv *btcec.PrivateKey
	Pub  *btcec.PublicKey
}

// Generate creates a new random keypair.
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("account: generate key: %w", err)
	}
	return &KeyPair{Priv: priv, Pub: priv.PubKey()}, nil
}

// FromPrivateKeyBytes reconstructs a KeyPair from a 32-byte private scalar.
func FromPrivateKeyBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("account: private key must be 32 bytes, got %d", len(b))
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	return &KeyPair{Priv: priv, Pub: pub}, nil
}

// FromDecredPrivateKeyBytes reconstructs a KeyPair from a 32-byte private
// scalar in Decred's own secp256k1 encoding. dcrwallet and its
// Decred-family forks hand back keys through
// github.com/decred/dcrd/dcrec/secp256k1/v4 rather than btcec, even though
// both describe the same curve, so a Decred-flavored deposit address's
// owner key is parsed with decred's own library before being re-serialized
// into the btcec.PrivateKey every other part of this package assumes.
func FromDecredPrivateKeyBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("account: private key must be 32 bytes, got %d", len(b))
	}
	dpriv := secp256k1.PrivKeyFromBytes(b)
	return FromPrivateKeyBytes(dpriv.Serialize())
}

// PubKeyCompressed returns the 33-byte compressed public key, the exact
// form carried in a packet's pubkey field (spec.md §6).
func (k *KeyPair) PubKeyCompressed() []byte {
	return k.Pub.SerializeCompressed()
}

// Address derives this keypair's 20-byte routing address (HASH160 of the
// compressed pubkey), used as a session's hubAddress or a trader's
// fromAddr/toAddr routing field.
func (k *KeyPair) Address() [AddrSize]byte {
	var addr [AddrSize]byte
	copy(addr[:], btcutil.Hash160(k.PubKeyCompressed()))
	return addr
}

// String renders the public key as hex, for logging.
func (k *KeyPair) String() string {
	return hex.EncodeToString(k.PubKeyCompressed())
}

// RandomAddress generates a fresh, unattached 20-byte routing address, for
// the rare case a session needs routing identity before a keypair exists
// (e.g. an ephemeral relay hop).
func RandomAddress() ([AddrSize]byte, error) {
	var addr [AddrSize]byte
	if _, err := rand.Read(addr[:]); err != nil {
		return addr, err
	}
	return addr, nil
}
