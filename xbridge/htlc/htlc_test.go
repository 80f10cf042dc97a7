// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/ripemd160" // HASH160 = RIPEMD160(SHA256(x)), matches the wire hashedSecret field.
)

func hash160(b []byte) [PubKeyHashSize]byte {
	sh := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sh[:])
	var out [PubKeyHashSize]byte
	copy(out[:], r.Sum(nil))
	return out
}

func TestMakeContractExtractDetailsRoundTrip(t *testing.T) {
	var recipient, sender [PubKeyHashSize]byte
	rand.Read(recipient[:])
	rand.Read(sender[:])

	secret := make([]byte, SecretSize)
	rand.Read(secret)
	hashedSecret := hash160(secret)

	contract, err := MakeContract(recipient, sender, hashedSecret, 654321)
	if err != nil {
		t.Fatal(err)
	}

	details, err := ExtractDetails(contract)
	if err != nil {
		t.Fatal(err)
	}
	if details.RecipientHash != recipient {
		t.Fatal("recipient hash mismatch")
	}
	if details.SenderHash != sender {
		t.Fatal("sender hash mismatch")
	}
	if details.HashedSecret != hashedSecret {
		t.Fatal("hashed secret mismatch")
	}
	if details.LockTime != 654321 {
		t.Fatalf("locktime = %d, want 654321", details.LockTime)
	}
}

func TestExtractDetailsRejectsGarbage(t *testing.T) {
	if _, err := ExtractDetails([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatal("expected an error for a non-HTLC script")
	}
}

func TestP2SHAddress(t *testing.T) {
	var recipient, sender [PubKeyHashSize]byte
	contract, err := MakeContract(recipient, sender, [HashedSecretSize]byte{}, 100)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := P2SHAddress(contract, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	if addr.EncodeAddress() == "" {
		t.Fatal("expected a non-empty P2SH address")
	}
}
