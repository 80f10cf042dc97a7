// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package account

import "testing"

func TestGenerateAndDeriveAddress(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(kp.PubKeyCompressed()) != 33 {
		t.Fatalf("compressed pubkey length = %d, want 33", len(kp.PubKeyCompressed()))
	}
	addr1 := kp.Address()
	addr2 := kp.Address()
	if addr1 != addr2 {
		t.Fatal("Address should be deterministic for the same keypair")
	}
}

func TestFromPrivateKeyBytesRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := FromPrivateKeyBytes(kp.Priv.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if restored.String() != kp.String() {
		t.Fatal("restored keypair has a different public key")
	}
}

func TestFromDecredPrivateKeyBytesMatchesBtcec(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := FromDecredPrivateKeyBytes(kp.Priv.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if restored.String() != kp.String() {
		t.Fatal("decred-decoded keypair has a different public key than the btcec original")
	}
	if restored.Address() != kp.Address() {
		t.Fatal("decred-decoded keypair derives a different routing address")
	}
}

func TestFromDecredPrivateKeyBytesRejectsShortInput(t *testing.T) {
	if _, err := FromDecredPrivateKeyBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for an undersized key")
	}
}

func TestDistinctKeysYieldDistinctAddresses(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if a.Address() == b.Address() {
		t.Fatal("expected distinct keypairs to yield distinct addresses")
	}
}
