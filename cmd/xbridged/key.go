// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
)

// sessionKey loads the signing key at path, generating and persisting a
// fresh one if none exists yet. Unlike server/cmd/dcrdex/key.go's DEX key,
// this module has no password-based key encryption layer (xbridge/account
// has no encrypt sibling the way dex/encrypt does), so the raw 32-byte
// scalar is written with owner-only permissions instead. decredFormat
// selects Decred's own secp256k1 scalar encoding for an existing keyfile,
// for operators who imported a key exported by a Decred-family wallet.
func sessionKey(path string, decredFormat bool) (*account.KeyPair, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Infof("Creating new session signing key file at %s...", path)
		return createAndStoreKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	log.Infof("Loading session signing key from %s...", path)
	if decredFormat {
		return account.FromDecredPrivateKeyBytes(b)
	}
	return account.FromPrivateKeyBytes(b)
}

func createAndStoreKey(path string) (*account.KeyPair, error) {
	keys, err := account.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	if err := os.WriteFile(path, keys.Priv.Serialize(), 0600); err != nil {
		return nil, fmt.Errorf("write session key: %w", err)
	}
	return keys, nil
}
