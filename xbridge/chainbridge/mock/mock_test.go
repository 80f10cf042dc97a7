// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package mock

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

func TestDepositCheckAndRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewChain(order.NewCurrency("BLOCK"), 1000)

	inputs := []chainbridge.UTXO{{TxID: "src-1", Vout: 0, Amount: 20 * order.UnitsPerCoin}}
	dep, err := c.CreateDepositTransaction(ctx, inputs, "p2sh:abc", 10*order.UnitsPerCoin, 1000, "change-addr")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.CheckDepositTransaction(ctx, "nonexistent", 10*order.UnitsPerCoin, "p2sh:abc"); err == nil {
		t.Fatal("expected ErrMissingInputs for an unseen txid")
	}

	check, err := c.CheckDepositTransaction(ctx, dep.TxID, 10*order.UnitsPerCoin, "p2sh:abc")
	if err != nil {
		t.Fatal(err)
	}
	if !check.Good {
		t.Fatal("expected deposit check to pass")
	}

	var secret [32]byte
	rand.Read(secret[:])
	payment, err := c.CreatePaymentTransaction(ctx, dep.TxID, dep.Vout, nil, nil, secret[:], "redeem-addr")
	if err != nil {
		t.Fatal(err)
	}

	hashedSecret := htlcHash160Array(secret[:])
	got, err := c.GetSecretFromPaymentTransaction(ctx, payment.TxID, dep.TxID, dep.Vout, hashedSecret)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(secret[:]) {
		t.Fatal("recovered secret does not match original")
	}

	if _, err := c.CreatePaymentTransaction(ctx, dep.TxID, dep.Vout, nil, nil, secret[:], "redeem-addr-2"); err != chainbridge.ErrAlreadyInChain {
		t.Fatalf("expected ErrAlreadyInChain on double spend, got %v", err)
	}
}

func htlcHash160Array(b []byte) [20]byte {
	var out [20]byte
	copy(out[:], htlcHash160(b))
	return out
}

func TestRefundBlockedUntilLockTime(t *testing.T) {
	ctx := context.Background()
	c := NewChain(order.NewCurrency("LTC"), 100)

	inputs := []chainbridge.UTXO{{TxID: "src-1", Vout: 0, Amount: 5 * order.UnitsPerCoin}}
	dep, err := c.CreateDepositTransaction(ctx, inputs, "p2sh:def", 4*order.UnitsPerCoin, 1000, "change-addr")
	if err != nil {
		t.Fatal(err)
	}

	lockTime, err := c.LockTime(ctx, chainbridge.RoleMaker)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.CreateRefundTransaction(ctx, dep.TxID, dep.Vout, nil, nil, "refund-addr", lockTime); err == nil {
		t.Fatal("expected refund to be rejected before locktime")
	}

	c.AdvanceBlock(lockTime - c.BlockHeight())
	if _, err := c.CreateRefundTransaction(ctx, dep.TxID, dep.Vout, nil, nil, "refund-addr", lockTime); err != nil {
		t.Fatalf("expected refund to succeed at locktime: %v", err)
	}
}

func TestGetTxOutReflectsRegistrationAndSpend(t *testing.T) {
	ctx := context.Background()
	c := NewChain(order.NewCurrency("BLOCK"), 1000)

	if _, ok, err := c.GetTxOut(ctx, "utxo-1", 0); err != nil || ok {
		t.Fatal("expected an unregistered utxo to be unknown")
	}

	c.RegisterUTXO("utxo-1", 0, "owner-addr", 5*order.UnitsPerCoin)
	info, ok, err := c.GetTxOut(ctx, "utxo-1", 0)
	if err != nil || !ok {
		t.Fatalf("expected registered utxo to be found, ok=%v err=%v", ok, err)
	}
	if info.Address != "owner-addr" || info.Amount != 5*order.UnitsPerCoin {
		t.Fatalf("unexpected utxo info: %+v", info)
	}

	c.SpendUTXO("utxo-1", 0)
	if _, ok, err := c.GetTxOut(ctx, "utxo-1", 0); err != nil || ok {
		t.Fatal("expected a spent utxo to no longer be found")
	}
}

func TestAcceptableLockTimeDrift(t *testing.T) {
	c := NewChain(order.NewCurrency("BLOCK"), 500)
	makerLT := 500 + c.MakerLockTimeDelta
	if !c.AcceptableLockTimeDrift(chainbridge.RoleTaker, makerLT) {
		t.Fatal("maker locktime with full margin should be acceptable to the taker")
	}
	if c.AcceptableLockTimeDrift(chainbridge.RoleTaker, 500+c.TakerLockTimeDelta) {
		t.Fatal("maker locktime equal to taker's own should be rejected")
	}
}
