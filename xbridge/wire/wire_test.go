// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wire

import (
	"bytes"
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

func sampleUTXO(n byte) UTXORef {
	var u UTXORef
	for i := range u.TxID {
		u.TxID[i] = n
	}
	u.Vout = uint32(n)
	for i := range u.Addr {
		u.Addr[i] = n + 1
	}
	for i := range u.Sig {
		u.Sig[i] = n + 2
	}
	return u
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := &Transaction{
		Hash:      order.ID{1, 2, 3},
		SrcCur:    order.NewCurrency("BLOCK"),
		SrcAmt:    10 * order.UnitsPerCoin,
		DstCur:    order.NewCurrency("LTC"),
		DstAmt:    1 * order.UnitsPerCoin,
		Timestamp: 1700000000,
		Utxos:     []UTXORef{sampleUTXO(1), sampleUTXO(2)},
	}
	copy(tx.SrcAddr[:], "srcaddr1")
	copy(tx.DstAddr[:], "dstaddr1")

	data := tx.Marshal()
	got, err := UnmarshalTransaction(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != tx.Hash || got.SrcCur != tx.SrcCur || got.SrcAmt != tx.SrcAmt ||
		got.DstCur != tx.DstCur || got.DstAmt != tx.DstAmt || got.Timestamp != tx.Timestamp {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, tx)
	}
	if len(got.Utxos) != 2 || got.Utxos[0] != tx.Utxos[0] || got.Utxos[1] != tx.Utxos[1] {
		t.Fatalf("utxo round trip mismatch: %+v", got.Utxos)
	}
}

func TestTransactionRejectsZeroUtxos(t *testing.T) {
	tx := &Transaction{SrcCur: order.NewCurrency("BLOCK"), DstCur: order.NewCurrency("LTC")}
	data := tx.Marshal()
	if _, err := UnmarshalTransaction(data); err == nil {
		t.Fatal("expected zero-utxo Transaction to be rejected")
	}
}

func TestTransactionAcceptingRejectsZeroUtxos(t *testing.T) {
	ta := &TransactionAccepting{SrcCur: order.NewCurrency("BLOCK"), DstCur: order.NewCurrency("LTC")}
	data := ta.Marshal()
	if _, err := UnmarshalTransactionAccepting(data); err == nil {
		t.Fatal("expected zero-utxo TransactionAccepting to be rejected")
	}
}

func TestPendingTransactionExactSize(t *testing.T) {
	p := &PendingTransaction{SrcCur: order.NewCurrency("BLOCK"), DstCur: order.NewCurrency("LTC")}
	data := p.Marshal()
	if len(data) != 124 {
		t.Fatalf("PendingTransaction payload = %d bytes, want 124", len(data))
	}
	if _, err := UnmarshalPendingTransaction(data); err != nil {
		t.Fatalf("minimum-size payload should parse: %v", err)
	}
	if _, err := UnmarshalPendingTransaction(data[:len(data)-1]); err == nil {
		t.Fatal("one byte short of minimum size should fail to parse")
	}
}

func TestTransactionHoldExactSize(t *testing.T) {
	h := &TransactionHold{}
	data := h.Marshal()
	if len(data) != 52 {
		t.Fatalf("TransactionHold payload = %d bytes, want 52", len(data))
	}
	if _, err := UnmarshalTransactionHold(data[:len(data)-1]); err == nil {
		t.Fatal("one byte short should fail")
	}
}

func TestTransactionCancelRoundTrip(t *testing.T) {
	c := &TransactionCancel{Hash: order.ID{9}, Reason: ReasonTimeout}
	data := c.Marshal()
	if len(data) != 36 {
		t.Fatalf("TransactionCancel payload = %d bytes, want 36", len(data))
	}
	got, err := UnmarshalTransactionCancel(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != c.Hash || got.Reason != c.Reason {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, c)
	}
	if got.Reason.String() != "timeout" {
		t.Fatalf("Reason.String() = %q, want timeout", got.Reason.String())
	}
}

func TestTransactionFinishedRoundTrip(t *testing.T) {
	f := &TransactionFinished{Hash: order.ID{7, 7, 7}}
	data := f.Marshal()
	if len(data) != 32 {
		t.Fatalf("TransactionFinished payload = %d bytes, want 32", len(data))
	}
	got, err := UnmarshalTransactionFinished(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != f.Hash {
		t.Fatal("hash mismatch")
	}
	if _, err := UnmarshalTransactionFinished(data[:len(data)-1]); err == nil {
		t.Fatal("one byte short should fail")
	}
}

func TestTransactionCreatedARoundTrip(t *testing.T) {
	c := &TransactionCreatedA{
		Hash:      order.ID{1},
		BinTxID:   "deadbeef",
		LockTimeA: 300,
		RefTxID:   "",
		RefTxHex:  "0100beef",
	}
	c.HashedSecret = [20]byte{1, 2, 3, 4, 5}
	data := c.Marshal()
	got, err := UnmarshalTransactionCreatedA(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.BinTxID != c.BinTxID || got.LockTimeA != c.LockTimeA || got.RefTxID != c.RefTxID ||
		got.RefTxHex != c.RefTxHex || got.HashedSecret != c.HashedSecret {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, c)
	}
}

func TestCreatedAUnterminatedStringFails(t *testing.T) {
	c := &TransactionCreatedA{Hash: order.ID{1}, BinTxID: "abc", RefTxID: "d", RefTxHex: "e"}
	data := c.Marshal()
	// Drop the trailing byte (the final string's NUL terminator).
	truncated := data[:len(data)-1]
	if _, err := UnmarshalTransactionCreatedA(truncated); err == nil {
		t.Fatal("expected unterminated trailing string to fail to parse")
	}
}

func TestConfirmedAConfirmBShareShape(t *testing.T) {
	a := &TransactionConfirmedA{Hash: order.ID{2}, APayTxID: "paytx-a"}
	b := &TransactionConfirmB{Hash: order.ID{2}, APayTxID: "paytx-a"}
	if !bytes.Equal(a.Marshal(), b.Marshal()) {
		t.Fatal("TransactionConfirmedA and TransactionConfirmB should share wire shape")
	}
}
