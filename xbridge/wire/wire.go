// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package wire implements the per-command payload codecs of spec.md §6:
// one Go struct and a Marshal/Unmarshal pair per packet command, matching
// the exact field order and encoding (little-endian integers, C-style
// null-terminated strings for variable-length txids/hex blobs) the wire
// format specifies. xbridge/packet only frames and signs an opaque
// payload; this package is what gives that payload meaning.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// AddrSize is the length of a binary routing/source/destination address
// field (spec.md §6: "addr=20").
const AddrSize = 20

// HashSize is the length of an order id or block-hash field.
const HashSize = 32

// PubKeySize is the length of a compressed secp256k1 public key field.
const PubKeySize = 33

// SigSize is the length of a UTXO-ownership signature field.
const SigSize = 65

// maxCStringLen bounds a single null-terminated field, guarding against a
// corrupt or hostile packet whose payload never contains a terminator
// (spec.md §7: malformed payloads are dropped, not trusted to allocate
// unbounded memory walking the buffer).
const maxCStringLen = 4096

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

type reader struct {
	b []byte
	i int
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) remaining() int { return len(r.b) - r.i }

func (r *reader) fixed(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("wire: short read, want %d bytes, have %d", n, r.remaining())
	}
	out := r.b[r.i : r.i+n]
	r.i += n
	return out, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) addr() ([AddrSize]byte, error) {
	var out [AddrSize]byte
	b, err := r.fixed(AddrSize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *reader) hash() ([HashSize]byte, error) {
	var out [HashSize]byte
	b, err := r.fixed(HashSize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *reader) currency() (order.Currency, error) {
	b, err := r.fixed(8)
	if err != nil {
		return order.Currency{}, err
	}
	var c order.Currency
	copy(c[:], b)
	return c, nil
}

func (r *reader) pubkey() ([PubKeySize]byte, error) {
	var out [PubKeySize]byte
	b, err := r.fixed(PubKeySize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *reader) cstring() (string, error) {
	for n := 0; n < maxCStringLen; n++ {
		if r.remaining() <= n {
			return "", fmt.Errorf("wire: unterminated string field")
		}
		if r.b[r.i+n] == 0 {
			s := string(r.b[r.i : r.i+n])
			r.i += n + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("wire: string field exceeds %d bytes without a terminator", maxCStringLen)
}

func (r *reader) done() error {
	if r.remaining() != 0 {
		return fmt.Errorf("wire: %d trailing bytes after parsing payload", r.remaining())
	}
	return nil
}

// UTXORef is a single committed, signed UTXO carried in a Transaction or
// TransactionAccepting payload.
type UTXORef struct {
	TxID [HashSize]byte
	Vout uint32
	Addr [AddrSize]byte
	Sig  [SigSize]byte
}

const utxoRefSize = HashSize + 4 + AddrSize + SigSize

func (u UTXORef) marshal(buf *bytes.Buffer) {
	buf.Write(u.TxID[:])
	writeUint32(buf, u.Vout)
	buf.Write(u.Addr[:])
	buf.Write(u.Sig[:])
}

func readUTXORef(r *reader) (UTXORef, error) {
	var u UTXORef
	txid, err := r.hash()
	if err != nil {
		return u, err
	}
	vout, err := r.uint32()
	if err != nil {
		return u, err
	}
	addr, err := r.addr()
	if err != nil {
		return u, err
	}
	sigb, err := r.fixed(SigSize)
	if err != nil {
		return u, err
	}
	u.TxID = txid
	u.Vout = vout
	u.Addr = addr
	copy(u.Sig[:], sigb)
	return u, nil
}

// utxoRefDigest hashes the bytes a UTXORef's Sig is a recoverable
// signature over (txid‖vout‖addr), mirroring packet.signedDigest's
// scheme for the outer packet envelope.
func utxoRefDigest(u UTXORef) chainhash.Hash {
	buf := make([]byte, HashSize+4+AddrSize)
	copy(buf, u.TxID[:])
	binary.LittleEndian.PutUint32(buf[HashSize:], u.Vout)
	copy(buf[HashSize+4:], u.Addr[:])
	return chainhash.HashH(buf)
}

// SignUTXORef fills in u.Sig with a recoverable compact signature over u's
// canonical bytes, proving priv's owner committed this UTXO to the order.
// Producing the signature is otherwise a wallet-layer concern outside this
// core (spec.md §1); this helper exists so tests and --demo can exercise
// the Hub's verification path without a real wallet attached.
func SignUTXORef(u *UTXORef, priv *btcec.PrivateKey) {
	digest := utxoRefDigest(*u)
	copy(u.Sig[:], ecdsa.SignCompact(priv, digest[:], true))
}

// VerifyUTXORef recovers the public key that produced u.Sig and reports
// whether it matches signer (spec.md §4.5's "signature over canonical
// serialization valid").
func VerifyUTXORef(u UTXORef, signer []byte) bool {
	digest := utxoRefDigest(u)
	recovered, _, err := ecdsa.RecoverCompact(u.Sig[:], digest[:])
	if err != nil {
		return false
	}
	return bytes.Equal(recovered.SerializeCompressed(), signer)
}

// Transaction is the Maker's initial order broadcast (spec.md §6,
// "Transaction").
type Transaction struct {
	Hash       order.ID
	SrcAddr    [AddrSize]byte
	SrcCur     order.Currency
	SrcAmt     order.Amount
	DstAddr    [AddrSize]byte
	DstCur     order.Currency
	DstAmt     order.Amount
	Timestamp  uint64
	AnchorHash [HashSize]byte
	Utxos      []UTXORef
}

// Marshal serializes t per spec.md §6.
func (t *Transaction) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.Hash[:])
	buf.Write(t.SrcAddr[:])
	buf.Write(t.SrcCur[:])
	writeUint64(buf, uint64(t.SrcAmt))
	buf.Write(t.DstAddr[:])
	buf.Write(t.DstCur[:])
	writeUint64(buf, uint64(t.DstAmt))
	writeUint64(buf, t.Timestamp)
	buf.Write(t.AnchorHash[:])
	writeUint32(buf, uint32(len(t.Utxos)))
	for _, u := range t.Utxos {
		u.marshal(buf)
	}
	return buf.Bytes()
}

// UnmarshalTransaction parses a Transaction payload. A zero-utxo order is
// rejected (spec.md §8, "Transaction with zero utxos is rejected").
func UnmarshalTransaction(data []byte) (*Transaction, error) {
	r := newReader(data)
	t := &Transaction{}
	var err error
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.SrcAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.SrcCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.SrcAmt = order.Amount(v)
	}
	if t.DstAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.DstCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.DstAmt = order.Amount(v)
	}
	if t.Timestamp, err = r.uint64(); err != nil {
		return nil, err
	}
	if t.AnchorHash, err = r.hash(); err != nil {
		return nil, err
	}
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("wire: Transaction carries zero utxos")
	}
	t.Utxos = make([]UTXORef, n)
	for i := range t.Utxos {
		if t.Utxos[i], err = readUTXORef(r); err != nil {
			return nil, err
		}
	}
	return t, r.done()
}

func readID(r *reader) (order.ID, error) {
	h, err := r.hash()
	return order.ID(h), err
}

// PendingTransaction is the Hub's re-broadcast of a just-validated order
// (spec.md §6, "PendingTransaction"), fixed at 124 bytes.
type PendingTransaction struct {
	Hash       order.ID
	SrcCur     order.Currency
	SrcAmt     order.Amount
	DstCur     order.Currency
	DstAmt     order.Amount
	HubAddr    [AddrSize]byte
	Timestamp  uint64
	AnchorHash [HashSize]byte
}

func (p *PendingTransaction) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(p.Hash[:])
	buf.Write(p.SrcCur[:])
	writeUint64(buf, uint64(p.SrcAmt))
	buf.Write(p.DstCur[:])
	writeUint64(buf, uint64(p.DstAmt))
	buf.Write(p.HubAddr[:])
	writeUint64(buf, p.Timestamp)
	buf.Write(p.AnchorHash[:])
	return buf.Bytes()
}

func UnmarshalPendingTransaction(data []byte) (*PendingTransaction, error) {
	r := newReader(data)
	p := &PendingTransaction{}
	var err error
	if p.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if p.SrcCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		p.SrcAmt = order.Amount(v)
	}
	if p.DstCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		p.DstAmt = order.Amount(v)
	}
	if p.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if p.Timestamp, err = r.uint64(); err != nil {
		return nil, err
	}
	if p.AnchorHash, err = r.hash(); err != nil {
		return nil, err
	}
	return p, r.done()
}

// TransactionAccepting is a Taker's claim on an advertised order (spec.md
// §6).
type TransactionAccepting struct {
	HubAddr [AddrSize]byte
	Hash    order.ID
	SrcAddr [AddrSize]byte
	SrcCur  order.Currency
	SrcAmt  order.Amount
	DstAddr [AddrSize]byte
	DstCur  order.Currency
	DstAmt  order.Amount
	Utxos   []UTXORef
}

func (t *TransactionAccepting) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	buf.Write(t.SrcAddr[:])
	buf.Write(t.SrcCur[:])
	writeUint64(buf, uint64(t.SrcAmt))
	buf.Write(t.DstAddr[:])
	buf.Write(t.DstCur[:])
	writeUint64(buf, uint64(t.DstAmt))
	writeUint32(buf, uint32(len(t.Utxos)))
	for _, u := range t.Utxos {
		u.marshal(buf)
	}
	return buf.Bytes()
}

func UnmarshalTransactionAccepting(data []byte) (*TransactionAccepting, error) {
	r := newReader(data)
	t := &TransactionAccepting{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.SrcAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.SrcCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.SrcAmt = order.Amount(v)
	}
	if t.DstAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.DstCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.DstAmt = order.Amount(v)
	}
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("wire: TransactionAccepting carries zero utxos")
	}
	t.Utxos = make([]UTXORef, n)
	for i := range t.Utxos {
		if t.Utxos[i], err = readUTXORef(r); err != nil {
			return nil, err
		}
	}
	return t, r.done()
}

// TransactionHold signals both parties to pause pending Hub initialization
// (spec.md §6), fixed at 52 bytes.
type TransactionHold struct {
	HubAddr [AddrSize]byte
	Hash    order.ID
}

func (t *TransactionHold) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	return buf.Bytes()
}

func UnmarshalTransactionHold(data []byte) (*TransactionHold, error) {
	r := newReader(data)
	t := &TransactionHold{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionHoldApply is a trader's ack of TransactionHold, fixed at 72
// bytes.
type TransactionHoldApply struct {
	HubAddr  [AddrSize]byte
	FromAddr [AddrSize]byte
	Hash     order.ID
}

func (t *TransactionHoldApply) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.FromAddr[:])
	buf.Write(t.Hash[:])
	return buf.Bytes()
}

func UnmarshalTransactionHoldApply(data []byte) (*TransactionHoldApply, error) {
	r := newReader(data)
	t := &TransactionHoldApply{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.FromAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionInit carries the agreed trade parameters to both sides, fixed
// at 144 bytes.
type TransactionInit struct {
	RecipientAddr [AddrSize]byte
	HubAddr       [AddrSize]byte
	Hash          order.ID
	SrcAddr       [AddrSize]byte
	SrcCur        order.Currency
	SrcAmt        order.Amount
	DstAddr       [AddrSize]byte
	DstCur        order.Currency
	DstAmt        order.Amount
}

func (t *TransactionInit) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.RecipientAddr[:])
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	buf.Write(t.SrcAddr[:])
	buf.Write(t.SrcCur[:])
	writeUint64(buf, uint64(t.SrcAmt))
	buf.Write(t.DstAddr[:])
	buf.Write(t.DstCur[:])
	writeUint64(buf, uint64(t.DstAmt))
	return buf.Bytes()
}

func UnmarshalTransactionInit(data []byte) (*TransactionInit, error) {
	r := newReader(data)
	t := &TransactionInit{}
	var err error
	if t.RecipientAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.SrcAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.SrcCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.SrcAmt = order.Amount(v)
	}
	if t.DstAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.DstCur, err = r.currency(); err != nil {
		return nil, err
	}
	if v, err := r.uint64(); err != nil {
		return nil, err
	} else {
		t.DstAmt = order.Amount(v)
	}
	return t, r.done()
}

// TransactionInitialized acks TransactionInit, reporting the fee-tx hash
// (spec.md trHold→trInitialized, "if role B, broadcast fee-tx"), fixed at
// 104 bytes.
type TransactionInitialized struct {
	HubAddr   [AddrSize]byte
	FromAddr  [AddrSize]byte
	Hash      order.ID
	FeeTxHash [HashSize]byte
}

func (t *TransactionInitialized) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.FromAddr[:])
	buf.Write(t.Hash[:])
	buf.Write(t.FeeTxHash[:])
	return buf.Bytes()
}

func UnmarshalTransactionInitialized(data []byte) (*TransactionInitialized, error) {
	r := newReader(data)
	t := &TransactionInitialized{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.FromAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.FeeTxHash, err = r.hash(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionCreateA instructs the Maker to build and submit its deposit,
// fixed at 85 bytes.
type TransactionCreateA struct {
	HubAddr        [AddrSize]byte
	Hash           order.ID
	CounterpartyPK [PubKeySize]byte
}

func (t *TransactionCreateA) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	buf.Write(t.CounterpartyPK[:])
	return buf.Bytes()
}

func UnmarshalTransactionCreateA(data []byte) (*TransactionCreateA, error) {
	r := newReader(data)
	t := &TransactionCreateA{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.CounterpartyPK, err = r.pubkey(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionCreatedA reports the Maker's freshly-submitted deposit.
type TransactionCreatedA struct {
	HubAddr      [AddrSize]byte
	Hash         order.ID
	BinTxID      string
	HashedSecret [20]byte
	LockTimeA    uint32
	RefTxID      string
	RefTxHex     string
}

func (t *TransactionCreatedA) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	writeCString(buf, t.BinTxID)
	buf.Write(t.HashedSecret[:])
	writeUint32(buf, t.LockTimeA)
	writeCString(buf, t.RefTxID)
	writeCString(buf, t.RefTxHex)
	return buf.Bytes()
}

func UnmarshalTransactionCreatedA(data []byte) (*TransactionCreatedA, error) {
	r := newReader(data)
	t := &TransactionCreatedA{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.BinTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	hs, err := r.fixed(20)
	if err != nil {
		return nil, err
	}
	copy(t.HashedSecret[:], hs)
	if t.LockTimeA, err = r.uint32(); err != nil {
		return nil, err
	}
	if t.RefTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	if t.RefTxHex, err = r.cstring(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionCreateB instructs the Taker to verify A's deposit and submit
// its own.
type TransactionCreateB struct {
	HubAddr        [AddrSize]byte
	Hash           order.ID
	CounterpartyPK [PubKeySize]byte
	ABinTxID       string
	HashedSecret   [20]byte
	LockTimeA      uint32
}

func (t *TransactionCreateB) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	buf.Write(t.CounterpartyPK[:])
	writeCString(buf, t.ABinTxID)
	buf.Write(t.HashedSecret[:])
	writeUint32(buf, t.LockTimeA)
	return buf.Bytes()
}

func UnmarshalTransactionCreateB(data []byte) (*TransactionCreateB, error) {
	r := newReader(data)
	t := &TransactionCreateB{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.CounterpartyPK, err = r.pubkey(); err != nil {
		return nil, err
	}
	if t.ABinTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	hs, err := r.fixed(20)
	if err != nil {
		return nil, err
	}
	copy(t.HashedSecret[:], hs)
	if t.LockTimeA, err = r.uint32(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionCreatedB reports the Taker's freshly-submitted deposit.
type TransactionCreatedB struct {
	HubAddr   [AddrSize]byte
	Hash      order.ID
	BinTxID   string
	LockTimeB uint32
	RefTxID   string
	RefTxHex  string
}

func (t *TransactionCreatedB) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	writeCString(buf, t.BinTxID)
	writeUint32(buf, t.LockTimeB)
	writeCString(buf, t.RefTxID)
	writeCString(buf, t.RefTxHex)
	return buf.Bytes()
}

func UnmarshalTransactionCreatedB(data []byte) (*TransactionCreatedB, error) {
	r := newReader(data)
	t := &TransactionCreatedB{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.BinTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	if t.LockTimeB, err = r.uint32(); err != nil {
		return nil, err
	}
	if t.RefTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	if t.RefTxHex, err = r.cstring(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionConfirmA instructs the Maker to verify B's deposit and redeem
// it.
type TransactionConfirmA struct {
	HubAddr   [AddrSize]byte
	Hash      order.ID
	BBinTxID  string
	LockTimeB uint32
}

func (t *TransactionConfirmA) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	writeCString(buf, t.BBinTxID)
	writeUint32(buf, t.LockTimeB)
	return buf.Bytes()
}

func UnmarshalTransactionConfirmA(data []byte) (*TransactionConfirmA, error) {
	r := newReader(data)
	t := &TransactionConfirmA{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.BBinTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	if t.LockTimeB, err = r.uint32(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// payTxRef is the shared shape of TransactionConfirmedA, TransactionConfirmB,
// and TransactionConfirmedB: hubAddr ‖ hash ‖ <a payTxId or b payTxId>\0.
type payTxRef struct {
	HubAddr [AddrSize]byte
	Hash    order.ID
	PayTxID string
}

func (t *payTxRef) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.HubAddr[:])
	buf.Write(t.Hash[:])
	writeCString(buf, t.PayTxID)
	return buf.Bytes()
}

func unmarshalPayTxRef(data []byte) (*payTxRef, error) {
	r := newReader(data)
	t := &payTxRef{}
	var err error
	if t.HubAddr, err = r.addr(); err != nil {
		return nil, err
	}
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	if t.PayTxID, err = r.cstring(); err != nil {
		return nil, err
	}
	return t, r.done()
}

// TransactionConfirmedA reports the Maker's pay-tx id (its redemption of
// B's HTLC, revealing the secret on chain).
type TransactionConfirmedA struct {
	HubAddr  [AddrSize]byte
	Hash     order.ID
	APayTxID string
}

func (t *TransactionConfirmedA) Marshal() []byte {
	p := payTxRef{t.HubAddr, t.Hash, t.APayTxID}
	return p.marshal()
}

func UnmarshalTransactionConfirmedA(data []byte) (*TransactionConfirmedA, error) {
	p, err := unmarshalPayTxRef(data)
	if err != nil {
		return nil, err
	}
	return &TransactionConfirmedA{HubAddr: p.HubAddr, Hash: p.Hash, APayTxID: p.PayTxID}, nil
}

// TransactionConfirmB instructs the Taker to extract the secret from A's
// pay tx and redeem its own counterparty deposit.
type TransactionConfirmB struct {
	HubAddr  [AddrSize]byte
	Hash     order.ID
	APayTxID string
}

func (t *TransactionConfirmB) Marshal() []byte {
	p := payTxRef{t.HubAddr, t.Hash, t.APayTxID}
	return p.marshal()
}

func UnmarshalTransactionConfirmB(data []byte) (*TransactionConfirmB, error) {
	p, err := unmarshalPayTxRef(data)
	if err != nil {
		return nil, err
	}
	return &TransactionConfirmB{HubAddr: p.HubAddr, Hash: p.Hash, APayTxID: p.PayTxID}, nil
}

// TransactionConfirmedB reports the Taker's pay-tx id.
type TransactionConfirmedB struct {
	HubAddr  [AddrSize]byte
	Hash     order.ID
	BPayTxID string
}

func (t *TransactionConfirmedB) Marshal() []byte {
	p := payTxRef{t.HubAddr, t.Hash, t.BPayTxID}
	return p.marshal()
}

func UnmarshalTransactionConfirmedB(data []byte) (*TransactionConfirmedB, error) {
	p, err := unmarshalPayTxRef(data)
	if err != nil {
		return nil, err
	}
	return &TransactionConfirmedB{HubAddr: p.HubAddr, Hash: p.Hash, BPayTxID: p.PayTxID}, nil
}

// CancelReason is the uint32 code carried in a TransactionCancel payload
// (spec.md §6).
type CancelReason uint32

const (
	ReasonBadAddress CancelReason = iota
	ReasonBadUTXO
	ReasonBadADepositTx
	ReasonBadBDepositTx
	ReasonBlocknetError
	ReasonRPCError
	ReasonNoMoney
	ReasonInvalidAddress
	ReasonTimeout
	ReasonRollback
	ReasonUserRequest
)

var reasonNames = [...]string{
	"bad-address", "bad-utxo", "bad-a-deposit-tx", "bad-b-deposit-tx",
	"blocknet-error", "rpc-error", "no-money", "invalid-address",
	"timeout", "rollback", "user-request",
}

func (r CancelReason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown-reason"
}

// TransactionCancel aborts an in-progress order, fixed at 36 bytes.
type TransactionCancel struct {
	Hash   order.ID
	Reason CancelReason
}

func (t *TransactionCancel) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Write(t.Hash[:])
	writeUint32(buf, uint32(t.Reason))
	return buf.Bytes()
}

func UnmarshalTransactionCancel(data []byte) (*TransactionCancel, error) {
	r := newReader(data)
	t := &TransactionCancel{}
	var err error
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	reason, err := r.uint32()
	if err != nil {
		return nil, err
	}
	t.Reason = CancelReason(reason)
	return t, r.done()
}

// TransactionFinished closes out an order, fixed at 32 bytes.
type TransactionFinished struct {
	Hash order.ID
}

func (t *TransactionFinished) Marshal() []byte {
	return append([]byte(nil), t.Hash[:]...)
}

func UnmarshalTransactionFinished(data []byte) (*TransactionFinished, error) {
	r := newReader(data)
	t := &TransactionFinished{}
	var err error
	if t.Hash, err = readID(r); err != nil {
		return nil, err
	}
	return t, r.done()
}
