// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package mock implements an in-memory ChainBridge test double, used by
// cmd/xbridged (its bare session and its --demo swap) in place of a real
// wallet RPC connection; xbridge/session's own tests use their own
// fakeChain instead. This mirrors the
// hand-rolled fake backends dcrdex's own tests use (e.g.
// server/swap/swap_test.go's TAsset) rather than reaching for a mocking
// framework, matching the teacher's test style.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/htlc"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	ltcchainhash "github.com/ltcsuite/ltcd/chaincfg/chainhash"
)

type tx struct {
	outputs   []chainbridge.Output
	scriptPKs []string // P2SH address per output, "" for plain pay-to-address outputs
	lockTime  int64    // 0 unless this tx is a deposit with a refund path
	spentBy   map[uint32]string
	redeem    map[uint32][]byte // secret revealed when spending vout via the redeem path, if any
	visible   bool
}

// walletUTXO is an output a trader's local wallet owns and may commit to
// an order, the mock's stand-in for a real node's UTXO set.
type walletUTXO struct {
	address string
	amount  order.Amount
	spent   bool
}

func utxoKey(txid string, vout uint32) string { return fmt.Sprintf("%s:%d", txid, vout) }

// Chain is an in-memory, single-currency blockchain double. It is safe for
// concurrent use.
type Chain struct {
	mtx   sync.Mutex
	cur   order.Currency
	dust  order.Amount
	block int64
	txs   map[string]*tx
	utxos map[string]*walletUTXO
	seq   int

	// MakerLockTimeDelta / TakerLockTimeDelta set the block-height offset
	// from the current block that LockTime returns for each role (I6:
	// Maker's locktime must exceed Taker's).
	MakerLockTimeDelta int64
	TakerLockTimeDelta int64
	// LockTimeMargin is the minimum acceptable gap AcceptableLockTimeDrift
	// enforces between a claimed Maker locktime and the local Taker
	// locktime.
	LockTimeMargin int64
}

// NewChain constructs a Chain starting at startBlock.
func NewChain(currency order.Currency, startBlock int64) *Chain {
	return &Chain{
		cur:                currency,
		dust:               546,
		block:              startBlock,
		txs:                make(map[string]*tx),
		utxos:              make(map[string]*walletUTXO),
		MakerLockTimeDelta: 300,
		TakerLockTimeDelta: 250,
		LockTimeMargin:     10,
	}
}

var _ chainbridge.ChainBridge = (*Chain)(nil)

func (c *Chain) Currency() order.Currency    { return c.cur }
func (c *Chain) DustThreshold() order.Amount { return c.dust }

// AdvanceBlock moves the chain's tip forward by n blocks, the test-facing
// equivalent of waiting for confirmations or a locktime to expire.
func (c *Chain) AdvanceBlock(n int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.block += n
}

// BlockHeight returns the current tip.
func (c *Chain) BlockHeight() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.block
}

// SetVisible toggles whether txid is visible to CheckDepositTransaction /
// GetSecretFromPaymentTransaction, simulating network propagation delay so
// tests can exercise the retry-later path (spec.md §4.6).
func (c *Chain) SetVisible(txid string, visible bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if t, ok := c.txs[txid]; ok {
		t.visible = visible
	}
}

// nextTxID mints a new txid for this chain's next transaction. LTC-family
// currencies get a genuine double-SHA256 hash in litecoin's own txid shape
// (ltcsuite/ltcd's chainhash, a separate package from the btcsuite one this
// module otherwise uses) rather than the synthetic "<cur>-tx-<n>" format
// every other mock currency uses, so a test registering both a BTC-family
// and an LTC-family currency (spec.md's "10 BLOCK for 1 LTC" scenario) sees
// txids in each chain's native shape.
func (c *Chain) nextTxID() string {
	c.seq++
	if c.cur.String() == "LTC" {
		h := ltcchainhash.HashH([]byte(fmt.Sprintf("%s-%d", c.cur.String(), c.seq)))
		return h.String()
	}
	return fmt.Sprintf("%s-tx-%d", c.cur.String(), c.seq)
}

func (c *Chain) LockTime(_ context.Context, role chainbridge.Role) (int64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if role == chainbridge.RoleMaker {
		return c.block + c.MakerLockTimeDelta, nil
	}
	return c.block + c.TakerLockTimeDelta, nil
}

func (c *Chain) AcceptableLockTimeDrift(role chainbridge.Role, candidate int64) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if role == chainbridge.RoleTaker {
		// Taker checks the Maker's claimed locktime against its own.
		myLockTime := c.block + c.TakerLockTimeDelta
		return candidate >= myLockTime+c.LockTimeMargin
	}
	return true
}

func (c *Chain) CreateDepositUnlockScript(ownerPub, counterpartyPub []byte, hashedSecret [20]byte, lockTime int64) ([]byte, error) {
	var ownerHash, cpHash [htlc.PubKeyHashSize]byte
	copy(ownerHash[:], pkHash(ownerPub))
	copy(cpHash[:], pkHash(counterpartyPub))
	// Owner is the sender (refund path); counterparty is the recipient
	// (redeem path), matching spec.md §4.4's script description.
	return htlc.MakeContract(cpHash, ownerHash, hashedSecret, lockTime)
}

func pkHash(pub []byte) []byte {
	return htlcHash160(pub)
}

func htlcHash160(b []byte) []byte {
	h := htlc.ScriptHash160(b) // reuse HASH160 helper; fine for a mock's key hashing too
	return h[:]
}

func (c *Chain) ScriptIDToString(scriptHash160 [20]byte) (string, error) {
	return fmt.Sprintf("p2sh:%x", scriptHash160), nil
}

func (c *Chain) CreateDepositTransaction(_ context.Context, inputs []chainbridge.UTXO, p2shAddress string, amount, fee order.Amount, changeAddress string) (*chainbridge.DepositResult, error) {
	var total order.Amount
	for _, in := range inputs {
		total += in.Amount
	}
	if total < amount+fee {
		return nil, fmt.Errorf("inputs total %d below amount+fee %d", total, amount+fee)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	txid := c.nextTxID()
	t := &tx{
		outputs:   []chainbridge.Output{{Address: p2shAddress, Amount: amount + fee}},
		scriptPKs: []string{p2shAddress},
		spentBy:   make(map[uint32]string),
		redeem:    make(map[uint32][]byte),
		visible:   true,
	}
	change := total - amount - fee
	if change > c.dust {
		t.outputs = append(t.outputs, chainbridge.Output{Address: changeAddress, Amount: change})
		t.scriptPKs = append(t.scriptPKs, "")
	}
	c.txs[txid] = t
	return &chainbridge.DepositResult{TxID: txid, Vout: 0, RawTx: []byte(txid)}, nil
}

func (c *Chain) spend(depositTxID string, depositVout uint32, secret []byte, dest string) (*chainbridge.SignedTx, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	dep, ok := c.txs[depositTxID]
	if !ok {
		return nil, chainbridge.ErrMissingInputs
	}
	if existing, spent := dep.spentBy[depositVout]; spent {
		return &chainbridge.SignedTx{TxID: existing}, chainbridge.ErrAlreadyInChain
	}
	txid := c.nextTxID()
	amt := dep.outputs[depositVout].Amount
	t := &tx{
		outputs:   []chainbridge.Output{{Address: dest, Amount: amt}},
		scriptPKs: []string{""},
		spentBy:   make(map[uint32]string),
		redeem:    make(map[uint32][]byte),
		visible:   true,
	}
	c.txs[txid] = t
	dep.spentBy[depositVout] = txid
	if secret != nil {
		dep.redeem[depositVout] = secret
	}
	return &chainbridge.SignedTx{TxID: txid, RawTx: []byte(txid)}, nil
}

func (c *Chain) CreateRefundTransaction(_ context.Context, depositTxID string, depositVout uint32, _ []byte, _ []byte, refundAddress string, lockTime int64) (*chainbridge.SignedTx, error) {
	c.mtx.Lock()
	height := c.block
	c.mtx.Unlock()
	if height < lockTime {
		return nil, fmt.Errorf("locktime %d not yet reached (height %d)", lockTime, height)
	}
	return c.spend(depositTxID, depositVout, nil, refundAddress)
}

func (c *Chain) CreatePaymentTransaction(_ context.Context, counterpartyDepositTxID string, counterpartyDepositVout uint32, _ []byte, _ []byte, secret []byte, payToAddress string) (*chainbridge.SignedTx, error) {
	return c.spend(counterpartyDepositTxID, counterpartyDepositVout, secret, payToAddress)
}

func (c *Chain) CreateFeeTransaction(_ context.Context, inputs []chainbridge.UTXO, feeAddress string, amount order.Amount) (*chainbridge.SignedTx, error) {
	var total order.Amount
	for _, in := range inputs {
		total += in.Amount
	}
	if total < amount {
		return nil, fmt.Errorf("inputs total %d below fee amount %d", total, amount)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	txid := c.nextTxID()
	c.txs[txid] = &tx{
		outputs:   []chainbridge.Output{{Address: feeAddress, Amount: amount}},
		scriptPKs: []string{""},
		spentBy:   make(map[uint32]string),
		redeem:    make(map[uint32][]byte),
		visible:   true,
	}
	return &chainbridge.SignedTx{TxID: txid, RawTx: []byte(txid)}, nil
}

func (c *Chain) CheckDepositTransaction(_ context.Context, txid string, amount order.Amount, expectedP2SH string) (*chainbridge.DepositCheck, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	t, ok := c.txs[txid]
	if !ok || !t.visible {
		return nil, chainbridge.ErrMissingInputs
	}
	for vout, sh := range t.scriptPKs {
		if sh == expectedP2SH {
			paid := t.outputs[vout].Amount
			if paid < amount {
				return &chainbridge.DepositCheck{Vout: uint32(vout), Good: false}, nil
			}
			return &chainbridge.DepositCheck{Vout: uint32(vout), Overpayment: paid - amount, Good: true}, nil
		}
	}
	return &chainbridge.DepositCheck{Good: false}, nil
}

func (c *Chain) GetSecretFromPaymentTransaction(_ context.Context, spendTxid, prevTxid string, prevVout uint32, hashedSecret [20]byte) ([]byte, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	prev, ok := c.txs[prevTxid]
	if !ok {
		return nil, chainbridge.ErrMissingInputs
	}
	actual, spent := prev.spentBy[prevVout]
	if !spent || actual != spendTxid {
		return nil, chainbridge.ErrMissingInputs
	}
	spendTx, ok := c.txs[spendTxid]
	if !ok || !spendTx.visible {
		return nil, chainbridge.ErrMissingInputs
	}
	secret, ok := prev.redeem[prevVout]
	if !ok {
		return nil, fmt.Errorf("spend of %s:%d did not reveal a secret", prevTxid, prevVout)
	}
	got := htlc.ScriptHash160(secret)
	if got != hashedSecret {
		return nil, fmt.Errorf("revealed secret does not hash to expected value")
	}
	return secret, nil
}

func (c *Chain) GetNewAddress(_ context.Context) (string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.seq++
	return fmt.Sprintf("%s-addr-%d", c.cur.String(), c.seq), nil
}

// RegisterUTXO adds an unspent output a wallet controls at address, the
// mock's way of seeding the chain's UTXO set so a later commit can be
// verified against it. A real node already has these outputs; this mock
// has no independent wallet, so callers register them directly.
func (c *Chain) RegisterUTXO(txid string, vout uint32, address string, amount order.Amount) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.utxos[utxoKey(txid, vout)] = &walletUTXO{address: address, amount: amount}
}

// SpendUTXO marks a previously registered UTXO spent, for tests exercising
// the double-spend/bad-utxo cancel path.
func (c *Chain) SpendUTXO(txid string, vout uint32) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if u, ok := c.utxos[utxoKey(txid, vout)]; ok {
		u.spent = true
	}
}

// FindSpendOfOutput scans prevTxid's vout for any spend without needing a
// hinted spend txid first, the mock's stand-in for a real node's
// txindex/vout-scan lookup (spec.md §4.6).
func (c *Chain) FindSpendOfOutput(_ context.Context, prevTxid string, prevVout uint32, hashedSecret [20]byte) (string, []byte, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	prev, ok := c.txs[prevTxid]
	if !ok {
		return "", nil, false, chainbridge.ErrMissingInputs
	}
	spendTxid, spent := prev.spentBy[prevVout]
	if !spent {
		return "", nil, false, nil
	}
	spendTx, ok := c.txs[spendTxid]
	if !ok || !spendTx.visible {
		return "", nil, false, nil
	}
	secret, ok := prev.redeem[prevVout]
	if !ok {
		return spendTxid, nil, true, nil // spent, but not via the redeem path (e.g. a refund)
	}
	if got := htlc.ScriptHash160(secret); got != hashedSecret {
		return spendTxid, nil, true, nil
	}
	return spendTxid, secret, true, nil
}

func (c *Chain) GetTxOut(_ context.Context, txid string, vout uint32) (chainbridge.UTXOInfo, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	u, ok := c.utxos[utxoKey(txid, vout)]
	if !ok || u.spent {
		return chainbridge.UTXOInfo{}, false, nil
	}
	return chainbridge.UTXOInfo{Address: u.address, Amount: u.amount}, true, nil
}
