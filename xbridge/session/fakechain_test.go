// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/htlc"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
)

// fakeChain is a minimal in-memory ChainBridge: every "transaction" is just
// a counter-assigned id and a fact recorded in a map, enough to exercise
// the session handlers' control flow without touching a real node.
type fakeChain struct {
	mu  sync.Mutex
	cur order.Currency
	n   int

	dust        order.Amount
	makerLock   int64
	takerLock   int64
	acceptDrift bool

	deposits   map[string]depositRecord
	secrets    map[string][]byte
	refundable map[string]bool
	utxos      map[string]*fakeUTXO
	spentBy    map[string]string // depositKey(prevTxid, prevVout) -> spend txid
}

type depositRecord struct {
	p2sh string
	vout uint32
}

// fakeUTXO is a wallet-owned unspent output fakeChain's GetTxOut can
// report back, the test double's stand-in for a real node's UTXO set.
type fakeUTXO struct {
	address string
	amount  order.Amount
	spent   bool
}

func fakeUTXOKey(txid string, vout uint32) string { return fmt.Sprintf("%s:%d", txid, vout) }

func newFakeChain(ticker string) *fakeChain {
	return &fakeChain{
		cur:         order.NewCurrency(ticker),
		dust:        1000,
		makerLock:   1000,
		takerLock:   500,
		acceptDrift: true,
		deposits:    map[string]depositRecord{},
		secrets:     map[string][]byte{},
		refundable:  map[string]bool{},
		utxos:       map[string]*fakeUTXO{},
		spentBy:     map[string]string{},
	}
}

func depositKey(txid string, vout uint32) string { return fmt.Sprintf("%s:%d", txid, vout) }

// registerUTXO seeds the fake chain's UTXO set so a later commit naming
// txid:vout can pass the Hub's GetTxOut-backed existence/address check.
func (c *fakeChain) registerUTXO(txid string, vout uint32, address string, amount order.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utxos[fakeUTXOKey(txid, vout)] = &fakeUTXO{address: address, amount: amount}
}

// spendUTXO marks a registered UTXO spent, for tests exercising the
// Maker-utxo-spent-before-Accepting cancel path.
func (c *fakeChain) spendUTXO(txid string, vout uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.utxos[fakeUTXOKey(txid, vout)]; ok {
		u.spent = true
	}
}

func (c *fakeChain) GetTxOut(ctx context.Context, txid string, vout uint32) (chainbridge.UTXOInfo, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.utxos[fakeUTXOKey(txid, vout)]
	if !ok || u.spent {
		return chainbridge.UTXOInfo{}, false, nil
	}
	return chainbridge.UTXOInfo{Address: u.address, Amount: u.amount}, true, nil
}

func (c *fakeChain) next(prefix string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("%s-%d", prefix, c.n)
}

func (c *fakeChain) Currency() order.Currency   { return c.cur }
func (c *fakeChain) DustThreshold() order.Amount { return c.dust }

func (c *fakeChain) LockTime(ctx context.Context, role chainbridge.Role) (int64, error) {
	if role == chainbridge.RoleMaker {
		return c.makerLock, nil
	}
	return c.takerLock, nil
}

func (c *fakeChain) AcceptableLockTimeDrift(role chainbridge.Role, candidate int64) bool {
	return c.acceptDrift
}

func (c *fakeChain) CreateDepositUnlockScript(ownerPub, counterpartyPub []byte, hashedSecret [20]byte, lockTime int64) ([]byte, error) {
	return []byte(fmt.Sprintf("%x|%x|%x|%d", ownerPub, counterpartyPub, hashedSecret, lockTime)), nil
}

func (c *fakeChain) ScriptIDToString(scriptHash160 [20]byte) (string, error) {
	return "p2sh:" + hex.EncodeToString(scriptHash160[:]), nil
}

func (c *fakeChain) CreateDepositTransaction(ctx context.Context, inputs []chainbridge.UTXO, p2shAddress string, amount, fee order.Amount, changeAddress string) (*chainbridge.DepositResult, error) {
	txid := c.next("dep")
	c.mu.Lock()
	c.deposits[txid] = depositRecord{p2sh: p2shAddress, vout: 0}
	c.mu.Unlock()
	return &chainbridge.DepositResult{TxID: txid, Vout: 0, RawTx: []byte(txid)}, nil
}

// CreateRefundTransaction never waits on the locktime: building the
// timelocked refund tx that accompanies a fresh deposit doesn't need to,
// only broadcasting it later does (spec.md §4.7). It succeeds unless
// depositTxID is in refundable, which is treated as not yet seen by the
// node (ErrMissingInputs), letting cancel-path tests that set it exercise
// the StatusVerifyError retry branch explicitly.
func (c *fakeChain) CreateRefundTransaction(ctx context.Context, depositTxID string, depositVout uint32, script []byte, ownerPriv []byte, refundAddress string, lockTime int64) (*chainbridge.SignedTx, error) {
	c.mu.Lock()
	blocked := c.refundable[depositTxID]
	c.mu.Unlock()
	if blocked {
		return nil, chainbridge.ErrMissingInputs
	}
	txid := "refund-" + depositTxID
	c.mu.Lock()
	c.spentBy[depositKey(depositTxID, depositVout)] = txid
	c.mu.Unlock()
	return &chainbridge.SignedTx{TxID: txid, RawTx: []byte(txid)}, nil
}

// FindSpendOfOutput scans the fake chain's spend-tracking map for any
// transaction that redeemed or refunded prevTxid:prevVout, returning the
// revealed secret only if that spend was a redeem (not a refund) and the
// secret actually matches hashedSecret.
func (c *fakeChain) FindSpendOfOutput(ctx context.Context, prevTxid string, prevVout uint32, hashedSecret [20]byte) (string, []byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spendTxid, ok := c.spentBy[depositKey(prevTxid, prevVout)]
	if !ok {
		return "", nil, false, nil
	}
	secret, ok := c.secrets[spendTxid]
	if !ok {
		return spendTxid, nil, true, nil
	}
	got := htlc.ScriptHash160(secret)
	if got != hashedSecret {
		return spendTxid, nil, true, nil
	}
	return spendTxid, secret, true, nil
}

func (c *fakeChain) CreatePaymentTransaction(ctx context.Context, counterpartyDepositTxID string, counterpartyDepositVout uint32, counterpartyScript []byte, ownerPriv []byte, secret []byte, payToAddress string) (*chainbridge.SignedTx, error) {
	txid := c.next("pay")
	c.mu.Lock()
	c.secrets[txid] = append([]byte(nil), secret...)
	c.spentBy[depositKey(counterpartyDepositTxID, counterpartyDepositVout)] = txid
	c.mu.Unlock()
	return &chainbridge.SignedTx{TxID: txid, RawTx: []byte(txid)}, nil
}

func (c *fakeChain) CreateFeeTransaction(ctx context.Context, inputs []chainbridge.UTXO, feeAddress string, amount order.Amount) (*chainbridge.SignedTx, error) {
	txid := c.next("fee")
	return &chainbridge.SignedTx{TxID: txid, RawTx: []byte(txid)}, nil
}

func (c *fakeChain) CheckDepositTransaction(ctx context.Context, txid string, amount order.Amount, expectedP2SH string) (*chainbridge.DepositCheck, error) {
	c.mu.Lock()
	rec, ok := c.deposits[txid]
	c.mu.Unlock()
	if !ok {
		return nil, chainbridge.ErrMissingInputs
	}
	return &chainbridge.DepositCheck{Vout: rec.vout, Overpayment: 0, Good: rec.p2sh == expectedP2SH}, nil
}

func (c *fakeChain) GetSecretFromPaymentTransaction(ctx context.Context, spendTxid, prevTxid string, prevVout uint32, hashedSecret [20]byte) ([]byte, error) {
	c.mu.Lock()
	secret, ok := c.secrets[spendTxid]
	c.mu.Unlock()
	if !ok {
		return nil, chainbridge.ErrMissingInputs
	}
	return secret, nil
}

func (c *fakeChain) GetNewAddress(ctx context.Context) (string, error) {
	return c.next("addr"), nil
}

var _ chainbridge.ChainBridge = (*fakeChain)(nil)

// router is a fake Transport substrate: packets are queued, not delivered
// inline, so processing one packet never recurses into a Session that is
// still inside its own Process call (mirroring Run's channel-fed, one-at-
// a-time real dispatch rather than a direct function-call network).
type router struct {
	mu       sync.Mutex
	sessions map[[account.AddrSize]byte]*Session
	queue    []routedPacket
}

type routedPacket struct {
	to  [account.AddrSize]byte
	pkt *packet.Packet
}

func newRouter() *router {
	return &router{sessions: map[[account.AddrSize]byte]*Session{}}
}

func (r *router) register(addr [account.AddrSize]byte, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[addr] = s
}

func (r *router) enqueue(to [account.AddrSize]byte, pkt *packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, routedPacket{to, pkt})
}

func (r *router) enqueueBroadcast(pkt *packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr := range r.sessions {
		r.queue = append(r.queue, routedPacket{addr, pkt})
	}
}

// drain processes every queued packet to a fixed point, requeueing
// retry-later results once (emulating a single Watchdog redrive pass)
// rather than spinning forever.
func (r *router) drain(t *testing.T, maxSteps int) {
	t.Helper()
	retried := map[[account.AddrSize]byte]map[packet.Command]int{}
	for i := 0; i < maxSteps; i++ {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		s, ok := r.sessions[next.to]
		r.mu.Unlock()
		if !ok {
			continue
		}
		res := s.Process(next.pkt)
		if res.Status == RetryLater {
			if retried[next.to] == nil {
				retried[next.to] = map[packet.Command]int{}
			}
			retried[next.to][next.pkt.Command]++
			if retried[next.to][next.pkt.Command] <= 3 {
				r.enqueue(next.to, next.pkt)
			}
		}
	}
	t.Fatalf("router.drain: did not settle within %d steps", maxSteps)
}

// drainN processes up to n queued packets (or until the queue empties,
// whichever comes first) without requiring the queue to reach a fixed
// point, for tests that want to stop mid-flight rather than settle.
func (r *router) drainN(n int) {
	for i := 0; i < n; i++ {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		s, ok := r.sessions[next.to]
		r.mu.Unlock()
		if !ok {
			continue
		}
		s.Process(next.pkt)
	}
}

type fakeTransport struct {
	r *router
}

func (tr *fakeTransport) SendTo(addr [account.AddrSize]byte, pkt *packet.Packet) {
	tr.r.enqueue(addr, pkt)
}

func (tr *fakeTransport) Broadcast(pkt *packet.Packet) {
	tr.r.enqueueBroadcast(pkt)
}
