// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/registry"
	"github.com/blocknetdx/xbridge-go/xbridge/trader"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/blocknetdx/xbridge-go/xbridge/xbstate"
)

// fixedAddr pads s through the same truncate/pad decodeAddr applies to a
// routing address, so a string used both as a wire address field and as an
// id-derivation input round-trips to the same bytes either way.
func fixedAddr(s string) string {
	return string(decodeAddr(s))
}

// fixture wires a Hub and two trader sessions (Maker trading BLOCK for LTC,
// Taker the reverse) over a shared router and a pair of fakeChains, enough
// to drive a full swap end to end without a real ChainBridge or transport.
type fixture struct {
	t      *testing.T
	router *router
	hub    *Session
	maker  *Session
	taker  *Session
	chainA *fakeChain // BLOCK: Maker's source, Taker's destination
	chainB *fakeChain // LTC: Maker's destination, Taker's source

	makerFrom, makerTo   string
	takerFrom, takerTo   string
	makerAddr, takerAddr [account.AddrSize]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chainA := newFakeChain("BLOCK")
	chainB := newFakeChain("LTC")
	chains := []chainbridge.ChainBridge{chainA, chainB}

	hubKeys, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}
	makerKeys, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}
	takerKeys, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}

	r := newRouter()
	f := &fixture{
		t:         t,
		router:    r,
		hub:       New(true, hubKeys, chains, &fakeTransport{r: r}, nil),
		maker:     New(false, makerKeys, chains, &fakeTransport{r: r}, nil),
		taker:     New(false, takerKeys, chains, &fakeTransport{r: r}, nil),
		chainA:    chainA,
		chainB:    chainB,
		makerFrom: fixedAddr("maker-block-addr"),
		makerTo:   fixedAddr("maker-ltc-addr"),
		takerFrom: fixedAddr("taker-ltc-addr"),
		takerTo:   fixedAddr("taker-block-addr"),
	}
	copy(f.makerAddr[:], decodeAddr(f.makerFrom))
	copy(f.takerAddr[:], decodeAddr(f.takerFrom))

	r.register(f.hub.Addr, f.hub)
	r.register(f.makerAddr, f.maker)
	r.register(f.takerAddr, f.taker)
	return f
}

func (f *fixture) placeMakerOrder() *trader.Order {
	f.t.Helper()
	utxo := wire.UTXORef{TxID: [32]byte{1}, Vout: 0, Addr: f.makerAddr}
	wire.SignUTXORef(&utxo, f.maker.Keys.Priv)
	f.chainA.registerUTXO(hex.EncodeToString(utxo.TxID[:]), utxo.Vout, f.makerFrom, 10*order.UnitsPerCoin+10000)

	o, err := f.maker.PlaceOrder(PlaceOrderArgs{
		FromCurrency: order.NewCurrency("BLOCK"),
		ToCurrency:   order.NewCurrency("LTC"),
		FromAmount:   10 * order.UnitsPerCoin,
		ToAmount:     5 * order.UnitsPerCoin,
		From:         f.makerFrom,
		To:           f.makerTo,
		Inputs: []chainbridge.UTXO{
			{TxID: "maker-utxo-1", Vout: 0, Address: f.makerFrom, Amount: 10*order.UnitsPerCoin + 10000},
		},
		Utxos:      []wire.UTXORef{utxo},
		AnchorHash: [32]byte{9},
		HubAddr:    f.hub.Addr,
	})
	if err != nil {
		f.t.Fatalf("PlaceOrder: %v", err)
	}
	return o
}

func (f *fixture) acceptOrder(id order.ID) *trader.Order {
	f.t.Helper()
	pending := &wire.PendingTransaction{
		Hash:    id,
		SrcCur:  order.NewCurrency("BLOCK"),
		SrcAmt:  10 * order.UnitsPerCoin,
		DstCur:  order.NewCurrency("LTC"),
		DstAmt:  5 * order.UnitsPerCoin,
		HubAddr: f.hub.Addr,
	}

	utxo := wire.UTXORef{TxID: [32]byte{2}, Vout: 0, Addr: f.takerAddr}
	wire.SignUTXORef(&utxo, f.taker.Keys.Priv)
	f.chainB.registerUTXO(hex.EncodeToString(utxo.TxID[:]), utxo.Vout, f.takerFrom, 5*order.UnitsPerCoin+10000)

	o, err := f.taker.AcceptOrder(pending, AcceptOrderArgs{
		From: f.takerFrom,
		To:   f.takerTo,
		Inputs: []chainbridge.UTXO{
			{TxID: "taker-utxo-1", Vout: 0, Address: f.takerFrom, Amount: 5*order.UnitsPerCoin + 10000},
		},
		FeeInputs: []chainbridge.UTXO{
			{TxID: "taker-fee-1", Vout: 0, Address: f.takerFrom, Amount: 10000},
		},
		Utxos: []wire.UTXORef{utxo},
	})
	if err != nil {
		f.t.Fatalf("AcceptOrder: %v", err)
	}
	return o
}

func TestHappyPathSettlesBothSides(t *testing.T) {
	f := newFixture(t)
	makerOrder := f.placeMakerOrder()
	takerOrder := f.acceptOrder(makerOrder.ID)

	f.router.drain(t, 200)

	if makerOrder.State != xbstate.Finished {
		t.Fatalf("maker order state = %s, want Finished", makerOrder.State)
	}
	if takerOrder.State != xbstate.Finished {
		t.Fatalf("taker order state = %s, want Finished", takerOrder.State)
	}
	if _, loc := f.maker.traderOrders.Get(makerOrder.ID); loc != registry.History {
		t.Fatalf("maker registry location = %s, want history", loc)
	}
	if _, loc := f.taker.traderOrders.Get(takerOrder.ID); loc != registry.History {
		t.Fatalf("taker registry location = %s, want history", loc)
	}
	if _, loc := f.hub.hubOrders.Get(makerOrder.ID); loc != registry.History {
		t.Fatalf("hub registry location = %s, want history", loc)
	}

	if makerOrder.PayTxID == "" {
		t.Fatal("maker never redeemed the taker's deposit")
	}
	if takerOrder.PayTxID == "" {
		t.Fatal("taker never redeemed the maker's deposit")
	}

	// The Maker redeems the Taker's LTC deposit, revealing the secret on
	// chain B; the Taker must have picked that same secret back up.
	revealed, ok := f.chainB.secrets[makerOrder.PayTxID]
	if !ok {
		t.Fatalf("maker's pay tx %s left no secret on chain B", makerOrder.PayTxID)
	}
	if !bytes.Equal(revealed, makerOrder.Secret[:]) {
		t.Fatal("secret recorded on chain B does not match the maker's HTLC secret")
	}

	// The Taker's redeem of the Maker's BLOCK deposit must itself carry the
	// same secret forward.
	takerRevealed, ok := f.chainA.secrets[takerOrder.PayTxID]
	if !ok {
		t.Fatalf("taker's pay tx %s left no secret on chain A", takerOrder.PayTxID)
	}
	if !bytes.Equal(takerRevealed, revealed) {
		t.Fatal("taker's redeem used a different secret than the maker revealed")
	}
}

// TestDoubleAcceptSecondTakerIgnored exercises I2: a second Taker racing to
// accept the same order never gets its own deposit created, even though it
// shares the order hash with the winning Taker and so still observes some
// of the Hub's broadcast traffic for that hash.
func TestDoubleAcceptSecondTakerIgnored(t *testing.T) {
	f := newFixture(t)
	makerOrder := f.placeMakerOrder()

	secondKeys, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}
	second := New(false, secondKeys, []chainbridge.ChainBridge{f.chainA, f.chainB}, &fakeTransport{r: f.router}, nil)
	secondFrom := fixedAddr("second-taker-addr")
	var secondAddr [account.AddrSize]byte
	copy(secondAddr[:], decodeAddr(secondFrom))
	f.router.register(secondAddr, second)

	takerOrder := f.acceptOrder(makerOrder.ID)

	pending := &wire.PendingTransaction{
		Hash: makerOrder.ID, SrcCur: order.NewCurrency("BLOCK"), SrcAmt: 10 * order.UnitsPerCoin,
		DstCur: order.NewCurrency("LTC"), DstAmt: 5 * order.UnitsPerCoin, HubAddr: f.hub.Addr,
	}
	secondUtxo := wire.UTXORef{TxID: [32]byte{3}, Vout: 0, Addr: secondAddr}
	wire.SignUTXORef(&secondUtxo, secondKeys.Priv)
	f.chainB.registerUTXO(hex.EncodeToString(secondUtxo.TxID[:]), secondUtxo.Vout, secondFrom, 5*order.UnitsPerCoin+10000)

	secondOrder, err := second.AcceptOrder(pending, AcceptOrderArgs{
		From: secondFrom, To: fixedAddr("second-taker-dst"),
		Inputs:    []chainbridge.UTXO{{TxID: "second-utxo-1", Vout: 0, Address: secondFrom, Amount: 5*order.UnitsPerCoin + 10000}},
		FeeInputs: []chainbridge.UTXO{{TxID: "second-fee-1", Vout: 0, Address: secondFrom, Amount: 10000}},
		Utxos:     []wire.UTXORef{secondUtxo},
	})
	if err != nil {
		t.Fatalf("second AcceptOrder: %v", err)
	}

	f.router.drain(t, 200)

	if makerOrder.State != xbstate.Finished || takerOrder.State != xbstate.Finished {
		t.Fatalf("first taker's swap did not settle: maker=%s taker=%s", makerOrder.State, takerOrder.State)
	}
	// The real invariant I2 protects: the losing bidder's coins are never
	// locked into a deposit. Its local bookkeeping may still observe some
	// Hub broadcasts addressed to the order hash in general (Hold, Init,
	// Finished carry no per-bidder recipient field), but it must never be
	// handed a CreateA/CreateB instructing it to actually fund an HTLC.
	if secondOrder.BinTxID != "" {
		t.Fatalf("losing taker's order built a deposit (BinTxID=%s); I2 was violated", secondOrder.BinTxID)
	}
	if secondOrder.State == xbstate.Created || secondOrder.State == xbstate.Committed {
		t.Fatalf("losing taker's order reached %s; I2 was violated", secondOrder.State)
	}
}

// TestCancelBeforeDepositDropsOrderCleanly exercises the no-deposit-yet
// branch of cancelTrader (spec.md §4.7): a cancel that arrives before either
// side has built an HTLC just drops the local record, with no refund to
// broadcast.
func TestCancelBeforeDepositDropsOrderCleanly(t *testing.T) {
	f := newFixture(t)
	makerOrder := f.placeMakerOrder()
	takerOrder := f.acceptOrder(makerOrder.ID)

	// Process only a handful of packets: enough to get through Hold/Init,
	// nowhere near enough to reach CreateA/CreateB.
	f.router.drainN(12)
	if takerOrder.State == xbstate.Created || takerOrder.State == xbstate.Committed {
		t.Fatalf("test setup: taker order already has a deposit out (state=%s)", takerOrder.State)
	}

	cancel := &wire.TransactionCancel{Hash: makerOrder.ID, Reason: wire.ReasonUserRequest}
	signed, err := packet.Sign(packet.TransactionCancel, cancel.Marshal(), f.maker.Keys.Priv)
	if err != nil {
		t.Fatalf("sign cancel: %v", err)
	}
	f.router.enqueue(f.hub.Addr, signed)
	f.router.drain(t, 50)

	if makerOrder.State != xbstate.Cancelled {
		t.Fatalf("maker order state = %s, want Cancelled", makerOrder.State)
	}
	if takerOrder.State != xbstate.Cancelled {
		t.Fatalf("taker order state = %s, want Cancelled", takerOrder.State)
	}
	if _, loc := f.hub.hubOrders.Get(makerOrder.ID); loc != registry.History {
		t.Fatalf("hub registry location = %s, want history", loc)
	}
}
