// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/blocknetdx/xbridge-go"
	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge"
	"github.com/blocknetdx/xbridge-go/xbridge/chainbridge/mock"
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/session"
	"github.com/blocknetdx/xbridge-go/xbridge/txlog"
	"github.com/blocknetdx/xbridge-go/xbridge/version"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
	"github.com/decred/slog"
)

// appName is the application name.
const appName = "xbridged"

// Version reports the running build's semantic version.
func Version() string { return version.String() }

// log is package main's own logger, replaced with a real subsystem logger
// once loadConfig has parsed the debug-level configuration.
var log xbridge.Logger = slog.Disabled

func mainCore(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()
	log = cfg.LogMaker.NewLogger("MAIN")

	log.Infof("%s version %s", appName, Version())

	keys, err := sessionKey(cfg.KeyFilePath, cfg.DecredKeyFormat)
	if err != nil {
		return fmt.Errorf("load session key: %w", err)
	}
	log.Infof("session address: %x", keys.Address())

	if cfg.Demo {
		return runDemo(ctx, cfg)
	}

	chains := make([]chainbridge.ChainBridge, len(cfg.Currencies))
	for i, ticker := range cfg.Currencies {
		chains[i] = mock.NewChain(order.NewCurrency(ticker), 1)
	}

	// Transport (the peer-to-peer packet relay/broadcast substrate) is out
	// of this module's scope; a real deployment supplies one. noopTransport
	// lets the Session start and the Watchdog run even with nothing plugged
	// in yet.
	s := session.New(cfg.IsHub, keys, chains, noopTransport{}, cfg.LogMaker.NewLogger("SESS"))
	if tl, err := txlog.New(filepath.Join(cfg.LogDir, "txlog"), cfg.MaxLogZips); err != nil {
		log.Warnf("txlog disabled: %v", err)
	} else {
		s.SetTxLog(tl)
		defer tl.Close()
	}
	go s.RunWatchdog(ctx, 30*time.Second)

	log.Info("xbridged is running. Hit CTRL+C to quit...")
	<-ctx.Done()
	log.Info("stopping xbridged...")
	return nil
}

// noopTransport satisfies session.Transport for a session with no wired
// network substrate; every send is simply dropped.
type noopTransport struct{}

func (noopTransport) SendTo(addr [account.AddrSize]byte, pkt *packet.Packet) {}
func (noopTransport) Broadcast(pkt *packet.Packet)                          {}

// fixedAddr truncates/pads a chain address string to the wire format's
// fixed-width routing address field, mirroring xbridge/session's decodeAddr.
func fixedAddr(s string) [account.AddrSize]byte {
	var b [account.AddrSize]byte
	copy(b[:], s)
	return b
}

// runDemo wires a Hub and two trader sessions over an in-process loopback
// transport and a pair of mock.Chain doubles, then drives one Maker/Taker
// swap end to end so operators can see the protocol complete without a
// real wallet or network, following the wiring tatanka/cmd/demo/main.go
// uses to exercise a mesh node locally.
func runDemo(ctx context.Context, cfg *xbridgedConf) error {
	if len(cfg.Currencies) < 2 {
		return fmt.Errorf("xbridged: --demo needs at least two --currency values")
	}
	chainA := mock.NewChain(order.NewCurrency(cfg.Currencies[0]), 1000)
	chainB := mock.NewChain(order.NewCurrency(cfg.Currencies[1]), 1000)
	chains := []chainbridge.ChainBridge{chainA, chainB}

	lt := newLoopbackTransport()

	hubKeys, err := account.Generate()
	if err != nil {
		return err
	}
	makerKeys, err := account.Generate()
	if err != nil {
		return err
	}
	takerKeys, err := account.Generate()
	if err != nil {
		return err
	}

	hub := session.New(true, hubKeys, chains, lt, cfg.LogMaker.NewLogger("HUB"))
	maker := session.New(false, makerKeys, chains, lt, cfg.LogMaker.SubLogger("TRDR", "maker"))
	taker := session.New(false, takerKeys, chains, lt, cfg.LogMaker.SubLogger("TRDR", "taker"))

	for name, sess := range map[string]*session.Session{"hub": hub, "maker": maker, "taker": taker} {
		if tl, err := txlog.New(filepath.Join(cfg.LogDir, "txlog-demo-"+name), cfg.MaxLogZips); err == nil {
			sess.SetTxLog(tl)
			defer tl.Close()
		}
	}

	lt.register(hub.Addr, hub)
	lt.register(maker.Addr, maker)
	lt.register(taker.Addr, taker)

	demoCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go lt.run(demoCtx)

	log.Infof("demo: hub at %x, maker at %x, taker at %x", hub.Addr, maker.Addr, taker.Addr)

	makerUtxo := wire.UTXORef{TxID: [32]byte{1}, Vout: 0, Addr: fixedAddr("demo-maker-src-addr")}
	wire.SignUTXORef(&makerUtxo, makerKeys.Priv)
	chainA.RegisterUTXO(hex.EncodeToString(makerUtxo.TxID[:]), makerUtxo.Vout, "demo-maker-src-addr", 10*order.UnitsPerCoin+10000)

	makerOrder, err := maker.PlaceOrder(session.PlaceOrderArgs{
		FromCurrency: chainA.Currency(),
		ToCurrency:   chainB.Currency(),
		FromAmount:   10 * order.UnitsPerCoin,
		ToAmount:     5 * order.UnitsPerCoin,
		From:         "demo-maker-src-addr",
		To:           "demo-maker-dst-addr",
		Inputs: []chainbridge.UTXO{
			{TxID: "demo-maker-utxo", Vout: 0, Address: "demo-maker-src-addr", Amount: 10*order.UnitsPerCoin + 10000},
		},
		Utxos:      []wire.UTXORef{makerUtxo},
		AnchorHash: [32]byte{9},
		HubAddr:    hub.Addr,
	})
	if err != nil {
		return fmt.Errorf("demo: PlaceOrder: %w", err)
	}
	log.Infof("demo: Maker placed order %s", makerOrder.ID)

	time.Sleep(200 * time.Millisecond)

	pending := &wire.PendingTransaction{
		Hash:    makerOrder.ID,
		SrcCur:  chainA.Currency(),
		SrcAmt:  makerOrder.FromAmount,
		DstCur:  chainB.Currency(),
		DstAmt:  makerOrder.ToAmount,
		HubAddr: hub.Addr,
	}
	takerUtxo := wire.UTXORef{TxID: [32]byte{2}, Vout: 0, Addr: fixedAddr("demo-taker-src-addr")}
	wire.SignUTXORef(&takerUtxo, takerKeys.Priv)
	chainB.RegisterUTXO(hex.EncodeToString(takerUtxo.TxID[:]), takerUtxo.Vout, "demo-taker-src-addr", 5*order.UnitsPerCoin+10000)

	_, err = taker.AcceptOrder(pending, session.AcceptOrderArgs{
		From: "demo-taker-src-addr",
		To:   "demo-taker-dst-addr",
		Inputs: []chainbridge.UTXO{
			{TxID: "demo-taker-utxo", Vout: 0, Address: "demo-taker-src-addr", Amount: 5*order.UnitsPerCoin + 10000},
		},
		FeeInputs: []chainbridge.UTXO{
			{TxID: "demo-taker-fee", Vout: 0, Address: "demo-taker-src-addr", Amount: 10000},
		},
		Utxos: []wire.UTXORef{takerUtxo},
	})
	if err != nil {
		return fmt.Errorf("demo: AcceptOrder: %w", err)
	}

	time.Sleep(3 * time.Second)
	log.Infof("demo: maker order %s finished in state %s", makerOrder.ID, makerOrder.State)
	cancel()
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := mainCore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
