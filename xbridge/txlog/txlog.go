// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package txlog is the best-effort append-only record of every raw
// deposit/refund/redeem/fee transaction a session produces (spec.md §6):
// one line per transaction, the file rotated by calendar date. It is
// diagnostic, not authoritative; a write failure here never blocks the
// swap itself, which is why Log has no error return and a nil *Writer is
// a valid no-op.
package txlog

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrick/logrotate/rotator"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

// Kind names which stage of the HTLC lifecycle a logged transaction came
// from (spec.md §6's "deposit/refund/redeem").
type Kind string

const (
	KindDeposit Kind = "deposit"
	KindRefund  Kind = "refund"
	KindRedeem  Kind = "redeem"
	KindFee     Kind = "fee"
)

// Writer rotates into a fresh file once per calendar day, named by that
// day's date, mirroring cmd/xbridged's application log rotator but keyed
// on date rather than size. The per-day rotator.Rotator still applies its
// own size-based rollover underneath, guarding against one abnormally
// busy day.
type Writer struct {
	dir      string
	maxRolls int

	mtx     sync.Mutex
	day     string
	rotator *rotator.Rotator
}

// New creates (if needed) dir and opens today's log file. maxRolls bounds
// how many retired size-rollover files jrick/logrotate keeps per day.
func New(dir string, maxRolls int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("txlog: create directory: %w", err)
	}
	w := &Writer{dir: dir, maxRolls: maxRolls}
	if err := w.rollTo(time.Now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) rollTo(now time.Time) error {
	day := now.UTC().Format("2006-01-02")
	if day == w.day && w.rotator != nil {
		return nil
	}
	file := filepath.Join(w.dir, fmt.Sprintf("txlog-%s.log", day))
	r, err := rotator.New(file, 32*1024, false, w.maxRolls)
	if err != nil {
		return fmt.Errorf("txlog: open %s: %w", file, err)
	}
	if w.rotator != nil {
		w.rotator.Close()
	}
	w.rotator = r
	w.day = day
	return nil
}

// Log appends one line recording a raw transaction. It is best-effort: a
// failure to roll or write is swallowed (nothing downstream depends on
// this log existing), matching the "best-effort" wording in spec.md §6.
// A nil Writer drops every call, so callers never need a nil check.
func (w *Writer) Log(kind Kind, orderID order.ID, txid string, raw []byte) {
	if w == nil {
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()

	now := time.Now()
	if err := w.rollTo(now); err != nil {
		return
	}
	line := fmt.Sprintf("%s %s order=%s txid=%s raw=%s\n",
		now.UTC().Format(time.RFC3339), kind, orderID, txid, hex.EncodeToString(raw))
	w.rotator.Write([]byte(line))
}

// Close releases the current day's rotator. Safe to call on a nil Writer.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.rotator != nil {
		w.rotator.Close()
	}
}
