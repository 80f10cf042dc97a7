// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package txlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

func TestNewCreatesTodaysFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Log(KindDeposit, order.ID{1}, "dep-1", []byte("rawtx"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one log file in dir")
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a .log file, got entries: %v", entries)
	}
}

func TestNilWriterLogIsNoOp(t *testing.T) {
	var w *Writer
	w.Log(KindFee, order.ID{2}, "fee-1", []byte("rawtx")) // must not panic
	w.Close()                                             // must not panic
}
