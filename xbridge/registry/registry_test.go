// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package registry

import (
	"testing"

	"github.com/blocknetdx/xbridge-go/xbridge/order"
)

type fakeRecord struct {
	id  order.ID
	tag string
}

func (f fakeRecord) OrderID() order.ID { return f.id }

func TestAddPendingRejectsDuplicate(t *testing.T) {
	reg := New[fakeRecord]()
	id := order.ID{1}
	if err := reg.AddPending(fakeRecord{id: id, tag: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddPending(fakeRecord{id: id, tag: "second"}); err == nil {
		t.Fatal("expected duplicate AddPending to fail")
	}
}

func TestAcceptAtMostOnce(t *testing.T) {
	reg := New[fakeRecord]()
	id := order.ID{2}
	if err := reg.AddPending(fakeRecord{id: id}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Accept(id, fakeRecord{id: id, tag: "taker-1"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Accept(id, fakeRecord{id: id, tag: "taker-2"}); err == nil {
		t.Fatal("expected the second Accept to be rejected (I2)")
	}
	rec, loc := reg.Get(id)
	if loc != Active || rec.tag != "taker-1" {
		t.Fatalf("expected the first accepting record to win, got %+v at %v", rec, loc)
	}
}

func TestMoveToHistory(t *testing.T) {
	reg := New[fakeRecord]()
	id := order.ID{3}
	reg.AddPending(fakeRecord{id: id})
	reg.Accept(id, fakeRecord{id: id})
	reg.MoveToHistory(id, fakeRecord{id: id, tag: "finished"})
	rec, loc := reg.Get(id)
	if loc != History || rec.tag != "finished" {
		t.Fatalf("expected record in history, got %+v at %v", rec, loc)
	}
}

func TestGetNotFound(t *testing.T) {
	reg := New[fakeRecord]()
	_, loc := reg.Get(order.ID{9})
	if loc != NotFound {
		t.Fatalf("expected NotFound, got %v", loc)
	}
}
