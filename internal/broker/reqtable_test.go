package broker

import (
	"testing"
	"time"

	"github.com/bgpview/client/internal/transport"
)

func TestTable_AllocFindMarkUnused(t *testing.T) {
	tbl := NewTable(4)

	idx, ok := tbl.FindEmpty()
	if !ok {
		t.Fatal("expected empty slot in fresh table")
	}
	tbl.Alloc(idx, 1, transport.MsgView, transport.InterestFull, transport.InterestPartial,
		[]transport.Frame{[]byte("p")}, 3, time.Now().Add(time.Second))

	if tbl.Count() != 1 {
		t.Fatalf("expected count 1, got %d", tbl.Count())
	}

	got, ok := tbl.FindBySeq(1)
	if !ok || got != idx {
		t.Fatalf("FindBySeq mismatch: got %d, %v", got, ok)
	}

	tbl.MarkUnused(idx)
	if tbl.Count() != 0 {
		t.Fatalf("expected count 0 after MarkUnused, got %d", tbl.Count())
	}
	if _, ok := tbl.FindBySeq(1); ok {
		t.Fatal("expected FindBySeq miss after MarkUnused")
	}
}

func TestTable_CapacityExhausted(t *testing.T) {
	tbl := NewTable(2)
	for i := 0; i < 2; i++ {
		idx, ok := tbl.FindEmpty()
		if !ok {
			t.Fatalf("expected free slot at i=%d", i)
		}
		tbl.Alloc(idx, uint32(i+1), transport.MsgView, 0, 0, nil, 1, time.Now())
	}
	if _, ok := tbl.FindEmpty(); ok {
		t.Fatal("expected no free slots once at capacity")
	}
	if tbl.Count() != tbl.Capacity() {
		t.Fatalf("expected count == capacity, got %d/%d", tbl.Count(), tbl.Capacity())
	}
}

func TestTable_DueForRetry(t *testing.T) {
	tbl := NewTable(4)
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	idx1, _ := tbl.FindEmpty()
	tbl.Alloc(idx1, 1, transport.MsgView, 0, 0, nil, 3, past)
	idx2, _ := tbl.FindEmpty()
	tbl.Alloc(idx2, 2, transport.MsgView, 0, 0, nil, 3, future)

	due := tbl.DueForRetry(time.Now())
	if len(due) != 1 || due[0] != idx1 {
		t.Fatalf("expected only idx1 due, got %v", due)
	}
}
