package bitmap

import (
	"testing"

	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

func newStore(t *testing.T) *segstore.Store {
	t.Helper()
	s, err := segstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllocateSequential(t *testing.T) {
	a := New(newStore(t), segstore.Data, nil)
	for i := uint32(0); i < 5; i++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != i {
			t.Fatalf("Allocate() = %d, want %d", got, i)
		}
	}
}

func TestAllocateReusesFreedLowestBit(t *testing.T) {
	a := New(newStore(t), segstore.Data, nil)
	for i := 0; i < 4; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}
	if err := a.Free(2); err != nil {
		t.Fatalf("Free: %v", err)
	}
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 2 {
		t.Fatalf("Allocate() after free = %d, want 2 (lowest free bit)", got)
	}
}

func TestAllocateGrowsSegment(t *testing.T) {
	a := New(newStore(t), segstore.Inode, nil)
	var last uint32
	for i := 0; i < layout.SlotsPerSegment; i++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		last = got
	}
	if last != layout.SlotsPerSegment-1 {
		t.Fatalf("last allocation in first segment = %d, want %d", last, layout.SlotsPerSegment-1)
	}
	next, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate into new segment: %v", err)
	}
	if next != layout.SlotsPerSegment {
		t.Fatalf("Allocate() across segment boundary = %d, want %d", next, layout.SlotsPerSegment)
	}
}

func TestFreeObjectZeroRefused(t *testing.T) {
	a := New(newStore(t), segstore.Data, nil)
	if _, err := a.Allocate(); err != nil { // consumes global 0
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Free(0); err == nil {
		t.Fatalf("expected error freeing reserved object 0")
	}
}

func TestDoubleFreeIsNotFatal(t *testing.T) {
	a := New(newStore(t), segstore.Data, nil)
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Free(got); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := a.Free(got); err != nil {
		t.Fatalf("double Free should be a warning, not an error: %v", err)
	}
}
