package blockmap

import (
	"testing"

	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

func newFixture(t *testing.T) (*Translator, *inode.Table) {
	t.Helper()
	store, err := segstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	inodeAlloc := bitmap.New(store, segstore.Inode, nil)
	dataAlloc := bitmap.New(store, segstore.Data, nil)
	table := inode.NewTable(store, inodeAlloc)
	tr := New(store, dataAlloc, nil)
	return tr, table
}

func TestResolveReadOnlyMissingReturnsNull(t *testing.T) {
	tr, table := newFixture(t)
	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	got, err := tr.Resolve(table, num, &in, 0, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.Null {
		t.Fatalf("Resolve() on empty direct slot = %d, want layout.Null", got)
	}
}

func TestResolveAllocatesDirect(t *testing.T) {
	tr, table := newFixture(t)
	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	phys, err := tr.Resolve(table, num, &in, 3, true)
	if err != nil {
		t.Fatalf("Resolve alloc: %v", err)
	}
	if phys == layout.Null {
		t.Fatalf("Resolve with allocIfNeeded returned Null")
	}
	reread, err := table.Read(num)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.DirectBlocks[3] != phys {
		t.Fatalf("persisted direct pointer = %d, want %d", reread.DirectBlocks[3], phys)
	}
}

func TestResolveCrossesIntoSingleIndirect(t *testing.T) {
	tr, table := newFixture(t)
	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	l := uint64(layout.DirectPointers) // first single-indirect logical block
	phys, err := tr.Resolve(table, num, &in, l, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if phys == layout.Null {
		t.Fatalf("expected a physical block, got Null")
	}
	reread, err := table.Read(num)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.Single == layout.Null {
		t.Fatalf("expected single-indirect pointer to be set")
	}
	again, err := tr.Resolve(table, num, &reread, l, false)
	if err != nil {
		t.Fatalf("Resolve read-only: %v", err)
	}
	if again != phys {
		t.Fatalf("re-resolve mismatch: got %d, want %d", again, phys)
	}
}

func TestResolveFileTooLarge(t *testing.T) {
	tr, table := newFixture(t)
	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := tr.Resolve(table, num, &in, MaxBlocks(), true); err == nil {
		t.Fatalf("expected FileTooLarge at MaxBlocks()")
	}
}

func TestIndirectEncodeDecodeRoundTrip(t *testing.T) {
	entries := nullEntries()
	entries[5] = 42
	buf := EncodeIndirect(entries)
	got := DecodeIndirect(buf)
	if got != entries {
		t.Fatalf("round trip mismatch")
	}
}
