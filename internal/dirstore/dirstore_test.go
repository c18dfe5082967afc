package dirstore

import (
	"fmt"
	"testing"

	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/blockmap"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

func newFixture(t *testing.T) (*Store, *inode.Table) {
	t.Helper()
	store, err := segstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	inodeAlloc := bitmap.New(store, segstore.Inode, nil)
	dataAlloc := bitmap.New(store, segstore.Data, nil)
	table := inode.NewTable(store, inodeAlloc)
	tr := blockmap.New(store, dataAlloc, nil)
	return New(store, tr, table), table
}

func TestInitDirSelfEntries(t *testing.T) {
	ds, table := newFixture(t)
	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := ds.InitDir(num, &in, num); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	got, ok, err := ds.Lookup(num, &in, ".")
	if err != nil || !ok || got != num {
		t.Fatalf("Lookup(.) = %d, %v, %v; want %d, true, nil", got, ok, err, num)
	}
	got, ok, err = ds.Lookup(num, &in, "..")
	if err != nil || !ok || got != num {
		t.Fatalf("Lookup(..) = %d, %v, %v; want %d, true, nil", got, ok, err, num)
	}
}

func TestAddLookupRemove(t *testing.T) {
	ds, table := newFixture(t)
	dirNum, dirIn, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := ds.InitDir(dirNum, &dirIn, dirNum); err != nil {
		t.Fatalf("InitDir: %v", err)
	}

	if err := ds.AddEntry(dirNum, &dirIn, "a.txt", 5); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	got, ok, err := ds.Lookup(dirNum, &dirIn, "a.txt")
	if err != nil || !ok || got != 5 {
		t.Fatalf("Lookup(a.txt) = %d, %v, %v", got, ok, err)
	}

	if err := ds.RemoveEntry(dirNum, &dirIn, "a.txt"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	_, ok, err = ds.Lookup(dirNum, &dirIn, "a.txt")
	if err != nil {
		t.Fatalf("Lookup after remove: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to be gone after RemoveEntry")
	}
}

func TestRemoveDoesNotCompact(t *testing.T) {
	ds, table := newFixture(t)
	dirNum, dirIn, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := ds.InitDir(dirNum, &dirIn, dirNum); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	if err := ds.AddEntry(dirNum, &dirIn, "first", 10); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := ds.AddEntry(dirNum, &dirIn, "second", 11); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := ds.RemoveEntry(dirNum, &dirIn, "first"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	// "second" must still resolve at its original slot, not have been
	// swapped into the hole left by "first".
	got, ok, err := ds.Lookup(dirNum, &dirIn, "second")
	if err != nil || !ok || got != 11 {
		t.Fatalf("Lookup(second) after removing first = %d, %v, %v", got, ok, err)
	}
	// Slots 0 and 1 hold "." and ".."; "first" was in slot 2, "second" in 3.
	buf, err := ds.segs.ReadObject(segstore.Data, dirIn.DirectBlocks[0])
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	hole, err := decodeEntry(buf[2*EntrySize : 3*EntrySize])
	if err != nil || hole.Inode != layout.Null {
		t.Fatalf("slot 2 after remove = %+v, %v; want unused", hole, err)
	}
	kept, err := decodeEntry(buf[3*EntrySize : 4*EntrySize])
	if err != nil || kept.Inode != 11 || kept.Name != "second" {
		t.Fatalf("slot 3 after remove = %+v, %v; want second -> 11", kept, err)
	}
}

func TestAddEntrySpillsToSecondBlock(t *testing.T) {
	ds, table := newFixture(t)
	dirNum, dirIn, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := ds.InitDir(dirNum, &dirIn, dirNum); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	// "." and ".." already occupy two slots of the first block.
	for i := 0; i < EntriesPerBlock; i++ {
		name := fmt.Sprintf("f%02d", i)
		if err := ds.AddEntry(dirNum, &dirIn, name, uint32(100+i)); err != nil {
			t.Fatalf("AddEntry(%s): %v", name, err)
		}
	}
	seen := map[string]uint32{}
	err = ds.ForEach(dirNum, &dirIn, func(name string, child uint32) error {
		seen[name] = child
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != EntriesPerBlock+2 {
		t.Fatalf("ForEach saw %d entries, want %d", len(seen), EntriesPerBlock+2)
	}
}

func TestEncodeDecodeEntryRoundTrip(t *testing.T) {
	e := Entry{Inode: 42, Name: "hello"}
	got, err := decodeEntry(encodeEntry(e))
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestUnusedSlotDoesNotAliasRootInode(t *testing.T) {
	// A freshly allocated directory block is filled with layout.Null in
	// the inode field, never 0 — inode 0 is the legitimate root, so a
	// zero-filled block must not be misread as "every slot points at root".
	buf := emptyEntryBlock()
	e, err := decodeEntry(buf[0:EntrySize])
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if e.Inode != layout.Null {
		t.Fatalf("fresh slot inode = %d, want layout.Null", e.Inode)
	}
}
