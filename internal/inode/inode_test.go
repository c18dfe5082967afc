package inode

import (
	"testing"

	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

func newTable(t *testing.T) *Table {
	t.Helper()
	store, err := segstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	alloc := bitmap.New(store, segstore.Inode, nil)
	return NewTable(store, alloc)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Zeroed()
	in.Type = Regular
	in.Size = 12345
	in.DirectBlocks[0] = 7
	in.Single = 99

	got, err := Decode(in.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestDecodeRejectsInvalidType(t *testing.T) {
	buf := make([]byte, layout.BlockSize)
	buf[0] = 0xFF
	if _, err := Decode(buf); err == nil {
		t.Fatalf("expected error decoding invalid type tag")
	}
}

func TestAllocateWriteReadFree(t *testing.T) {
	table := newTable(t)

	// Inode 0 is reserved for the root and can never be freed; take it
	// first so the inode under test is an ordinary one.
	if _, _, err := table.Allocate(); err != nil {
		t.Fatalf("Allocate root: %v", err)
	}

	num, in, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if in.Type != Free {
		t.Fatalf("freshly allocated inode has type %v, want Free", in.Type)
	}
	for _, d := range in.DirectBlocks {
		if d != layout.Null {
			t.Fatalf("freshly allocated direct pointer = %d, want layout.Null", d)
		}
	}

	in.Type = Regular
	in.Size = 42
	if err := table.Write(num, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := table.Read(num)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Size != 42 || got.Type != Regular {
		t.Fatalf("Read() = %+v, want size 42 type Regular", got)
	}

	if err := table.Free(num); err != nil {
		t.Fatalf("Free: %v", err)
	}
	after, err := table.Read(num)
	if err != nil {
		t.Fatalf("Read after free: %v", err)
	}
	if after.Type != Free {
		t.Fatalf("inode after Free has type %v, want Free", after.Type)
	}
}
