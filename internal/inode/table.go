package inode

import (
	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/segstore"
)

// Table is the inode segment pool: allocation plus record read/write.
type Table struct {
	store *segstore.Store
	alloc *bitmap.Allocator
}

// NewTable builds a Table over the inode-segment allocator.
func NewTable(store *segstore.Store, alloc *bitmap.Allocator) *Table {
	return &Table{store: store, alloc: alloc}
}

// Read fetches the inode record addressed by global number num.
func (t *Table) Read(num uint32) (Inode, error) {
	buf, err := t.store.ReadObject(segstore.Inode, num)
	if err != nil {
		return Inode{}, exfs2err.New(exfs2err.IO, "read inode", "", err)
	}
	in, err := Decode(buf)
	if err != nil {
		return Inode{}, err
	}
	return in, nil
}

// Write persists in at global number num.
func (t *Table) Write(num uint32, in Inode) error {
	if err := t.store.WriteObject(segstore.Inode, num, in.Encode()); err != nil {
		return exfs2err.New(exfs2err.IO, "write inode", "", err)
	}
	return nil
}

// Allocate draws a fresh inode number from the allocator and installs a
// zeroed record there, returning both.
func (t *Table) Allocate() (uint32, Inode, error) {
	num, err := t.alloc.Allocate()
	if err != nil {
		return 0, Inode{}, err
	}
	in := Zeroed()
	if err := t.Write(num, in); err != nil {
		t.alloc.Free(num)
		return 0, Inode{}, err
	}
	return num, in, nil
}

// Free marks num's record as free on disk and returns its number to the
// allocator.
func (t *Table) Free(num uint32) error {
	if err := t.Write(num, Zeroed()); err != nil {
		return err
	}
	return t.alloc.Free(num)
}
