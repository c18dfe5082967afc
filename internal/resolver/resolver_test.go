package resolver

import (
	"testing"

	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/blockmap"
	"github.com/tranvaj/exfs2/internal/dirstore"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/segstore"
)

func newFixture(t *testing.T) (*Resolver, *inode.Table, *dirstore.Store) {
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
	dirs := dirstore.New(store, tr, table)

	// Bootstrap the root directory, exactly as vfs.Open will.
	rootNum, rootIn, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate root: %v", err)
	}
	if rootNum != RootInode {
		t.Fatalf("root allocated as %d, want %d", rootNum, RootInode)
	}
	if err := dirs.InitDir(rootNum, &rootIn, rootNum); err != nil {
		t.Fatalf("InitDir root: %v", err)
	}

	return New(table, dirs), table, dirs
}

func TestResolveRootItself(t *testing.T) {
	r, _, _ := newFixture(t)
	res, err := r.Resolve("/", false)
	if err != nil {
		t.Fatalf("Resolve(/): %v", err)
	}
	if res.Num != RootInode || res.Leaf != "" {
		t.Fatalf("Resolve(/) = %+v", res)
	}
}

func TestCreateMissingCreatesIntermediateDirs(t *testing.T) {
	r, table, dirs := newFixture(t)
	res, err := r.Resolve("/a/b/c", true)
	if err != nil {
		t.Fatalf("Resolve create-missing: %v", err)
	}
	if res.Leaf != "c" {
		t.Fatalf("Leaf = %q, want c", res.Leaf)
	}
	// /a and /a/b must now exist as real directories.
	rootIn := mustRoot(t, table)
	aNum, ok, err := dirs.Lookup(RootInode, &rootIn, "a")
	if err != nil || !ok {
		t.Fatalf("lookup a: ok=%v err=%v", ok, err)
	}
	aIn, err := table.Read(aNum)
	if err != nil {
		t.Fatalf("Read a: %v", err)
	}
	if aIn.Type != inode.Directory {
		t.Fatalf("/a is not a directory")
	}
	if res.Num == RootInode {
		t.Fatalf("leaf's parent should be /a/b, not root")
	}
}

func mustRoot(t *testing.T, table *inode.Table) inode.Inode {
	t.Helper()
	in, err := table.Read(RootInode)
	if err != nil {
		t.Fatalf("Read root: %v", err)
	}
	return in
}

func TestStrictModeFailsOnMissingComponent(t *testing.T) {
	r, _, _ := newFixture(t)
	if _, err := r.Resolve("/nope", false); err == nil {
		t.Fatalf("expected NotFound for missing path in strict mode")
	}
}

func TestStrictModeFailsWalkingThroughFile(t *testing.T) {
	r, table, dirs := newFixture(t)
	rootIn := mustRoot(t, table)
	fileNum, fileIn, err := table.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	fileIn.Type = inode.Regular
	if err := table.Write(fileNum, fileIn); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := dirs.AddEntry(RootInode, &rootIn, "leaf", fileNum); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if _, err := r.Resolve("/leaf/more", false); err == nil {
		t.Fatalf("expected NotADirectory resolving through a file")
	}
}

func TestDotDotResolvesViaSelfEntries(t *testing.T) {
	r, _, _ := newFixture(t)
	// Creates /a and /a/b; the leaf c itself is not created.
	if _, err := r.Resolve("/a/b/c", true); err != nil {
		t.Fatalf("Resolve create-missing: %v", err)
	}
	res, err := r.Resolve("/a/b/../../a", false)
	if err != nil {
		t.Fatalf("Resolve with ..: %v", err)
	}
	if res.Leaf != "a" {
		t.Fatalf("Leaf = %q, want a", res.Leaf)
	}
}
