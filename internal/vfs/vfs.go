// Package vfs is the file-operations façade spec.md §4.7 describes —
// list, add, extract, remove, debug — plus the operations SPEC_FULL.md §5
// supplements from the teacher's fuller command set (copy, rename,
// truncate, info). It is the only package that composes the allocator,
// inode table, block map, directory store and resolver together; none of
// the lower layers know about each other beyond what they need to do
// their own job.
//
// The CLI dispatch this replaces is the teacher's Interpreter
// (util/command_interpreter.go): one struct holding every open resource,
// one method per verb. Here the verbs are façade methods instead of a
// switch inside ExecCommand, so the same façade can be driven by the CLI
// in cmd/exfs2 or by tests directly.
package vfs

import (
	"go.uber.org/zap"

	"github.com/tranvaj/exfs2/internal/bitmap"
	"github.com/tranvaj/exfs2/internal/blockmap"
	"github.com/tranvaj/exfs2/internal/dirstore"
	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/resolver"
	"github.com/tranvaj/exfs2/internal/segstore"
)

// FS is the open store: every layer wired together plus the root
// bootstrap spec.md's data model requires (inode 0 / data block 0
// reserved for the root directory).
type FS struct {
	segs     *segstore.Store
	inodeAll *bitmap.Allocator
	dataAll  *bitmap.Allocator
	inodes   *inode.Table
	bmap     *blockmap.Translator
	dirs     *dirstore.Store
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// Open wires up every layer rooted at dir and bootstraps the root
// directory on first use. Calling Open again on the same directory finds
// the root already initialized and leaves it untouched.
func Open(dir string, logger *zap.Logger) (*FS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	segs, err := segstore.Open(dir, logger)
	if err != nil {
		return nil, err
	}

	inodeAll := bitmap.New(segs, segstore.Inode, logger)
	dataAll := bitmap.New(segs, segstore.Data, logger)
	inodes := inode.NewTable(segs, inodeAll)
	bmap := blockmap.New(segs, dataAll, logger)
	dirs := dirstore.New(segs, bmap, inodes)
	res := resolver.New(inodes, dirs)

	fs := &FS{
		segs:     segs,
		inodeAll: inodeAll,
		dataAll:  dataAll,
		inodes:   inodes,
		bmap:     bmap,
		dirs:     dirs,
		resolver: res,
		logger:   logger,
	}

	if err := fs.bootstrapRoot(); err != nil {
		segs.Close()
		return nil, err
	}
	return fs, nil
}

// bootstrapRoot creates inode 0 / data block 0 as the root directory the
// very first time this store is opened. Because Allocate always returns
// the lowest free object, doing this as the first-ever allocation
// naturally lands root at object 0 — no separate "pre-mark allocated"
// step is needed beyond simply allocating before anything else can.
func (fs *FS) bootstrapRoot() error {
	if fs.segs.Exists(segstore.Inode, 0) {
		return nil
	}
	rootNum, rootIn, err := fs.inodes.Allocate()
	if err != nil {
		return err
	}
	if rootNum != resolver.RootInode {
		return exfs2err.New(exfs2err.Corruption, "bootstrap", "", nil)
	}
	return fs.dirs.InitDir(rootNum, &rootIn, rootNum)
}

// Close releases every open segment handle.
func (fs *FS) Close() error {
	return fs.segs.Close()
}
