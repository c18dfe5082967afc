// Supplemented operations, added in SPEC_FULL.md §5 beyond the bare five
// spec.md §4.7 names, grounded in the teacher's fuller command set
// (Cp, Mv, Short, Info in util/command_interpreter.go).
package vfs

import (
	"bytes"

	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
)

// Copy extracts src and adds it at dst, grounded on the teacher's Cp.
func (fs *FS) Copy(src, dst string) error {
	var buf bytes.Buffer
	if err := fs.Extract(src, &buf); err != nil {
		return err
	}
	return fs.Add(dst, bytes.NewReader(buf.Bytes()))
}

// Rename binds dst to src's inode and removes the src binding, grounded
// on the teacher's Mv. Since spec.md's ownership rule gives every inode
// at most one parent directory entry, this is remove-then-add of a
// single entry, never a second link to the same inode.
func (fs *FS) Rename(src, dst string) error {
	srcRes, err := fs.resolver.Resolve(src, false)
	if err != nil {
		return err
	}
	if srcRes.Num == 0 {
		return exfs2err.New(exfs2err.InvalidName, "rename", src, nil)
	}
	if _, err := leafName(dst); err != nil {
		return err
	}
	dstRes, err := fs.resolver.Resolve(dst, true)
	if err != nil {
		return err
	}
	if _, ok, err := fs.dirs.Lookup(dstRes.Num, &dstRes.Inode, dstRes.Leaf); err != nil {
		return err
	} else if ok {
		return exfs2err.New(exfs2err.AlreadyExists, "rename", dst, nil)
	}

	srcParent, err := fs.resolver.Resolve(src, true)
	if err != nil {
		return err
	}
	if err := fs.dirs.RemoveEntry(srcParent.Num, &srcParent.Inode, srcParent.Leaf); err != nil {
		return err
	}
	return fs.dirs.AddEntry(dstRes.Num, &dstRes.Inode, dstRes.Leaf, srcRes.Num)
}

func blockCountFor(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	return (size + layout.BlockSize - 1) / layout.BlockSize
}

// Truncate resizes the regular file at path to newSize, freeing blocks
// that fall out of range. Grounded on the teacher's Short (a hard-coded
// 3000-byte cap), generalized to an arbitrary target size.
//
// Direct blocks beyond the new size are freed and their pointers cleared.
// An indirect range the new size no longer reaches at all is freed as a
// whole subtree and its top-level pointer cleared. If the new size still
// lands partway through a single/double/triple-indirect range, that range
// is left as it is: its leaf blocks past the new end stay allocated and
// referenced, so the bitmap and the pointer structure still agree, and
// they are reclaimed only when the file is removed, by Remove's
// freeIndirectLevel walk.
func (fs *FS) Truncate(path string, newSize uint64) error {
	res, err := fs.resolver.Resolve(path, false)
	if err != nil {
		return err
	}
	if res.Inode.Type != inode.Regular {
		return exfs2err.New(exfs2err.IsADirectory, "truncate", path, nil)
	}
	in := res.Inode
	oldBlocks := blockCountFor(in.Size)
	newBlocks := blockCountFor(newSize)

	for l := newBlocks; l < oldBlocks && l < uint64(len(in.DirectBlocks)); l++ {
		phys, err := fs.bmap.Resolve(fs.inodes, res.Num, &in, l, false)
		if err != nil {
			return err
		}
		if phys == layout.Null {
			continue
		}
		if err := fs.dataAll.Free(phys); err != nil {
			return err
		}
		if l < uint64(len(in.DirectBlocks)) {
			in.DirectBlocks[l] = layout.Null
		}
	}

	if newBlocks <= uint64(len(in.DirectBlocks)) {
		if in.Single != layout.Null {
			fs.freeIndirectLevel(in.Single, 1)
			in.Single = layout.Null
		}
		if in.Double != layout.Null {
			fs.freeIndirectLevel(in.Double, 2)
			in.Double = layout.Null
		}
		if in.Triple != layout.Null {
			fs.freeIndirectLevel(in.Triple, 3)
			in.Triple = layout.Null
		}
	}

	in.Size = newSize
	return fs.inodes.Write(res.Num, in)
}

// Info returns the inode number and record for path without walking past
// it, the single-node detail dump the teacher's Info/info command
// performs. Unlike Debug, which traces every component of a path, Info
// only inspects the final, already-resolved node.
func (fs *FS) Info(path string) (uint32, inode.Inode, error) {
	res, err := fs.resolver.Resolve(path, false)
	if err != nil {
		return 0, inode.Inode{}, err
	}
	return res.Num, res.Inode, nil
}
