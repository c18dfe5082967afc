// Package inode implements the inode table of spec.md §4.3: fixed-size
// records (type, size, direct/indirect pointers) packed little-endian into
// one object slot per inode, addressed through the same segment/bitmap
// machinery data blocks use.
//
// The record shape is grounded on the teacher's PseudoInode
// (util/fs_structs.go: NodeId, IsDirectory, FileSize, Direct[12],
// Indirect[3]) and on original_source/reference.c's Inode struct
// (type, size, direct_blocks[NUM_DIRECT_BLOCKS], single/double/triple
// indirect); this package generalizes both to spec.md's D=10 direct
// pointers and three named indirect levels instead of an Indirect[3]
// array, and replaces the teacher's bool/int8 reference-count fields
// (hard links are a spec.md non-goal) with exactly the fields spec.md's
// data model names.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/layout"
)

// Type is the inode's record kind.
type Type uint32

const (
	Free Type = iota
	Regular
	Directory
)

func (t Type) String() string {
	switch t {
	case Free:
		return "free"
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	default:
		return "invalid"
	}
}

// Inode is the in-memory form of one on-disk inode record.
type Inode struct {
	Type         Type
	Size         uint64
	DirectBlocks [layout.DirectPointers]uint32
	Single       uint32
	Double       uint32
	Triple       uint32
}

// Zeroed returns the record an allocate() call installs: free type, zero
// size, every pointer field set to layout.Null. Plain Go zero value is
// not usable here since a zeroed uint32 (0) is a valid block number, not
// "no pointer" — see layout.Null's doc comment.
func Zeroed() Inode {
	in := Inode{Type: Free}
	for i := range in.DirectBlocks {
		in.DirectBlocks[i] = layout.Null
	}
	in.Single, in.Double, in.Triple = layout.Null, layout.Null, layout.Null
	return in
}

const (
	offType   = 0
	offSize   = 4
	offDirect = 12
	offSingle = offDirect + 4*layout.DirectPointers
	offDouble = offSingle + 4
	offTriple = offDouble + 4
)

// Encode packs in into a layout.BlockSize-byte slot, zero-padded past the
// used header.
func (in Inode) Encode() []byte {
	buf := make([]byte, layout.BlockSize)
	binary.LittleEndian.PutUint32(buf[offType:], uint32(in.Type))
	binary.LittleEndian.PutUint64(buf[offSize:], in.Size)
	for i, d := range in.DirectBlocks {
		binary.LittleEndian.PutUint32(buf[offDirect+4*i:], d)
	}
	binary.LittleEndian.PutUint32(buf[offSingle:], in.Single)
	binary.LittleEndian.PutUint32(buf[offDouble:], in.Double)
	binary.LittleEndian.PutUint32(buf[offTriple:], in.Triple)
	return buf
}

// Decode unpacks a layout.BlockSize-byte slot into an Inode, rejecting an
// out-of-range type field as corruption.
func Decode(buf []byte) (Inode, error) {
	if len(buf) != layout.BlockSize {
		return Inode{}, exfs2err.New(exfs2err.Corruption, "decode inode", "", fmt.Errorf("slot is %d bytes, want %d", len(buf), layout.BlockSize))
	}
	t := Type(binary.LittleEndian.Uint32(buf[offType:]))
	if t != Free && t != Regular && t != Directory {
		return Inode{}, exfs2err.New(exfs2err.Corruption, "decode inode", "", fmt.Errorf("invalid type tag %d", t))
	}
	var in Inode
	in.Type = t
	in.Size = binary.LittleEndian.Uint64(buf[offSize:])
	for i := range in.DirectBlocks {
		in.DirectBlocks[i] = binary.LittleEndian.Uint32(buf[offDirect+4*i:])
	}
	in.Single = binary.LittleEndian.Uint32(buf[offSingle:])
	in.Double = binary.LittleEndian.Uint32(buf[offDouble:])
	in.Triple = binary.LittleEndian.Uint32(buf[offTriple:])
	return in, nil
}
