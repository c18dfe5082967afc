// Package dirstore implements the directory store of spec.md §4.5:
// fixed-size directory-entry records stored in a directory inode's data
// blocks through the same block map every regular file uses.
//
// Entry layout is grounded on the teacher's DirectoryItem
// (util/fs_structs.go: Inode int32, ItemName [12]byte) and on
// original_source/reference.c's DirEntry (name[255], inode_number),
// generalized to spec.md's 255-byte name plus u32 inode number.
//
// remove_entry deliberately does NOT follow reference.c's
// remove_dir_entry, which compacts by swapping the last live entry into
// the freed slot: spec.md §4.5 states plainly that removal "does not
// compact; does not free now-empty blocks", so this implementation only
// clears the matched slot in place.
package dirstore

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tranvaj/exfs2/internal/blockmap"
	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

const (
	// NameMax is the longest child name a directory entry can hold.
	NameMax = 255

	nameField = 256 // null-terminated, one byte longer than NameMax
	// EntrySize is the on-disk size of one directory-entry record:
	// inode number (4 bytes) followed by the name field.
	EntrySize = 4 + nameField

	// EntriesPerBlock is how many entry records fit in one data block.
	EntriesPerBlock = layout.BlockSize / EntrySize
)

// Entry is one directory-entry record.
type Entry struct {
	Inode uint32
	Name  string
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, EntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Inode)
	copy(buf[4:4+nameField], []byte(e.Name))
	return buf
}

func decodeEntry(buf []byte) (Entry, error) {
	if len(buf) != EntrySize {
		return Entry{}, exfs2err.New(exfs2err.Corruption, "decode dir entry", "", fmt.Errorf("record is %d bytes, want %d", len(buf), EntrySize))
	}
	num := binary.LittleEndian.Uint32(buf[0:4])
	nameBytes := buf[4 : 4+nameField]
	nul := len(nameBytes)
	for i, b := range nameBytes {
		if b == 0 {
			nul = i
			break
		}
	}
	return Entry{Inode: num, Name: string(nameBytes[:nul])}, nil
}

func emptyEntryBlock() []byte {
	buf := make([]byte, layout.BlockSize)
	for i := 0; i < EntriesPerBlock; i++ {
		binary.LittleEndian.PutUint32(buf[i*EntrySize:], layout.Null)
	}
	return buf
}

// Store implements directory-entry lookup/add/remove/iteration on top of
// the inode table and block map.
type Store struct {
	segs   *segstore.Store
	bmap   *blockmap.Translator
	inodes *inode.Table
}

// New builds a directory Store.
func New(segs *segstore.Store, bmap *blockmap.Translator, inodes *inode.Table) *Store {
	return &Store{segs: segs, bmap: bmap, inodes: inodes}
}

func validateName(name string) error {
	if name == "" || len(name) > NameMax || strings.Contains(name, "/") {
		return exfs2err.New(exfs2err.InvalidName, "directory entry", name, nil)
	}
	return nil
}

// forEachBlock walks every data block currently allocated to dirNum's
// directory, in logical order, stopping at the first unallocated index —
// directory blocks are appended sequentially and never left with holes,
// so this is a correct enumeration of "every block this directory owns".
func (s *Store) forEachBlock(dirNum uint32, in *inode.Inode, fn func(phys uint32) (stop bool, err error)) error {
	for l := uint64(0); ; l++ {
		phys, err := s.bmap.Resolve(s.inodes, dirNum, in, l, false)
		if err != nil {
			return err
		}
		if phys == layout.Null {
			return nil
		}
		stop, err := fn(phys)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (s *Store) readBlock(phys uint32) ([]byte, error) {
	buf, err := s.segs.ReadObject(segstore.Data, phys)
	if err != nil {
		return nil, exfs2err.New(exfs2err.IO, "read directory block", "", err)
	}
	return buf, nil
}

func (s *Store) writeBlock(phys uint32, buf []byte) error {
	if err := s.segs.WriteObject(segstore.Data, phys, buf); err != nil {
		return exfs2err.New(exfs2err.IO, "write directory block", "", err)
	}
	return nil
}

// Lookup returns the child inode number bound to name within dirNum, or
// ok=false if no such entry exists.
func (s *Store) Lookup(dirNum uint32, in *inode.Inode, name string) (uint32, bool, error) {
	var found uint32
	var ok bool
	err := s.forEachBlock(dirNum, in, func(phys uint32) (bool, error) {
		buf, err := s.readBlock(phys)
		if err != nil {
			return false, err
		}
		for i := 0; i < EntriesPerBlock; i++ {
			e, err := decodeEntry(buf[i*EntrySize : (i+1)*EntrySize])
			if err != nil {
				return false, err
			}
			if e.Inode != layout.Null && e.Name == name {
				found, ok = e.Inode, true
				return true, nil
			}
		}
		return false, nil
	})
	return found, ok, err
}

// ForEach visits every live entry of dirNum's directory in on-disk order.
func (s *Store) ForEach(dirNum uint32, in *inode.Inode, fn func(name string, child uint32) error) error {
	return s.forEachBlock(dirNum, in, func(phys uint32) (bool, error) {
		buf, err := s.readBlock(phys)
		if err != nil {
			return false, err
		}
		for i := 0; i < EntriesPerBlock; i++ {
			e, err := decodeEntry(buf[i*EntrySize : (i+1)*EntrySize])
			if err != nil {
				return false, err
			}
			if e.Inode == layout.Null {
				continue
			}
			if err := fn(e.Name, e.Inode); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}

// locateFreeSlot scans existing blocks for an unused entry slot. If none
// is found, blockCount reports how many blocks the directory currently
// has (the logical index at which a fresh block must be appended).
func (s *Store) locateFreeSlot(dirNum uint32, in *inode.Inode) (blockCount uint64, phys uint32, idx int, found bool, err error) {
	var l uint64
	err = s.forEachBlock(dirNum, in, func(p uint32) (bool, error) {
		buf, rerr := s.readBlock(p)
		if rerr != nil {
			return false, rerr
		}
		for i := 0; i < EntriesPerBlock; i++ {
			e, derr := decodeEntry(buf[i*EntrySize : (i+1)*EntrySize])
			if derr != nil {
				return false, derr
			}
			if e.Inode == layout.Null {
				phys, idx, found = p, i, true
				return true, nil
			}
		}
		l++
		return false, nil
	})
	blockCount = l
	return
}

// AddEntry binds name to child within dirNum's directory. It does not
// check for an existing binding of the same name; callers (the façade)
// are expected to Lookup first and reject duplicates themselves, matching
// spec.md's "at most one parent directory entry" ownership rule living at
// the façade layer rather than here.
func (s *Store) AddEntry(dirNum uint32, in *inode.Inode, name string, child uint32) error {
	if err := validateName(name); err != nil {
		return err
	}
	blockCount, phys, idx, found, err := s.locateFreeSlot(dirNum, in)
	if err != nil {
		return err
	}
	entry := encodeEntry(Entry{Inode: child, Name: name})

	if found {
		buf, err := s.readBlock(phys)
		if err != nil {
			return err
		}
		copy(buf[idx*EntrySize:(idx+1)*EntrySize], entry)
		if err := s.writeBlock(phys, buf); err != nil {
			return err
		}
	} else {
		newPhys, err := s.bmap.Resolve(s.inodes, dirNum, in, blockCount, true)
		if err != nil {
			return err
		}
		buf := emptyEntryBlock()
		copy(buf[0:EntrySize], entry)
		if err := s.writeBlock(newPhys, buf); err != nil {
			return err
		}
	}

	in.Size += EntrySize
	return s.inodes.Write(dirNum, *in)
}

// RemoveEntry clears the entry named name, without compacting or freeing
// the block it lived in.
func (s *Store) RemoveEntry(dirNum uint32, in *inode.Inode, name string) error {
	removed := false
	err := s.forEachBlock(dirNum, in, func(phys uint32) (bool, error) {
		buf, err := s.readBlock(phys)
		if err != nil {
			return false, err
		}
		for i := 0; i < EntriesPerBlock; i++ {
			e, err := decodeEntry(buf[i*EntrySize : (i+1)*EntrySize])
			if err != nil {
				return false, err
			}
			if e.Inode == layout.Null || e.Name != name {
				continue
			}
			blank := encodeEntry(Entry{Inode: layout.Null})
			copy(buf[i*EntrySize:(i+1)*EntrySize], blank)
			if err := s.writeBlock(phys, buf); err != nil {
				return false, err
			}
			removed = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return exfs2err.New(exfs2err.NotFound, "remove directory entry", name, nil)
	}
	in.Size -= EntrySize
	return s.inodes.Write(dirNum, *in)
}

// InitDir turns a freshly allocated inode into an empty directory:
// allocates its first block and populates the "." and ".." self-entries.
func (s *Store) InitDir(dirNum uint32, in *inode.Inode, parentNum uint32) error {
	in.Type = inode.Directory
	in.Size = 0
	phys, err := s.bmap.Resolve(s.inodes, dirNum, in, 0, true)
	if err != nil {
		return err
	}
	buf := emptyEntryBlock()
	copy(buf[0:EntrySize], encodeEntry(Entry{Inode: dirNum, Name: "."}))
	copy(buf[EntrySize:2*EntrySize], encodeEntry(Entry{Inode: parentNum, Name: ".."}))
	if err := s.writeBlock(phys, buf); err != nil {
		return err
	}
	in.Size = 2 * EntrySize
	return s.inodes.Write(dirNum, *in)
}
