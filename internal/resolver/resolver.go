// Package resolver walks an absolute path component by component, per
// spec.md §4.6, in two modes: strict (every component, including the
// last, must already exist) and create-missing (intermediate directories
// are created as needed; the final component is never created here — the
// caller decides what belongs there and creates it itself).
//
// "." and "..", per spec.md, resolve through the ordinary directory
// self-entries dirstore.InitDir writes for every directory, so this
// package never special-cases them: Lookup finds them like any other
// name.
package resolver

import (
	"strings"

	"github.com/tranvaj/exfs2/internal/dirstore"
	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/inode"
)

const RootInode uint32 = 0

// Result is what a resolve walk produces: in strict mode, the resolved
// component itself; in create-missing mode, its parent directory plus
// the leaf name that still needs to be created there.
type Result struct {
	Num   uint32
	Inode inode.Inode
	Leaf  string
}

// Resolver ties the inode table and directory store together for path
// walking.
type Resolver struct {
	inodes *inode.Table
	dirs   *dirstore.Store
}

// New builds a Resolver.
func New(inodes *inode.Table, dirs *dirstore.Store) *Resolver {
	return &Resolver{inodes: inodes, dirs: dirs}
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// Resolve walks path from the root. If createMissing is false, every
// component (including the last) must already exist, and the returned
// Result names the final component itself. If createMissing is true,
// missing intermediate directories are created along the way, and the
// walk always stops one component short: the returned Result names the
// parent directory and the still-to-be-created (or already-existing —
// the caller decides) leaf name.
func (r *Resolver) Resolve(path string, createMissing bool) (*Result, error) {
	comps := splitPath(path)

	rootIn, err := r.inodes.Read(RootInode)
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return &Result{Num: RootInode, Inode: rootIn, Leaf: ""}, nil
	}

	curNum, curIn := RootInode, rootIn
	for i, name := range comps {
		last := i == len(comps)-1

		if last && createMissing {
			return &Result{Num: curNum, Inode: curIn, Leaf: name}, nil
		}

		if curIn.Type != inode.Directory {
			return nil, exfs2err.New(exfs2err.NotADirectory, "resolve", path, nil)
		}

		childNum, ok, err := r.dirs.Lookup(curNum, &curIn, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			if createMissing {
				newNum, newIn, err := r.inodes.Allocate()
				if err != nil {
					return nil, err
				}
				if err := r.dirs.InitDir(newNum, &newIn, curNum); err != nil {
					return nil, err
				}
				if err := r.dirs.AddEntry(curNum, &curIn, name, newNum); err != nil {
					return nil, err
				}
				curNum, curIn = newNum, newIn
				continue
			}
			return nil, exfs2err.New(exfs2err.NotFound, "resolve", path, nil)
		}

		childIn, err := r.inodes.Read(childNum)
		if err != nil {
			return nil, err
		}
		if last {
			return &Result{Num: childNum, Inode: childIn, Leaf: name}, nil
		}
		if childIn.Type != inode.Directory {
			return nil, exfs2err.New(exfs2err.NotADirectory, "resolve", path, nil)
		}
		curNum, curIn = childNum, childIn
	}
	// Unreachable: the loop always returns on its last iteration.
	return &Result{Num: curNum, Inode: curIn}, nil
}
