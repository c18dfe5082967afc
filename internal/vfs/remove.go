package vfs

import (
	"github.com/emirpasic/gods/stacks/linkedliststack"
	"go.uber.org/zap"

	"github.com/tranvaj/exfs2/internal/blockmap"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

// treeNode is one entry of the iterative removal worklist: an inode
// together with whether its children have already been pushed.
type treeNode struct {
	num      uint32
	in       inode.Inode
	expanded bool
}

// freeInodeTree frees num's entire subtree without recursing over
// directory depth. spec.md §9 calls out unbounded recursion over
// directory trees as a correctness risk for deep hierarchies; this uses
// github.com/emirpasic/gods' linkedliststack as the explicit worklist
// instead of the Go call stack, post-order: a directory's children are
// all freed before the directory's own inode is.
func (fs *FS) freeInodeTree(num uint32, in inode.Inode) error {
	stack := linkedliststack.New()
	stack.Push(&treeNode{num: num, in: in})

	for !stack.Empty() {
		v, _ := stack.Peek()
		node := v.(*treeNode)

		if node.in.Type == inode.Directory && !node.expanded {
			node.expanded = true
			type child struct {
				num uint32
				in  inode.Inode
			}
			var children []child
			err := fs.dirs.ForEach(node.num, &node.in, func(name string, childNum uint32) error {
				if name == "." || name == ".." {
					return nil
				}
				childIn, err := fs.inodes.Read(childNum)
				if err != nil {
					return err
				}
				children = append(children, child{childNum, childIn})
				return nil
			})
			if err != nil {
				return err
			}
			for _, c := range children {
				stack.Push(&treeNode{num: c.num, in: c.in})
			}
			continue
		}

		stack.Pop()
		if err := fs.freeBlocks(&node.in); err != nil {
			return err
		}
		if err := fs.inodes.Free(node.num); err != nil {
			return err
		}
	}
	return nil
}

// freeBlocks returns every data block reachable from in's direct and
// indirect pointers to the allocator. The indirect-level recursion here
// is bounded by a fixed constant (three levels), unlike directory-tree
// recursion, which is unbounded in depth — see freeInodeTree.
func (fs *FS) freeBlocks(in *inode.Inode) error {
	for _, d := range in.DirectBlocks {
		if d == layout.Null {
			continue
		}
		if err := fs.dataAll.Free(d); err != nil {
			return err
		}
	}
	if in.Single != layout.Null {
		if err := fs.freeIndirectLevel(in.Single, 1); err != nil {
			return err
		}
	}
	if in.Double != layout.Null {
		if err := fs.freeIndirectLevel(in.Double, 2); err != nil {
			return err
		}
	}
	if in.Triple != layout.Null {
		if err := fs.freeIndirectLevel(in.Triple, 3); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) freeIndirectLevel(block uint32, level int) error {
	buf, err := fs.segs.ReadObject(segstore.Data, block)
	if err != nil {
		fs.logger.Warn("could not read indirect block during free", zap.Uint32("block", block), zap.Error(err))
		return fs.dataAll.Free(block)
	}
	entries := blockmap.DecodeIndirect(buf)
	for _, e := range entries {
		if e == layout.Null {
			continue
		}
		if level == 1 {
			if err := fs.dataAll.Free(e); err != nil {
				return err
			}
			continue
		}
		if err := fs.freeIndirectLevel(e, level-1); err != nil {
			return err
		}
	}
	return fs.dataAll.Free(block)
}
