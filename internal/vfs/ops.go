package vfs

import (
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/tranvaj/exfs2/internal/exfs2err"
	"github.com/tranvaj/exfs2/internal/inode"
	"github.com/tranvaj/exfs2/internal/layout"
	"github.com/tranvaj/exfs2/internal/segstore"
)

// Entry describes one node found by List.
type Entry struct {
	Path  string
	IsDir bool
	Size  uint64
}

func isSlash(r rune) bool { return r == '/' }

func leafName(p string) (string, error) {
	comps := strings.FieldsFunc(p, isSlash)
	if len(comps) == 0 {
		return "", exfs2err.New(exfs2err.InvalidName, "leaf", p, nil)
	}
	leaf := comps[len(comps)-1]
	if leaf == "" || leaf == "." || leaf == ".." || len(leaf) > 255 {
		return "", exfs2err.New(exfs2err.InvalidName, "leaf", p, nil)
	}
	return leaf, nil
}

// List resolves path; if it names a regular file, the result is that one
// entry, otherwise the directory's contents are listed recursively,
// skipping the "." and ".." self-entries.
func (fs *FS) List(p string) ([]Entry, error) {
	res, err := fs.resolver.Resolve(p, false)
	if err != nil {
		return nil, err
	}
	if res.Inode.Type == inode.Regular {
		return []Entry{{Path: p, IsDir: false, Size: res.Inode.Size}}, nil
	}
	var out []Entry
	if err := fs.listRecursive(res.Num, res.Inode, p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (fs *FS) listRecursive(num uint32, in inode.Inode, prefix string, out *[]Entry) error {
	return fs.dirs.ForEach(num, &in, func(name string, child uint32) error {
		if name == "." || name == ".." {
			return nil
		}
		childIn, err := fs.inodes.Read(child)
		if err != nil {
			return err
		}
		p := path.Join(prefix, name)
		*out = append(*out, Entry{Path: p, IsDir: childIn.Type == inode.Directory, Size: childIn.Size})
		if childIn.Type == inode.Directory {
			return fs.listRecursive(child, childIn, p, out)
		}
		return nil
	})
}

// Add streams src into a freshly created regular file at targetPath,
// auto-creating any missing intermediate directories. The target must
// not already exist. On any failure partway through streaming, every
// block and the inode allocated for this call are freed again before the
// error is returned.
func (fs *FS) Add(targetPath string, src io.Reader) error {
	if _, err := leafName(targetPath); err != nil {
		return err
	}
	res, err := fs.resolver.Resolve(targetPath, true)
	if err != nil {
		return err
	}
	if res.Inode.Type != inode.Directory {
		return exfs2err.New(exfs2err.NotADirectory, "add", targetPath, nil)
	}
	if _, ok, err := fs.dirs.Lookup(res.Num, &res.Inode, res.Leaf); err != nil {
		return err
	} else if ok {
		return exfs2err.New(exfs2err.AlreadyExists, "add", targetPath, nil)
	}

	fileNum, fileIn, err := fs.inodes.Allocate()
	if err != nil {
		return err
	}
	fileIn.Type = inode.Regular

	if err := fs.stream(fileNum, &fileIn, src); err != nil {
		fs.freeInodeTree(fileNum, fileIn)
		return err
	}
	if err := fs.inodes.Write(fileNum, fileIn); err != nil {
		fs.freeInodeTree(fileNum, fileIn)
		return err
	}
	if err := fs.dirs.AddEntry(res.Num, &res.Inode, res.Leaf, fileNum); err != nil {
		fs.freeInodeTree(fileNum, fileIn)
		return err
	}
	return nil
}

func (fs *FS) stream(fileNum uint32, fileIn *inode.Inode, src io.Reader) error {
	buf := make([]byte, layout.BlockSize)
	var logical uint64
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			chunk := buf
			if n < len(buf) {
				chunk = make([]byte, layout.BlockSize)
				copy(chunk, buf[:n])
			}
			phys, werr := fs.bmap.Resolve(fs.inodes, fileNum, fileIn, logical, true)
			if werr != nil {
				return werr
			}
			if werr := fs.segs.WriteObject(segstore.Data, phys, chunk); werr != nil {
				return exfs2err.New(exfs2err.IO, "add", "", werr)
			}
			fileIn.Size += uint64(n)
			logical++
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return exfs2err.New(exfs2err.IO, "add", "", rerr)
		}
	}
}

// Extract writes the full contents of the regular file at path to dst.
func (fs *FS) Extract(path string, dst io.Writer) error {
	res, err := fs.resolver.Resolve(path, false)
	if err != nil {
		return err
	}
	if res.Inode.Type != inode.Regular {
		return exfs2err.New(exfs2err.IsADirectory, "extract", path, nil)
	}
	remaining := res.Inode.Size
	numBlocks := (remaining + layout.BlockSize - 1) / layout.BlockSize
	in := res.Inode
	for l := uint64(0); l < numBlocks; l++ {
		phys, err := fs.bmap.Resolve(fs.inodes, res.Num, &in, l, false)
		if err != nil {
			return err
		}
		if phys == layout.Null {
			return exfs2err.New(exfs2err.Corruption, "extract", path, nil)
		}
		buf, err := fs.segs.ReadObject(segstore.Data, phys)
		if err != nil {
			return exfs2err.New(exfs2err.IO, "extract", path, err)
		}
		n := uint64(layout.BlockSize)
		if n > remaining {
			n = remaining
		}
		if _, err := dst.Write(buf[:n]); err != nil {
			return exfs2err.New(exfs2err.IO, "extract", path, err)
		}
		remaining -= n
	}
	return nil
}

// Remove deletes the node at path: a regular file is simply freed; a
// directory's whole subtree is freed iteratively (see freeInodeTree). The
// root itself can never be removed.
func (fs *FS) Remove(path string) error {
	res, err := fs.resolver.Resolve(path, false)
	if err != nil {
		return err
	}
	if res.Num == 0 {
		return exfs2err.New(exfs2err.InvalidName, "remove", path, nil)
	}
	parent, err := fs.resolver.Resolve(path, true)
	if err != nil {
		return err
	}
	if err := fs.dirs.RemoveEntry(parent.Num, &parent.Inode, parent.Leaf); err != nil {
		return err
	}
	if err := fs.freeInodeTree(res.Num, res.Inode); err != nil {
		return err
	}
	fs.logger.Debug("removed", zap.String("path", path), zap.Uint32("inode", res.Num))
	return nil
}

// ComponentInfo is one step of a Debug trace.
type ComponentInfo struct {
	Name   string
	Num    uint32
	Type   inode.Type
	Size   uint64
	Direct [layout.DirectPointers]uint32
	Single uint32
	Double uint32
	Triple uint32
}

func infoOf(name string, num uint32, in inode.Inode) ComponentInfo {
	return ComponentInfo{
		Name: name, Num: num, Type: in.Type, Size: in.Size,
		Direct: in.DirectBlocks, Single: in.Single, Double: in.Double, Triple: in.Triple,
	}
}

// Debug walks path strictly, one component at a time, returning the
// inode state at every step visited (including the root), without
// mutating anything. On failure it returns the trace gathered so far
// together with the error.
func (fs *FS) Debug(p string) ([]ComponentInfo, error) {
	rootIn, err := fs.inodes.Read(0)
	if err != nil {
		return nil, err
	}
	trace := []ComponentInfo{infoOf("/", 0, rootIn)}

	curNum, curIn := uint32(0), rootIn
	for _, name := range strings.FieldsFunc(p, isSlash) {
		if curIn.Type != inode.Directory {
			return trace, exfs2err.New(exfs2err.NotADirectory, "debug", p, nil)
		}
		childNum, ok, err := fs.dirs.Lookup(curNum, &curIn, name)
		if err != nil {
			return trace, err
		}
		if !ok {
			return trace, exfs2err.New(exfs2err.NotFound, "debug", p, nil)
		}
		childIn, err := fs.inodes.Read(childNum)
		if err != nil {
			return trace, err
		}
		trace = append(trace, infoOf(name, childNum, childIn))
		curNum, curIn = childNum, childIn
	}
	return trace, nil
}
