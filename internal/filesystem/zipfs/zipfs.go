// Package zipfs mounts a zip archive as a read-only filesystem.
//
// Directories that are only implied by member names are synthesized. Members
// carrying the symlink mode bit are served as symbolic links whose target is
// the member's content.
package zipfs

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"slices"

	"cutty/internal/filesystem"
)

// Filesystem serves the members of a zip archive.
type Filesystem struct {
	*filesystem.NodeFilesystem

	closer io.Closer
}

// Open mounts the archive at path. The caller must Close the filesystem.
func Open(path string) (*Filesystem, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	fsys, err := New(&rc.Reader)
	if err != nil {
		rc.Close()
		return nil, err
	}
	fsys.closer = rc
	return fsys, nil
}

// New mounts an already opened archive. Members whose names contain ".."
// segments are rejected.
func New(r *zip.Reader) (*Filesystem, error) {
	root := newDir()

	for _, file := range r.File {
		parts := filesystem.ParsePurePath(file.Name).Parts()
		if len(parts) == 0 {
			continue
		}
		if slices.Contains(parts, "..") {
			return nil, fmt.Errorf("archive member %q escapes the archive root", file.Name)
		}

		parent := root
		for _, part := range parts[:len(parts)-1] {
			var err error
			if parent, err = parent.ensureDir(part, file.Name); err != nil {
				return nil, err
			}
		}

		name := parts[len(parts)-1]
		if file.FileInfo().IsDir() {
			if _, err := parent.ensureDir(name, file.Name); err != nil {
				return nil, err
			}
			continue
		}

		kind := filesystem.KindFile
		if file.Mode()&fs.ModeSymlink != 0 {
			kind = filesystem.KindSymlink
		}
		parent.children[name] = &node{kind: kind, file: file}
	}

	return &Filesystem{NodeFilesystem: filesystem.NewNodeFilesystem(root)}, nil
}

// Close releases the archive if it was opened by Open.
func (f *Filesystem) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

type node struct {
	kind     filesystem.NodeKind
	file     *zip.File
	children map[string]*node
}

func newDir() *node {
	return &node{kind: filesystem.KindDirectory, children: make(map[string]*node)}
}

func (n *node) ensureDir(name, member string) (*node, error) {
	child, ok := n.children[name]
	if !ok {
		child = newDir()
		n.children[name] = child
	}
	if child.kind != filesystem.KindDirectory {
		return nil, fmt.Errorf("archive member %q conflicts with file %q", member, name)
	}
	return child, nil
}

func (n *node) Kind() filesystem.NodeKind {
	return n.kind
}

func (n *node) contents() ([]byte, error) {
	rc, err := n.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (n *node) ReadBytes() ([]byte, error) {
	if n.kind == filesystem.KindDirectory {
		return nil, filesystem.ErrIsDirectory
	}
	return n.contents()
}

func (n *node) Readlink() (string, error) {
	if n.kind != filesystem.KindSymlink {
		return "", filesystem.ErrNotSymlink
	}
	data, err := n.contents()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (n *node) Iterdir() ([]string, error) {
	if n.kind != filesystem.KindDirectory {
		return nil, filesystem.ErrNotDirectory
	}
	return slices.Sorted(maps.Keys(n.children)), nil
}

func (n *node) Child(name string) (filesystem.Node, bool, error) {
	if n.kind != filesystem.KindDirectory {
		return nil, false, filesystem.ErrNotDirectory
	}
	child, ok := n.children[name]
	if !ok {
		return nil, false, nil
	}
	return child, true, nil
}

// Access grants read everywhere and execute on directories and members with
// an execute bit set.
func (n *node) Access(mode filesystem.Access) bool {
	granted := filesystem.AccessRead
	if n.kind == filesystem.KindDirectory || (n.file != nil && n.file.Mode()&0o111 != 0) {
		granted |= filesystem.AccessExecute
	}
	return granted.Has(mode)
}
