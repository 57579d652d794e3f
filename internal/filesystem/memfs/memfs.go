// Package memfs is an in-memory filesystem backend, built from nested Dir values.
//
//	fsys := memfs.New(memfs.Dir{
//		"README.md": memfs.Text("# {{ project }}\n"),
//		"bin": memfs.Dir{
//			"run": memfs.File{Data: []byte("#!/bin/sh\n"), Executable: true},
//		},
//		"docs": memfs.Symlink("bin"),
//	})
package memfs

import (
	"maps"
	"slices"

	"cutty/internal/filesystem"
)

// Entry is one of Dir, File or Symlink.
type Entry interface {
	entry()
}

// Dir maps entry names to entries.
type Dir map[string]Entry

// File is a regular file.
type File struct {
	Data       []byte
	Executable bool
}

// Symlink is a symbolic link holding its raw target.
type Symlink string

func (Dir) entry()     {}
func (File) entry()    {}
func (Symlink) entry() {}

// Text is a shorthand for a non-executable text file.
func Text(s string) File {
	return File{Data: []byte(s)}
}

// Filesystem serves a Dir tree. The tree must not be modified after New.
type Filesystem struct {
	*filesystem.NodeFilesystem
}

// New returns a filesystem rooted at root.
func New(root Dir) *Filesystem {
	return &Filesystem{
		NodeFilesystem: filesystem.NewNodeFilesystem(node{entry: root}),
	}
}

// Root returns the root path of a new filesystem over root.
func Root(root Dir) filesystem.Path {
	return filesystem.Root(New(root))
}

type node struct {
	entry Entry
}

func (n node) Kind() filesystem.NodeKind {
	switch n.entry.(type) {
	case Dir:
		return filesystem.KindDirectory
	case Symlink:
		return filesystem.KindSymlink
	default:
		return filesystem.KindFile
	}
}

func (n node) ReadBytes() ([]byte, error) {
	file, ok := n.entry.(File)
	if !ok {
		return nil, filesystem.ErrIsDirectory
	}
	return slices.Clone(file.Data), nil
}

func (n node) Readlink() (string, error) {
	link, ok := n.entry.(Symlink)
	if !ok {
		return "", filesystem.ErrNotSymlink
	}
	return string(link), nil
}

func (n node) Iterdir() ([]string, error) {
	dir, ok := n.entry.(Dir)
	if !ok {
		return nil, filesystem.ErrNotDirectory
	}
	return slices.Sorted(maps.Keys(dir)), nil
}

func (n node) Child(name string) (filesystem.Node, bool, error) {
	dir, ok := n.entry.(Dir)
	if !ok {
		return nil, false, filesystem.ErrNotDirectory
	}
	child, ok := dir[name]
	if !ok {
		return nil, false, nil
	}
	return node{entry: child}, true, nil
}

// Access grants read and write on everything; execute on directories and
// executable files.
func (n node) Access(mode filesystem.Access) bool {
	granted := filesystem.AccessRead | filesystem.AccessWrite
	switch e := n.entry.(type) {
	case Dir:
		granted |= filesystem.AccessExecute
	case File:
		if e.Executable {
			granted |= filesystem.AccessExecute
		}
	}
	return granted.Has(mode)
}
