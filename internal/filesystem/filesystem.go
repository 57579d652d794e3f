// Package filesystem provides a read-only virtual filesystem abstraction.
//
// A Filesystem answers questions about PurePaths relative to its own root.
// Backends live in sub-packages:
//
//   - disk: a directory on the host, resolved natively
//   - gitfs: a commit tree in a git repository
//   - zipfs: a zip archive
//   - memfs: an in-memory tree, mainly for tests
//
// The tree-shaped backends (gitfs, zipfs, memfs) implement the Node interface
// and embed NodeFilesystem, which resolves ".", ".." and symbolic links once
// for all of them. Path binds a PurePath to the Filesystem it belongs to.
package filesystem

import (
	"errors"
	"io/fs"
	"unicode/utf8"
)

// Access is a bit-set of access modes.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessExecute
)

// Has reports whether all bits of mode are set.
func (a Access) Has(mode Access) bool {
	return a&mode == mode
}

func (a Access) String() string {
	s := []byte("---")
	if a.Has(AccessRead) {
		s[0] = 'r'
	}
	if a.Has(AccessWrite) {
		s[1] = 'w'
	}
	if a.Has(AccessExecute) {
		s[2] = 'x'
	}
	return string(s)
}

// Error kinds reported by filesystem operations, always wrapped in *fs.PathError.
var (
	ErrNotFound     = fs.ErrNotExist
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrNotSymlink   = errors.New("not a symbolic link")
	ErrSymlinkLoop  = errors.New("too many levels of symbolic links")
	ErrInvalidText  = errors.New("invalid UTF-8 text")
)

// Filesystem is the capability set every backend provides. All paths are
// relative to the backend root.
type Filesystem interface {
	IsDir(p PurePath) bool
	IsFile(p PurePath) bool
	IsSymlink(p PurePath) bool
	Exists(p PurePath) bool

	ReadBytes(p PurePath) ([]byte, error)
	ReadText(p PurePath) (string, error)

	// Readlink returns the target of the symbolic link at p relative to the
	// filesystem root. Relative targets are joined onto the link's parent
	// without normalizing ".." segments.
	Readlink(p PurePath) (PurePath, error)

	// Iterdir returns the names of the entries of the directory at p, sorted.
	Iterdir(p PurePath) ([]string, error)

	Access(p PurePath, mode Access) bool

	// Compare orders two paths using the backend's lexical rules.
	Compare(a, b PurePath) int
}

// PathError builds the error value backends return for a failed operation on p.
func PathError(op string, p PurePath, err error) error {
	return &fs.PathError{Op: op, Path: "/" + p.String(), Err: err}
}

// DecodeText converts the contents of the file at p to text. Every backend's
// ReadText goes through it, so the same bytes decode the same way everywhere.
func DecodeText(p PurePath, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", PathError("read", p, ErrInvalidText)
	}
	return string(data), nil
}
