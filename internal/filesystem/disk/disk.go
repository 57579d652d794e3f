// Package disk serves a host directory through the filesystem interface.
//
// Paths are resolved by the operating system, confined to the directory with
// os.Root: symbolic links that would leave the directory fail instead of being
// followed. ".." segments are clamped lexically at the root before the OS sees
// them.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"

	"cutty/internal/filesystem"
)

// Filesystem is a directory on the host.
type Filesystem struct {
	dir  string
	root *os.Root
}

// New opens dir. The caller must Close the filesystem when done.
func New(dir string) (*Filesystem, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve absolute path: %w", err)
	}

	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot open directory %s: %w", abs, err)
	}

	return &Filesystem{dir: abs, root: root}, nil
}

// Dir returns the absolute host directory the filesystem serves.
func (f *Filesystem) Dir() string {
	return f.dir
}

// Close releases the directory handle.
func (f *Filesystem) Close() error {
	return f.root.Close()
}

// HostPath maps p to an absolute host path.
func (f *Filesystem) HostPath(p filesystem.PurePath) string {
	return filepath.Join(f.dir, f.rel(p))
}

// rel converts p to an os.Root-relative name with ".." clamped at the root.
func (f *Filesystem) rel(p filesystem.PurePath) string {
	var parts []string
	for _, part := range p.Parts() {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "."
	}
	return filepath.Join(parts...)
}

func translate(op string, p filesystem.PurePath, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return filesystem.PathError(op, p, filesystem.ErrNotFound)
	case errors.Is(err, syscall.ENOTDIR):
		return filesystem.PathError(op, p, filesystem.ErrNotDirectory)
	case errors.Is(err, syscall.ELOOP):
		return filesystem.PathError(op, p, filesystem.ErrSymlinkLoop)
	default:
		return filesystem.PathError(op, p, err)
	}
}

func (f *Filesystem) IsDir(p filesystem.PurePath) bool {
	info, err := f.root.Stat(f.rel(p))
	return err == nil && info.IsDir()
}

func (f *Filesystem) IsFile(p filesystem.PurePath) bool {
	info, err := f.root.Stat(f.rel(p))
	return err == nil && info.Mode().IsRegular()
}

func (f *Filesystem) IsSymlink(p filesystem.PurePath) bool {
	info, err := f.root.Lstat(f.rel(p))
	return err == nil && info.Mode()&fs.ModeSymlink != 0
}

func (f *Filesystem) Exists(p filesystem.PurePath) bool {
	_, err := f.root.Stat(f.rel(p))
	return err == nil
}

func (f *Filesystem) ReadBytes(p filesystem.PurePath) ([]byte, error) {
	file, err := f.root.Open(f.rel(p))
	if err != nil {
		return nil, translate("read", p, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, translate("read", p, err)
	}
	if info.IsDir() {
		return nil, filesystem.PathError("read", p, filesystem.ErrIsDirectory)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, translate("read", p, err)
	}
	return data, nil
}

func (f *Filesystem) ReadText(p filesystem.PurePath) (string, error) {
	data, err := f.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return filesystem.DecodeText(p, data)
}

// Readlink returns the link target relative to the filesystem root. Absolute
// host targets inside the directory are made relative to it; other absolute
// targets are reported as-is below the root.
func (f *Filesystem) Readlink(p filesystem.PurePath) (filesystem.PurePath, error) {
	rel := f.rel(p)
	info, err := f.root.Lstat(rel)
	if err != nil {
		return filesystem.PurePath{}, translate("readlink", p, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return filesystem.PurePath{}, filesystem.PathError("readlink", p, filesystem.ErrNotSymlink)
	}

	target, err := os.Readlink(filepath.Join(f.dir, rel))
	if err != nil {
		return filesystem.PurePath{}, translate("readlink", p, err)
	}

	if filepath.IsAbs(target) {
		if inside, err := filepath.Rel(f.dir, target); err == nil && !strings.HasPrefix(inside, "..") {
			target = inside
		}
		return filesystem.ParsePurePath(filepath.ToSlash(target)), nil
	}
	return p.Parent().JoinPath(filesystem.ParsePurePath(filepath.ToSlash(target))), nil
}

func (f *Filesystem) Iterdir(p filesystem.PurePath) ([]string, error) {
	dir, err := f.root.Open(f.rel(p))
	if err != nil {
		return nil, translate("iterdir", p, err)
	}
	defer dir.Close()

	info, err := dir.Stat()
	if err != nil {
		return nil, translate("iterdir", p, err)
	}
	if !info.IsDir() {
		return nil, filesystem.PathError("iterdir", p, filesystem.ErrNotDirectory)
	}

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, translate("iterdir", p, err)
	}

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	slices.Sort(names)
	return names, nil
}

// Access checks the owner permission bits of the resolved entry.
func (f *Filesystem) Access(p filesystem.PurePath, mode filesystem.Access) bool {
	info, err := f.root.Stat(f.rel(p))
	if err != nil {
		return false
	}

	perm := info.Mode().Perm()
	var granted filesystem.Access
	if perm&0o400 != 0 {
		granted |= filesystem.AccessRead
	}
	if perm&0o200 != 0 {
		granted |= filesystem.AccessWrite
	}
	if perm&0o100 != 0 {
		granted |= filesystem.AccessExecute
	}
	return granted.Has(mode)
}

// Compare follows the host: case-insensitive on Windows and macOS.
func (f *Filesystem) Compare(a, b filesystem.PurePath) int {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return slices.CompareFunc(a.Parts(), b.Parts(), func(x, y string) int {
			return strings.Compare(strings.ToLower(x), strings.ToLower(y))
		})
	}
	return a.Compare(b)
}
