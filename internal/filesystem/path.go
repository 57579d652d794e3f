package filesystem

import (
	"fmt"
	"slices"
)

// Path is a PurePath bound to the Filesystem it belongs to.
type Path struct {
	pure PurePath
	fs   Filesystem
}

// NewPath returns the path with the given segments on fsys.
func NewPath(fsys Filesystem, parts ...string) Path {
	return Path{pure: NewPurePath(parts...), fs: fsys}
}

// Root returns the root path of fsys.
func Root(fsys Filesystem) Path {
	return Path{fs: fsys}
}

func (p Path) Filesystem() Filesystem { return p.fs }
func (p Path) Pure() PurePath         { return p.pure }
func (p Path) Parts() []string        { return p.pure.Parts() }
func (p Path) Name() string           { return p.pure.Name() }
func (p Path) Stem() string           { return p.pure.Stem() }
func (p Path) Suffix() string         { return p.pure.Suffix() }
func (p Path) IsRoot() bool           { return p.pure.IsRoot() }
func (p Path) String() string         { return "/" + p.pure.String() }

func (p Path) Parent() Path {
	return Path{pure: p.pure.Parent(), fs: p.fs}
}

func (p Path) Parents() []Path {
	pure := p.pure.Parents()
	parents := make([]Path, len(pure))
	for i, pp := range pure {
		parents[i] = Path{pure: pp, fs: p.fs}
	}
	return parents
}

func (p Path) Join(parts ...string) Path {
	return Path{pure: p.pure.Join(parts...), fs: p.fs}
}

func (p Path) JoinPath(other PurePath) Path {
	return Path{pure: p.pure.JoinPath(other), fs: p.fs}
}

func (p Path) WithName(name string) Path {
	return Path{pure: p.pure.WithName(name), fs: p.fs}
}

// RelativeTo strips base from the front of p. It fails when base is on a
// different filesystem or is not an ancestor of p.
func (p Path) RelativeTo(base Path) (PurePath, error) {
	if p.fs != base.fs || !p.pure.HasPrefix(base.pure) {
		return PurePath{}, fmt.Errorf("%s is not relative to %s", p, base)
	}
	return NewPurePath(p.pure.parts[base.pure.Len():]...), nil
}

func (p Path) IsDir() bool     { return p.fs.IsDir(p.pure) }
func (p Path) IsFile() bool    { return p.fs.IsFile(p.pure) }
func (p Path) IsSymlink() bool { return p.fs.IsSymlink(p.pure) }
func (p Path) Exists() bool    { return p.fs.Exists(p.pure) }

func (p Path) ReadBytes() ([]byte, error) { return p.fs.ReadBytes(p.pure) }
func (p Path) ReadText() (string, error)  { return p.fs.ReadText(p.pure) }

func (p Path) Access(mode Access) bool { return p.fs.Access(p.pure, mode) }

// Readlink returns the link target as a path on the same filesystem.
func (p Path) Readlink() (Path, error) {
	target, err := p.fs.Readlink(p.pure)
	if err != nil {
		return Path{}, err
	}
	return Path{pure: target, fs: p.fs}, nil
}

// Iterdir returns the entries of the directory, in the filesystem's order.
func (p Path) Iterdir() ([]Path, error) {
	names, err := p.fs.Iterdir(p.pure)
	if err != nil {
		return nil, err
	}
	entries := make([]Path, len(names))
	for i, name := range names {
		entries[i] = p.Join(name)
	}
	slices.SortFunc(entries, func(a, b Path) int { return a.Compare(b) })
	return entries, nil
}

// Equal reports whether both paths live on the same filesystem and compare equal there.
func (p Path) Equal(other Path) bool {
	if p.fs != other.fs {
		return false
	}
	return p.fs.Compare(p.pure, other.pure) == 0
}

// Compare orders paths on the same filesystem. Paths on different filesystems
// have no order; comparing them is a programming error and panics.
func (p Path) Compare(other Path) int {
	if p.fs != other.fs {
		panic(fmt.Sprintf("filesystem: cannot compare %s and %s on different filesystems", p, other))
	}
	return p.fs.Compare(p.pure, other.pure)
}
