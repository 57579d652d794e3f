package filesystem

import (
	"slices"
	"strings"
	"sync"
)

// NodeKind tags the three shapes a node can take.
type NodeKind int

const (
	KindDirectory NodeKind = iota
	KindFile
	KindSymlink
)

func (k NodeKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Node is the minimal capability a tree-shaped backend provides. Each method
// only needs to be meaningful for the matching Kind; NodeFilesystem checks the
// kind before calling it.
type Node interface {
	Kind() NodeKind

	// ReadBytes returns the contents of a file node.
	ReadBytes() ([]byte, error)

	// Readlink returns the raw target of a symlink node. A leading "/" means
	// relative to the filesystem root; anything else is relative to the
	// directory containing the link.
	Readlink() (string, error)

	// Iterdir returns the entry names of a directory node.
	Iterdir() ([]string, error)

	// Child looks up an entry of a directory node.
	Child(name string) (Node, bool, error)

	Access(mode Access) bool
}

// maxSymlinks bounds link expansion during a single resolution.
const maxSymlinks = 40

type resolveKey struct {
	path       string
	followLast bool
}

// NodeFilesystem implements Filesystem on top of a root Node. Resolution
// results are memoized for the lifetime of the instance, so the underlying
// tree must not change behind its back.
type NodeFilesystem struct {
	root Node

	mu    sync.Mutex
	cache map[resolveKey]Node
}

// NewNodeFilesystem returns a filesystem rooted at root, which must be a directory node.
func NewNodeFilesystem(root Node) *NodeFilesystem {
	return &NodeFilesystem{
		root:  root,
		cache: make(map[resolveKey]Node),
	}
}

// lookup resolves p to a node. Symbolic links are followed for every segment
// but the last; the last one is followed only if followLast is set.
func (f *NodeFilesystem) lookup(p PurePath, followLast bool) (Node, error) {
	key := resolveKey{path: p.String(), followLast: followLast}

	f.mu.Lock()
	node, ok := f.cache[key]
	f.mu.Unlock()
	if ok {
		return node, nil
	}

	node, err := f.resolve(p, followLast)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[key] = node
	f.mu.Unlock()

	return node, nil
}

func (f *NodeFilesystem) resolve(p PurePath, followLast bool) (Node, error) {
	// ancestors holds the nodes below the root that lead to current, so ".."
	// can step back without walking down from the root again.
	var ancestors []Node
	current := f.root
	pending := p.Parts()
	links := 0

	for len(pending) > 0 {
		segment := pending[0]
		pending = pending[1:]

		switch segment {
		case "", ".":
			continue
		case "..":
			if current.Kind() != KindDirectory {
				return nil, PathError("resolve", p, ErrNotDirectory)
			}
			if len(ancestors) > 0 {
				ancestors = ancestors[:len(ancestors)-1]
			}
			current = f.top(ancestors)
			continue
		}

		if current.Kind() != KindDirectory {
			return nil, PathError("resolve", p, ErrNotDirectory)
		}

		child, found, err := current.Child(segment)
		if err != nil {
			return nil, PathError("resolve", p, err)
		}
		if !found {
			return nil, PathError("resolve", p, ErrNotFound)
		}

		if child.Kind() == KindSymlink && (len(pending) > 0 || followLast) {
			links++
			if links > maxSymlinks {
				return nil, PathError("resolve", p, ErrSymlinkLoop)
			}

			target, err := child.Readlink()
			if err != nil {
				return nil, PathError("readlink", p, err)
			}

			if strings.HasPrefix(target, "/") {
				ancestors = ancestors[:0]
				current = f.root
			}
			pending = append(ParsePurePath(target).Parts(), pending...)
			continue
		}

		ancestors = append(ancestors, child)
		current = child
	}

	return current, nil
}

func (f *NodeFilesystem) top(ancestors []Node) Node {
	if len(ancestors) == 0 {
		return f.root
	}
	return ancestors[len(ancestors)-1]
}

func (f *NodeFilesystem) IsDir(p PurePath) bool {
	node, err := f.lookup(p, true)
	return err == nil && node.Kind() == KindDirectory
}

func (f *NodeFilesystem) IsFile(p PurePath) bool {
	node, err := f.lookup(p, true)
	return err == nil && node.Kind() == KindFile
}

func (f *NodeFilesystem) IsSymlink(p PurePath) bool {
	node, err := f.lookup(p, false)
	return err == nil && node.Kind() == KindSymlink
}

func (f *NodeFilesystem) Exists(p PurePath) bool {
	_, err := f.lookup(p, true)
	return err == nil
}

func (f *NodeFilesystem) ReadBytes(p PurePath) ([]byte, error) {
	node, err := f.lookup(p, true)
	if err != nil {
		return nil, err
	}
	if node.Kind() == KindDirectory {
		return nil, PathError("read", p, ErrIsDirectory)
	}
	data, err := node.ReadBytes()
	if err != nil {
		return nil, PathError("read", p, err)
	}
	return data, nil
}

func (f *NodeFilesystem) ReadText(p PurePath) (string, error) {
	data, err := f.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return DecodeText(p, data)
}

// Readlink returns the link target relative to the filesystem root. Relative
// targets are joined onto the link's parent; the result is not normalized.
func (f *NodeFilesystem) Readlink(p PurePath) (PurePath, error) {
	node, err := f.lookup(p, false)
	if err != nil {
		return PurePath{}, err
	}
	if node.Kind() != KindSymlink {
		return PurePath{}, PathError("readlink", p, ErrNotSymlink)
	}
	target, err := node.Readlink()
	if err != nil {
		return PurePath{}, PathError("readlink", p, err)
	}
	if strings.HasPrefix(target, "/") {
		return ParsePurePath(target), nil
	}
	return p.Parent().JoinPath(ParsePurePath(target)), nil
}

func (f *NodeFilesystem) Iterdir(p PurePath) ([]string, error) {
	node, err := f.lookup(p, true)
	if err != nil {
		return nil, err
	}
	if node.Kind() != KindDirectory {
		return nil, PathError("iterdir", p, ErrNotDirectory)
	}
	names, err := node.Iterdir()
	if err != nil {
		return nil, PathError("iterdir", p, err)
	}
	names = slices.Clone(names)
	slices.Sort(names)
	return names, nil
}

func (f *NodeFilesystem) Access(p PurePath, mode Access) bool {
	node, err := f.lookup(p, true)
	if err != nil {
		return false
	}
	return node.Access(mode)
}

// Compare is case-sensitive and segment-wise for every node backend.
func (f *NodeFilesystem) Compare(a, b PurePath) int {
	return a.Compare(b)
}
