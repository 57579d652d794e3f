// Package gitfs mounts the tree of a git commit as a read-only filesystem.
package gitfs

import (
	"errors"
	"fmt"
	"io"

	"cutty/internal/filesystem"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// ErrUnknownRevision is returned when a revision does not name a commit.
var ErrUnknownRevision = errors.New("unknown revision")

// Filesystem serves the tree of a single commit.
type Filesystem struct {
	*filesystem.NodeFilesystem

	repo   *git.Repository
	commit *object.Commit
}

// Open mounts revision of the repository at dir, which may be bare. An empty
// revision means HEAD.
func Open(dir, revision string) (*Filesystem, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	return New(repo, revision)
}

// New mounts revision of repo. An empty revision means HEAD.
func New(repo *git.Repository, revision string) (*Filesystem, error) {
	if revision == "" {
		revision = "HEAD"
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownRevision, revision, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownRevision, revision, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", hash, err)
	}

	return &Filesystem{
		NodeFilesystem: filesystem.NewNodeFilesystem(&node{repo: repo, tree: tree}),
		repo:           repo,
		commit:         commit,
	}, nil
}

// Commit returns the mounted commit.
func (f *Filesystem) Commit() *object.Commit {
	return f.commit
}

// Repository returns the underlying repository.
func (f *Filesystem) Repository() *git.Repository {
	return f.repo
}

// node is a tree entry; the root has no entry. Directory nodes carry their
// tree object.
type node struct {
	repo  *git.Repository
	tree  *object.Tree
	entry *object.TreeEntry
}

func (n *node) Kind() filesystem.NodeKind {
	if n.entry == nil {
		return filesystem.KindDirectory
	}
	switch n.entry.Mode {
	case filemode.Dir:
		return filesystem.KindDirectory
	case filemode.Symlink:
		return filesystem.KindSymlink
	default:
		return filesystem.KindFile
	}
}

func (n *node) blob() ([]byte, error) {
	blob, err := n.repo.BlobObject(n.entry.Hash)
	if err != nil {
		return nil, err
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (n *node) ReadBytes() ([]byte, error) {
	if n.Kind() == filesystem.KindDirectory {
		return nil, filesystem.ErrIsDirectory
	}
	return n.blob()
}

func (n *node) Readlink() (string, error) {
	if n.Kind() != filesystem.KindSymlink {
		return "", filesystem.ErrNotSymlink
	}
	data, err := n.blob()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (n *node) Iterdir() ([]string, error) {
	if n.tree == nil {
		return nil, filesystem.ErrNotDirectory
	}
	var names []string
	for _, entry := range n.tree.Entries {
		if entry.Mode == filemode.Submodule {
			continue
		}
		names = append(names, entry.Name)
	}
	return names, nil
}

func (n *node) Child(name string) (filesystem.Node, bool, error) {
	if n.tree == nil {
		return nil, false, filesystem.ErrNotDirectory
	}

	for i := range n.tree.Entries {
		entry := &n.tree.Entries[i]
		if entry.Name != name || entry.Mode == filemode.Submodule {
			continue
		}

		child := &node{repo: n.repo, entry: entry}
		if entry.Mode == filemode.Dir {
			tree, err := n.repo.TreeObject(entry.Hash)
			if err != nil {
				return nil, false, fmt.Errorf("failed to read tree %s: %w", entry.Hash, err)
			}
			child.tree = tree
		}
		return child, true, nil
	}

	return nil, false, nil
}

// Access grants read on everything and execute on directories and
// executable blobs. Commits are immutable, so write is never granted.
func (n *node) Access(mode filesystem.Access) bool {
	granted := filesystem.AccessRead
	if n.Kind() == filesystem.KindDirectory || n.entry.Mode == filemode.Executable {
		granted |= filesystem.AccessExecute
	}
	return granted.Has(mode)
}
