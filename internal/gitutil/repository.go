package gitutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cutty/internal/logging"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// Identity used for commits when the user has none configured.
const (
	fallbackName  = "cutty"
	fallbackEmail = "cutty@localhost"
)

// ErrNoCommits is returned when reading HEAD of a repository without commits.
var ErrNoCommits = errors.New("repository has no commits")

// Repository is a non-bare git repository on disk.
type Repository struct {
	dir    string
	logger *logging.AppLogger

	identityOnce sync.Once
	identity     []string
}

// Open returns the repository whose working tree is dir.
func Open(dir string, logger *logging.AppLogger) (*Repository, error) {
	if _, err := git.PlainOpen(dir); err != nil {
		return nil, fmt.Errorf("failed to open git repository %s: %w", dir, err)
	}
	return &Repository{dir: dir, logger: logger}, nil
}

// Init creates a repository in dir whose HEAD points at branch.
func Init(dir, branch string, logger *logging.AppLogger) (*Repository, error) {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize git repository %s: %w", dir, err)
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to set HEAD to %s: %w", branch, err)
	}

	if logger != nil {
		logger.Debug("Initialized git repository", "path", dir, "branch", branch)
	}
	return &Repository{dir: dir, logger: logger}, nil
}

// Dir returns the working tree directory.
func (r *Repository) Dir() string {
	return r.dir
}

// identityArgs returns "-c user.*" overrides when git has no identity
// configured, so commits never fail on fresh machines.
func (r *Repository) identityArgs(ctx context.Context) []string {
	r.identityOnce.Do(func() {
		name, errName := run(ctx, nil, command{dir: r.dir, args: []string{"config", "user.name"}})
		email, errEmail := run(ctx, nil, command{dir: r.dir, args: []string{"config", "user.email"}})
		if errName != nil || errEmail != nil || name == "" || email == "" {
			r.identity = []string{"-c", "user.name=" + fallbackName, "-c", "user.email=" + fallbackEmail}
		}
	})
	return r.identity
}

// git runs a git command in dir, which is the working tree or one of the
// repository's linked worktrees.
func (r *Repository) git(ctx context.Context, dir string, args ...string) (string, error) {
	return r.gitWith(ctx, command{dir: dir, args: args})
}

func (r *Repository) gitWith(ctx context.Context, c command) (string, error) {
	if c.dir == "" {
		c.dir = r.dir
	}
	c.args = append(append([]string{}, r.identityArgs(ctx)...), c.args...)
	return run(ctx, r.logger, c)
}

// open returns a fresh go-git handle, so objects and refs written by the git
// client since the last read are visible.
func (r *Repository) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(r.dir, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository %s: %w", r.dir, err)
	}
	return repo, nil
}

// Branch returns the commit a local branch points at. ok is false when the
// branch does not exist.
func (r *Repository) Branch(name string) (hash plumbing.Hash, ok bool, err error) {
	repo, err := r.open()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to read branch %s: %w", name, err)
	}
	return ref.Hash(), true, nil
}

// CurrentBranch returns the branch HEAD points at, even before the first
// commit.
func (r *Repository) CurrentBranch() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", fmt.Errorf("HEAD is detached")
	}
	return head.Target().Short(), nil
}

// Head returns the commit HEAD points at, or ErrNoCommits.
func (r *Repository) Head() (plumbing.Hash, error) {
	repo, err := r.open()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, ErrNoCommits
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// Commit reads a commit object.
func (r *Repository) Commit(hash plumbing.Hash) (*object.Commit, error) {
	repo, err := r.open()
	if err != nil {
		return nil, err
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	return commit, nil
}

// Tree returns the tree hash of a commit.
func (r *Repository) Tree(commit plumbing.Hash) (plumbing.Hash, error) {
	c, err := r.Commit(commit)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return c.TreeHash, nil
}

// ReadFile returns the contents of path in commit. ok is false when the
// commit has no such file.
func (r *Repository) ReadFile(commit plumbing.Hash, path string) (data []byte, ok bool, err error) {
	c, err := r.Commit(commit)
	if err != nil {
		return nil, false, err
	}

	file, err := c.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s at %s: %w", path, commit, err)
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s at %s: %w", path, commit, err)
	}
	defer reader.Close()

	data, err = io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s at %s: %w", path, commit, err)
	}
	return data, true, nil
}

// SetBranch creates or force-moves a branch.
func (r *Repository) SetBranch(ctx context.Context, name string, target plumbing.Hash) error {
	_, err := r.git(ctx, "", "update-ref", "-m", "cutty: move "+name, plumbing.NewBranchReferenceName(name).String(), target.String())
	return err
}

// DeleteBranch removes a branch if it exists.
func (r *Repository) DeleteBranch(ctx context.Context, name string) error {
	if _, ok, err := r.Branch(name); err != nil || !ok {
		return err
	}
	_, err := r.git(ctx, "", "update-ref", "-d", plumbing.NewBranchReferenceName(name).String())
	return err
}

// StageAll stages every change in the worktree at dir, including deletions.
func (r *Repository) StageAll(ctx context.Context, dir string) error {
	_, err := r.git(ctx, dir, "add", "--all")
	return err
}

// StageTracked stages changes to tracked files in the working tree, which
// also marks resolved conflicts.
func (r *Repository) StageTracked(ctx context.Context) error {
	_, err := r.git(ctx, "", "add", "--update")
	return err
}

// WriteTree writes the index of the worktree at dir as a tree object.
func (r *Repository) WriteTree(ctx context.Context, dir string) (plumbing.Hash, error) {
	out, err := r.git(ctx, dir, "write-tree")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.NewHash(strings.TrimSpace(out)), nil
}

// EmptyTree writes the empty tree object.
func (r *Repository) EmptyTree(ctx context.Context) (plumbing.Hash, error) {
	out, err := r.gitWith(ctx, command{args: []string{"mktree"}, stdin: strings.NewReader("")})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.NewHash(strings.TrimSpace(out)), nil
}

// CommitTree creates a commit object for tree without moving any ref.
func (r *Repository) CommitTree(ctx context.Context, tree plumbing.Hash, message string, parents ...plumbing.Hash) (plumbing.Hash, error) {
	args := []string{"commit-tree", tree.String()}
	for _, parent := range parents {
		args = append(args, "-p", parent.String())
	}
	args = append(args, "-m", message)

	out, err := r.git(ctx, "", args...)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.NewHash(strings.TrimSpace(out)), nil
}

// CommitAll stages everything in the working tree and commits it on the
// current branch, even when nothing changed.
func (r *Repository) CommitAll(ctx context.Context, message string) (plumbing.Hash, error) {
	if err := r.StageAll(ctx, ""); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := r.git(ctx, "", "commit", "--quiet", "--no-verify", "--allow-empty", "-m", message); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.Head()
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repository) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := r.git(ctx, "", "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return true, nil
	}
	return false, err
}

// CheckoutPaths restores paths in the index and working tree from rev.
func (r *Repository) CheckoutPaths(ctx context.Context, rev string, paths ...string) error {
	args := append([]string{"checkout", rev, "--"}, paths...)
	_, err := r.git(ctx, "", args...)
	return err
}
