package gitutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
)

// Worktrees created by WithWorktree live in temporary directories with this
// prefix, which is how stale ones are recognized later.
const worktreePrefix = "cutty-worktree-"

// AddWorktree creates a linked worktree at path with a detached HEAD at
// commit. Files are not checked out and the index starts empty, so whatever
// is written into the worktree becomes the next tree.
func (r *Repository) AddWorktree(ctx context.Context, path string, commit plumbing.Hash) error {
	_, err := r.git(ctx, "", "worktree", "add", "--detach", "--no-checkout", path, commit.String())
	return err
}

// RemoveWorktree removes a linked worktree and its directory.
func (r *Repository) RemoveWorktree(ctx context.Context, path string) error {
	_, err := r.git(ctx, "", "worktree", "remove", "--force", path)
	return err
}

// Worktrees lists the paths of all worktrees, the main one first.
func (r *Repository) Worktrees(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// WithWorktree runs fn in a temporary worktree detached at commit. The
// worktree is removed when fn returns, whether or not it failed.
func (r *Repository) WithWorktree(ctx context.Context, commit plumbing.Hash, fn func(dir string) error) (err error) {
	parent, err := os.MkdirTemp("", worktreePrefix)
	if err != nil {
		return fmt.Errorf("failed to create worktree directory: %w", err)
	}
	path := filepath.Join(parent, "project")

	defer func() {
		if _, statErr := os.Stat(path); statErr == nil {
			if removeErr := r.RemoveWorktree(context.WithoutCancel(ctx), path); removeErr != nil {
				err = errors.Join(err, removeErr)
			}
		}
		if removeErr := os.RemoveAll(parent); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
	}()

	if err := r.AddWorktree(ctx, path, commit); err != nil {
		return err
	}
	return fn(path)
}

// PruneWorktrees removes worktrees left behind by interrupted runs, along
// with git's records of worktrees whose directories are gone.
func (r *Repository) PruneWorktrees(ctx context.Context) error {
	if _, err := r.git(ctx, "", "worktree", "prune"); err != nil {
		return err
	}

	paths, err := r.Worktrees(ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if !strings.HasPrefix(filepath.Base(filepath.Dir(path)), worktreePrefix) {
			continue
		}
		if r.logger != nil {
			r.logger.Warn("Removing stale worktree", "path", path)
		}
		if err := r.RemoveWorktree(ctx, path); err != nil {
			return err
		}
		os.RemoveAll(filepath.Dir(path))
	}
	return nil
}
