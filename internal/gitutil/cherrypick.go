package gitutil

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
)

// nonInteractive keeps git from opening an editor.
var nonInteractive = []string{"GIT_EDITOR=true"}

// CherryPick applies commit onto the current branch. When git stops with the
// pick in progress, the unmerged paths are returned and err is nil; an empty
// list then means the pick turned out empty. Other failures are errors.
func (r *Repository) CherryPick(ctx context.Context, commit plumbing.Hash) (unmerged []string, stopped bool, err error) {
	_, err = r.gitWith(ctx, command{args: []string{"cherry-pick", commit.String()}, env: nonInteractive})
	if err == nil {
		return nil, false, nil
	}

	inProgress, checkErr := r.CherryPickInProgress(ctx)
	if checkErr != nil {
		return nil, false, errors.Join(err, checkErr)
	}
	if !inProgress {
		return nil, false, err
	}

	unmerged, err = r.UnmergedPaths(ctx)
	if err != nil {
		return nil, true, err
	}
	return unmerged, true, nil
}

// CherryPickInProgress reports whether a cherry-pick is waiting for
// resolution.
func (r *Repository) CherryPickInProgress(ctx context.Context) (bool, error) {
	_, err := r.CherryPickHead(ctx)
	if err == nil {
		return true, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// CherryPickHead returns the commit being picked.
func (r *Repository) CherryPickHead(ctx context.Context) (plumbing.Hash, error) {
	out, err := r.git(ctx, "", "rev-parse", "--quiet", "--verify", "CHERRY_PICK_HEAD")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.NewHash(strings.TrimSpace(out)), nil
}

// UnmergedPaths lists paths with unresolved conflicts, sorted.
func (r *Repository) UnmergedPaths(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ResolveTheirs resolves a conflicted path with the version being picked. A
// path the pick deletes is removed.
func (r *Repository) ResolveTheirs(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "", "checkout", "--theirs", "--", path); err != nil {
		_, err := r.git(ctx, "", "rm", "--quiet", "--force", "--", path)
		return err
	}
	_, err := r.git(ctx, "", "add", "--", path)
	return err
}

// ContinueCherryPick commits the resolved pick with the picked commit's
// message and author.
func (r *Repository) ContinueCherryPick(ctx context.Context) error {
	_, err := r.gitWith(ctx, command{args: []string{"cherry-pick", "--continue"}, env: nonInteractive})
	return err
}

// CommitPicked commits the index reusing the message and authorship of the
// commit being picked, which ends the pick.
func (r *Repository) CommitPicked(ctx context.Context) error {
	_, err := r.gitWith(ctx, command{args: []string{"commit", "--quiet", "--no-verify", "-C", "CHERRY_PICK_HEAD"}, env: nonInteractive})
	return err
}

// SkipCherryPick drops an empty pick.
func (r *Repository) SkipCherryPick(ctx context.Context) error {
	_, err := r.git(ctx, "", "cherry-pick", "--skip")
	return err
}

// AbortCherryPick abandons the pick and restores the state before it.
func (r *Repository) AbortCherryPick(ctx context.Context) error {
	_, err := r.git(ctx, "", "cherry-pick", "--abort")
	return err
}
