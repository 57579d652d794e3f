package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"

	"cutty/internal/gitutil"
	"cutty/internal/logging"
	"cutty/pkg/fileops"
)

// Branches reserved in every synchronized project.
const (
	// LatestBranch points at the pristine output of the last generation.
	LatestBranch = "cutty/latest"

	// UpdateBranch stages a new generation before it is applied.
	UpdateBranch = "cutty/update"

	mainBranch = "main"
)

var (
	ErrUpdateInProgress   = errors.New("an update is in progress (use --continue, --skip or --abort)")
	ErrNoUpdateInProgress = errors.New("no update is in progress")
	ErrNotLinked          = errors.New("project is not linked to a template (branch " + LatestBranch + " is missing)")
)

// MergeConflictError reports paths left unmerged by an update.
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflicts in %s", strings.Join(e.Paths, ", "))
}

// Generate writes a complete project into dir.
type Generate func(ctx context.Context, dir string) error

// Repository is the git repository of a generated project.
type Repository struct {
	git    *gitutil.Repository
	logger *logging.AppLogger
}

// Open returns the project repository in dir.
func Open(dir string, logger *logging.AppLogger) (*Repository, error) {
	if logger == nil {
		logger = logging.GetDefault()
	}
	repo, err := gitutil.Open(dir, logger)
	if err != nil {
		return nil, err
	}
	return &Repository{git: repo, logger: logger}, nil
}

// Create generates a new project into dir, which must not exist or be
// empty, and records it as the first commit of a new repository. Nothing is
// left behind when generation fails.
func Create(ctx context.Context, dir, message string, generate Generate, logger *logging.AppLogger) (*Repository, error) {
	if logger == nil {
		logger = logging.GetDefault()
	}
	defer logger.LogPerformance("project.create", time.Now())

	if _, err := os.Stat(dir); err == nil {
		empty, err := fileops.IsDirEmpty(dir)
		if err != nil {
			return nil, err
		}
		if !empty {
			return nil, fmt.Errorf("%s already exists and is not empty", dir)
		}
	}

	staging, err := fileops.TempSibling(dir)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	if err := generate(ctx, staging); err != nil {
		return nil, fmt.Errorf("failed to generate project: %w", err)
	}

	stagingRepo, err := gitutil.Init(staging, mainBranch, logger)
	if err != nil {
		return nil, err
	}
	head, err := stagingRepo.CommitAll(ctx, message)
	if err != nil {
		return nil, err
	}
	if err := stagingRepo.SetBranch(ctx, LatestBranch, head); err != nil {
		return nil, err
	}

	if err := fileops.ReplaceDir(staging, dir); err != nil {
		return nil, err
	}

	logger.Info("Created project", "path", dir, "commit", head.String()[:7])
	return Open(dir, logger)
}

// Dir returns the project directory.
func (r *Repository) Dir() string {
	return r.git.Dir()
}

// cleanup removes worktrees left by interrupted runs and reports whether a
// cherry-pick is waiting for resolution.
func (r *Repository) cleanup(ctx context.Context) (bool, error) {
	if err := r.git.PruneWorktrees(ctx); err != nil {
		return false, err
	}
	return r.git.CherryPickInProgress(ctx)
}

// regenerate runs generate in a worktree based on base and returns the
// resulting tree. Branches are not touched.
func (r *Repository) regenerate(ctx context.Context, base plumbing.Hash, generate Generate) (plumbing.Hash, error) {
	var tree plumbing.Hash
	err := r.git.WithWorktree(ctx, base, func(dir string) error {
		if err := generate(ctx, dir); err != nil {
			return fmt.Errorf("failed to generate project: %w", err)
		}
		if err := r.git.StageAll(ctx, dir); err != nil {
			return err
		}
		var err error
		tree, err = r.git.WriteTree(ctx, dir)
		return err
	})
	return tree, err
}

// Update regenerates the project and applies the template changes to the
// current branch. It returns a *MergeConflictError when the changes could
// not be applied cleanly; the conflicts are left in the working tree.
func (r *Repository) Update(ctx context.Context, message string, generate Generate) error {
	defer r.logger.LogPerformance("project.update", time.Now())

	inProgress, err := r.cleanup(ctx)
	if err != nil {
		return err
	}
	if inProgress {
		return ErrUpdateInProgress
	}

	latest, ok, err := r.git.Branch(LatestBranch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLinked
	}

	tree, err := r.regenerate(ctx, latest, generate)
	if err != nil {
		return err
	}

	latestTree, err := r.git.Tree(latest)
	if err != nil {
		return err
	}
	if tree == latestTree {
		r.logger.Info("Project is up to date")
		return nil
	}

	commit, err := r.git.CommitTree(ctx, tree, message, latest)
	if err != nil {
		return err
	}
	if err := r.git.SetBranch(ctx, UpdateBranch, commit); err != nil {
		return err
	}

	return r.apply(ctx, commit)
}

// apply cherry-picks the update commit onto the current branch and advances
// latest when that succeeds.
func (r *Repository) apply(ctx context.Context, commit plumbing.Hash) error {
	unmerged, stopped, err := r.git.CherryPick(ctx, commit)
	if err != nil {
		return err
	}
	if stopped {
		remaining, err := r.resolveBookkeeping(ctx, unmerged)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			r.logger.Warn("Update stopped with conflicts", "paths", strings.Join(remaining, ","))
			return &MergeConflictError{Paths: remaining}
		}
		if err := r.finishPick(ctx); err != nil {
			return err
		}
	}

	if err := r.git.SetBranch(ctx, LatestBranch, commit); err != nil {
		return err
	}
	r.logger.Info("Applied template update", "commit", commit.String()[:7])
	return nil
}

// resolveBookkeeping takes the incoming version of conflicted bookkeeping
// files and returns the remaining conflicts.
func (r *Repository) resolveBookkeeping(ctx context.Context, unmerged []string) ([]string, error) {
	var remaining []string
	for _, path := range unmerged {
		if !isBookkeeping(path) {
			remaining = append(remaining, path)
			continue
		}
		r.logger.Debug("Resolving bookkeeping file", "path", path)
		if err := r.git.ResolveTheirs(ctx, path); err != nil {
			return nil, err
		}
	}
	return remaining, nil
}

// finishPick commits a fully resolved cherry-pick, or drops it when nothing
// is left to commit.
func (r *Repository) finishPick(ctx context.Context) error {
	staged, err := r.git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		r.logger.Debug("Template changes are already present, skipping commit")
		return r.git.SkipCherryPick(ctx)
	}
	return r.git.CommitPicked(ctx)
}

// Continue completes an update after its conflicts were resolved in the
// working tree.
func (r *Repository) Continue(ctx context.Context) error {
	inProgress, err := r.git.CherryPickInProgress(ctx)
	if err != nil {
		return err
	}
	if !inProgress {
		return ErrNoUpdateInProgress
	}

	update, ok, err := r.git.Branch(UpdateBranch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch %s is missing", UpdateBranch)
	}

	if err := r.git.StageTracked(ctx); err != nil {
		return err
	}
	if err := r.finishPick(ctx); err != nil {
		return err
	}
	return r.git.SetBranch(ctx, LatestBranch, update)
}

// Skip abandons the update without changing the current branch and marks
// the template changes as applied.
func (r *Repository) Skip(ctx context.Context) error {
	inProgress, err := r.git.CherryPickInProgress(ctx)
	if err != nil {
		return err
	}
	if !inProgress {
		return ErrNoUpdateInProgress
	}

	update, ok, err := r.git.Branch(UpdateBranch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch %s is missing", UpdateBranch)
	}

	if err := r.git.AbortCherryPick(ctx); err != nil {
		return err
	}
	return r.git.SetBranch(ctx, LatestBranch, update)
}

// Abort abandons the update and resets the update branch to latest. It
// also cleans up after an interrupted update.
func (r *Repository) Abort(ctx context.Context) error {
	inProgress, err := r.cleanup(ctx)
	if err != nil {
		return err
	}

	latest, ok, err := r.git.Branch(LatestBranch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLinked
	}

	if !inProgress {
		update, ok, err := r.git.Branch(UpdateBranch)
		if err != nil {
			return err
		}
		if !ok || update == latest {
			return ErrNoUpdateInProgress
		}
		r.logger.Warn("Resetting stale update branch", "branch", UpdateBranch)
	} else if err := r.git.AbortCherryPick(ctx); err != nil {
		return err
	}

	return r.git.SetBranch(ctx, UpdateBranch, latest)
}

// Link attaches the project to a template. The generated tree becomes the
// new latest, and the bookkeeping file is committed onto the current branch
// without touching other files.
func (r *Repository) Link(ctx context.Context, message string, generate Generate) error {
	defer r.logger.LogPerformance("project.link", time.Now())

	inProgress, err := r.cleanup(ctx)
	if err != nil {
		return err
	}
	if inProgress {
		return ErrUpdateInProgress
	}

	branch, err := r.git.CurrentBranch()
	if err != nil {
		return err
	}
	if _, err := r.git.Head(); err != nil {
		return fmt.Errorf("cannot link %s: %w", r.Dir(), err)
	}

	latest, hasLatest, err := r.git.Branch(LatestBranch)
	if err != nil {
		return err
	}

	base := latest
	var parents []plumbing.Hash
	if hasLatest {
		parents = append(parents, latest)
	} else {
		// A worktree needs a commit to start from.
		empty, err := r.git.EmptyTree(ctx)
		if err != nil {
			return err
		}
		base, err = r.git.CommitTree(ctx, empty, "placeholder")
		if err != nil {
			return err
		}
	}

	tree, err := r.regenerate(ctx, base, generate)
	if err != nil {
		return err
	}

	if hasLatest {
		latestTree, err := r.git.Tree(latest)
		if err != nil {
			return err
		}
		if tree == latestTree {
			r.logger.Info("Project is already linked to this template")
			return nil
		}
	}

	commit, err := r.git.CommitTree(ctx, tree, message, parents...)
	if err != nil {
		return err
	}

	data, ok, err := r.git.ReadFile(commit, ConfigFile)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("generated project has no %s", ConfigFile)
	}
	if _, err := r.git.CommitFile(ctx, branch, ConfigFile, data, message); err != nil {
		return err
	}
	if err := r.git.CheckoutPaths(ctx, "HEAD", ConfigFile); err != nil {
		return err
	}

	if err := r.git.SetBranch(ctx, LatestBranch, commit); err != nil {
		return err
	}
	if err := r.git.SetBranch(ctx, UpdateBranch, commit); err != nil {
		return err
	}

	r.logger.Info("Linked project", "branch", branch, "commit", commit.String()[:7])
	return nil
}
