package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cutty/internal/filesystem"
	"cutty/internal/filesystem/disk"
	"cutty/internal/logging"
	"cutty/pkg/fileops"
)

// Mercurial has no Go implementation in wide use, so these helpers drive the
// hg client the same way the git fetcher would drive git.

// HgFetcher clones Mercurial repositories without a working copy and pulls
// into existing clones.
func HgFetcher(logger *logging.AppLogger) Fetcher {
	return NewFetcher("hg", AnyOf(SchemeMatcher("http", "https", "ssh"), localHgURL), func(ctx context.Context, u *url.URL, dest string) error {
		if _, err := os.Stat(dest); err == nil {
			_, err := runCommand(ctx, logger, u.String(), "", "hg", "pull", "--repository", dest, "--", u.String())
			return err
		}

		staging, err := fileops.TempSibling(dest)
		if err != nil {
			return err
		}
		defer os.RemoveAll(staging)

		clone := filepath.Join(staging, "clone")
		if _, err := runCommand(ctx, logger, u.String(), "", "hg", "clone", "--noupdate", "--", u.String(), clone); err != nil {
			return err
		}
		return fileops.ReplaceDir(clone, dest)
	})
}

// localHgURL matches file URLs naming a Mercurial repository on this machine.
func localHgURL(u *url.URL) bool {
	return u.Scheme == "file" && isHgRepository(filePath(u))
}

// isHgRepository reports whether dir is a Mercurial repository.
func isHgRepository(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".hg"))
	return err == nil && info.IsDir()
}

// hgArchive exports a revision as plain files into a temporary directory and
// mounts it from disk; closing the mount removes the export.
type hgArchive struct {
	fsys *disk.Filesystem
	dir  string
}

func (a *hgArchive) Close() error {
	return errors.Join(a.fsys.Close(), os.RemoveAll(a.dir))
}

// mountHg returns a mount function. defaultRevision applies when no revision
// was requested: "tip" for cached clones, "." for working copies.
func mountHg(logger *logging.AppLogger, defaultRevision string) MountFunc {
	return func(ctx context.Context, dir, revision string) (filesystem.Path, io.Closer, error) {
		rev := revision
		if rev == "" {
			rev = defaultRevision
		}

		tmp, err := os.MkdirTemp("", "cutty-hg-")
		if err != nil {
			return filesystem.Path{}, nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		out := filepath.Join(tmp, "archive")

		_, err = runCommand(ctx, logger, dir, "", "hg", "archive", "--repository", dir, "--rev", rev, "--type", "files", "--", out)
		if err != nil {
			os.RemoveAll(tmp)
			return filesystem.Path{}, nil, hgError(err, revision, dir)
		}

		// hg archive adds a metadata file that is not part of the tree.
		os.Remove(filepath.Join(out, ".hg_archival.txt"))

		fsys, err := disk.New(out)
		if err != nil {
			os.RemoveAll(tmp)
			return filesystem.Path{}, nil, err
		}
		return filesystem.Root(fsys), &hgArchive{fsys: fsys, dir: tmp}, nil
	}
}

// hgRevision returns a revision lookup: the first tag other than "tip", or
// else the short changeset hash.
func hgRevision(logger *logging.AppLogger, defaultRevision string) RevisionFunc {
	return func(ctx context.Context, dir, revision string) (string, error) {
		rev := revision
		if rev == "" {
			rev = defaultRevision
		}

		out, err := runCommand(ctx, logger, dir, "", "hg", "log", "--repository", dir, "--rev", rev, "--limit", "1", "--template", "{tags}\n{node|short}\n")
		if err != nil {
			return "", hgError(err, revision, dir)
		}

		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) < 2 {
			return strings.TrimSpace(out), nil
		}
		for _, tag := range strings.Fields(lines[0]) {
			if tag != "tip" {
				return tag, nil
			}
		}
		return strings.TrimSpace(lines[1]), nil
	}
}

// hgError maps hg's "unknown revision" failures to RevisionNotFoundError.
func hgError(err error, revision, dir string) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && strings.Contains(fetchErr.Diagnostic, "unknown revision") {
		return &RevisionNotFoundError{Revision: revision, Location: dir}
	}
	return err
}
