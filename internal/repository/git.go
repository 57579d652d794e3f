package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"

	"cutty/internal/filesystem"
	"cutty/internal/filesystem/gitfs"
	"cutty/internal/logging"
	"cutty/pkg/fileops"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
)

// gitRefSpecs mirror every branch and tag of the remote into the cache, so
// revisions resolve by their plain names.
var gitRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// GitFetcher mirrors git repositories into bare repositories. A missing
// destination is populated in a temporary sibling and moved into place; an
// existing one is updated with a forced fetch.
//
// Authentication strategy:
//   - Try without credentials first (public repositories)
//   - On an HTTP authentication failure, retry with the token stored for the
//     host in the OS keyring
func GitFetcher(credentials *CredentialManager, logger *logging.AppLogger) Fetcher {
	g := gitFetcher{credentials: credentials, logger: logger}
	return NewFetcher("git", AnyOf(SchemeMatcher("git", "http", "https", "ssh"), localGitURL), g.fetch)
}

// localGitURL matches file URLs naming a git repository on this machine.
func localGitURL(u *url.URL) bool {
	return u.Scheme == "file" && isGitRepository(filePath(u))
}

type gitFetcher struct {
	credentials *CredentialManager
	logger      *logging.AppLogger
}

func (g gitFetcher) fetch(ctx context.Context, u *url.URL, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(dest); err == nil {
		repo, err := git.PlainOpen(dest)
		if err != nil {
			return fmt.Errorf("failed to open cached repository %s: %w", dest, err)
		}
		if g.logger != nil {
			g.logger.Info("Fetching repository updates", "url", u.String())
		}
		return g.sync(repo, u)
	}

	staging, err := fileops.TempSibling(dest)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if g.logger != nil {
		g.logger.Info("Cloning repository", "url", u.String(), "path", dest)
	}

	repo, err := git.PlainInit(staging, true)
	if err != nil {
		return fmt.Errorf("failed to initialize cache repository: %w", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{u.String()},
	}); err != nil {
		return fmt.Errorf("failed to configure remote: %w", err)
	}

	if err := g.sync(repo, u); err != nil {
		return err
	}
	return fileops.ReplaceDir(staging, dest)
}

// sync fetches all refs and points HEAD at the remote's default branch.
func (g gitFetcher) sync(repo *git.Repository, u *url.URL) error {
	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("failed to get origin remote: %w", err)
	}

	var auth *http.BasicAuth
	err = g.fetchRefs(remote, auth)
	if isAuthenticationError(err) && g.credentials != nil && (u.Scheme == "http" || u.Scheme == "https") {
		if g.logger != nil {
			g.logger.Debug("Public access failed, trying with authentication", "host", u.Hostname())
		}
		auth, err = g.credentials.BasicAuth(u.Hostname())
		if err != nil {
			return &FetchError{URL: u.String(), Command: "git fetch", Err: err}
		}
		if auth != nil {
			err = g.fetchRefs(remote, auth)
		}
	}
	if err != nil {
		return &FetchError{URL: u.String(), Command: "git fetch " + u.String(), Err: err}
	}

	refs, err := remote.List(&git.ListOptions{Auth: authMethod(auth)})
	if err != nil {
		return &FetchError{URL: u.String(), Command: "git ls-remote " + u.String(), Err: err}
	}
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference {
			head := plumbing.NewSymbolicReference(plumbing.HEAD, ref.Target())
			if err := repo.Storer.SetReference(head); err != nil {
				return fmt.Errorf("failed to update HEAD: %w", err)
			}
			break
		}
	}
	return nil
}

func (g gitFetcher) fetchRefs(remote *git.Remote, auth *http.BasicAuth) error {
	err := remote.Fetch(&git.FetchOptions{
		RefSpecs: gitRefSpecs,
		Auth:     authMethod(auth),
		Force:    true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		if g.logger != nil {
			g.logger.Debug("Repository already up to date")
		}
		return nil
	}
	return err
}

// authMethod avoids handing go-git a typed nil.
func authMethod(auth *http.BasicAuth) transport.AuthMethod {
	if auth == nil {
		return nil
	}
	return auth
}

// isGitRepository reports whether dir is a git repository or working copy.
func isGitRepository(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = git.PlainOpen(dir)
	return err == nil
}

// mountGit mounts the tree of revision (HEAD when empty).
func mountGit(_ context.Context, dir, revision string) (filesystem.Path, io.Closer, error) {
	fsys, err := gitfs.Open(dir, revision)
	if err != nil {
		if errors.Is(err, gitfs.ErrUnknownRevision) {
			return filesystem.Path{}, nil, &RevisionNotFoundError{Revision: revision, Location: dir}
		}
		return filesystem.Path{}, nil, err
	}
	return filesystem.Root(fsys), nil, nil
}

// gitRevision names the commit a revision resolves to: a tag pointing at it,
// or else the abbreviated commit hash.
func gitRevision(_ context.Context, dir, revision string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository %s: %w", dir, err)
	}

	rev := revision
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", &RevisionNotFoundError{Revision: revision, Location: dir}
	}

	return describeCommit(repo, *hash)
}

func describeCommit(repo *git.Repository, commit plumbing.Hash) (string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("failed to list tags: %w", err)
	}

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tag, err := repo.TagObject(target); err == nil {
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = c.Hash
		}
		if target == commit {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list tags: %w", err)
	}

	if len(names) > 0 {
		sort.Strings(names)
		return names[0], nil
	}
	return commit.String()[:7], nil
}
