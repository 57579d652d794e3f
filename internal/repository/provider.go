package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"cutty/internal/filesystem"
)

// Repository is a mounted template repository. The caller owns it and must
// Close it when done.
type Repository struct {
	Name     string
	Path     filesystem.Path
	Revision string

	closer io.Closer
}

// Close releases the resources held by the mount.
func (r *Repository) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Provider resolves locations to repositories. ok is false when the provider
// does not handle the location.
type Provider interface {
	Name() string
	Provide(ctx context.Context, loc Location, revision string) (repo *Repository, ok bool, err error)
}

// MountFunc mounts the repository stored at dir for revision. An empty
// revision selects the default. The closer may be nil.
type MountFunc func(ctx context.Context, dir, revision string) (filesystem.Path, io.Closer, error)

// RevisionFunc names the revision a mount actually resolved to.
type RevisionFunc func(ctx context.Context, dir, revision string) (string, error)

// PathMatcher is a predicate over local paths.
type PathMatcher func(p string) bool

// LocalProvider serves repositories directly from filesystem paths.
type LocalProvider struct {
	name     string
	match    PathMatcher
	mount    MountFunc
	revision RevisionFunc
}

// NewLocalProvider returns a provider mounting paths accepted by match.
// revision may be nil, in which case the requested revision is reported as is.
func NewLocalProvider(name string, match PathMatcher, mount MountFunc, revision RevisionFunc) *LocalProvider {
	return &LocalProvider{name: name, match: match, mount: mount, revision: revision}
}

func (p *LocalProvider) Name() string {
	return p.name
}

func (p *LocalProvider) Provide(ctx context.Context, loc Location, revision string) (*Repository, bool, error) {
	if !loc.IsPath() {
		return nil, false, nil
	}
	if _, err := os.Stat(loc.Path); err != nil || !p.match(loc.Path) {
		return nil, false, nil
	}

	repo, err := load(ctx, loc, loc.Path, revision, p.mount, p.revision)
	if err != nil {
		return nil, true, err
	}
	return repo, true, nil
}

// RemoteProvider fetches URLs into storage and mounts the fetched content.
// Paths are delegated to the optional local provider.
type RemoteProvider struct {
	name     string
	match    Matcher
	fetchers []Fetcher
	store    Store
	mode     FetchMode
	mount    MountFunc
	revision RevisionFunc
	local    *LocalProvider
}

// RemoteConfig holds the parts of a RemoteProvider.
type RemoteConfig struct {
	// Match restricts the URLs the provider considers. Nil accepts all and
	// leaves the decision to the fetchers.
	Match    Matcher
	Fetchers []Fetcher
	Mount    MountFunc
	Revision RevisionFunc
	Local    *LocalProvider
}

// NewRemoteProvider returns a provider fetching into store with mode.
func NewRemoteProvider(name string, store Store, mode FetchMode, cfg RemoteConfig) *RemoteProvider {
	return &RemoteProvider{
		name:     name,
		match:    cfg.Match,
		fetchers: cfg.Fetchers,
		store:    store,
		mode:     mode,
		mount:    cfg.Mount,
		revision: cfg.Revision,
		local:    cfg.Local,
	}
}

func (p *RemoteProvider) Name() string {
	return p.name
}

func (p *RemoteProvider) Provide(ctx context.Context, loc Location, revision string) (*Repository, bool, error) {
	if loc.IsPath() {
		if p.local == nil {
			return nil, false, nil
		}
		return p.local.Provide(ctx, loc, revision)
	}

	u := loc.URL
	if p.match != nil && !p.match(u) {
		return nil, false, nil
	}

	for _, fetcher := range p.fetchers {
		dest, matched, err := fetcher.Fetch(ctx, u, p.store, p.mode)
		if !matched {
			continue
		}
		if err != nil {
			return nil, true, err
		}

		if p.mode == FetchNever {
			if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
				return nil, true, fmt.Errorf("%s has not been fetched yet (fetch mode is %s)", u, p.mode)
			}
		}

		repo, err := load(ctx, loc, dest, revision, p.mount, p.revision)
		if err != nil {
			return nil, true, err
		}
		return repo, true, nil
	}
	return nil, false, nil
}

// load mounts dir and derives the effective revision. Errors about missing
// revisions are reported against the user-facing location.
func load(ctx context.Context, loc Location, dir, revision string, mount MountFunc, lookup RevisionFunc) (*Repository, error) {
	path, closer, err := mount(ctx, dir, revision)
	if err != nil {
		return nil, relocate(err, loc)
	}

	repo := &Repository{
		Name:     loc.Name(),
		Path:     path,
		Revision: revision,
		closer:   closer,
	}

	if lookup != nil {
		resolved, err := lookup(ctx, dir, revision)
		if err != nil {
			return nil, errors.Join(relocate(err, loc), repo.Close())
		}
		repo.Revision = resolved
	}
	return repo, nil
}

func relocate(err error, loc Location) error {
	var notFound *RevisionNotFoundError
	if errors.As(err, &notFound) {
		return &RevisionNotFoundError{Revision: notFound.Revision, Location: loc.String()}
	}
	return err
}
