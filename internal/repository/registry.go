package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cutty/internal/logging"
)

// ProviderFactory builds a provider bound to a cache store and fetch mode.
type ProviderFactory struct {
	Name string
	New  func(store Store, mode FetchMode) Provider
}

// Options configures the built-in providers.
type Options struct {
	Logger      *logging.AppLogger
	Credentials *CredentialManager
	HTTPClient  *http.Client
}

// DefaultFactories returns the built-in providers in resolution order: zip
// archives, git repositories, Mercurial repositories and plain directories.
//
// The git provider accepts every network URL scheme Mercurial does, so remote
// Mercurial repositories are only reached with an explicit "hg+" prefix. File
// URLs go to whichever provider recognizes the repository on disk.
func DefaultFactories(opts Options) []ProviderFactory {
	return []ProviderFactory{
		{
			Name: "zip",
			New: func(store Store, mode FetchMode) Provider {
				return NewRemoteProvider("zip", store, mode, RemoteConfig{
					Match: PathSuffixMatcher(".zip", ".ZIP"),
					Fetchers: []Fetcher{
						FileFetcher(),
						HTTPFetcher(opts.HTTPClient, opts.Credentials),
						FTPFetcher(),
						S3Fetcher(),
						SFTPFetcher(),
					},
					Mount: mountZip,
					Local: NewLocalProvider("zip", isZipFile, mountZip, nil),
				})
			},
		},
		{
			Name: "git",
			New: func(store Store, mode FetchMode) Provider {
				return NewRemoteProvider("git", store, mode, RemoteConfig{
					Fetchers: []Fetcher{GitFetcher(opts.Credentials, opts.Logger)},
					Mount:    mountGit,
					Revision: gitRevision,
					Local:    NewLocalProvider("git", isGitRepository, mountGit, gitRevision),
				})
			},
		},
		{
			Name: "hg",
			New: func(store Store, mode FetchMode) Provider {
				return NewRemoteProvider("hg", store, mode, RemoteConfig{
					Fetchers: []Fetcher{HgFetcher(opts.Logger)},
					Mount:    mountHg(opts.Logger, "tip"),
					Revision: hgRevision(opts.Logger, "tip"),
					Local:    NewLocalProvider("hg", isHgRepository, mountHg(opts.Logger, "."), hgRevision(opts.Logger, ".")),
				})
			},
		},
		{
			Name: "local",
			New: func(Store, FetchMode) Provider {
				return NewLocalProvider("local", isDirectory, mountDisk, nil)
			},
		},
	}
}

// SelectFactories keeps the named factories, in the order given by names.
// An empty list keeps all of them.
func SelectFactories(factories []ProviderFactory, names []string) ([]ProviderFactory, error) {
	if len(names) == 0 {
		return factories, nil
	}

	selected := make([]ProviderFactory, 0, len(names))
	for _, name := range names {
		found := false
		for _, factory := range factories {
			if factory.Name == name {
				selected = append(selected, factory)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return selected, nil
}

// Registry resolves locations using an ordered set of provider factories.
type Registry struct {
	factories []ProviderFactory
	storage   *Storage
	mode      FetchMode
	logger    *logging.AppLogger
}

// NewRegistry returns a registry. Remote providers cache into storage; a nil
// storage makes every fetch fail.
func NewRegistry(factories []ProviderFactory, storage *Storage, mode FetchMode, logger *logging.AppLogger) *Registry {
	return &Registry{
		factories: factories,
		storage:   storage,
		mode:      mode,
		logger:    logger,
	}
}

// Names returns the provider names in resolution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.factories))
	for i, factory := range r.factories {
		names[i] = factory.Name
	}
	return names
}

func (r *Registry) provider(factory ProviderFactory) Provider {
	store := func(*url.URL) (string, error) {
		return "", errors.New("no cache directory configured")
	}
	if r.storage != nil {
		store = r.storage.Store(factory.Name)
	}
	return factory.New(store, r.mode)
}

// Resolve mounts the repository at raw for revision (the default revision
// when empty).
//
// A URL scheme of the form "name+scheme" selects the provider called name and
// hands it the URL with the bare scheme. Otherwise providers are tried in
// order and the first one handling the location wins. A file URL without a
// host that no provider handles is retried as a local path. When nothing
// matches, the error is *UnknownLocationError.
func (r *Registry) Resolve(ctx context.Context, raw, revision string) (*Repository, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}

	if !loc.IsPath() {
		if name, scheme, ok := strings.Cut(loc.URL.Scheme, "+"); ok {
			return r.resolveNamed(ctx, raw, name, scheme, loc.URL, revision)
		}
	}

	for _, candidate := range candidates(loc) {
		for _, factory := range r.factories {
			repo, ok, err := r.provider(factory).Provide(ctx, candidate, revision)
			if err != nil {
				return nil, err
			}
			if ok {
				r.resolved(raw, factory.Name, repo)
				return repo, nil
			}
		}
	}
	return nil, &UnknownLocationError{Location: raw}
}

func (r *Registry) resolveNamed(ctx context.Context, raw, name, scheme string, u *url.URL, revision string) (*Repository, error) {
	var factory *ProviderFactory
	for i := range r.factories {
		if r.factories[i].Name == name {
			factory = &r.factories[i]
			break
		}
	}
	if factory == nil {
		return nil, &UnknownLocationError{Location: raw, Provider: name}
	}

	// Rewriting the parsed URL keeps hostless forms ("file:///x",
	// "file:x.zip") intact, where editing the raw string would not.
	rewritten := *u
	rewritten.Scheme = scheme

	provider := r.provider(*factory)
	for _, loc := range candidates(URLLocation(&rewritten)) {
		repo, ok, err := provider.Provide(ctx, loc, revision)
		if err != nil {
			return nil, err
		}
		if ok {
			r.resolved(raw, name, repo)
			return repo, nil
		}
	}
	return nil, &UnknownLocationError{Location: raw, Provider: name}
}

// candidates lists the forms of loc to try in turn: the location itself and,
// for a file URL without a host, its local path.
func candidates(loc Location) []Location {
	locations := []Location{loc}
	if !loc.IsPath() && loc.URL.Scheme == "file" && loc.URL.Host == "" {
		locations = append(locations, PathLocation(filePath(loc.URL)))
	}
	return locations
}

func (r *Registry) resolved(raw, provider string, repo *Repository) {
	if r.logger != nil {
		r.logger.Debug("Resolved template location", "location", raw, "provider", provider, "revision", repo.Revision)
	}
}
