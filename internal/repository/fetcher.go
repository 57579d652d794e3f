package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FetchMode controls when a fetcher contacts the remote.
type FetchMode int

const (
	// FetchAlways fetches unconditionally, refreshing the destination.
	FetchAlways FetchMode = iota
	// FetchAuto fetches only when the destination does not exist yet.
	FetchAuto
	// FetchNever never fetches and returns the destination as is.
	FetchNever
)

func (m FetchMode) String() string {
	switch m {
	case FetchAlways:
		return "always"
	case FetchAuto:
		return "auto"
	case FetchNever:
		return "never"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

// ParseFetchMode parses "always", "auto" or "never".
func ParseFetchMode(s string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always", "":
		return FetchAlways, nil
	case "auto":
		return FetchAuto, nil
	case "never":
		return FetchNever, nil
	default:
		return FetchAlways, fmt.Errorf("invalid fetch mode %q (want always, auto or never)", s)
	}
}

// Store maps a URL to the cache directory that holds its fetched content.
type Store func(u *url.URL) (string, error)

// FetchFunc retrieves u into dest. Implementations must leave dest either
// complete or untouched.
type FetchFunc func(ctx context.Context, u *url.URL, dest string) error

// Fetcher retrieves remote content for the URLs it matches.
type Fetcher struct {
	name  string
	match Matcher
	fetch FetchFunc
}

// NewFetcher returns a fetcher running fetch for URLs accepted by match.
func NewFetcher(name string, match Matcher, fetch FetchFunc) Fetcher {
	return Fetcher{name: name, match: match, fetch: fetch}
}

// Name returns the fetcher name.
func (f Fetcher) Name() string {
	return f.name
}

// Matches reports whether the fetcher handles u.
func (f Fetcher) Matches(u *url.URL) bool {
	return f.match(u)
}

// Fetch retrieves u into the directory provided by store, honoring mode. It
// reports matched=false, and does nothing else, when u is not handled by f.
// The destination is deterministic: the store directory joined with the last
// URL path segment.
func (f Fetcher) Fetch(ctx context.Context, u *url.URL, store Store, mode FetchMode) (dest string, matched bool, err error) {
	if !f.match(u) {
		return "", false, nil
	}

	dir, err := store(u)
	if err != nil {
		return "", true, fmt.Errorf("failed to allocate cache for %s: %w", u, err)
	}
	dest = filepath.Join(dir, destinationName(u))

	switch mode {
	case FetchNever:
		return dest, true, nil
	case FetchAuto:
		if _, err := os.Lstat(dest); err == nil {
			return dest, true, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", true, fmt.Errorf("failed to inspect %s: %w", dest, err)
		}
	}

	if err := f.fetch(ctx, u, dest); err != nil {
		return "", true, err
	}
	return dest, true, nil
}

// destinationName is the last path segment of u, or "repository" for URLs
// without a usable one.
func destinationName(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	name := path.Base(strings.TrimRight(p, "/"))
	if name == "." || name == "/" || name == "" || name == ".." || name == recordFileName {
		return "repository"
	}
	return name
}
