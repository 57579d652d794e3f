package repository

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"cutty/pkg/fileops"
)

// Location is a parsed template location: exactly one of Path and URL is set.
type Location struct {
	Path string
	URL  *url.URL
}

// PathLocation returns a location for a filesystem path.
func PathLocation(p string) Location {
	return Location{Path: p}
}

// URLLocation returns a location for a URL.
func URLLocation(u *url.URL) Location {
	return Location{URL: u}
}

// IsPath reports whether the location is a filesystem path.
func (l Location) IsPath() bool {
	return l.URL == nil
}

func (l Location) String() string {
	if l.URL != nil {
		return l.URL.String()
	}
	return l.Path
}

// Name derives a repository name from the last segment of the location,
// without a ".git" or ".zip" suffix.
func (l Location) Name() string {
	var last string
	if l.URL != nil {
		p := l.URL.Path
		if p == "" {
			p = l.URL.Opaque
		}
		last = path.Base(strings.TrimRight(p, "/"))
		if last == "." || last == "/" || last == "" {
			last = l.URL.Hostname()
		}
	} else {
		last = filepath.Base(filepath.Clean(l.Path))
	}

	for _, suffix := range []string{".git", ".zip"} {
		last = strings.TrimSuffix(last, suffix)
	}
	return last
}

// scpPattern matches scp-like git locations such as git@github.com:owner/repo.git.
var scpPattern = regexp.MustCompile(`^([\w.-]+)@([\w.-]+):([^/].*)$`)

// abbreviations expand short prefixes for common hosting services.
var abbreviations = map[string]string{
	"gh": "https://github.com/%s.git",
	"gl": "https://gitlab.com/%s.git",
	"bb": "https://bitbucket.org/%s.git",
}

// ParseLocation interprets raw as a filesystem path or a URL. Existing paths
// win; scp-like git locations become ssh URLs; "gh:", "gl:" and "bb:"
// abbreviations expand to https URLs. Strings without a scheme are paths.
func ParseLocation(raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return Location{}, fmt.Errorf("location cannot be empty")
	}

	expanded := fileops.ExpandPath(raw)
	if _, err := os.Stat(expanded); err == nil {
		return PathLocation(expanded), nil
	}

	if m := scpPattern.FindStringSubmatch(raw); m != nil {
		return URLLocation(&url.URL{
			Scheme: "ssh",
			User:   url.User(m[1]),
			Host:   m[2],
			Path:   "/" + m[3],
		}), nil
	}

	if prefix, rest, ok := strings.Cut(raw, ":"); ok {
		if pattern, known := abbreviations[prefix]; known {
			return parseURL(fmt.Sprintf(pattern, strings.TrimSuffix(rest, ".git")))
		}
	}

	return parseURL(raw)
}

func parseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", raw, err)
	}

	// A single-letter scheme is a Windows drive letter, not a URL.
	if len(u.Scheme) <= 1 {
		return PathLocation(fileops.ExpandPath(raw)), nil
	}

	return URLLocation(u), nil
}

// filePath returns the local path of a file URL, relative for opaque forms
// like "file:template.zip".
func filePath(u *url.URL) string {
	if u.Opaque != "" {
		return filepath.FromSlash(u.Opaque)
	}
	return filepath.FromSlash(u.Path)
}
