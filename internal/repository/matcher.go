package repository

import (
	"net/url"
	"slices"
	"strings"
)

// Matcher is a predicate over URLs.
type Matcher func(u *url.URL) bool

// SchemeMatcher matches any of the given schemes.
func SchemeMatcher(schemes ...string) Matcher {
	return func(u *url.URL) bool {
		return slices.Contains(schemes, strings.ToLower(u.Scheme))
	}
}

// HostMatcher matches any of the given host names, ignoring the port.
func HostMatcher(hosts ...string) Matcher {
	return func(u *url.URL) bool {
		return slices.Contains(hosts, strings.ToLower(u.Hostname()))
	}
}

// PathSuffixMatcher matches URLs whose path ends with any of the suffixes.
func PathSuffixMatcher(suffixes ...string) Matcher {
	return func(u *url.URL) bool {
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		for _, suffix := range suffixes {
			if strings.HasSuffix(p, suffix) {
				return true
			}
		}
		return false
	}
}

// AllOf matches when every matcher does.
func AllOf(matchers ...Matcher) Matcher {
	return func(u *url.URL) bool {
		for _, m := range matchers {
			if !m(u) {
				return false
			}
		}
		return true
	}
}

// AnyOf matches when at least one matcher does.
func AnyOf(matchers ...Matcher) Matcher {
	return func(u *url.URL) bool {
		for _, m := range matchers {
			if m(u) {
				return true
			}
		}
		return false
	}
}
