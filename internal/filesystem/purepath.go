package filesystem

import (
	"slices"
	"strings"
)

// PurePath is an immutable sequence of path segments with no filesystem attached.
//
// Segments never contain a separator. PurePath does not validate this itself;
// strings coming from outside are split with ParsePurePath.
type PurePath struct {
	parts []string
}

// NewPurePath builds a path from already-split segments.
func NewPurePath(parts ...string) PurePath {
	if len(parts) == 0 {
		return PurePath{}
	}
	return PurePath{parts: slices.Clone(parts)}
}

// ParsePurePath splits a "/"-separated string into segments. Empty and "."
// segments are dropped, so leading, trailing and doubled separators never
// produce extra segments. ".." is kept for resolution to handle.
func ParsePurePath(s string) PurePath {
	var parts []string
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return PurePath{parts: parts}
}

// Parts returns a copy of the segments.
func (p PurePath) Parts() []string {
	return slices.Clone(p.parts)
}

// Len is the number of segments.
func (p PurePath) Len() int {
	return len(p.parts)
}

// IsRoot reports whether the path has no segments.
func (p PurePath) IsRoot() bool {
	return len(p.parts) == 0
}

// Name is the final segment, or "" for the root.
func (p PurePath) Name() string {
	if len(p.parts) == 0 {
		return ""
	}
	return p.parts[len(p.parts)-1]
}

// Suffix is the final dot-suffix of Name, including the dot.
func (p PurePath) Suffix() string {
	name := p.Name()
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

// Stem is Name without Suffix.
func (p PurePath) Stem() string {
	return strings.TrimSuffix(p.Name(), p.Suffix())
}

// Parent drops the final segment. The parent of the root is the root.
func (p PurePath) Parent() PurePath {
	if len(p.parts) <= 1 {
		return PurePath{}
	}
	return PurePath{parts: p.parts[:len(p.parts)-1]}
}

// Parents lists the ancestors from the immediate parent up to the root.
func (p PurePath) Parents() []PurePath {
	parents := make([]PurePath, 0, len(p.parts))
	for n := len(p.parts) - 1; n >= 0; n-- {
		parents = append(parents, PurePath{parts: p.parts[:n]})
	}
	return parents
}

// Join appends segments.
func (p PurePath) Join(parts ...string) PurePath {
	joined := make([]string, 0, len(p.parts)+len(parts))
	joined = append(joined, p.parts...)
	joined = append(joined, parts...)
	return PurePath{parts: joined}
}

// JoinPath appends the segments of another path.
func (p PurePath) JoinPath(other PurePath) PurePath {
	return p.Join(other.parts...)
}

// WithName replaces the final segment.
func (p PurePath) WithName(name string) PurePath {
	if len(p.parts) == 0 {
		return PurePath{parts: []string{name}}
	}
	return p.Parent().Join(name)
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p PurePath) HasPrefix(prefix PurePath) bool {
	if len(prefix.parts) > len(p.parts) {
		return false
	}
	return slices.Equal(p.parts[:len(prefix.parts)], prefix.parts)
}

// Equal compares segment-wise.
func (p PurePath) Equal(other PurePath) bool {
	return slices.Equal(p.parts, other.parts)
}

// Compare orders paths segment-wise.
func (p PurePath) Compare(other PurePath) int {
	return slices.Compare(p.parts, other.parts)
}

// String joins the segments with "/".
func (p PurePath) String() string {
	return strings.Join(p.parts, "/")
}
