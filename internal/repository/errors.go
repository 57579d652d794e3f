package repository

import (
	"fmt"
	"strings"
)

// UnknownLocationError is returned when no provider accepts a location.
type UnknownLocationError struct {
	Location string
	Provider string // set when a provider was selected by name
}

func (e *UnknownLocationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("unknown location %s for provider %q", e.Location, e.Provider)
	}
	return fmt.Sprintf("unknown location %s", e.Location)
}

// RevisionNotFoundError is returned when a revision does not exist in a
// repository, or when the repository kind has no notion of revisions.
type RevisionNotFoundError struct {
	Revision string
	Location string
}

func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision %q not found in %s", e.Revision, e.Location)
}

// FetchError wraps a failed transfer. Command names the operation that ran,
// either an external client invocation or a protocol request, and Diagnostic
// holds the raw text it produced.
type FetchError struct {
	URL        string
	Command    string
	Diagnostic string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s failed", e.URL)
	if e.Command != "" {
		fmt.Fprintf(&b, " (%s)", e.Command)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if diag := strings.TrimSpace(e.Diagnostic); diag != "" && (e.Err == nil || diag != strings.TrimSpace(e.Err.Error())) {
		fmt.Fprintf(&b, "\n%s", diag)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StorageAllocationError is returned when a cache slot is allocated twice.
type StorageAllocationError struct {
	Path string
}

func (e *StorageAllocationError) Error() string {
	return fmt.Sprintf("cache slot already allocated: %s", e.Path)
}
