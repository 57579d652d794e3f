package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
)

// CommitFile commits a single file onto branch with git fast-import, without
// touching the index or the working tree. The branch is created when
// missing. Callers that have branch checked out should restore path
// afterwards.
func (r *Repository) CommitFile(ctx context.Context, branch, path string, data []byte, message string) (plumbing.Hash, error) {
	ident, err := r.git(ctx, "", "var", "GIT_COMMITTER_IDENT")
	if err != nil {
		return plumbing.ZeroHash, err
	}

	parent, hasParent, err := r.Branch(branch)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	ref := plumbing.NewBranchReferenceName(branch).String()
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	var stream bytes.Buffer
	fmt.Fprintf(&stream, "commit %s\n", ref)
	fmt.Fprintf(&stream, "committer %s\n", ident)
	writeData(&stream, []byte(message))
	if hasParent {
		fmt.Fprintf(&stream, "from %s\n", parent)
	}
	fmt.Fprintf(&stream, "M 100644 inline %s\n", quotePath(path))
	writeData(&stream, data)
	stream.WriteString("\n")

	if _, err := r.gitWith(ctx, command{args: []string{"fast-import", "--quiet"}, stdin: &stream}); err != nil {
		return plumbing.ZeroHash, err
	}

	hash, ok, err := r.Branch(branch)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok {
		return plumbing.ZeroHash, errors.New("fast-import did not create branch " + branch)
	}
	return hash, nil
}

func writeData(b *bytes.Buffer, data []byte) {
	fmt.Fprintf(b, "data %d\n", len(data))
	b.Write(data)
	b.WriteString("\n")
}

// quotePath quotes paths fast-import would otherwise misparse.
func quotePath(path string) string {
	if strings.ContainsAny(path, "\"\n") || strings.HasPrefix(path, " ") {
		return strconv.Quote(path)
	}
	return path
}
