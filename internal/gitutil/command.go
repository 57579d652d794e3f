// Package gitutil drives git repositories for project synchronization.
//
// Operations that go-git does not implement (worktrees, cherry-picks with
// conflict markers, fast-import) run the git client; reads of refs, commits
// and blobs go through go-git.
package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"cutty/internal/logging"
)

// CommandError reports a failed git invocation.
type CommandError struct {
	Command  []string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (in %s) failed", strings.Join(e.Command, " "), e.Dir)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Available reports whether the git client is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// command describes one git invocation.
type command struct {
	dir   string
	args  []string
	stdin io.Reader
	env   []string
}

// run executes git and returns its trimmed stdout.
func run(ctx context.Context, logger *logging.AppLogger, c command) (string, error) {
	if logger != nil {
		logger.LogCommand(c.dir, "git", c.args)
	}

	cmd := exec.CommandContext(ctx, "git", c.args...)
	cmd.Dir = c.dir
	cmd.Stdin = c.stdin
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return "", &CommandError{
			Command:  append([]string{"git"}, c.args...),
			Dir:      c.dir,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return strings.TrimRight(stdout.String(), "\n"), nil
}
