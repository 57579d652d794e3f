package repository

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"cutty/internal/logging"
)

// runCommand runs an external client and returns its stdout. Failures become
// *FetchError carrying the command line and whatever the client printed on
// stderr.
func runCommand(ctx context.Context, logger *logging.AppLogger, rawURL, dir, name string, args ...string) (string, error) {
	if logger != nil {
		logger.LogCommand(dir, name, args)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &FetchError{
			URL:        rawURL,
			Command:    strings.Join(append([]string{name}, args...), " "),
			Diagnostic: stderr.String(),
			Err:        err,
		}
	}

	return stdout.String(), nil
}
