package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Execute runs c to completion and returns stdout followed by stderr.
//
// A wall-clock timeout bounds the run. When it fires, the whole process group
// is killed and Execute waits for the process to be reaped before returning a
// *TimeoutError. A non-zero exit returns an *ExitError. After any exit, clean
// or not, the combined output is scanned for rate-limit signatures. A match
// returns a *RateLimitError even when the exit status was zero.
//
// Cancelling ctx (as opposed to the timeout firing) returns ctx.Err() wrapped.
func Execute(ctx context.Context, c Command, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if c.Stdin != nil {
		// exec copies the reader in its own goroutine and closes the pipe
		// at EOF.
		cmd.Stdin = c.Stdin
	}
	setProcGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	// Run is Start followed by Wait, so the process is always reaped,
	// including after the context kills it.
	runErr := cmd.Run()
	combined := stdoutBuf.String() + stderrBuf.String()

	if runErr != nil && runCtx.Err() != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", c.Name, ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{Command: c.Name, Timeout: timeout}
		}
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// The process could not be started at all (binary missing, bad
		// working directory, ...).
		return "", fmt.Errorf("starting %s: %w", c.Name, runErr)
	}

	if info, limited := DetectRateLimit(combined); limited {
		return "", &RateLimitError{
			Command:    c.Name,
			ResetAfter: info.ResetAfter,
			Message:    info.Message,
		}
	}

	if exitErr != nil {
		return "", &ExitError{
			Command: c.Name,
			Status:  exitErr.ExitCode(),
			Output:  truncateRunes(strings.TrimSpace(combined), maxDiagnosticRunes),
		}
	}

	return combined, nil
}
