package agent

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultTimeout is used when a caller passes a non-positive timeout.
const DefaultTimeout = 600 * time.Second

// maxDiagnosticRunes bounds the output carried by an ExitError.
const maxDiagnosticRunes = 200

// Sentinel errors for the Process Runner's failure kinds. The typed errors
// below match them via errors.Is so callers can branch on the kind alone.
var (
	ErrTimeout     = errors.New("process timed out")
	ErrExitFailure = errors.New("process exited with non-zero status")
	ErrRateLimited = errors.New("rate limited")
)

// Command is one external process invocation: the executable plus its
// arguments, the working directory, and optional text piped to stdin.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// String renders the command for logs. Arguments longer than 60 characters
// (prompts, mostly) are elided.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if len(a) > 60 {
			a = a[:57] + "..."
		}
		if strings.ContainsAny(a, " \t\n") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// TimeoutError reports that a process exceeded its wall-clock budget and was
// killed. The process has already been reaped when this error is returned.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Command, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ExitError reports a non-zero exit status. Output holds at most the first
// 200 characters of the combined output.
type ExitError struct {
	Command string
	Status  int
	Output  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Status, e.Output)
}

// Is reports whether target is ErrExitFailure.
func (e *ExitError) Is(target error) bool { return target == ErrExitFailure }

// RateLimitError reports that a tool's output carried a rate-limit
// signature. ResetAfter is zero when the output gave no countdown.
type RateLimitError struct {
	Command    string
	ResetAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.ResetAfter > 0 {
		return fmt.Sprintf("%s: rate limited (resets in %s)", e.Command, e.ResetAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Command)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// FailureKind names the category of a tool failure for structured logs.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrExitFailure):
		return "exit_failure"
	case errors.Is(err, ErrCoolingDown):
		return "cooling_down"
	default:
		return "error"
	}
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
