package review

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReviewComment is one inline comment anchored to a line of the new version
// of a file. Path and Line are passed through exactly as the tool produced
// them; they are not checked against the diff.
type ReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// ReviewResult is the structured outcome of one review: an overall summary
// plus zero or more inline comments. Comments is never nil for results built
// by this package.
type ReviewResult struct {
	Summary  string          `json:"summary"`
	Comments []ReviewComment `json:"comments"`
}

// Mode selects how a review strategy uses the configured tools.
type Mode string

const (
	// ModeSingle tries tools in order until one succeeds.
	ModeSingle Mode = "single"

	// ModeMulti runs every tool in parallel and synthesizes their reviews.
	ModeMulti Mode = "multi"
)

// validModes is the set of all known Mode values.
var validModes = map[Mode]bool{
	ModeSingle: true,
	ModeMulti:  true,
}

// IsValid reports whether m is a known review mode.
func (m Mode) IsValid() bool {
	return validModes[m]
}

// Policy is the resolved review configuration for one repository. It is
// read-only for the duration of a review.
type Policy struct {
	// PrimaryTool is tried first in single mode.
	PrimaryTool string

	// FallbackTools follow PrimaryTool. Duplicates, including of
	// PrimaryTool, are ignored.
	FallbackTools []string

	Mode Mode

	// SynthesizerTool merges reviews in multi mode.
	SynthesizerTool string

	// Language is the natural language the review is written in.
	Language string

	// Timeout bounds each individual tool invocation.
	Timeout time.Duration

	// ExtraInstructions are appended to the review prompt when non-empty.
	ExtraInstructions string
}

// Tools returns the deduplicated tool order for p.
func (p Policy) Tools() []string {
	return OrderedTools(p.PrimaryTool, p.FallbackTools)
}

// LabeledReview is one successful tool review, tagged with the tool that
// produced it.
type LabeledReview struct {
	Tool string
	Text string
}

// ErrAllToolsFailed is matched by AllToolsFailedError. It is the only
// failure a strategy run reports for tool problems.
var ErrAllToolsFailed = errors.New("all review tools failed")

// ToolFailure records one tool attempt that did not produce a review.
type ToolFailure struct {
	Tool string
	Err  error
}

// AllToolsFailedError reports that every candidate tool failed. Failures
// lists the attempts in tool order.
type AllToolsFailedError struct {
	Mode     Mode
	Failures []ToolFailure
}

func (e *AllToolsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Tool, f.Err))
	}
	return fmt.Sprintf("all review tools failed in %s mode (%s)", e.Mode, strings.Join(parts, "; "))
}

// Is reports whether target is ErrAllToolsFailed.
func (e *AllToolsFailedError) Is(target error) bool { return target == ErrAllToolsFailed }
