package review

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
)

// ToolResolver looks up a tool adapter by identifier. *agent.Registry
// satisfies it.
type ToolResolver interface {
	Get(name string) (agent.Agent, error)
}

// Request is one review to run through a Strategy.
type Request struct {
	Policy Policy

	// Prompt is the rendered review prompt given to every tool.
	Prompt string

	// Diff is the original diff, quoted again in the synthesis prompt.
	Diff string

	// WorkDir is the checkout the tools run in.
	WorkDir string

	// Label identifies the review in logs, e.g. "owner/repo#12".
	Label string
}

// Strategy runs a review against a policy's tools, either as an ordered
// fallback chain or as a parallel fan-out followed by synthesis. Individual
// tool failures are logged and absorbed; only exhaustion of every tool is
// reported to the caller.
type Strategy struct {
	tools     ToolResolver
	cooldowns *agent.Cooldowns
	logger    *log.Logger
}

// NewStrategy creates a Strategy. cooldowns may be nil, in which case rate
// limits are not remembered between reviews. logger may be nil.
func NewStrategy(tools ToolResolver, cooldowns *agent.Cooldowns, logger *log.Logger) *Strategy {
	return &Strategy{
		tools:     tools,
		cooldowns: cooldowns,
		logger:    logger,
	}
}

// OrderedTools returns primary followed by fallbacks with duplicates and
// empty identifiers removed, keeping the first occurrence of each.
func OrderedTools(primary string, fallbacks []string) []string {
	seen := make(map[string]bool, len(fallbacks)+1)
	ordered := make([]string, 0, len(fallbacks)+1)
	for _, name := range append([]string{primary}, fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ordered = append(ordered, name)
	}
	return ordered
}

// Run executes req and returns the raw text of the final review. The result
// still has to be parsed; Run never interprets tool output.
//
// Unknown tool identifiers fail immediately with an error wrapping
// agent.ErrUnknownTool. When every tool fails the error is an
// *AllToolsFailedError.
func (s *Strategy) Run(ctx context.Context, req Request) (string, error) {
	names := req.Policy.Tools()
	if len(names) == 0 {
		return "", errors.New("review: strategy: policy names no tools")
	}

	tools := make([]agent.Agent, 0, len(names))
	for _, name := range names {
		ag, err := s.tools.Get(name)
		if err != nil {
			return "", fmt.Errorf("review: strategy: resolving tool %q: %w", name, err)
		}
		tools = append(tools, ag)
	}

	if req.Policy.Mode == ModeMulti {
		synthName := req.Policy.SynthesizerTool
		if synthName == "" {
			synthName = names[0]
		}
		synth, err := s.tools.Get(synthName)
		if err != nil {
			return "", fmt.Errorf("review: strategy: resolving synthesizer %q: %w", synthName, err)
		}
		return s.runMulti(ctx, req, tools, synth)
	}
	return s.runSingle(ctx, req, tools)
}

// runSingle tries each tool in order and returns the first success.
func (s *Strategy) runSingle(ctx context.Context, req Request, tools []agent.Agent) (string, error) {
	failures := make([]ToolFailure, 0, len(tools))

	for _, ag := range tools {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("review: strategy: %w", err)
		}
		out, err := s.invoke(ctx, ag, req.Prompt, req)
		if err == nil {
			return out, nil
		}
		failures = append(failures, ToolFailure{Tool: ag.Name(), Err: err})
	}

	s.logError(req, ModeSingle, len(failures))
	return "", &AllToolsFailedError{Mode: ModeSingle, Failures: failures}
}

// runMulti runs every tool concurrently, waits for all of them, and merges
// the successful reviews.
func (s *Strategy) runMulti(ctx context.Context, req Request, tools []agent.Agent, synth agent.Agent) (string, error) {
	outputs := make([]string, len(tools))
	errs := make([]error, len(tools))

	// Each goroutine writes only its own index. Tool failures are recorded,
	// never returned, so one failing tool cannot cancel its siblings.
	var g errgroup.Group
	for i, ag := range tools {
		g.Go(func() error {
			outputs[i], errs[i] = s.invoke(ctx, ag, req.Prompt, req)
			return nil
		})
	}
	_ = g.Wait()

	var successes []LabeledReview
	var failures []ToolFailure
	for i, ag := range tools {
		if errs[i] != nil {
			failures = append(failures, ToolFailure{Tool: ag.Name(), Err: errs[i]})
			continue
		}
		successes = append(successes, LabeledReview{Tool: ag.Name(), Text: outputs[i]})
	}

	switch len(successes) {
	case 0:
		s.logError(req, ModeMulti, len(failures))
		return "", &AllToolsFailedError{Mode: ModeMulti, Failures: failures}
	case 1:
		s.logInfo("single review succeeded, skipping synthesis",
			"review", req.Label,
			"tool", successes[0].Tool,
			"failed", len(failures),
		)
		return successes[0].Text, nil
	}

	return s.synthesize(ctx, req, synth, successes), nil
}

// synthesize merges reviews with the synthesizer tool. When synthesis fails
// the longest individual review is used instead, so a run with at least one
// success always yields a result.
func (s *Strategy) synthesize(ctx context.Context, req Request, synth agent.Agent, reviews []LabeledReview) string {
	tools := make([]string, len(reviews))
	for i, r := range reviews {
		tools[i] = r.Tool
	}
	s.logInfo("synthesizing reviews",
		"review", req.Label,
		"synthesizer", synth.Name(),
		"tools", tools,
	)

	prompt, err := BuildSynthesisPrompt(reviews, req.Diff, req.Policy.Language)
	if err == nil {
		var out string
		out, err = s.invoke(ctx, synth, prompt, req)
		if err == nil {
			return out
		}
	}

	best := Longest(reviews)
	if s.logger != nil {
		s.logger.Warn("synthesis failed, using longest review",
			"review", req.Label,
			"synthesizer", synth.Name(),
			"chosen", best.Tool,
			"error", err,
		)
	}
	return best.Text
}

// Longest returns the review with the most characters. Ties go to the
// earliest review. It returns the zero value for an empty slice.
func Longest(reviews []LabeledReview) LabeledReview {
	var best LabeledReview
	bestLen := -1
	for _, r := range reviews {
		if n := utf8.RuneCountInString(r.Text); n > bestLen {
			best, bestLen = r, n
		}
	}
	return best
}

// invoke runs one tool, honouring and updating rate-limit cooldowns. The
// outcome is logged here so callers only branch on success.
func (s *Strategy) invoke(ctx context.Context, ag agent.Agent, prompt string, req Request) (string, error) {
	name := ag.Name()

	if s.cooldowns != nil {
		if remaining := s.cooldowns.Remaining(name); remaining > 0 {
			err := fmt.Errorf("%s: %w (%s remaining)", name, agent.ErrCoolingDown, remaining.Round(time.Second))
			s.logWarn(req, name, err)
			return "", err
		}
	}

	start := time.Now()
	out, err := ag.RunReview(ctx, prompt, req.WorkDir, req.Policy.Timeout)
	if err != nil {
		var rl *agent.RateLimitError
		if s.cooldowns != nil && errors.As(err, &rl) {
			s.cooldowns.Record(name, rl.ResetAfter)
		}
		s.logWarn(req, name, err)
		return "", err
	}

	s.logInfo("tool succeeded",
		"review", req.Label,
		"tool", name,
		"duration", time.Since(start).Round(time.Millisecond),
		"output_len", len(out),
	)
	return out, nil
}

func (s *Strategy) logInfo(msg string, keyvals ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, keyvals...)
	}
}

func (s *Strategy) logWarn(req Request, tool string, err error) {
	if s.logger != nil {
		s.logger.Warn("tool failed",
			"review", req.Label,
			"tool", tool,
			"kind", agent.FailureKind(err),
			"error", err,
		)
	}
}

func (s *Strategy) logError(req Request, mode Mode, failed int) {
	if s.logger != nil {
		s.logger.Error("all review tools failed",
			"review", req.Label,
			"mode", mode,
			"failed", failed,
		)
	}
}
