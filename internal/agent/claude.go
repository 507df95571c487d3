package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Compile-time check that ClaudeAgent implements Agent.
var _ Agent = (*ClaudeAgent)(nil)

// defaultClaudeBudgetUSD caps the spend of one claude review.
const defaultClaudeBudgetUSD = 1.0

// ClaudeAgent is an Agent adapter for the Claude CLI. It runs in print mode
// with plan permissions and a spend cap, requests the JSON envelope, and
// returns the envelope's "result" field.
type ClaudeAgent struct {
	config ToolConfig
	logger debugLogger
}

// NewClaudeAgent creates a ClaudeAgent. The logger may be nil, in which case
// debug messages are silently discarded.
func NewClaudeAgent(config ToolConfig, logger debugLogger) *ClaudeAgent {
	return &ClaudeAgent{
		config: config,
		logger: logger,
	}
}

// Name returns the tool identifier "claude".
func (c *ClaudeAgent) Name() string { return "claude" }

// CheckPrerequisites verifies that the Claude CLI executable can be found on
// the system PATH.
func (c *ClaudeAgent) CheckPrerequisites() error {
	cmd := c.config.commandOr("claude")
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf(
			"claude CLI not found (looked for %q): install it from https://docs.anthropic.com/en/docs/claude-code: %w",
			cmd, err,
		)
	}
	return nil
}

// BuildCommand returns the non-interactive claude invocation for prompt.
func (c *ClaudeAgent) BuildCommand(prompt, workDir string) Command {
	budget := c.config.MaxBudgetUSD
	if budget <= 0 {
		budget = defaultClaudeBudgetUSD
	}
	return Command{
		Name: c.config.commandOr("claude"),
		Args: []string{
			"-p", prompt,
			"--output-format", "json",
			"--permission-mode", "plan",
			"--max-budget-usd", strconv.FormatFloat(budget, 'f', -1, 64),
			"--dangerously-skip-permissions",
		},
		Dir: workDir,
	}
}

// RunReview runs claude and returns the "result" field of its JSON envelope,
// or the raw output when the envelope cannot be decoded.
func (c *ClaudeAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	cmd := c.BuildCommand(prompt, workDir)
	logRun(c.logger, c.Name(), cmd)

	raw, err := Execute(ctx, cmd, timeout)
	if err != nil {
		return "", err
	}

	if result, ok := envelopeField(raw, "result"); ok {
		return result, nil
	}
	logDegraded(c.logger, c.Name(), "json envelope with result", len(raw))
	return raw, nil
}
