package agent

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

var _ Agent = (*OpenCodeAgent)(nil)

// OpenCodeAgent is an Agent adapter for the OpenCode CLI. Its JSON format is
// a stream of events; the review is the concatenation of the text events.
type OpenCodeAgent struct {
	config ToolConfig
	logger debugLogger
}

// NewOpenCodeAgent creates an OpenCodeAgent. logger may be nil.
func NewOpenCodeAgent(config ToolConfig, logger debugLogger) *OpenCodeAgent {
	return &OpenCodeAgent{config: config, logger: logger}
}

// Name returns the tool identifier "opencode".
func (o *OpenCodeAgent) Name() string { return "opencode" }

// CheckPrerequisites verifies that the opencode executable is on PATH.
func (o *OpenCodeAgent) CheckPrerequisites() error {
	cmd := o.config.commandOr("opencode")
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("opencode CLI not found (looked for %q): install it from https://opencode.ai: %w", cmd, err)
	}
	return nil
}

// BuildCommand returns the `opencode run` invocation for prompt.
func (o *OpenCodeAgent) BuildCommand(prompt, workDir string) Command {
	return Command{
		Name: o.config.commandOr("opencode"),
		Args: []string{"run", prompt, "--format", "json"},
		Dir:  workDir,
	}
}

// RunReview runs opencode and joins the text fragments of its event stream.
// Output without any text event is returned raw.
func (o *OpenCodeAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	cmd := o.BuildCommand(prompt, workDir)
	logRun(o.logger, o.Name(), cmd)

	raw, err := Execute(ctx, cmd, timeout)
	if err != nil {
		return "", err
	}

	if text, ok := CollectText(raw); ok {
		return text, nil
	}
	logDegraded(o.logger, o.Name(), "text events", len(raw))
	return raw, nil
}
