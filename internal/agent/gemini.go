package agent

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Compile-time interface check: GeminiAgent must satisfy Agent.
var _ Agent = (*GeminiAgent)(nil)

// GeminiAgent is an Agent adapter for the Gemini CLI. It runs headless in
// plan approval mode and returns the "response" field of the JSON output.
type GeminiAgent struct {
	config ToolConfig
	logger debugLogger
}

// NewGeminiAgent creates a GeminiAgent. logger may be nil.
func NewGeminiAgent(config ToolConfig, logger debugLogger) *GeminiAgent {
	return &GeminiAgent{config: config, logger: logger}
}

// Name returns the tool identifier "gemini".
func (g *GeminiAgent) Name() string { return "gemini" }

// CheckPrerequisites verifies that the Gemini CLI executable is on PATH.
func (g *GeminiAgent) CheckPrerequisites() error {
	cmd := g.config.commandOr("gemini")
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf(
			"gemini CLI not found (looked for %q): install it from https://github.com/google-gemini/gemini-cli: %w",
			cmd, err,
		)
	}
	return nil
}

// BuildCommand returns the headless gemini invocation for prompt.
func (g *GeminiAgent) BuildCommand(prompt, workDir string) Command {
	return Command{
		Name: g.config.commandOr("gemini"),
		Args: []string{
			"-p", prompt,
			"-o", "json",
			"--approval-mode", "plan",
		},
		Dir: workDir,
	}
}

// RunReview runs gemini and returns the "response" field of its JSON output,
// or the raw output when that field cannot be decoded.
func (g *GeminiAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	cmd := g.BuildCommand(prompt, workDir)
	logRun(g.logger, g.Name(), cmd)

	raw, err := Execute(ctx, cmd, timeout)
	if err != nil {
		return "", err
	}

	if response, ok := envelopeField(raw, "response"); ok {
		return response, nil
	}
	logDegraded(g.logger, g.Name(), "json envelope with response", len(raw))
	return raw, nil
}
