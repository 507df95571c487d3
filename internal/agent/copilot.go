package agent

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

var _ Agent = (*CopilotAgent)(nil)

// CopilotAgent is an Agent adapter for GitHub Copilot, invoked through the gh
// extension. Its output is used as is.
type CopilotAgent struct {
	config ToolConfig
	logger debugLogger
}

// NewCopilotAgent creates a CopilotAgent. logger may be nil.
func NewCopilotAgent(config ToolConfig, logger debugLogger) *CopilotAgent {
	return &CopilotAgent{config: config, logger: logger}
}

// Name returns the tool identifier "copilot".
func (a *CopilotAgent) Name() string { return "copilot" }

// CheckPrerequisites verifies that gh is on PATH. Whether the copilot
// extension is installed is only discovered at run time.
func (a *CopilotAgent) CheckPrerequisites() error {
	cmd := a.config.commandOr("gh")
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("gh CLI not found (looked for %q): install it from https://cli.github.com: %w", cmd, err)
	}
	return nil
}

// BuildCommand returns the `gh copilot` invocation for prompt.
func (a *CopilotAgent) BuildCommand(prompt, workDir string) Command {
	return Command{
		Name: a.config.commandOr("gh"),
		Args: []string{"copilot", "--", "-p", prompt, "--allow-all-tools"},
		Dir:  workDir,
	}
}

// RunReview runs copilot and returns its combined output unmodified.
func (a *CopilotAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	cmd := a.BuildCommand(prompt, workDir)
	logRun(a.logger, a.Name(), cmd)
	return Execute(ctx, cmd, timeout)
}
