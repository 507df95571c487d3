package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that CodexAgent implements Agent.
var _ Agent = (*CodexAgent)(nil)

// CodexAgent is an Agent adapter for the Codex CLI. Codex runs in a
// read-only sandbox and writes its final message to a side file named by the
// adapter; that file is the review text.
type CodexAgent struct {
	config ToolConfig
	logger debugLogger

	// outputDir holds the side files. Empty means os.TempDir().
	outputDir string
}

// NewCodexAgent creates a CodexAgent. The logger may be nil, in which case
// debug messages are silently discarded.
func NewCodexAgent(config ToolConfig, logger debugLogger) *CodexAgent {
	return &CodexAgent{
		config: config,
		logger: logger,
	}
}

// Name returns the tool identifier "codex".
func (c *CodexAgent) Name() string { return "codex" }

// CheckPrerequisites verifies that the Codex CLI executable can be found on
// the system PATH.
func (c *CodexAgent) CheckPrerequisites() error {
	cmd := c.config.commandOr("codex")
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf(
			"codex CLI not found (looked for %q): install it from https://github.com/openai/codex: %w",
			cmd, err,
		)
	}
	return nil
}

// BuildCommand returns the codex invocation for prompt. Each call names a
// fresh side file.
func (c *CodexAgent) BuildCommand(prompt, workDir string) Command {
	cmd, _ := c.build(prompt, workDir)
	return cmd
}

// build returns the invocation together with the side file it targets.
func (c *CodexAgent) build(prompt, workDir string) (Command, string) {
	dir := c.outputDir
	if dir == "" {
		dir = os.TempDir()
	}
	outputFile := filepath.Join(dir, "codex_output_"+uuid.NewString()+".txt")

	return Command{
		Name: c.config.commandOr("codex"),
		Args: []string{
			"exec", prompt,
			"--sandbox", "read-only",
			"--output-last-message", outputFile,
		},
		Dir: workDir,
	}, outputFile
}

// RunReview runs codex and returns the contents of its last-message file. The
// file is removed whether or not the run succeeded. A run that leaves no file
// yields an empty review, not an error.
func (c *CodexAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	cmd, outputFile := c.build(prompt, workDir)
	defer func() {
		if err := os.Remove(outputFile); err != nil && !errors.Is(err, fs.ErrNotExist) && c.logger != nil {
			c.logger.Debug("removing codex output file", "path", outputFile, "error", err)
		}
	}()

	logRun(c.logger, c.Name(), cmd)
	if _, err := Execute(ctx, cmd, timeout); err != nil {
		return "", err
	}

	data, err := os.ReadFile(outputFile)
	if errors.Is(err, fs.ErrNotExist) {
		logDegraded(c.logger, c.Name(), "last-message file", 0)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading codex output %s: %w", outputFile, err)
	}
	return string(data), nil
}
