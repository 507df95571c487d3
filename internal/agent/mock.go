package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time check that MockAgent implements Agent.
var _ Agent = (*MockAgent)(nil)

// MockCall is one recorded RunReview invocation.
type MockCall struct {
	Prompt  string
	WorkDir string
	Timeout time.Duration
}

// MockAgent is a configurable mock implementation of Agent for testing.
// It records all RunReview calls and is safe for concurrent use, since
// multi-mode reviews invoke every tool from its own goroutine.
type MockAgent struct {
	// AgentName is the value returned by Name().
	AgentName string

	// RunFunc is an optional custom function called by RunReview. If nil,
	// RunReview returns "mock output".
	RunFunc func(ctx context.Context, prompt, workDir string) (string, error)

	// PrereqError is the error returned by CheckPrerequisites.
	PrereqError error

	mu    sync.Mutex
	calls []MockCall
}

// NewMockAgent creates a MockAgent with the given name and default behavior.
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{AgentName: name}
}

// Name returns the agent's identifier.
func (m *MockAgent) Name() string {
	return m.AgentName
}

// BuildCommand returns a placeholder invocation.
func (m *MockAgent) BuildCommand(prompt, workDir string) Command {
	return Command{
		Name: "mock-" + m.AgentName,
		Args: []string{"--prompt", prompt},
		Dir:  workDir,
	}
}

// RunReview records the call and delegates to RunFunc if set.
func (m *MockAgent) RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, WorkDir: workDir, Timeout: timeout})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, prompt, workDir)
	}
	return "mock output", nil
}

// CheckPrerequisites returns PrereqError, which is nil by default (success).
func (m *MockAgent) CheckPrerequisites() error {
	return m.PrereqError
}

// Calls returns a copy of the recorded invocations in call order.
func (m *MockAgent) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// WithRunFunc sets a custom RunReview function and returns the receiver for
// method chaining.
func (m *MockAgent) WithRunFunc(fn func(ctx context.Context, prompt, workDir string) (string, error)) *MockAgent {
	m.RunFunc = fn
	return m
}

// WithOutput configures the mock to always return output.
func (m *MockAgent) WithOutput(output string) *MockAgent {
	return m.WithRunFunc(func(context.Context, string, string) (string, error) {
		return output, nil
	})
}

// WithError configures the mock to always fail with err.
func (m *MockAgent) WithError(err error) *MockAgent {
	return m.WithRunFunc(func(context.Context, string, string) (string, error) {
		return "", err
	})
}

// WithRateLimit configures the mock to fail as a rate-limited tool with the
// given reset duration.
func (m *MockAgent) WithRateLimit(resetAfter time.Duration) *MockAgent {
	return m.WithError(&RateLimitError{
		Command:    "mock-" + m.AgentName,
		ResetAfter: resetAfter,
		Message:    "mock rate limit",
	})
}

// WithPrereqError configures the mock to return the given error from
// CheckPrerequisites. Returns the receiver for method chaining.
func (m *MockAgent) WithPrereqError(err error) *MockAgent {
	m.PrereqError = err
	return m
}

// String describes the mock for test failure messages.
func (m *MockAgent) String() string {
	return fmt.Sprintf("MockAgent(%s)", m.AgentName)
}
