package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// agentNameRe validates tool identifiers: alphanumeric characters and hyphens only.
var agentNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// ErrUnknownTool is returned by Registry.Get when no adapter with the
// requested identifier has been registered. It is a configuration error and
// must never be retried.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDuplicateName is returned by Registry.Register when an adapter with the
// same name is already present in the registry.
var ErrDuplicateName = errors.New("tool already registered")

// ErrInvalidName is returned by Registry.Register when the adapter name is
// empty or contains invalid characters.
var ErrInvalidName = errors.New("invalid tool name")

// Agent is the interface every external review tool adapter implements.
// Each adapter owns one CLI's calling convention (non-interactive flags,
// output format, sandbox and budget switches) and the decoding of that CLI's
// output into plain review text.
type Agent interface {
	// Name returns the tool identifier used in repository policies
	// (e.g. "claude", "codex").
	Name() string

	// BuildCommand returns the invocation for prompt without running it.
	BuildCommand(prompt, workDir string) Command

	// RunReview executes the tool in workDir and returns the decoded review
	// text. Failures are the Process Runner's typed errors (TimeoutError,
	// ExitError, RateLimitError) or a start error. A decode mismatch is not a
	// failure: the raw captured text is returned instead.
	RunReview(ctx context.Context, prompt, workDir string, timeout time.Duration) (string, error)

	// CheckPrerequisites verifies that the tool's executable can be found.
	CheckPrerequisites() error
}

// debugLogger is the minimal logging interface the adapters need.
type debugLogger interface {
	Debug(msg string, keyvals ...interface{})
}

// ToolConfig holds per-tool settings from the [tools.<name>] config section.
// Only the executable and budget cap are configurable; CLI flags are fixed
// by each adapter.
type ToolConfig struct {
	// Command is the executable to run. Empty means the adapter default.
	Command string `toml:"command" yaml:"command"`

	// MaxBudgetUSD caps spend per invocation for tools that support it
	// (claude). Zero means the adapter default.
	MaxBudgetUSD float64 `toml:"max_budget_usd" yaml:"max_budget_usd"`
}

// commandOr returns cfg.Command, or def when it is empty.
func (cfg ToolConfig) commandOr(def string) string {
	if cfg.Command != "" {
		return cfg.Command
	}
	return def
}

// Registry stores named adapters for lookup.
// Adapters are registered at startup and looked up by policy identifiers at
// runtime. Registry is safe for concurrent reads after all registrations are
// complete.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
	}
}

// Register adds an adapter to the registry under its Name().
// Returns ErrInvalidName if the adapter is nil or has an invalid name.
// Returns ErrDuplicateName if the name is already registered.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("register tool: %w", ErrInvalidName)
	}
	name := a.Name()
	if name == "" || !agentNameRe.MatchString(name) {
		return fmt.Errorf("register tool %q: %w", name, ErrInvalidName)
	}
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("register tool %q: %w", name, ErrDuplicateName)
	}
	r.agents[name] = a
	return nil
}

// Get returns the adapter registered under name.
// Returns an error wrapping ErrUnknownTool if none is registered.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("get tool %q: %w", name, ErrUnknownTool)
	}
	return a, nil
}

// List returns the names of all registered adapters, sorted alphabetically.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has returns true if an adapter with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// KnownTools lists the identifiers of the built-in adapters.
var KnownTools = []string{"claude", "codex", "copilot", "gemini", "opencode"}

// NewDefaultRegistry returns a registry holding every built-in adapter,
// configured from tools (keyed by tool name; missing entries use defaults).
// logger may be nil.
func NewDefaultRegistry(tools map[string]ToolConfig, logger debugLogger) *Registry {
	r := NewRegistry()
	cfg := func(name string) ToolConfig { return tools[name] }

	// Names are constants, so registration cannot fail.
	_ = r.Register(NewClaudeAgent(cfg("claude"), logger))
	_ = r.Register(NewCodexAgent(cfg("codex"), logger))
	_ = r.Register(NewGeminiAgent(cfg("gemini"), logger))
	_ = r.Register(NewOpenCodeAgent(cfg("opencode"), logger))
	_ = r.Register(NewCopilotAgent(cfg("copilot"), logger))
	return r
}
