package config

import "time"

// Config is the top-level configuration structure mapping to kestrel.toml
// (or kestrel.yaml).
type Config struct {
	Server  ServerConfig          `toml:"server" yaml:"server"`
	Default RepoConfig            `toml:"default" yaml:"default"`
	Repos   map[string]RepoConfig `toml:"repos" yaml:"repos"`
	Tools   map[string]ToolConfig `toml:"tools" yaml:"tools"`
}

// ServerConfig maps to the [server] section.
type ServerConfig struct {
	Listen        string `toml:"listen" yaml:"listen"`
	WebhookSecret string `toml:"webhook_secret" yaml:"webhook_secret"`

	// AllowUnsigned accepts deliveries without signature verification when
	// WebhookSecret is empty. Without it, an empty secret rejects everything.
	AllowUnsigned bool `toml:"allow_unsigned" yaml:"allow_unsigned"`

	// GitHubToken is used when a delivery carries no X-GitHub-Token header.
	GitHubToken string `toml:"github_token" yaml:"github_token"`

	BotUsername          string        `toml:"bot_username" yaml:"bot_username"`
	Actions              []string      `toml:"actions" yaml:"actions"`
	MaxConcurrentReviews int           `toml:"max_concurrent_reviews" yaml:"max_concurrent_reviews"`
	WorkDir              string        `toml:"work_dir" yaml:"work_dir"`
	GitHubAPIURL         string        `toml:"github_api_url" yaml:"github_api_url"`
	ShutdownTimeout      time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	JanitorInterval      time.Duration `toml:"janitor_interval" yaml:"janitor_interval"`
	StaleAfter           time.Duration `toml:"stale_after" yaml:"stale_after"`
}

// RepoConfig maps to the [default] section and to each [repos."owner/name"]
// section. In a repo section, zero values mean "inherit from [default]".
type RepoConfig struct {
	CLI               string   `toml:"cli" yaml:"cli"`
	FallbackCLI       []string `toml:"fallback_cli" yaml:"fallback_cli"`
	ReviewMode        string   `toml:"review_mode" yaml:"review_mode"`
	SynthesizerCLI    string   `toml:"synthesizer_cli" yaml:"synthesizer_cli"`
	Language          string   `toml:"language" yaml:"language"`
	Timeout           int      `toml:"timeout" yaml:"timeout"` // seconds
	ExtraInstructions string   `toml:"extra_instructions" yaml:"extra_instructions"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (r RepoConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// ToolConfig maps to a [tools.<name>] section.
type ToolConfig struct {
	Command      string  `toml:"command" yaml:"command"`
	MaxBudgetUSD float64 `toml:"max_budget_usd" yaml:"max_budget_usd"`
}
