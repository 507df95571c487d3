package config

import "time"

// Built-in server defaults.
const (
	DefaultListen               = ":8080"
	DefaultBotUsername          = "github-actions[bot]"
	DefaultMaxConcurrentReviews = 3
	DefaultGitHubAPIURL         = "https://api.github.com"
	DefaultShutdownTimeout      = 30 * time.Second
	DefaultJanitorInterval      = 15 * time.Minute
	DefaultStaleAfter           = 2 * time.Hour
)

// DefaultActions are the pull_request actions that trigger a review.
var DefaultActions = []string{"opened", "synchronize"}

// NewDefaults returns a Config populated with all default values.
func NewDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:               DefaultListen,
			BotUsername:          DefaultBotUsername,
			Actions:              append([]string(nil), DefaultActions...),
			MaxConcurrentReviews: DefaultMaxConcurrentReviews,
			GitHubAPIURL:         DefaultGitHubAPIURL,
			ShutdownTimeout:      DefaultShutdownTimeout,
			JanitorInterval:      DefaultJanitorInterval,
			StaleAfter:           DefaultStaleAfter,
		},
		Default: RepoConfig{
			CLI:            "claude",
			FallbackCLI:    []string{"codex", "gemini", "copilot"},
			ReviewMode:     "single",
			SynthesizerCLI: "claude",
			Language:       "en",
			Timeout:        600,
		},
		Repos: map[string]RepoConfig{},
		Tools: map[string]ToolConfig{},
	}
}
