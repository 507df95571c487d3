package config

import (
	"strconv"
	"time"
)

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault ConfigSource = "default"
	// SourceFile indicates the value came from the configuration file.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv ConfigSource = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source tracking.
// The Config field contains the merged values; Sources tracks where each came from.
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource // key is dotted path, e.g., "server.listen"
	Path    string                  // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration.
// A nil pointer means "not overridden".
type CLIOverrides struct {
	Listen               *string
	WorkDir              *string
	MaxConcurrentReviews *int
}

// EnvFunc is a function that looks up environment variables.
// Default implementation is os.LookupEnv. Injected for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order:
// CLI flags > environment variables > config file > defaults.
//
// fileConfig is nil when no file was found. meta, when non-nil, lists the
// keys the file sets explicitly; those are taken even when they hold the
// zero value, so Validate sees "timeout = 0" rather than the default. Repo
// sections are copied as written; their empty fields are filled from
// [default] at lookup time by Config.PolicyFor.
func Resolve(defaults *Config, fileConfig *Config, meta *FileMeta, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config: &Config{
			Repos: make(map[string]RepoConfig),
			Tools: make(map[string]ToolConfig),
		},
		Sources: make(map[string]ConfigSource),
	}

	if defaults == nil {
		defaults = &Config{}
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	// Layer 1: defaults.
	mergeServer(rc, &defaults.Server, SourceDefault, always)
	mergeRepo(&rc.Config.Default, &defaults.Default, "default", SourceDefault, rc.Sources, always)
	copyTools(rc, defaults.Tools, SourceDefault)
	copyRepos(rc, defaults.Repos, SourceDefault)

	// Layer 2: file. Zero values mean "not set in file" unless the key is
	// written out.
	if fileConfig != nil {
		mergeServer(rc, &fileConfig.Server, SourceFile, meta.IsDefined)
		mergeRepo(&rc.Config.Default, &fileConfig.Default, "default", SourceFile, rc.Sources, meta.IsDefined)
		copyTools(rc, fileConfig.Tools, SourceFile)
		copyRepos(rc, fileConfig.Repos, SourceFile)
	}

	// Layer 3: environment.
	resolveFromEnv(rc, envFn)

	// Layer 4: CLI flags.
	resolveFromCLI(rc, overrides)

	return rc
}

// forceFunc reports whether the field at path is taken even when it holds
// the zero value.
type forceFunc func(path string) bool

func always(string) bool { return true }

func never(string) bool { return false }

// mergeServer layers src over the resolved server section. Fields for which
// force reports true are always taken, others only when non-zero.
func mergeServer(rc *ResolvedConfig, src *ServerConfig, source ConfigSource, force forceFunc) {
	s := &rc.Config.Server
	sources := rc.Sources

	mergeString(&s.Listen, src.Listen, "server.listen", source, sources, force)
	mergeString(&s.WebhookSecret, src.WebhookSecret, "server.webhook_secret", source, sources, force)
	mergeString(&s.GitHubToken, src.GitHubToken, "server.github_token", source, sources, force)
	mergeString(&s.BotUsername, src.BotUsername, "server.bot_username", source, sources, force)
	mergeString(&s.WorkDir, src.WorkDir, "server.work_dir", source, sources, force)
	mergeString(&s.GitHubAPIURL, src.GitHubAPIURL, "server.github_api_url", source, sources, force)
	mergeStrings(&s.Actions, src.Actions, "server.actions", source, sources, force)
	mergeInt(&s.MaxConcurrentReviews, src.MaxConcurrentReviews, "server.max_concurrent_reviews", source, sources, force)
	mergeDuration(&s.ShutdownTimeout, src.ShutdownTimeout, "server.shutdown_timeout", source, sources, force)
	mergeDuration(&s.JanitorInterval, src.JanitorInterval, "server.janitor_interval", source, sources, force)
	mergeDuration(&s.StaleAfter, src.StaleAfter, "server.stale_after", source, sources, force)

	if force("server.allow_unsigned") || src.AllowUnsigned {
		s.AllowUnsigned = src.AllowUnsigned
		sources["server.allow_unsigned"] = source
	}
}

// mergeRepo layers src over dst field by field. prefix names the section in
// Sources; sources may be nil when no tracking is wanted.
func mergeRepo(dst, src *RepoConfig, prefix string, source ConfigSource, sources map[string]ConfigSource, force forceFunc) {
	mergeString(&dst.CLI, src.CLI, prefix+".cli", source, sources, force)
	mergeStrings(&dst.FallbackCLI, src.FallbackCLI, prefix+".fallback_cli", source, sources, force)
	mergeString(&dst.ReviewMode, src.ReviewMode, prefix+".review_mode", source, sources, force)
	mergeString(&dst.SynthesizerCLI, src.SynthesizerCLI, prefix+".synthesizer_cli", source, sources, force)
	mergeString(&dst.Language, src.Language, prefix+".language", source, sources, force)
	mergeInt(&dst.Timeout, src.Timeout, prefix+".timeout", source, sources, force)
	mergeString(&dst.ExtraInstructions, src.ExtraInstructions, prefix+".extra_instructions", source, sources, force)
}

// copyTools merges tool sections by name; a section in a later layer
// replaces the earlier one for that tool.
func copyTools(rc *ResolvedConfig, tools map[string]ToolConfig, source ConfigSource) {
	for name, tc := range tools {
		rc.Config.Tools[name] = tc
		rc.Sources["tools."+name+".command"] = source
		rc.Sources["tools."+name+".max_budget_usd"] = source
	}
}

func copyRepos(rc *ResolvedConfig, repos map[string]RepoConfig, source ConfigSource) {
	for key, repo := range repos {
		rc.Config.Repos[key] = copyRepoConfig(repo)
		rc.Sources["repos."+key] = source
	}
}

// --- Layer 3: Environment ---

// Environment variable mapping:
//
//	WEBHOOK_SECRET          -> server.webhook_secret
//	GITHUB_TOKEN            -> server.github_token
//	KESTREL_LISTEN          -> server.listen
//	KESTREL_WORK_DIR        -> server.work_dir
//	KESTREL_MAX_CONCURRENT  -> server.max_concurrent_reviews
func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	s := &rc.Config.Server

	if val, ok := envFn("WEBHOOK_SECRET"); ok {
		s.WebhookSecret = val
		rc.Sources["server.webhook_secret"] = SourceEnv
	}
	if val, ok := envFn("GITHUB_TOKEN"); ok {
		s.GitHubToken = val
		rc.Sources["server.github_token"] = SourceEnv
	}
	if val, ok := envFn("KESTREL_LISTEN"); ok {
		s.Listen = val
		rc.Sources["server.listen"] = SourceEnv
	}
	if val, ok := envFn("KESTREL_WORK_DIR"); ok {
		s.WorkDir = val
		rc.Sources["server.work_dir"] = SourceEnv
	}
	// An unparsable value is ignored rather than zeroing the setting.
	if val, ok := envFn("KESTREL_MAX_CONCURRENT"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			s.MaxConcurrentReviews = n
			rc.Sources["server.max_concurrent_reviews"] = SourceEnv
		}
	}
}

// --- Layer 4: CLI overrides ---

func resolveFromCLI(rc *ResolvedConfig, overrides *CLIOverrides) {
	s := &rc.Config.Server

	if overrides.Listen != nil {
		s.Listen = *overrides.Listen
		rc.Sources["server.listen"] = SourceCLI
	}
	if overrides.WorkDir != nil {
		s.WorkDir = *overrides.WorkDir
		rc.Sources["server.work_dir"] = SourceCLI
	}
	if overrides.MaxConcurrentReviews != nil {
		s.MaxConcurrentReviews = *overrides.MaxConcurrentReviews
		rc.Sources["server.max_concurrent_reviews"] = SourceCLI
	}
}

// --- Helpers ---

// mergeString overwrites the target if force reports path or value is
// non-empty.
func mergeString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource, force forceFunc) {
	if force(path) || value != "" {
		*target = value
		record(sources, path, source)
	}
}

// mergeStrings treats a nil slice as unset. An explicitly empty list in a
// file still overrides.
func mergeStrings(target *[]string, value []string, path string, source ConfigSource, sources map[string]ConfigSource, force forceFunc) {
	if force(path) || value != nil {
		if value == nil {
			*target = nil
		} else {
			*target = append([]string{}, value...)
		}
		record(sources, path, source)
	}
}

func mergeInt(target *int, value int, path string, source ConfigSource, sources map[string]ConfigSource, force forceFunc) {
	if force(path) || value != 0 {
		*target = value
		record(sources, path, source)
	}
}

func mergeDuration(target *time.Duration, value time.Duration, path string, source ConfigSource, sources map[string]ConfigSource, force forceFunc) {
	if force(path) || value != 0 {
		*target = value
		record(sources, path, source)
	}
}

func record(sources map[string]ConfigSource, path string, source ConfigSource) {
	if sources != nil {
		sources[path] = source
	}
}

// copyRepoConfig returns a deep copy of a RepoConfig.
func copyRepoConfig(src RepoConfig) RepoConfig {
	dst := src
	if src.FallbackCLI != nil {
		dst.FallbackCLI = append([]string{}, src.FallbackCLI...)
	}
	return dst
}
