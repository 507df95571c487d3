package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the configuration works
	// but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "server.listen"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors()) > 0
}

// HasWarnings returns true if any issue has warning severity.
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings()) > 0
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	return vr.filter(SeverityError)
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	return vr.filter(SeverityWarning)
}

func (vr *ValidationResult) filter(sev ValidationSeverity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

// validModes is the set of valid values for review_mode.
var validModes = map[string]bool{
	"single": true,
	"multi":  true,
}

// knownActions are the pull_request webhook actions GitHub sends.
var knownActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"edited":           true,
	"ready_for_review": true,
	"labeled":          true,
	"unlabeled":        true,
	"closed":           true,
}

// Validate checks a resolved configuration for correctness.
//
// Parameters:
//   - cfg: the configuration to validate
//   - meta: file metadata from LoadFromFile (may be nil if no file was loaded)
//
// Returns validation results. Check HasErrors() to determine if the config is usable.
func Validate(cfg *Config, meta *FileMeta) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateServer(vr, &cfg.Server)
	validateRepo(vr, "default", &cfg.Default, true)
	validateRepos(vr, cfg.Repos)
	validateTools(vr, cfg.Tools)
	validateStaleAfter(vr, cfg)
	validateUnknownKeys(vr, meta)

	return vr
}

// validateServer checks the [server] section.
func validateServer(vr *ValidationResult, s *ServerConfig) {
	if s.Listen == "" {
		addError(vr, "server.listen", "must not be empty")
	}

	if s.MaxConcurrentReviews <= 0 {
		addError(vr, "server.max_concurrent_reviews",
			fmt.Sprintf("must be positive, got %d", s.MaxConcurrentReviews))
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"server.shutdown_timeout", s.ShutdownTimeout},
		{"server.janitor_interval", s.JanitorInterval},
		{"server.stale_after", s.StaleAfter},
	}
	for _, d := range durations {
		if d.value <= 0 {
			addError(vr, d.field, fmt.Sprintf("must be a positive duration, got %s", d.value))
		}
	}

	if len(s.Actions) == 0 {
		addError(vr, "server.actions", "must list at least one pull_request action")
	}
	for i, action := range s.Actions {
		if !knownActions[action] {
			addWarning(vr, fmt.Sprintf("server.actions[%d]", i),
				fmt.Sprintf("unrecognized pull_request action %q", action))
		}
	}

	if u, err := url.Parse(s.GitHubAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		addError(vr, "server.github_api_url",
			fmt.Sprintf("must be an http(s) URL, got %q", s.GitHubAPIURL))
	}

	if s.WebhookSecret == "" {
		if s.AllowUnsigned {
			addWarning(vr, "server.allow_unsigned", "webhook signatures are not verified")
		} else {
			addWarning(vr, "server.webhook_secret",
				"empty; every webhook delivery will be rejected (set WEBHOOK_SECRET or allow_unsigned)")
		}
	}

	if s.WorkDir != "" {
		if info, err := os.Stat(s.WorkDir); err != nil || !info.IsDir() {
			addWarning(vr, "server.work_dir",
				fmt.Sprintf("directory %q does not exist", s.WorkDir))
		}
	}
}

// validateStaleAfter warns when the janitor could remove a checkout that a
// review is still using. A review tries at most every listed tool in turn,
// plus one synthesis pass in multi mode, each bounded by the timeout.
func validateStaleAfter(vr *ValidationResult, cfg *Config) {
	if cfg.Server.StaleAfter <= 0 {
		return
	}

	keys := make([]string, 0, len(cfg.Repos))
	for key := range cfg.Repos {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	worst, worstSection := reviewBudget(cfg.Default), "default"
	for _, key := range keys {
		policy := copyRepoConfig(cfg.Default)
		repo := cfg.Repos[key]
		mergeRepo(&policy, &repo, "", SourceFile, nil, never)
		if b := reviewBudget(policy); b > worst {
			worst, worstSection = b, "repos."+key
		}
	}

	if cfg.Server.StaleAfter <= worst {
		addWarning(vr, "server.stale_after",
			fmt.Sprintf("%s is not longer than the %s worst-case review time of %s; "+
				"the janitor may remove a checkout that is still in use",
				cfg.Server.StaleAfter, worstSection, worst))
	}
}

// reviewBudget is the longest a review under policy can run: one timeout
// per distinct tool plus one for synthesis.
func reviewBudget(policy RepoConfig) time.Duration {
	seen := make(map[string]bool)
	for _, name := range append([]string{policy.CLI}, policy.FallbackCLI...) {
		if name != "" {
			seen[name] = true
		}
	}
	return time.Duration(len(seen)+1) * policy.TimeoutDuration()
}

// validateRepo checks one review policy section. For [default] (complete
// set), empty required fields are errors; in repo sections they inherit.
func validateRepo(vr *ValidationResult, prefix string, r *RepoConfig, complete bool) {
	if complete && r.CLI == "" && len(r.FallbackCLI) == 0 {
		addError(vr, prefix+".cli", "no review tool configured")
	}

	checkTool(vr, prefix+".cli", r.CLI)
	for i, name := range r.FallbackCLI {
		checkTool(vr, fmt.Sprintf("%s.fallback_cli[%d]", prefix, i), name)
	}
	checkTool(vr, prefix+".synthesizer_cli", r.SynthesizerCLI)

	if (complete || r.ReviewMode != "") && !validModes[r.ReviewMode] {
		addError(vr, prefix+".review_mode",
			fmt.Sprintf("unrecognized mode %q; must be one of: single, multi", r.ReviewMode))
	}

	if r.Timeout < 0 || (complete && r.Timeout == 0) {
		addError(vr, prefix+".timeout",
			fmt.Sprintf("must be a positive number of seconds, got %d", r.Timeout))
	}
}

// validateRepos checks all [repos.*] sections in a stable order.
func validateRepos(vr *ValidationResult, repos map[string]RepoConfig) {
	keys := make([]string, 0, len(repos))
	for key := range repos {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prefix := "repos." + key
		if isGlob(key) {
			if !doublestar.ValidatePattern(key) {
				addError(vr, prefix, fmt.Sprintf("invalid glob pattern %q", key))
			}
		} else if strings.Count(key, "/") != 1 {
			addWarning(vr, prefix, fmt.Sprintf("key %q is not of the form owner/name and will never match", key))
		}
		repo := repos[key]
		validateRepo(vr, prefix, &repo, false)
	}
}

// validateTools checks all [tools.*] sections.
func validateTools(vr *ValidationResult, tools map[string]ToolConfig) {
	for name, tc := range tools {
		prefix := "tools." + name
		if !isKnownTool(name) {
			addWarning(vr, prefix, fmt.Sprintf("unknown tool %q", name))
		}
		if tc.MaxBudgetUSD < 0 {
			addError(vr, prefix+".max_budget_usd", "must not be negative")
		}
		if tc.MaxBudgetUSD > 0 && name != "claude" {
			addWarning(vr, prefix+".max_budget_usd", "only the claude adapter supports a budget cap")
		}
	}
}

// validateUnknownKeys reports keys that did not map to any config struct field.
func validateUnknownKeys(vr *ValidationResult, meta *FileMeta) {
	if meta == nil {
		return
	}
	for _, key := range meta.UnknownKeys {
		addWarning(vr, key, "unknown configuration key")
	}
}

func checkTool(vr *ValidationResult, field, name string) {
	if name != "" && !isKnownTool(name) {
		addError(vr, field, fmt.Sprintf("unknown tool %q; must be one of: %s",
			name, strings.Join(agent.KnownTools, ", ")))
	}
}

func isKnownTool(name string) bool {
	for _, known := range agent.KnownTools {
		if name == known {
			return true
		}
	}
	return false
}

// addError appends an error-severity issue to the validation result.
func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

// addWarning appends a warning-severity issue to the validation result.
func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
