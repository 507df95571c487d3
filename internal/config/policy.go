package config

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// isGlob reports whether a [repos] key is a pattern rather than a literal
// "owner/name".
func isGlob(key string) bool {
	return strings.ContainsAny(key, "*?[{")
}

// MatchRepo returns the [repos] key that applies to fullName ("owner/name").
// An exact key wins; otherwise the first glob key in sorted order that
// matches. Malformed patterns never match.
func (c *Config) MatchRepo(fullName string) (string, bool) {
	if _, ok := c.Repos[fullName]; ok {
		return fullName, true
	}

	globs := make([]string, 0, len(c.Repos))
	for key := range c.Repos {
		if isGlob(key) {
			globs = append(globs, key)
		}
	}
	sort.Strings(globs)

	for _, pattern := range globs {
		if ok, err := doublestar.Match(pattern, fullName); err == nil && ok {
			return pattern, true
		}
	}
	return "", false
}

// PolicyFor returns the effective review settings for fullName: the
// matching repo section merged over [default], or [default] alone when no
// section matches.
func (c *Config) PolicyFor(fullName string) RepoConfig {
	policy := copyRepoConfig(c.Default)
	if key, ok := c.MatchRepo(fullName); ok {
		repo := c.Repos[key]
		mergeRepo(&policy, &repo, "", SourceFile, nil, never)
	}
	return policy
}
