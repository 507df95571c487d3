package agent

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrCoolingDown is returned for a tool that is skipped because it recently
// reported a rate limit with a reset countdown that has not yet elapsed.
var ErrCoolingDown = errors.New("tool cooling down after rate limit")

// maxCooldown caps how long a reported countdown can bench a tool.
const maxCooldown = time.Hour

var (
	// rateLimitSignatures is the fixed set of phrases treated as a rate-limit
	// report. Tools using other phrasing surface as exit or decode failures.
	// Every phrase must start a word (or follow an underscore, as in
	// ERR_RATE_LIMIT) so review prose such as "a separate limit" does not
	// match.
	rateLimitSignatures = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\busage\s+limit`),
		regexp.MustCompile(`(?i)(?:\b|_)rate[\s_-]?limit`),
		regexp.MustCompile(`(?i)\bquota\s+(?:exceeded|exhausted)\b|\bexceeded\s+(?:your\s+)?(?:current\s+)?quota\b`),
		regexp.MustCompile(`(?i)\btoo\s+many\s+requests\b`),
		reResetIn,
	}

	// reResetIn matches "reset(s) in N unit" and "try again in N unit".
	reResetIn = regexp.MustCompile(
		`(?i)\b(?:resets?|try\s+again)\s+(?:in\s+)?(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|s|m|h)\b`,
	)
)

// RateLimitInfo describes a detected rate-limit condition.
type RateLimitInfo struct {
	// ResetAfter is the countdown the tool reported, or zero.
	ResetAfter time.Duration
	// Message is the line of output that matched.
	Message string
}

// DetectRateLimit scans output for any rate-limit signature. Matching is
// case-insensitive. It returns the info and true on a match.
func DetectRateLimit(output string) (*RateLimitInfo, bool) {
	var loc []int
	for _, re := range rateLimitSignatures {
		if loc = re.FindStringIndex(output); loc != nil {
			break
		}
	}
	if loc == nil {
		return nil, false
	}

	info := &RateLimitInfo{Message: lineAround(output, loc[0])}
	if m := reResetIn.FindStringSubmatch(output); len(m) == 3 {
		info.ResetAfter = parseResetDuration(m[1], m[2])
	}
	return info, true
}

// lineAround returns the trimmed line containing byte offset pos.
func lineAround(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	end := strings.IndexByte(s[pos:], '\n')
	if end < 0 {
		end = len(s)
	} else {
		end += pos
	}
	return truncateRunes(strings.TrimSpace(s[start:end]), maxDiagnosticRunes)
}

// parseResetDuration converts a numeric string and a time unit word into a
// time.Duration. Unrecognised units return 0.
func parseResetDuration(amount string, unit string) time.Duration {
	n, err := strconv.Atoi(amount)
	if err != nil || n <= 0 {
		return 0
	}

	unit = strings.ToLower(unit)
	switch {
	case strings.HasPrefix(unit, "s"):
		return time.Duration(n) * time.Second
	case strings.HasPrefix(unit, "m"):
		return time.Duration(n) * time.Minute
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour
	default:
		return 0
	}
}

// Cooldowns tracks tools that reported a rate limit with a countdown so that
// later reviews skip them until the countdown elapses. It is safe for
// concurrent use by multiple goroutines.
type Cooldowns struct {
	mu    sync.RWMutex
	until map[string]time.Time
	now   func() time.Time
}

// NewCooldowns returns an empty tracker.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Record benches tool for resetAfter (capped at one hour). A zero or
// negative duration is ignored. An existing cooldown is only extended,
// never shortened.
func (c *Cooldowns) Record(tool string, resetAfter time.Duration) {
	if resetAfter <= 0 {
		return
	}
	if resetAfter > maxCooldown {
		resetAfter = maxCooldown
	}
	until := c.now().Add(resetAfter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.until[tool]; ok && existing.After(until) {
		return
	}
	c.until[tool] = until
}

// Remaining returns how long tool stays benched, or 0 when it is clear.
func (c *Cooldowns) Remaining(tool string) time.Duration {
	c.mu.RLock()
	until, ok := c.until[tool]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	remaining := until.Sub(c.now())
	if remaining <= 0 {
		c.mu.Lock()
		// Re-check under the write lock; Record may have extended it.
		if u, ok := c.until[tool]; ok && !u.After(c.now()) {
			delete(c.until, tool)
		}
		c.mu.Unlock()
		return 0
	}
	return remaining
}

// Clear removes any cooldown for tool.
func (c *Cooldowns) Clear(tool string) {
	c.mu.Lock()
	delete(c.until, tool)
	c.mu.Unlock()
}
