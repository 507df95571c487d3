package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// CloneDepth is the history depth fetched for a pull request checkout. Some
// review tools (codex) inspect recent history, so a single commit is not
// enough.
const CloneDepth = 50

// GitClient wraps git CLI operations. All methods use os/exec to call
// the git binary, following the same pattern as gh, lazygit, and k9s.
type GitClient struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// NewGitClient creates a new GitClient using the git binary on PATH.
func NewGitClient() *GitClient {
	return &GitClient{GitBin: "git"}
}

// CheckPrerequisites verifies that git is installed.
func (g *GitClient) CheckPrerequisites(ctx context.Context) error {
	if _, err := g.run(ctx, "", "version"); err != nil {
		return fmt.Errorf("git: prerequisites: %w", err)
	}
	return nil
}

// --- Checkout Operations ---

// Clone clones cloneURL into dir and checks out ref (a branch name or a
// commit SHA within the first CloneDepth commits). dir must not exist or be
// empty. Credentials embedded in cloneURL never appear in returned errors.
func (g *GitClient) Clone(ctx context.Context, cloneURL, ref, dir string) error {
	safeURL := Redact(cloneURL)

	_, err := g.run(ctx, "",
		"clone",
		"--depth", strconv.Itoa(CloneDepth),
		"--no-single-branch",
		cloneURL, dir,
	)
	if err != nil {
		return fmt.Errorf("git: clone %s: %w", safeURL, err)
	}

	if _, err := g.run(ctx, dir, "checkout", ref); err != nil {
		return fmt.Errorf("git: checkout %q: %w", ref, err)
	}
	return nil
}

// --- Diff Operations ---

// DiffUnified returns the full unified diff between base and HEAD of the
// repository at dir.
func (g *GitClient) DiffUnified(ctx context.Context, dir, base string) (string, error) {
	out, err := g.run(ctx, dir, "diff", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("git: diff unified from %q: %w", base, err)
	}
	return out, nil
}

// --- Log Operations ---

// HeadCommit returns the full SHA of the HEAD commit of the repository at dir.
func (g *GitClient) HeadCommit(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git: head commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// --- Credentials ---

// AuthenticatedURL returns cloneURL with token embedded as the password of
// the x-access-token user, the form GitHub accepts for installation and
// personal tokens over HTTPS. An empty token returns cloneURL unchanged.
func AuthenticatedURL(cloneURL, token string) (string, error) {
	if token == "" {
		return cloneURL, nil
	}
	u, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("git: parse clone url %q", Redact(cloneURL))
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("git: clone url %q: token auth needs an http(s) url", Redact(cloneURL))
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

// userinfoRe matches the credentials part of a URL.
var userinfoRe = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^@/\s]+@`)

// Redact masks URL credentials in s and every non-empty secret.
func Redact(s string, secrets ...string) string {
	s = userinfoRe.ReplaceAllString(s, "${1}***@")
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}

// --- Internal helpers ---

// run executes a git command in dir and returns stdout.
// Redacted stderr is included in the error message when the command fails.
func (g *GitClient) run(ctx context.Context, dir string, args ...string) (string, error) {
	_, stdout, stderr, err := g.runSilent(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	if stdout == "" && stderr != "" {
		// Some git commands (e.g., checkout) write to stderr on success.
		return stderr, nil
	}
	return stdout, nil
}

// runSilent executes a git command and returns the exit code, stdout, stderr,
// and an error. The error is non-nil for both exec failures (exitCode=-1, e.g.
// git binary not found) and non-zero git exits (exitCode>0). Callers that need
// to distinguish the two cases check whether exitCode == -1.
func (g *GitClient) runSilent(ctx context.Context, dir string, args ...string) (int, string, string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	// Never block on a credential prompt; a bad token must fail fast.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
			stderr := Redact(strings.TrimSpace(stderrBuf.String()))
			stdout := strings.TrimSpace(stdoutBuf.String())
			if ctxErr := ctx.Err(); ctxErr != nil {
				return exitCode, stdout, stderr, fmt.Errorf("%w: %s", ctxErr, stderr)
			}
			return exitCode, stdout, stderr, fmt.Errorf("exit status %d: %s", exitCode, stderr)
		}
		// The process could not be started at all.
		return -1, "", "", runErr
	}

	return exitCode, stdoutBuf.String(), stderrBuf.String(), nil
}
