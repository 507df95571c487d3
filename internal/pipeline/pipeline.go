// Package pipeline runs the review of one pull request from checkout to
// posted review: gate permit, temporary work directory, clone, diff fetch,
// prompt, review strategy, parse, post, cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/git"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
)

// WorkDirPrefix prefixes every temporary checkout directory. The janitor
// uses it to find directories left behind by a crashed process.
const WorkDirPrefix = "kestrel-review-"

// ErrInvalidEvent is returned by Process when the event lacks a field the
// pipeline needs.
var ErrInvalidEvent = errors.New("pipeline: invalid event")

// Cloner checks out a repository. *git.GitClient satisfies it.
type Cloner interface {
	Clone(ctx context.Context, cloneURL, ref, dir string) error
}

// PRClient is the part of the GitHub API the pipeline uses.
// *github.Client satisfies it.
type PRClient interface {
	GetPRDiff(ctx context.Context, owner, repo string, number int) (string, error)
	PostReview(ctx context.Context, owner, repo string, number int, commitSHA string, result review.ReviewResult) (github.PostedReview, error)
}

// ClientFactory builds a PRClient for one delivery's token.
type ClientFactory func(token string) (PRClient, error)

// Reviewer produces the raw review text. *review.Strategy satisfies it.
type Reviewer interface {
	Run(ctx context.Context, req review.Request) (string, error)
}

// PolicySource resolves the review configuration for a repository.
// *config.Config satisfies it.
type PolicySource interface {
	PolicyFor(fullName string) config.RepoConfig
}

// Pipeline processes pull request events. It is safe for concurrent use;
// the gate bounds how many reviews run at once.
type Pipeline struct {
	cloner   Cloner
	clients  ClientFactory
	reviewer Reviewer
	policies PolicySource
	gate     *review.Gate
	workRoot string
	logger   *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger. Without one the pipeline is silent.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithGate replaces the default gate of review.DefaultConcurrency permits.
func WithGate(g *review.Gate) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.gate = g
		}
	}
}

// WithWorkRoot sets the directory temporary checkouts are created in.
// Empty means os.TempDir().
func WithWorkRoot(dir string) Option {
	return func(p *Pipeline) {
		p.workRoot = dir
	}
}

// New creates a Pipeline.
func New(cloner Cloner, clients ClientFactory, reviewer Reviewer, policies PolicySource, opts ...Option) *Pipeline {
	p := &Pipeline{
		cloner:   cloner,
		clients:  clients,
		reviewer: reviewer,
		policies: policies,
		gate:     review.NewGate(review.DefaultConcurrency),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GitHubClients returns a ClientFactory producing *github.Client values
// with the given options.
func GitHubClients(opts ...github.Option) ClientFactory {
	return func(token string) (PRClient, error) {
		c, err := github.New(token, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// PolicyFromConfig converts a resolved repository section into a review
// policy.
func PolicyFromConfig(rc config.RepoConfig) review.Policy {
	return review.Policy{
		PrimaryTool:       rc.CLI,
		FallbackTools:     append([]string(nil), rc.FallbackCLI...),
		Mode:              review.Mode(rc.ReviewMode),
		SynthesizerTool:   rc.SynthesizerCLI,
		Language:          rc.Language,
		Timeout:           rc.TimeoutDuration(),
		ExtraInstructions: rc.ExtraInstructions,
	}
}

// Validate reports which fields a pipeline run needs are missing from ev.
// The error wraps ErrInvalidEvent.
func Validate(ev *github.PullRequestEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: no event", ErrInvalidEvent)
	}
	var missing []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"owner", ev.Owner() != ""},
		{"repo", ev.Repo() != ""},
		{"pr number", ev.Number() > 0},
		{"head sha", ev.HeadSHA() != ""},
		{"clone url", ev.CloneURL() != ""},
		{"head ref", ev.HeadRef() != ""},
	} {
		if !f.ok {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, strings.Join(missing, ", "))
	}
	return nil
}

// Process reviews the pull request described by ev and posts the result,
// authenticating clone and API calls with token. The checkout is removed
// before Process returns. Nothing is posted when any step fails.
func (p *Pipeline) Process(ctx context.Context, ev *github.PullRequestEvent, token string) error {
	if err := Validate(ev); err != nil {
		return err
	}

	logger := p.logger
	if logger != nil {
		logger = logger.With("repo", ev.FullName(), "pr", ev.Number())
		if ev.DeliveryID != "" {
			logger = logger.With("delivery", ev.DeliveryID)
		}
	}

	start := time.Now()
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		return p.run(ctx, ev, token, logger)
	})
	if err != nil {
		if logger != nil {
			logger.Error("review failed",
				"duration", time.Since(start).Round(time.Millisecond),
				"error", err,
			)
		}
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, ev *github.PullRequestEvent, token string, logger *log.Logger) error {
	start := time.Now()

	dir, err := os.MkdirTemp(p.workRoot, WorkDirPrefix)
	if err != nil {
		return fmt.Errorf("pipeline: creating work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil && logger != nil {
			logger.Warn("removing work dir", "dir", dir, "error", rmErr)
		}
	}()

	policy := PolicyFromConfig(p.policies.PolicyFor(ev.FullName()))
	if logger != nil {
		logger.Info("starting review",
			"mode", policy.Mode,
			"tools", policy.Tools(),
			"sha", shortSHA(ev.HeadSHA()),
		)
	}

	client, err := p.clients(token)
	if err != nil {
		return fmt.Errorf("pipeline: github client: %w", err)
	}

	cloneURL, err := git.AuthenticatedURL(ev.CloneURL(), token)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := p.cloner.Clone(ctx, cloneURL, ev.HeadRef(), dir); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	diff, err := client.GetPRDiff(ctx, ev.Owner(), ev.Repo(), ev.Number())
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	prompt, err := review.BuildReviewPrompt(diff, policy.Language, policy.ExtraInstructions)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	raw, err := p.reviewer.Run(ctx, review.Request{
		Policy:  policy,
		Prompt:  prompt,
		Diff:    diff,
		WorkDir: dir,
		Label:   ev.Label(),
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	result, structured := review.TryParse(raw)
	if !structured && logger != nil {
		logger.Debug("review output is not structured JSON, posting it as the summary")
	}

	posted, err := client.PostReview(ctx, ev.Owner(), ev.Repo(), ev.Number(), ev.HeadSHA(), result)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if logger != nil {
		logger.Info("posted review",
			"review_id", posted.ID,
			"url", posted.HTMLURL,
			"comments", len(result.Comments),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
