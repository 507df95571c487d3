package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/git"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/janitor"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/logging"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/pipeline"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/webhook"
)

// serveFlags holds parsed flag values for the serve command.
type serveFlags struct {
	Listen        string
	WorkDir       string
	MaxConcurrent int
}

// newServeCmd creates the "kestrel serve" command.
func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Start the HTTP server that receives GitHub pull_request webhooks on
POST /webhook and reviews each opened or updated pull request in the
background. GET /health reports liveness.

The server stops on SIGINT or SIGTERM, waiting up to server.shutdown_timeout
for running reviews to finish.`,
		Example: `  # Serve with kestrel.toml from the current directory
  WEBHOOK_SECRET=... GITHUB_TOKEN=... kestrel serve

  # Override the listen address and concurrency
  kestrel serve --listen :9000 --max-concurrent 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	bindServeFlags(cmd, &flags)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, flags *serveFlags) {
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&flags.WorkDir, "work-dir", "", "Directory for temporary checkouts (default: system temp dir)")
	cmd.Flags().IntVar(&flags.MaxConcurrent, "max-concurrent", 0, "Maximum reviews running at once")
}

func init() {
	registerCommand(newServeCmd)
}

// serveOverrides returns the CLI overrides for flags the user set.
func serveOverrides(cmd *cobra.Command, flags *serveFlags) *config.CLIOverrides {
	o := &config.CLIOverrides{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "listen":
			o.Listen = &flags.Listen
		case "work-dir":
			o.WorkDir = &flags.WorkDir
		case "max-concurrent":
			o.MaxConcurrentReviews = &flags.MaxConcurrent
		}
	})
	return o
}

func runServe(cmd *cobra.Command, flags serveFlags) error {
	logger := logging.New("serve")

	resolved, meta, err := loadAndResolveConfig(serveOverrides(cmd, &flags))
	if err != nil {
		return err
	}
	cfg := resolved.Config

	result := config.Validate(cfg, meta)
	for _, w := range result.Warnings() {
		logger.Warn("config", "field", w.Field, "issue", w.Message)
	}
	if result.HasErrors() {
		printValidationResult(cmd.ErrOrStderr(), result)
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
	}

	workRoot := cfg.Server.WorkDir
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return fmt.Errorf("creating work dir %s: %w", workRoot, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gitClient := git.NewGitClient()
	if err := gitClient.CheckPrerequisites(ctx); err != nil {
		return err
	}

	strategy, registry := buildStrategy(cfg, logging.New("review"))
	warnMissingTools(logger, registry, cfg)

	p := pipeline.New(
		gitClient,
		pipeline.GitHubClients(github.WithAPIURL(cfg.Server.GitHubAPIURL)),
		strategy,
		cfg,
		pipeline.WithLogger(logging.New("pipeline")),
		pipeline.WithGate(review.NewGate(cfg.Server.MaxConcurrentReviews)),
		pipeline.WithWorkRoot(workRoot),
	)
	dispatcher := pipeline.NewDispatcher(p, logging.New("dispatch"))

	j := janitor.New(workRoot, pipeline.WorkDirPrefix, cfg.Server.StaleAfter, cfg.Server.JanitorInterval,
		janitor.WithLogger(logging.New("janitor")))
	if err := j.Start(); err != nil {
		return err
	}
	defer func() {
		if err := j.Stop(); err != nil {
			logger.Warn("stopping janitor", "error", err)
		}
	}()

	logger.Info("starting",
		"config", resolved.Path,
		"work_dir", workRoot,
		"max_concurrent", cfg.Server.MaxConcurrentReviews,
	)

	srv := webhook.New(cfg.Server, dispatcher, webhook.WithLogger(logging.New("webhook")))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// warnMissingTools logs tools referenced by a policy whose executable is not
// installed. Reviews still run; the strategy treats the tool as failed.
func warnMissingTools(logger *log.Logger, registry *agent.Registry, cfg *config.Config) {
	for _, name := range referencedTools(cfg) {
		a, err := registry.Get(name)
		if err != nil {
			continue // reported by Validate
		}
		if err := a.CheckPrerequisites(); err != nil {
			logger.Warn("review tool not available", "tool", name, "error", err)
		}
	}
}

// referencedTools lists every tool named by [default] or a repo section, in
// first-seen order.
func referencedTools(cfg *config.Config) []string {
	var names []string
	add := func(rc config.RepoConfig) {
		names = append(names, rc.CLI)
		names = append(names, rc.FallbackCLI...)
		names = append(names, rc.SynthesizerCLI)
	}
	add(cfg.Default)
	for _, key := range sortedKeys(cfg.Repos) {
		add(cfg.Repos[key])
	}
	return review.OrderedTools("", names)
}
