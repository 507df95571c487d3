package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/git"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/logging"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/pipeline"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
)

// reviewFlags holds parsed flag values for the review command.
type reviewFlags struct {
	// DiffFile is a unified diff to review; "-" reads stdin.
	DiffFile string

	// Base is the git ref to diff HEAD against when DiffFile is empty.
	Base string

	// Dir is the checkout the tools run in.
	Dir string

	// Repo selects the [repos."owner/name"] policy.
	Repo string

	// Mode overrides the policy's review mode.
	Mode string

	// JSON prints the parsed result as JSON instead of markdown.
	JSON bool
}

// newReviewCmd creates the "kestrel review" command.
func newReviewCmd() *cobra.Command {
	var flags reviewFlags

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review a local diff with the configured tools",
		Long: `Run the same review the webhook server runs, against a local diff, and print
the result instead of posting it. The tools, mode, language and timeout come
from [default], or from the repository section selected with --repo.`,
		Example: `  # Review the current branch against main
  kestrel review --base main

  # Review a saved diff with the policy of one repository, as JSON
  kestrel review --diff pr.diff --repo acme/widgets --json

  # Review a diff from stdin in multi mode
  git diff main... | kestrel review --diff - --mode multi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.DiffFile, "diff", "", `Unified diff file to review ("-" for stdin)`)
	cmd.Flags().StringVar(&flags.Base, "base", "", "Git ref to diff HEAD against")
	cmd.Flags().StringVar(&flags.Dir, "dir", ".", "Checkout the review tools run in")
	cmd.Flags().StringVar(&flags.Repo, "repo", "", "Repository (owner/name) whose policy to use")
	cmd.Flags().StringVar(&flags.Mode, "mode", "", `Override the review mode: "single" or "multi"`)
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("diff", "base")
	cmd.MarkFlagsOneRequired("diff", "base")

	_ = cmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(review.ModeSingle), string(review.ModeMulti)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func init() {
	registerCommand(newReviewCmd)
}

func runReview(cmd *cobra.Command, flags reviewFlags) error {
	logger := logging.New("review")

	if flags.Mode != "" && !review.Mode(flags.Mode).IsValid() {
		return fmt.Errorf("invalid --mode %q: must be %q or %q", flags.Mode, review.ModeSingle, review.ModeMulti)
	}

	resolved, _, err := loadAndResolveConfig(nil)
	if err != nil {
		return err
	}
	cfg := resolved.Config

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	diff, err := readDiff(ctx, cmd.InOrStdin(), flags)
	if err != nil {
		return err
	}
	if strings.TrimSpace(diff) == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes to review.")
		return nil
	}

	policy := pipeline.PolicyFromConfig(cfg.PolicyFor(flags.Repo))
	if flags.Mode != "" {
		policy.Mode = review.Mode(flags.Mode)
	}

	prompt, err := review.BuildReviewPrompt(diff, policy.Language, policy.ExtraInstructions)
	if err != nil {
		return err
	}

	label := flags.Repo
	if label == "" {
		label = "local"
	}

	strategy, _ := buildStrategy(cfg, logger)
	raw, err := strategy.Run(ctx, review.Request{
		Policy:  policy,
		Prompt:  prompt,
		Diff:    diff,
		WorkDir: flags.Dir,
		Label:   label,
	})
	if err != nil {
		if errors.Is(err, agent.ErrUnknownTool) {
			return fmt.Errorf("%w (known tools: %s)", err, strings.Join(agent.KnownTools, ", "))
		}
		return err
	}

	result := review.Parse(raw)
	out := cmd.OutOrStdout()
	if flags.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	report, err := review.RenderMarkdown(result, flags.Repo)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, report)
	return err
}

// readDiff returns the diff named by flags: a file, stdin, or the output of
// git diff against the base ref.
func readDiff(ctx context.Context, stdin io.Reader, flags reviewFlags) (string, error) {
	switch {
	case flags.DiffFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading diff from stdin: %w", err)
		}
		return string(data), nil
	case flags.DiffFile != "":
		data, err := os.ReadFile(flags.DiffFile)
		if err != nil {
			return "", fmt.Errorf("reading diff: %w", err)
		}
		return string(data), nil
	default:
		return git.NewGitClient().DiffUnified(ctx, flags.Dir, flags.Base)
	}
}
