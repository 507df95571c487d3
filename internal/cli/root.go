package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/logging"
)

// Global flag values accessible to all subcommands.
var (
	flagVerbose bool
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
)

// subcommands holds the constructor of every top-level subcommand, in
// registration order.
var subcommands []func() *cobra.Command

// registerCommand adds a top-level subcommand. Called from init.
func registerCommand(newCmd func() *cobra.Command) {
	subcommands = append(subcommands, newCmd)
}

// NewRootCmd builds the kestrel command tree. Each call returns fresh
// commands, so flag state never leaks between trees; the persistent flags
// are bound to the package-level flag variables.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kestrel",
		Short: "AI code review for GitHub pull requests",
		Long: `Kestrel receives GitHub pull request webhooks, checks out the pull request,
asks one or more AI code-review CLIs (claude, codex, gemini, opencode, copilot)
to review the diff, and posts the result back as a pull request review with
inline comments.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: persistentPreRun,
	}

	f := cmd.PersistentFlags()
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: KESTREL_VERBOSE)")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: KESTREL_QUIET)")
	f.StringVar(&flagConfig, "config", "", "Path to kestrel.toml or kestrel.yaml")
	f.BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: KESTREL_NO_COLOR, NO_COLOR)")

	for _, newCmd := range subcommands {
		cmd.AddCommand(newCmd())
	}
	return cmd
}

// persistentPreRun applies environment fallbacks for the global flags and
// configures logging and color before any subcommand runs.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("verbose") && os.Getenv("KESTREL_VERBOSE") != "" {
		flagVerbose = true
	}
	if !cmd.Flags().Changed("quiet") && os.Getenv("KESTREL_QUIET") != "" {
		flagQuiet = true
	}
	if !cmd.Flags().Changed("no-color") && (os.Getenv("NO_COLOR") != "" || os.Getenv("KESTREL_NO_COLOR") != "") {
		flagNoColor = true
	}

	logging.Setup(flagVerbose, flagQuiet, logging.JSONFromEnv(os.LookupEnv))

	if flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
