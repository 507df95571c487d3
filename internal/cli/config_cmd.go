package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
)

// newConfigCmd creates "kestrel config" with its show and validate
// subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
		Long:  "Inspect and validate Kestrel configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show resolved configuration with source annotations",
		Long: `Display the fully-resolved configuration showing each value and the
source it came from (cli flag, environment variable, config file, or default).
Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, _, err := loadAndResolveConfig(nil)
			if err != nil {
				return err
			}
			printResolvedConfig(cmd.OutOrStdout(), resolved)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and report issues",
		Long:  "Check the configuration for errors and warnings. Exits non-zero when errors are found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, meta, err := loadAndResolveConfig(nil)
			if err != nil {
				return err
			}
			result := config.Validate(resolved.Config, meta)
			printValidationResult(cmd.OutOrStdout(), result)
			if result.HasErrors() {
				return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
			}
			return nil
		},
	})

	return cmd
}

func init() {
	registerCommand(newConfigCmd)
}

// loadAndResolveConfig loads the file named by --config, or the first
// kestrel.toml / kestrel.yaml found walking up from the working directory,
// and layers environment variables and overrides on top. meta is nil when
// no file was found.
func loadAndResolveConfig(overrides *config.CLIOverrides) (*config.ResolvedConfig, *config.FileMeta, error) {
	cfgPath := flagConfig
	if cfgPath == "" {
		found, err := config.FindConfigFile(".")
		if err != nil {
			return nil, nil, fmt.Errorf("finding config file: %w", err)
		}
		cfgPath = found
	}

	var (
		fileCfg *config.Config
		meta    *config.FileMeta
	)
	if cfgPath != "" {
		fc, md, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		fileCfg, meta = fc, md
	}

	resolved := config.Resolve(config.NewDefaults(), fileCfg, meta, os.LookupEnv, overrides)
	resolved.Path = cfgPath
	return resolved, meta, nil
}

// ---- Lipgloss styles --------------------------------------------------------

// sourceStyle returns the color for a value's source. --no-color switches
// lipgloss to the Ascii profile, which drops the escapes.
func sourceStyle(src config.ConfigSource) lipgloss.Style {
	switch src {
	case config.SourceFile:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // bright blue
	case config.SourceEnv:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // bright yellow
	case config.SourceCLI:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // bright red
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // bright green
	}
}

var (
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleSection  = lipgloss.NewStyle().Bold(true)
	styleErrorLbl = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarnLbl  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleSuccess  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// ---- printResolvedConfig ----------------------------------------------------

const fieldWidth = 24

func printHeader(out io.Writer, title string) {
	fmt.Fprintln(out, styleHeader.Render(title))
	fmt.Fprintln(out, strings.Repeat("=", len(title)))
	fmt.Fprintln(out)
}

func printResolvedConfig(out io.Writer, rc *config.ResolvedConfig) {
	printHeader(out, "Resolved Configuration")

	if rc.Path != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", rc.Path)
	} else {
		fmt.Fprint(out, "Config file: none found\n\n")
	}

	src := func(key string) config.ConfigSource {
		if s, ok := rc.Sources[key]; ok {
			return s
		}
		return config.SourceDefault
	}

	s := rc.Config.Server
	fmt.Fprintln(out, styleSection.Render("[server]"))
	printField(out, "listen", fmtStr(s.Listen), src("server.listen"))
	printField(out, "webhook_secret", fmtSecret(s.WebhookSecret), src("server.webhook_secret"))
	printField(out, "allow_unsigned", strconv.FormatBool(s.AllowUnsigned), src("server.allow_unsigned"))
	printField(out, "github_token", fmtSecret(s.GitHubToken), src("server.github_token"))
	printField(out, "bot_username", fmtStr(s.BotUsername), src("server.bot_username"))
	printField(out, "actions", fmtSlice(s.Actions), src("server.actions"))
	printField(out, "max_concurrent_reviews", strconv.Itoa(s.MaxConcurrentReviews), src("server.max_concurrent_reviews"))
	printField(out, "work_dir", fmtStr(s.WorkDir), src("server.work_dir"))
	printField(out, "github_api_url", fmtStr(s.GitHubAPIURL), src("server.github_api_url"))
	printField(out, "shutdown_timeout", fmtDuration(s.ShutdownTimeout), src("server.shutdown_timeout"))
	printField(out, "janitor_interval", fmtDuration(s.JanitorInterval), src("server.janitor_interval"))
	printField(out, "stale_after", fmtDuration(s.StaleAfter), src("server.stale_after"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, styleSection.Render("[default]"))
	printRepo(out, rc.Config.Default, "default", src)

	for _, key := range sortedKeys(rc.Config.Repos) {
		fmt.Fprintln(out, styleSection.Render(fmt.Sprintf("[repos.%q]", key)))
		repoSrc := src("repos." + key)
		printRepo(out, rc.Config.Repos[key], "", func(string) config.ConfigSource { return repoSrc })
	}

	for _, name := range sortedKeys(rc.Config.Tools) {
		tc := rc.Config.Tools[name]
		prefix := "tools." + name
		fmt.Fprintln(out, styleSection.Render(fmt.Sprintf("[tools.%s]", name)))
		printField(out, "command", fmtStr(tc.Command), src(prefix+".command"))
		printField(out, "max_budget_usd", strconv.FormatFloat(tc.MaxBudgetUSD, 'f', -1, 64), src(prefix+".max_budget_usd"))
		fmt.Fprintln(out)
	}
}

// printRepo prints a [default] or [repos.*] section. Unset fields of a repo
// section are shown as inherited.
func printRepo(out io.Writer, r config.RepoConfig, prefix string, src func(string) config.ConfigSource) {
	key := func(field string) string { return prefix + "." + field }
	inherit := prefix == ""

	str := func(v string) string {
		if inherit && v == "" {
			return "(inherited)"
		}
		return fmtStr(v)
	}

	printField(out, "cli", str(r.CLI), src(key("cli")))
	if inherit && r.FallbackCLI == nil {
		printField(out, "fallback_cli", "(inherited)", src(key("fallback_cli")))
	} else {
		printField(out, "fallback_cli", fmtSlice(r.FallbackCLI), src(key("fallback_cli")))
	}
	printField(out, "review_mode", str(r.ReviewMode), src(key("review_mode")))
	printField(out, "synthesizer_cli", str(r.SynthesizerCLI), src(key("synthesizer_cli")))
	printField(out, "language", str(r.Language), src(key("language")))
	if inherit && r.Timeout == 0 {
		printField(out, "timeout", "(inherited)", src(key("timeout")))
	} else {
		printField(out, "timeout", strconv.Itoa(r.Timeout), src(key("timeout")))
	}
	printField(out, "extra_instructions", str(r.ExtraInstructions), src(key("extra_instructions")))
	fmt.Fprintln(out)
}

// printField writes a single key = value (source: ...) line.
func printField(out io.Writer, name, value string, src config.ConfigSource) {
	padded := fmt.Sprintf("  %-*s", fieldWidth, name)
	srcLabel := sourceStyle(src).Render(fmt.Sprintf("(source: %s)", src))
	fmt.Fprintf(out, "%s = %-40s %s\n", padded, value, srcLabel)
}

func fmtStr(s string) string {
	return strconv.Quote(s)
}

// fmtSecret never prints the secret itself.
func fmtSecret(s string) string {
	if s == "" {
		return `""`
	}
	return "<redacted>"
}

func fmtDuration(d time.Duration) string {
	return strconv.Quote(d.String())
}

func fmtSlice(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---- printValidationResult --------------------------------------------------

func printValidationResult(out io.Writer, result *config.ValidationResult) {
	printHeader(out, "Configuration Validation")

	errs := result.Errors()
	warns := result.Warnings()

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(out, styleSuccess.Render("No issues found."))
		return
	}

	if len(errs) > 0 {
		fmt.Fprintln(out, styleErrorLbl.Render("Errors:"))
		for _, issue := range errs {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	if len(warns) > 0 {
		fmt.Fprintln(out, styleWarnLbl.Render("Warnings:"))
		for _, issue := range warns {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(errs), len(warns))
}
