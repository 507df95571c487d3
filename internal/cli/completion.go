package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCompletionCmd creates the command that generates shell completion
// scripts.
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for Kestrel.

To install completions:

  Bash:
    kestrel completion bash | sudo tee /etc/bash_completion.d/kestrel > /dev/null

  Zsh:
    kestrel completion zsh > "${fpath[1]}/_kestrel"

  Fish:
    kestrel completion fish > ~/.config/fish/completions/kestrel.fish

  PowerShell:
    kestrel completion powershell > kestrel.ps1`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func init() {
	registerCommand(newCompletionCmd)
}
