package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/git"
)

// toolStatus is one row of the agents table.
type toolStatus struct {
	Name    string
	Command string
	Err     error
}

// errNoTools is returned by "kestrel agents" when no review tool is
// installed.
var errNoTools = errors.New("no review tool is available")

// newAgentsCmd creates "kestrel agents".
func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Check which review tools are installed",
		Long: `List every built-in review tool with the executable it runs (after
[tools.*] command overrides) and whether that executable was found on PATH.
Also checks git, which the webhook server needs to clone pull requests.

Exits non-zero when no review tool is available.`,
		Args: cobra.NoArgs,
		RunE: runAgents,
	}
}

func init() {
	registerCommand(newAgentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	resolved, _, err := loadAndResolveConfig(nil)
	if err != nil {
		return err
	}

	registry := buildRegistry(resolved.Config)
	statuses := make([]toolStatus, 0, len(agent.KnownTools)+1)
	statuses = append(statuses, toolStatus{
		Name:    "git",
		Command: "git",
		Err:     git.NewGitClient().CheckPrerequisites(cmd.Context()),
	})

	available := 0
	for _, name := range registry.List() {
		a, err := registry.Get(name)
		if err != nil {
			return err
		}
		st := toolStatus{
			Name:    name,
			Command: a.BuildCommand("", "").Name,
			Err:     a.CheckPrerequisites(),
		}
		if st.Err == nil {
			available++
		}
		statuses = append(statuses, st)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderToolTable(statuses))
	if available == 0 {
		return errNoTools
	}
	return nil
}

var (
	styleTableHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)
)

// renderToolTable renders statuses with TOOL, COMMAND and STATUS columns.
func renderToolTable(statuses []toolStatus) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers("TOOL", "COMMAND", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			if col == 2 && row >= 0 && row < len(statuses) {
				if statuses[row].Err != nil {
					return styleTableCell.Foreground(lipgloss.Color("9"))
				}
				return styleTableCell.Foreground(lipgloss.Color("10"))
			}
			return styleTableCell
		})

	for _, st := range statuses {
		status := "ok"
		if st.Err != nil {
			status = "missing: " + st.Err.Error()
		}
		t.Row(st.Name, st.Command, status)
	}
	return t.Render()
}
