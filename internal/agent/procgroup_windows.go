//go:build windows

package agent

import (
	"os/exec"
	"time"
)

const killGrace = 3 * time.Second

// setProcGroup only sets WaitDelay on Windows. exec.CommandContext already
// kills the direct child on cancellation; there are no Unix process groups.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = killGrace
}
