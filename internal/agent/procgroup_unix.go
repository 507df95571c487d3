//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
	"time"
)

// killGrace bounds how long Wait keeps draining output pipes after the
// process group has been killed; grandchildren holding the pipes open must
// not keep a timed-out review alive.
const killGrace = 3 * time.Second

// setProcGroup starts cmd in its own process group and makes context
// cancellation SIGKILL the whole group, so review tools that spawn helpers
// (node, git, shells) leave nothing behind on timeout.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID addresses the process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	cmd.WaitDelay = killGrace
}
