//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the agent in its own process group so Stop can signal
// every child it spawned. Pdeathsig kills the agent if this server dies
// without calling Stop.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
