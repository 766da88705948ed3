//go:build unix && !linux

package process

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the agent in its own process group. Pdeathsig is Linux
// only; elsewhere orphan cleanup relies on Stop.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
