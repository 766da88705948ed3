//go:build windows

package terminal

import (
	"errors"
	"os"
	"os/exec"
)

func hangup(p *os.Process) {
	_ = p.Kill()
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
