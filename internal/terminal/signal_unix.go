//go:build !windows

package terminal

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// hangup sends SIGHUP and SIGTERM to the shell, the way closing a terminal
// window does.
func hangup(p *os.Process) {
	_ = p.Signal(syscall.SIGHUP)
	_ = p.Signal(syscall.SIGTERM)
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}
