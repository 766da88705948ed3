// Package scripts runs a project's run scripts (tests, builds, linters)
// inside a session worktree.
package scripts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultKillGrace = 5 * time.Second
)

// Result is the outcome of one script run.
type Result struct {
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"` // seconds
}

// LineFunc receives each non-empty output line as it is produced. Calls are
// serialized.
type LineFunc func(line string)

// Runner executes one script at a time.
type Runner struct {
	timeout   time.Duration
	killGrace time.Duration
	logger    *logger.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	waitCh  chan struct{}
}

// NewRunner creates a Runner. Non-positive durations use the defaults.
func NewRunner(timeout, killGrace time.Duration, log *logger.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &Runner{
		timeout:   timeout,
		killGrace: killGrace,
		logger:    log.WithFields(zap.String("component", "script-runner")),
	}
}

// IsRunning reports whether a script is executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run executes command with `sh -c` in worktreePath and waits for it. A
// zero timeout uses the runner default. On timeout the script is sent
// SIGTERM, then SIGKILL after the kill grace, and the result has exit code
// -1 with a note appended to the output.
func (r *Runner) Run(ctx context.Context, worktreePath, command string, timeout time.Duration, onLine LineFunc) (*Result, error) {
	if timeout <= 0 {
		timeout = r.timeout
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, apperrors.AlreadyRunning("script")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.cmd = nil
		r.waitCh = nil
		r.mu.Unlock()
	}()

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = worktreePath
	cmd.Env = os.Environ()
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start script: %w", err)
	}

	waitCh := make(chan struct{})
	r.mu.Lock()
	r.cmd = cmd
	r.waitCh = waitCh
	r.mu.Unlock()

	r.logger.Info("running script",
		zap.String("workdir", worktreePath),
		zap.String("command", command),
		zap.Duration("timeout", timeout))

	start := time.Now()
	out := &collector{onLine: onLine}

	var readers sync.WaitGroup
	readers.Add(2)
	go out.read(stdout, &readers)
	go out.read(stderr, &readers)

	var waitErr error
	go func() {
		readers.Wait()
		waitErr = cmd.Wait()
		close(waitCh)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waitCh:
		code := cmd.ProcessState.ExitCode()
		elapsed := time.Since(start).Seconds()
		r.logger.Info("script completed",
			zap.Int("exit_code", code),
			zap.Float64("execution_time", elapsed),
			zap.NamedError("wait_error", waitErr))
		return &Result{
			Success:       code == 0,
			Output:        out.String(),
			ExitCode:      code,
			ExecutionTime: elapsed,
		}, nil

	case <-timer.C:
		r.logger.Warn("script timed out", zap.Duration("timeout", timeout))
		r.shutdown(context.Background(), cmd, waitCh)
		return &Result{
			Success:       false,
			Output:        out.String() + fmt.Sprintf("\n\nScript timed out after %d seconds", int(timeout.Seconds())),
			ExitCode:      -1,
			ExecutionTime: time.Since(start).Seconds(),
		}, nil

	case <-ctx.Done():
		r.shutdown(context.Background(), cmd, waitCh)
		return nil, ctx.Err()
	}
}

// Stop terminates the running script with the same escalation as a
// timeout and waits for it to be reaped. It is a no-op when idle.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cmd, waitCh := r.cmd, r.waitCh
	running := r.running
	r.mu.Unlock()
	if !running || cmd == nil {
		return nil
	}

	r.logger.Info("stopping script")
	r.shutdown(ctx, cmd, waitCh)
	return nil
}

// shutdown sends SIGTERM to the script's process group and escalates to
// SIGKILL after the kill grace or when ctx ends.
func (r *Runner) shutdown(ctx context.Context, cmd *exec.Cmd, waitCh <-chan struct{}) {
	terminate(cmd)

	grace := time.NewTimer(r.killGrace)
	defer grace.Stop()
	select {
	case <-waitCh:
		return
	case <-grace.C:
	case <-ctx.Done():
	}

	r.logger.Warn("script ignored SIGTERM, killing", zap.Duration("grace", r.killGrace))
	kill(cmd)
	<-waitCh
}

// collector gathers output lines from both streams.
type collector struct {
	mu     sync.Mutex
	lines  []string
	onLine LineFunc
}

func (c *collector) read(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		c.mu.Lock()
		c.lines = append(c.lines, line)
		if c.onLine != nil {
			c.onLine(line)
		}
		c.mu.Unlock()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.add(fmt.Sprintf("[output truncated: %v]", err))
		_, _ = io.Copy(io.Discard, r)
	}
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}
