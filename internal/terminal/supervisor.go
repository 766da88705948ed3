// Package terminal runs interactive shells on pseudo-terminals inside session
// worktrees.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
)

const (
	defaultCols         = 80
	defaultRows         = 24
	defaultStopGrace    = 3 * time.Second
	defaultOutputBuffer = 256
	readBufferSize      = 4096
	defaultWriteTimeout = 5 * time.Second

	// readerDrainTimeout bounds the wait for the PTY reader after the shell
	// exited. Background jobs can keep the slave side open.
	readerDrainTimeout = time.Second
)

// Options configures a terminal.
type Options struct {
	Shell        string // default: $SHELL, then bash, zsh, sh
	ShellArgs    []string
	Cols         int
	Rows         int
	StopGrace    time.Duration // default 3s
	OutputBuffer int           // chunks buffered on Output, default 256
	WriteTimeout time.Duration // per Write or Resize call, default 5s
}

// Supervisor owns one shell on a PTY. A dedicated goroutine reads the PTY,
// mirrors the bytes into a Screen and pushes them on Output. Writes, resizes
// and closes go through the shared Pool.
type Supervisor struct {
	workDir string
	pool    *Pool
	opts    Options
	logger  *logger.Logger
	screen  *Screen

	mu       sync.Mutex
	alive    bool
	started  bool
	stopping bool
	ptmx     *os.File
	cmd      *exec.Cmd
	exitCode int

	output     chan []byte
	quit       chan struct{} // closed by Stop, or when nobody drained output after exit
	quitOnce   sync.Once
	readerDone chan struct{}
	exited     chan struct{}

	// pending holds bytes taken from output by Read but not yet returned.
	readMu  sync.Mutex
	pending []byte

	// writeSem serializes PTY writes. A write stuck on a shell that stopped
	// reading keeps it until the kernel accepts the bytes.
	writeSem *semaphore.Weighted
}

// NewSupervisor creates a terminal for workDir. Nothing runs until Start.
func NewSupervisor(workDir string, pool *Pool, opts Options, log *logger.Logger) *Supervisor {
	if opts.Cols <= 0 {
		opts.Cols = defaultCols
	}
	if opts.Rows <= 0 {
		opts.Rows = defaultRows
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = defaultOutputBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if pool == nil {
		pool = NewPool(0)
	}
	return &Supervisor{
		workDir:    workDir,
		pool:       pool,
		opts:       opts,
		logger:     log.WithFields(zap.String("component", "terminal"), zap.String("workdir", workDir)),
		screen:     NewScreen(opts.Cols, opts.Rows),
		exitCode:   -1,
		output:     make(chan []byte, opts.OutputBuffer),
		quit:       make(chan struct{}),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
		writeSem:   semaphore.NewWeighted(1),
	}
}

// detectShell returns the user's login shell, falling back to common shells.
func detectShell() (string, []string) {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, []string{"-l"}
	}
	for _, sh := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(sh); err == nil {
			return sh, []string{"-l"}
		}
	}
	return "/bin/sh", nil
}

// buildShellEnv inherits the server environment (PATH included) and sets
// the terminal type.
func buildShellEnv(workDir string) []string {
	env := os.Environ()
	env = append(env, "PWD="+workDir)
	env = append(env, "TERM=xterm-256color")
	return env
}

// Start spawns the shell. A terminal runs at most once; starting a live or
// finished terminal fails with AlreadyRunning.
func (s *Supervisor) Start(ctx context.Context) error {
	if runtime.GOOS == "windows" {
		return errors.New("terminals require a unix pty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return apperrors.AlreadyRunning("terminal")
	}

	shell, args := s.opts.Shell, s.opts.ShellArgs
	if shell == "" {
		shell, args = detectShell()
	}

	cmd := exec.Command(shell, args...)
	cmd.Dir = s.workDir
	cmd.Env = buildShellEnv(s.workDir)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(s.opts.Cols),
		Rows: uint16(s.opts.Rows),
	})
	if err != nil {
		return fmt.Errorf("failed to start PTY: %w", err)
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.alive = true
	s.started = true

	s.logger.Info("terminal started",
		zap.String("shell", shell),
		zap.Int("pid", cmd.Process.Pid))

	go s.readOutput()
	go s.waitForExit()
	return nil
}

// IsAlive reports whether the shell is running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Output streams PTY output chunks in order. It is closed when the shell's
// output ends. Read consumes the same stream.
func (s *Supervisor) Output() <-chan []byte { return s.output }

// Done is closed after the shell exited and Output was closed.
func (s *Supervisor) Done() <-chan struct{} { return s.exited }

// ExitCode returns the shell's exit code, -1 before it exits.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Snapshot returns bytes that redraw the current screen.
func (s *Supervisor) Snapshot() []byte { return s.screen.Snapshot() }

// Write sends input to the shell. It gives up after WriteTimeout when the
// shell stops draining its input.
func (s *Supervisor) Write(ctx context.Context, data []byte) error {
	ptmx, err := s.livePTY()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("terminal input is blocked: %w", err)
	}

	// Whoever claims first releases writeSem: fn once it ran, or this call
	// when the pool gave up before fn started.
	var claimed atomic.Bool
	err = s.pool.Do(ctx, func() error {
		if !claimed.CompareAndSwap(false, true) {
			return nil
		}
		defer s.writeSem.Release(1)
		if _, err := ptmx.Write(data); err != nil {
			return fmt.Errorf("failed to write to terminal: %w", err)
		}
		return nil
	})
	if claimed.CompareAndSwap(false, true) {
		s.writeSem.Release(1)
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("terminal input is blocked: %w", err)
	}
	return err
}

// Resize changes the PTY window size.
func (s *Supervisor) Resize(ctx context.Context, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return apperrors.BadRequest(fmt.Sprintf("invalid terminal size %dx%d", cols, rows))
	}
	ptmx, err := s.livePTY()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	err = s.pool.Do(ctx, func() error {
		return pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	})
	if err != nil {
		return fmt.Errorf("failed to resize terminal: %w", err)
	}
	s.screen.Resize(cols, rows)
	return nil
}

// Read returns up to size bytes of output that arrive within timeout. It
// returns an empty slice, not an error, on timeout or when the terminal is
// not alive and has nothing buffered.
func (s *Supervisor) Read(ctx context.Context, size int, timeout time.Duration) ([]byte, error) {
	if size <= 0 {
		size = readBufferSize
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if len(s.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk, ok := <-s.output:
			if !ok {
				return []byte{}, nil
			}
			s.pending = chunk
		case <-timer.C:
			return []byte{}, nil
		case <-ctx.Done():
			return []byte{}, ctx.Err()
		}
	}

	n := min(size, len(s.pending))
	out := s.pending[:n:n]
	s.pending = s.pending[n:]
	return out, nil
}

// Stop hangs up the shell, waits up to timeout (the configured grace when
// zero) for it to exit, then kills it and reaps it. Stopping a terminal that
// is not alive is a no-op.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.StopGrace
	}

	s.mu.Lock()
	if !s.alive || s.stopping {
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.exited
		}
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	s.mu.Unlock()

	s.closeQuit()
	s.logger.Info("stopping terminal", zap.Int("pid", cmd.Process.Pid))
	hangup(cmd.Process)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Warn("terminal did not exit in time, killing", zap.Duration("grace", timeout))
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to kill shell", zap.Error(err))
	}
	<-s.exited
	return nil
}

func (s *Supervisor) closeQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Supervisor) livePTY() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || s.ptmx == nil {
		return nil, apperrors.NotRunning("terminal")
	}
	return s.ptmx, nil
}

// readOutput is the only reader of the PTY master.
func (s *Supervisor) readOutput() {
	defer close(s.readerDone)
	defer close(s.output)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.screen.Write(data)
			select {
			case s.output <- data:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			// Linux reports EIO once the shell side is closed.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("terminal read ended", zap.Error(err))
			}
			return
		}
	}
}

func (s *Supervisor) waitForExit() {
	err := s.cmd.Wait()
	code := exitStatus(err)

	s.mu.Lock()
	s.alive = false
	s.exitCode = code
	s.mu.Unlock()

	select {
	case <-s.readerDone:
	case <-time.After(readerDrainTimeout):
		s.logger.Debug("terminal output not drained after exit, abandoning it")
		s.closeQuit()
	}
	_ = s.pool.Do(context.Background(), s.ptmx.Close)
	<-s.readerDone

	s.logger.Info("terminal exited", zap.Int("exit_code", code))
	close(s.exited)
}
