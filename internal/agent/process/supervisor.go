// Package process supervises one run of the coding agent CLI: it launches
// the process in a worktree, turns its output into events and shuts it down.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
)

// State is the supervisor lifecycle. StateStopped is terminal.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
)

// ErrStopped is returned by Start on a supervisor that already ran.
var ErrStopped = errors.New("process supervisor already stopped")

const (
	defaultBinary      = "claude"
	defaultEventBuffer = 100

	// readerDrainTimeout bounds how long the exit waiter waits for the
	// output readers after the agent exited. Grandchildren that escaped the
	// process group can keep the pipes open indefinitely.
	readerDrainTimeout = 2 * time.Second

	maxLineSize = 10 * 1024 * 1024
)

// Options configures how the agent binary is launched.
type Options struct {
	Binary      string   // default "claude"
	Env         []string // appended to the server environment
	EventBuffer int      // capacity of the Events channel, default 100
}

// StartOptions are per-run arguments.
type StartOptions struct {
	Model     string
	ExtraArgs []string
}

// Supervisor owns one agent process. Events are delivered in order on a
// bounded channel that is closed after the exit event.
type Supervisor struct {
	opts   Options
	logger *logger.Logger

	startMu sync.Mutex
	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	stdoutR *os.File
	stderrR *os.File

	events   chan Event
	stopCh   chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
	readers  sync.WaitGroup
	exitCode int
}

// NewSupervisor creates a supervisor in the not_started state.
func NewSupervisor(opts Options, log *logger.Logger) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = defaultBinary
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &Supervisor{
		opts:     opts,
		logger:   log.WithFields(zap.String("component", "agent-supervisor")),
		state:    StateNotStarted,
		events:   make(chan Event, opts.EventBuffer),
		stopCh:   make(chan struct{}),
		exited:   make(chan struct{}),
		exitCode: -1,
	}
}

// Events returns the event stream. It is closed after the exit event, or
// immediately if Start fails.
func (s *Supervisor) Events() <-chan Event { return s.events }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the agent process is alive.
func (s *Supervisor) IsRunning() bool { return s.State() == StateRunning }

// ExitCode returns the agent's exit code, or -1 while it has not exited.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Done is closed once the process has exited and the event channel is closed.
func (s *Supervisor) Done() <-chan struct{} { return s.exited }

// BuildArgs returns the agent command line arguments for one run.
func BuildArgs(initialMessage string, opts StartOptions) []string {
	args := []string{"--print"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return append(args, initialMessage)
}

// Start launches the agent in workingDir with initialMessage as its prompt.
// The process is not tied to ctx: it outlives the request that started it.
func (s *Supervisor) Start(ctx context.Context, workingDir, initialMessage string, opts StartOptions) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case StateRunning:
		return apperrors.AlreadyRunning("agent process")
	case StateStopped:
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := BuildArgs(initialMessage, opts)
	cmd := exec.Command(s.opts.Binary, args...)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(), s.opts.Env...)
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.failStart(fmt.Errorf("failed to create stdin pipe: %w", err))
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return s.failStart(fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return s.failStart(fmt.Errorf("failed to create stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	s.logger.Info("starting agent process",
		zap.String("binary", s.opts.Binary),
		zap.String("workdir", workingDir),
		zap.String("model", opts.Model),
		zap.Int("extra_args", len(opts.ExtraArgs)))

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return s.failStart(fmt.Errorf("failed to start agent: %w", err))
	}
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.stdoutR = stdoutR
	s.stderrR = stderrR
	s.state = StateRunning
	s.mu.Unlock()

	s.readers.Add(2)
	go s.readLines(stdoutR, parseStdoutLine)
	go s.readLines(stderrR, stderrEvent)
	go s.waitForExit()

	s.logger.Info("agent process started", zap.Int("pid", cmd.Process.Pid))
	return nil
}

// failStart moves a supervisor whose launch failed to stopped and closes its
// event channel so consumers do not wait forever.
func (s *Supervisor) failStart(err error) error {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	close(s.events)
	close(s.exited)
	s.logger.Error("agent process failed to start", zap.Error(err))
	return err
}

// SendInput writes data followed by a newline to the agent's stdin.
func (s *Supervisor) SendInput(data string) error {
	s.mu.Lock()
	running := s.state == StateRunning
	stdin := s.stdin
	s.mu.Unlock()
	if !running {
		return apperrors.NotRunning("agent process")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(stdin, data+"\n"); err != nil {
		return fmt.Errorf("failed to write to agent stdin: %w", err)
	}
	return nil
}

// Stop terminates the agent. It sends SIGTERM to the process group, waits
// for the exit and escalates to SIGKILL when ctx expires. Once Stop returns
// no further events are delivered. Stopping a supervisor that is not running
// is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	pid := cmd.Process.Pid

	s.logger.Info("stopping agent process", zap.Int("pid", pid))
	if err := terminateGroup(pid); err != nil {
		s.logger.Debug("failed to signal process group, signalling process", zap.Error(err))
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-s.exited:
		s.logger.Info("agent process stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("force killing agent process", zap.Int("pid", pid))
		if err := killGroup(pid); err != nil {
			s.logger.Warn("failed to kill process group", zap.Error(err))
			_ = cmd.Process.Kill()
		}
		<-s.exited
	}
	return nil
}

// readLines scans r line by line and emits one event per line.
func (s *Supervisor) readLines(r io.Reader, toEvent func(string) Event) {
	defer s.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !s.emit(toEvent(line)) {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Debug("agent output reader stopped", zap.Error(err))
	}
}

// emit delivers ev unless Stop has been called. It blocks while the channel
// is full, which applies backpressure to the agent instead of dropping output.
func (s *Supervisor) emit(ev Event) bool {
	select {
	case <-s.stopCh:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.stopCh:
		return false
	}
}

// waitForExit reaps the process, drains the readers and emits the single
// exit event before closing the channel.
func (s *Supervisor) waitForExit() {
	defer close(s.exited)

	err := s.cmd.Wait()
	code := exitStatus(err)
	pid := s.cmd.Process.Pid

	// Release output held open by children left in the group.
	_ = killGroup(pid)

	drained := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(readerDrainTimeout):
		s.logger.Warn("agent output still open after exit, closing pipes")
		closeAll(s.stdoutR, s.stderrR)
		<-drained
	}
	closeAll(s.stdoutR, s.stderrR)

	s.mu.Lock()
	s.state = StateStopped
	s.exitCode = code
	s.mu.Unlock()

	if err != nil && code != 0 {
		s.logger.Info("agent process exited", zap.Int("exit_code", code), zap.Error(err))
	} else {
		s.logger.Info("agent process exited", zap.Int("exit_code", code))
	}

	exitEvent := Event{Type: EventExit, ExitCode: code}
	select {
	case s.events <- exitEvent:
	case <-s.stopCh:
		// Stop is waiting on us; deliver only if there is room.
		select {
		case s.events <- exitEvent:
		default:
		}
	}
	close(s.events)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
