package terminal

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
)

func newTestTerminal(t *testing.T, opts Options) *Supervisor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("PTY tests require unix")
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	s := NewSupervisor(t.TempDir(), NewPool(2), opts, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx, time.Second)
	})
	return s
}

// readUntil reads terminal output until it contains want.
func readUntil(t *testing.T, s *Supervisor, want string, timeout time.Duration) string {
	t.Helper()
	var got strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		chunk, err := s.Read(context.Background(), 1024, 100*time.Millisecond)
		require.NoError(t, err)
		got.Write(chunk)
		if strings.Contains(got.String(), want) {
			return got.String()
		}
	}
	t.Fatalf("output never contained %q; got %q", want, got.String())
	return ""
}

func TestTerminal_WriteAndRead(t *testing.T) {
	s := newTestTerminal(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsAlive())

	require.NoError(t, s.Write(ctx, []byte("echo hello-$((40+2))\n")))
	readUntil(t, s, "hello-42", 5*time.Second)

	require.NoError(t, s.Stop(ctx, time.Second))
	assert.False(t, s.IsAlive())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestTerminal_StartTwice(t *testing.T) {
	s := newTestTerminal(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	err := s.Start(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyRunning))
}

func TestTerminal_NotRunning(t *testing.T) {
	s := newTestTerminal(t, Options{})
	ctx := context.Background()

	err := s.Write(ctx, []byte("ls\n"))
	assert.True(t, errors.Is(err, apperrors.ErrNotRunning))
	err = s.Resize(ctx, 24, 80)
	assert.True(t, errors.Is(err, apperrors.ErrNotRunning))

	data, err := s.Read(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.NoError(t, s.Stop(ctx, time.Second))
}

func TestTerminal_ReadTimesOutEmpty(t *testing.T) {
	s := newTestTerminal(t, Options{Shell: "/bin/sh", ShellArgs: []string{"-c", "sleep 5"}})
	require.NoError(t, s.Start(context.Background()))

	start := time.Now()
	data, err := s.Read(context.Background(), 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminal_ExitCode(t *testing.T) {
	s := newTestTerminal(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Write(ctx, []byte("exit 7\n")))

	// Drain so the reader never blocks on a full channel.
	go func() {
		for range s.Output() {
		}
	}()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit")
	}
	assert.Equal(t, 7, s.ExitCode())
	assert.False(t, s.IsAlive())

	err := s.Write(ctx, []byte("echo\n"))
	assert.True(t, errors.Is(err, apperrors.ErrNotRunning))
}

func TestTerminal_StopKillsStubbornShell(t *testing.T) {
	s := newTestTerminal(t, Options{
		Shell:     "/bin/sh",
		ShellArgs: []string{"-c", "trap '' HUP TERM; echo ready; while true; do sleep 0.1; done"},
	})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	readUntil(t, s, "ready", 5*time.Second)

	start := time.Now()
	require.NoError(t, s.Stop(ctx, 200*time.Millisecond))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, s.IsAlive())
	assert.Equal(t, 128+9, s.ExitCode())

	// Idempotent.
	assert.NoError(t, s.Stop(ctx, 200*time.Millisecond))
}

func TestTerminal_Resize(t *testing.T) {
	s := newTestTerminal(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Resize(ctx, 40, 100))
	require.NoError(t, s.Write(ctx, []byte("stty size\n")))
	readUntil(t, s, "40 100", 5*time.Second)

	err := s.Resize(ctx, 0, 10)
	require.Error(t, err)
}

func TestTerminal_SnapshotReflectsScreen(t *testing.T) {
	s := newTestTerminal(t, Options{Cols: 40, Rows: 10})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Write(ctx, []byte("echo snap-$((1+1))\n")))
	readUntil(t, s, "snap-2", 5*time.Second)

	assert.Contains(t, string(s.Snapshot()), "snap-2")
}

func TestScreen(t *testing.T) {
	screen := NewScreen(20, 5)
	assert.Nil(t, screen.Snapshot())

	screen.Write([]byte("hello\r\nworld"))
	lines := screen.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, "world", lines[1])
	assert.Equal(t, "", lines[2])

	snap := string(screen.Snapshot())
	assert.True(t, strings.HasPrefix(snap, "\x1b[2J\x1b[H"))
	assert.Contains(t, snap, "hello\r\nworld")
	assert.True(t, strings.HasSuffix(snap, "\x1b[2;6H"))

	screen.Resize(30, 6)
	assert.Len(t, screen.Lines(), 6)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	assert.Equal(t, 2, pool.Size())

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestPool_HonoursContext(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPool_StuckCallGivesSlotBack(t *testing.T) {
	pool := NewPool(1)
	unblock := make(chan struct{})
	defer close(unblock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func() error {
		<-unblock
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ran := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- pool.Do(context.Background(), func() error {
			close(ran)
			return nil
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("slot held by a call whose context ended")
	}
	_, ok := <-ran
	assert.False(t, ok)
}
