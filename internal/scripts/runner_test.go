package scripts

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
)

func newTestRunner(t *testing.T, killGrace time.Duration) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scripts run under sh")
	}
	return NewRunner(0, killGrace, logger.NewNop())
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t, time.Second)
	dir := t.TempDir()

	var mu sync.Mutex
	var streamed []string
	res, err := r.Run(context.Background(), dir, "echo one; echo two >&2; pwd", 0, func(line string) {
		mu.Lock()
		streamed = append(streamed, line)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "one")
	assert.Contains(t, res.Output, "two")
	assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
	assert.Len(t, streamed, 3)
	assert.False(t, r.IsRunning())
}

func TestRun_Failure(t *testing.T) {
	r := newTestRunner(t, time.Second)

	res, err := r.Run(context.Background(), t.TempDir(), "echo broken; exit 4", 0, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "broken", res.Output)
}

func TestRun_SkipsEmptyLines(t *testing.T) {
	r := newTestRunner(t, time.Second)

	res, err := r.Run(context.Background(), t.TempDir(), "printf 'a\\n\\n\\nb\\n'", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", res.Output)
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t, 200*time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), t.TempDir(), "echo started; sleep 30", time.Second, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, strings.HasPrefix(res.Output, "started"))
	assert.Contains(t, res.Output, "timed out after 1 seconds")
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	r := newTestRunner(t, 200*time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), t.TempDir(),
		"trap '' TERM; while true; do sleep 0.1; done", 300*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRun_OneAtATime(t *testing.T) {
	r := newTestRunner(t, 200*time.Millisecond)
	dir := t.TempDir()

	started := make(chan struct{})
	var once sync.Once
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), dir, "echo started; sleep 30", 0, func(string) {
			once.Do(func() { close(started) })
		})
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("script never started")
	}
	assert.True(t, r.IsRunning())

	_, err := r.Run(context.Background(), dir, "echo second", 0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyRunning))

	require.NoError(t, r.Stop(context.Background()))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, r.IsRunning())
}

func TestStop_Idle(t *testing.T) {
	r := newTestRunner(t, time.Second)
	assert.NoError(t, r.Stop(context.Background()))
}

func TestRun_ContextCancel(t *testing.T) {
	r := newTestRunner(t, 200*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, t.TempDir(), "sleep 30", 0, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.IsRunning())
}
