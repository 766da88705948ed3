package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.WithSessionID("s-1").WithProjectID("p-1").Info("hello")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"msg":"hello"`)
	assert.Contains(t, line, `"session_id":"s-1"`)
	assert.Contains(t, line, `"project_id":"p-1"`)
	assert.Contains(t, line, `"timestamp"`)
}

func TestNewLogger_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := NewLogger(LoggingConfig{Level: "chatty", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("debug line")
	log.Info("info line")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "debug line"))
	assert.Contains(t, string(data), "info line")
}

func TestWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	log.WithContext(ctx).Info("with request")
	assert.Same(t, log, log.WithContext(context.Background()))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_id":"req-42"`)
}

func TestDetectFormat(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	t.Setenv("CLAUDE_WORK_ENV", "")
	assert.Equal(t, "text", DetectFormat())

	t.Setenv("CLAUDE_WORK_ENV", "production")
	assert.Equal(t, "json", DetectFormat())
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	nop := NewNop()
	SetDefault(nop)
	assert.Same(t, nop, Default())
}
