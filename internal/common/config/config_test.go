package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPath_Defaults(t *testing.T) {
	t.Setenv("CLAUDE_WORK_AUTH_TOKEN", "secret")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Git.TimeoutDuration())
	assert.Equal(t, "main", cfg.Git.DefaultBranch)
	assert.Equal(t, ".worktrees", cfg.Git.WorktreeDir)
	assert.Equal(t, "session/", cfg.Git.BranchPrefix)
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, 3*time.Second, cfg.Terminal.StopGraceDuration())
	assert.Equal(t, 300*time.Second, cfg.Scripts.TimeoutDuration())
	assert.Equal(t, 5*time.Second, cfg.Scripts.KillGraceDuration())
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, "secret", cfg.Auth.Token)
}

func TestLoadWithPath_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9100
git:
  timeout: 5
auth:
  enabled: false
terminal:
  workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Git.TimeoutDuration())
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, 2, cfg.Terminal.Workers)
	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
}

func TestLoadWithPath_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("auth:\n  enabled: false\n"), 0o644))
	t.Setenv("CLAUDE_WORK_SERVER_PORT", "9200")
	t.Setenv("CLAUDE_WORK_GIT_DEFAULT_BRANCH", "trunk")

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "trunk", cfg.Git.DefaultBranch)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 0},
		Database: DatabaseConfig{Driver: "mysql"},
		Logging:  LoggingConfig{Level: "loud", Format: "xml"},
		Auth:     AuthConfig{Enabled: true},
	}

	err := validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, "database.driver")
	assert.Contains(t, msg, "logging.level")
	assert.Contains(t, msg, "logging.format")
	assert.Contains(t, msg, "git.timeout")
	assert.Contains(t, msg, "auth.token")
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
