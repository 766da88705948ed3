// Package config loads claude-work configuration from defaults, an optional
// config.yaml and CLAUDE_WORK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/windschord/claude-work/internal/common/logger"
)

// Config holds all configuration sections.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Git      GitConfig      `mapstructure:"git" yaml:"git"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Terminal TerminalConfig `mapstructure:"terminal" yaml:"terminal"`
	Scripts  ScriptsConfig  `mapstructure:"scripts" yaml:"scripts"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Watcher  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `mapstructure:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// DatabaseConfig selects and configures the persistence driver.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path" yaml:"path"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbName" yaml:"dbName"`
	SSLMode  string `mapstructure:"sslMode" yaml:"sslMode"`
	MaxConns int    `mapstructure:"maxConns" yaml:"maxConns"`
	MinConns int    `mapstructure:"minConns" yaml:"minConns"`
}

// NATSConfig configures the optional NATS event bus. An empty URL selects
// the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	ClientID      string `mapstructure:"clientId" yaml:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects" yaml:"maxReconnects"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"outputPath" yaml:"outputPath"`
}

// GitConfig controls worktree layout and git command bounds.
type GitConfig struct {
	Timeout       int    `mapstructure:"timeout" yaml:"timeout"` // seconds
	DefaultBranch string `mapstructure:"defaultBranch" yaml:"defaultBranch"`
	WorktreeDir   string `mapstructure:"worktreeDir" yaml:"worktreeDir"`
	BranchPrefix  string `mapstructure:"branchPrefix" yaml:"branchPrefix"`
}

// AgentConfig controls how the coding agent is launched.
type AgentConfig struct {
	Binary       string   `mapstructure:"binary" yaml:"binary"`
	DefaultModel string   `mapstructure:"defaultModel" yaml:"defaultModel"`
	ExtraArgs    []string `mapstructure:"extraArgs" yaml:"extraArgs"`
	EventBuffer  int      `mapstructure:"eventBuffer" yaml:"eventBuffer"`
}

// TerminalConfig controls PTY shells.
type TerminalConfig struct {
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	StopGrace int    `mapstructure:"stopGrace" yaml:"stopGrace"` // seconds
	Cols      int    `mapstructure:"cols" yaml:"cols"`
	Rows      int    `mapstructure:"rows" yaml:"rows"`
	Shell     string `mapstructure:"shell" yaml:"shell"`
}

type ScriptsConfig struct {
	Timeout   int `mapstructure:"timeout" yaml:"timeout"`     // seconds
	KillGrace int `mapstructure:"killGrace" yaml:"killGrace"` // seconds
}

// AuthConfig holds the login token and session cookie settings.
type AuthConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Token           string `mapstructure:"token" yaml:"-"`
	SessionTTLHours int    `mapstructure:"sessionTtlHours" yaml:"sessionTtlHours"`
	CookieName      string `mapstructure:"cookieName" yaml:"cookieName"`
}

// WatcherConfig controls the worktree file watcher.
type WatcherConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	DebounceMs int  `mapstructure:"debounceMs" yaml:"debounceMs"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (g GitConfig) TimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

func (t TerminalConfig) StopGraceDuration() time.Duration {
	return time.Duration(t.StopGrace) * time.Second
}

func (s ScriptsConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (s ScriptsConfig) KillGraceDuration() time.Duration {
	return time.Duration(s.KillGrace) * time.Second
}

func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLHours) * time.Hour
}

func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./claude-work.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "claude_work")
	v.SetDefault("database.dbName", "claude_work")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "claude-work")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.DetectFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("git.timeout", 30)
	v.SetDefault("git.defaultBranch", "main")
	v.SetDefault("git.worktreeDir", ".worktrees")
	v.SetDefault("git.branchPrefix", "session/")

	v.SetDefault("agent.binary", "claude")
	v.SetDefault("agent.defaultModel", "claude-sonnet-4-20250514")
	v.SetDefault("agent.extraArgs", []string{})
	v.SetDefault("agent.eventBuffer", 100)

	v.SetDefault("terminal.workers", 8)
	v.SetDefault("terminal.stopGrace", 3)
	v.SetDefault("terminal.cols", 80)
	v.SetDefault("terminal.rows", 24)
	v.SetDefault("terminal.shell", "")

	v.SetDefault("scripts.timeout", 300)
	v.SetDefault("scripts.killGrace", 5)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.sessionTtlHours", 24)
	v.SetDefault("auth.cookieName", "session_id")

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounceMs", 300)
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, looking for config.yaml in configPath
// first, then the working directory and /etc/claude-work/.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAUDE_WORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// camelCase keys do not map onto SNAKE_CASE env names automatically.
	_ = v.BindEnv("auth.sessionTtlHours", "CLAUDE_WORK_AUTH_SESSION_TTL_HOURS")
	_ = v.BindEnv("git.defaultBranch", "CLAUDE_WORK_GIT_DEFAULT_BRANCH")
	_ = v.BindEnv("agent.defaultModel", "CLAUDE_WORK_AGENT_DEFAULT_MODEL")
	_ = v.BindEnv("database.dbName", "CLAUDE_WORK_DATABASE_DB_NAME")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/claude-work/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for postgres")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Git.Timeout <= 0 {
		errs = append(errs, "git.timeout must be positive")
	}
	if cfg.Git.DefaultBranch == "" {
		errs = append(errs, "git.defaultBranch is required")
	}
	if cfg.Agent.Binary == "" {
		errs = append(errs, "agent.binary is required")
	}
	if cfg.Agent.EventBuffer <= 0 {
		errs = append(errs, "agent.eventBuffer must be positive")
	}
	if cfg.Terminal.Workers <= 0 {
		errs = append(errs, "terminal.workers must be positive")
	}
	if cfg.Scripts.Timeout <= 0 {
		errs = append(errs, "scripts.timeout must be positive")
	}
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth is enabled")
	}
	if cfg.Auth.SessionTTLHours <= 0 {
		errs = append(errs, "auth.sessionTtlHours must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
