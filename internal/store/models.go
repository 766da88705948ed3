package store

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusRunning      SessionStatus = "running"
	StatusWaitingInput SessionStatus = "waiting_input"
	StatusCompleted    SessionStatus = "completed"
	StatusError        SessionStatus = "error"
)

// Project is a git repository sessions are created in.
type Project struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Path         string    `db:"path" json:"path"`
	DefaultModel string    `db:"default_model" json:"default_model"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Session is one agent working in its own worktree of a project.
type Session struct {
	ID           string        `db:"id" json:"id"`
	ProjectID    string        `db:"project_id" json:"project_id"`
	Name         string        `db:"name" json:"name"`
	Status       SessionStatus `db:"status" json:"status"`
	WorktreePath *string       `db:"worktree_path" json:"worktree_path"`
	Model        *string       `db:"model" json:"model"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// RunScript is a named shell command a project offers to run in a
// session worktree.
type RunScript struct {
	ID        int64     `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	Command   string    `db:"command" json:"command"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type PromptHistory struct {
	ID         int64     `db:"id" json:"id"`
	ProjectID  string    `db:"project_id" json:"project_id"`
	PromptText string    `db:"prompt_text" json:"prompt_text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuthSession is a login. Only the bcrypt hash of the cookie value is kept.
type AuthSession struct {
	ID        string    `db:"id" json:"id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
