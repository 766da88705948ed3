package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, project_id, name, status, worktree_path, model, created_at, updated_at`

// ListSessions returns the sessions of a project, newest first.
func (s *Store) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	sessions := []*Session{}
	err := s.db.SelectContext(ctx, &sessions, s.rebind(
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id = ? ORDER BY created_at DESC`), projectID)
	return sessions, err
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.GetContext(ctx, &sess, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return &sess, nil
}

// CreateSession inserts sess, filling in its id, timestamps and, when
// empty, the initializing status.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = StatusInitializing
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, project_id, name, status, worktree_path, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), sess.ID, sess.ProjectID, sess.Name, sess.Status, sess.WorktreePath, sess.Model, sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "session", id)
}

func (s *Store) UpdateSessionWorktreePath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET worktree_path = ?, updated_at = ? WHERE id = ?`),
		path, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "session", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "session", id)
}
