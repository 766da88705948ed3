package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (s *Store) CreateAuthSession(ctx context.Context, as *AuthSession) error {
	if as.ID == "" {
		as.ID = uuid.New().String()
	}
	as.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO auth_sessions (id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`), as.ID, as.TokenHash, as.ExpiresAt.UTC(), as.CreatedAt)
	return err
}

// ListActiveAuthSessions returns the logins that expire after now.
func (s *Store) ListActiveAuthSessions(ctx context.Context, now time.Time) ([]*AuthSession, error) {
	sessions := []*AuthSession{}
	err := s.db.SelectContext(ctx, &sessions, s.rebind(`
		SELECT id, token_hash, expires_at, created_at
		FROM auth_sessions
		WHERE expires_at > ?
	`), now.UTC())
	return sessions, err
}

func (s *Store) DeleteAuthSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM auth_sessions WHERE id = ?`), id)
	return err
}

// DeleteExpiredAuthSessions removes logins that expired at or before now and
// returns how many were removed.
func (s *Store) DeleteExpiredAuthSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM auth_sessions WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
