package store

import (
	"context"
	"strconv"
	"time"
)

// DefaultPromptHistoryLimit bounds ListPromptHistory when no limit is given.
const DefaultPromptHistoryLimit = 20

// ListPromptHistory returns the most recent prompts of a project.
func (s *Store) ListPromptHistory(ctx context.Context, projectID string, limit int) ([]*PromptHistory, error) {
	if limit <= 0 {
		limit = DefaultPromptHistoryLimit
	}
	entries := []*PromptHistory{}
	err := s.db.SelectContext(ctx, &entries, s.rebind(`
		SELECT id, project_id, prompt_text, created_at
		FROM prompt_history
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), projectID, limit)
	return entries, err
}

func (s *Store) CreatePromptHistory(ctx context.Context, h *PromptHistory) error {
	h.CreatedAt = time.Now().UTC()
	return s.db.QueryRowxContext(ctx, s.rebind(`
		INSERT INTO prompt_history (project_id, prompt_text, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`), h.ProjectID, h.PromptText, h.CreatedAt).Scan(&h.ID)
}

func (s *Store) DeletePromptHistory(ctx context.Context, projectID string, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM prompt_history WHERE id = ? AND project_id = ?`), id, projectID)
	if err != nil {
		return err
	}
	return expectAffected(res, "prompt history", strconv.FormatInt(id, 10))
}
