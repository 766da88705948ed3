package store

import (
	"context"
	"strconv"
	"time"
)

const runScriptColumns = `id, project_id, name, command, created_at, updated_at`

func (s *Store) ListRunScripts(ctx context.Context, projectID string) ([]*RunScript, error) {
	scripts := []*RunScript{}
	err := s.db.SelectContext(ctx, &scripts, s.rebind(
		`SELECT `+runScriptColumns+` FROM run_scripts WHERE project_id = ? ORDER BY id ASC`), projectID)
	return scripts, err
}

// GetRunScript returns a run script of projectID. A script of another
// project is reported as not found.
func (s *Store) GetRunScript(ctx context.Context, projectID string, id int64) (*RunScript, error) {
	var rs RunScript
	err := s.db.GetContext(ctx, &rs, s.rebind(
		`SELECT `+runScriptColumns+` FROM run_scripts WHERE id = ? AND project_id = ?`), id, projectID)
	if err != nil {
		return nil, notFound(err, "run script", strconv.FormatInt(id, 10))
	}
	return &rs, nil
}

func (s *Store) CreateRunScript(ctx context.Context, rs *RunScript) error {
	now := time.Now().UTC()
	rs.CreatedAt = now
	rs.UpdatedAt = now
	return s.db.QueryRowxContext(ctx, s.rebind(`
		INSERT INTO run_scripts (project_id, name, command, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), rs.ProjectID, rs.Name, rs.Command, rs.CreatedAt, rs.UpdatedAt).Scan(&rs.ID)
}

// UpdateRunScript changes the fields that are non-nil.
func (s *Store) UpdateRunScript(ctx context.Context, projectID string, id int64, name, command *string) (*RunScript, error) {
	rs, err := s.GetRunScript(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		rs.Name = *name
	}
	if command != nil {
		rs.Command = *command
	}
	rs.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, s.rebind(
		`UPDATE run_scripts SET name = ?, command = ?, updated_at = ? WHERE id = ?`),
		rs.Name, rs.Command, rs.UpdatedAt, rs.ID)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Store) DeleteRunScript(ctx context.Context, projectID string, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM run_scripts WHERE id = ? AND project_id = ?`), id, projectID)
	if err != nil {
		return err
	}
	return expectAffected(res, "run script", strconv.FormatInt(id, 10))
}
