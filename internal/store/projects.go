package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
)

const projectColumns = `id, name, path, default_model, created_at, updated_at`

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	projects := []*Project{}
	err := s.db.SelectContext(ctx, &projects,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	return projects, err
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.GetContext(ctx, &p, s.rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return &p, nil
}

// CreateProject inserts p, filling in its id and timestamps. A project path
// can only be registered once.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Name = strings.TrimSpace(p.Name)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO projects (id, name, path, default_model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), p.ID, p.Name, p.Path, p.DefaultModel, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.AlreadyExists("project", p.Path)
	}
	return err
}

// UpdateProject changes the fields that are non-nil and returns the result.
func (s *Store) UpdateProject(ctx context.Context, id string, name, defaultModel *string) (*Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		p.Name = strings.TrimSpace(*name)
	}
	if defaultModel != nil {
		p.DefaultModel = *defaultModel
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE projects SET name = ?, default_model = ?, updated_at = ? WHERE id = ?
	`), p.Name, p.DefaultModel, p.UpdatedAt, p.ID)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res, "project", id); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes the project with its sessions, run scripts and
// prompt history.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "project", id)
}
