package api

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/session"
	"github.com/windschord/claude-work/internal/store"
)

// ListProjects returns every project, newest first.
// GET /api/projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject registers a git repository. The project is named after the
// repository directory.
// POST /api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	path := filepath.Clean(req.Path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := h.sessions.ValidateRepository(ctx, path); err != nil {
		h.respondError(c, err)
		return
	}

	project := &store.Project{
		Name:         filepath.Base(path),
		Path:         path,
		DefaultModel: req.DefaultModel,
	}
	if project.DefaultModel == "" {
		project.DefaultModel = h.sessions.DefaultModel()
	}
	if err := h.store.CreateProject(ctx, project); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithProjectID(project.ID).Info("project created", zap.String("path", path))
	c.JSON(http.StatusCreated, project)
}

// GetProject GET /api/projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject PUT /api/projects/:id
func (h *Handler) UpdateProject(c *gin.Context) {
	var req UpdateProjectRequest
	if !h.bindJSON(c, &req) {
		return
	}
	project, err := h.store.UpdateProject(c.Request.Context(), c.Param("id"), req.Name, req.DefaultModel)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject removes the project record and, by cascade, its sessions,
// scripts and history. Worktrees on disk are left alone.
// DELETE /api/projects/:id
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.store.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions GET /api/projects/:id/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// CreateSession creates a worktree and starts the agent on the message.
// POST /api/projects/:id/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), session.CreateRequest{
		ProjectID: c.Param("id"),
		Name:      req.Name,
		Prompt:    req.Message,
		Model:     req.Model,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}
