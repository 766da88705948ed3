package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/store"
)

// projectID validates the :id parameter and checks that the project exists.
// Malformed ids are 400, unknown ones 404.
func (h *Handler) projectID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		h.respondError(c, apperrors.BadRequest("Invalid project ID"))
		return "", false
	}
	if _, err := h.store.GetProject(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return "", false
	}
	return id, true
}

// ListRunScripts GET /api/projects/:id/run-scripts
func (h *Handler) ListRunScripts(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	scripts, err := h.store.ListRunScripts(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scripts)
}

// CreateRunScript POST /api/projects/:id/run-scripts
func (h *Handler) CreateRunScript(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	var req CreateRunScriptRequest
	if !h.bindJSON(c, &req) {
		return
	}
	script := &store.RunScript{ProjectID: projectID, Name: req.Name, Command: req.Command}
	if err := h.store.CreateRunScript(c.Request.Context(), script); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, script)
}

// UpdateRunScript PUT /api/projects/:id/run-scripts/:script_id
func (h *Handler) UpdateRunScript(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	scriptID, ok := h.int64Param(c, "script_id")
	if !ok {
		return
	}
	var req UpdateRunScriptRequest
	if !h.bindJSON(c, &req) {
		return
	}
	script, err := h.store.UpdateRunScript(c.Request.Context(), projectID, scriptID, req.Name, req.Command)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

// DeleteRunScript DELETE /api/projects/:id/run-scripts/:script_id
func (h *Handler) DeleteRunScript(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	scriptID, ok := h.int64Param(c, "script_id")
	if !ok {
		return
	}
	if err := h.store.DeleteRunScript(c.Request.Context(), projectID, scriptID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
