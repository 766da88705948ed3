package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/store"
)

// ListPromptHistory returns the latest prompts of a project.
// GET /api/projects/:id/prompt-history
func (h *Handler) ListPromptHistory(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	history, err := h.store.ListPromptHistory(c.Request.Context(), projectID, store.DefaultPromptHistoryLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// CreatePromptHistory POST /api/projects/:id/prompt-history
func (h *Handler) CreatePromptHistory(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	var req CreatePromptHistoryRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.PromptText) == "" {
		h.respondError(c, apperrors.BadRequest("prompt_text must not be empty"))
		return
	}
	entry := &store.PromptHistory{ProjectID: projectID, PromptText: req.PromptText}
	if err := h.store.CreatePromptHistory(c.Request.Context(), entry); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// DeletePromptHistory DELETE /api/projects/:id/prompt-history/:history_id
func (h *Handler) DeletePromptHistory(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	historyID, ok := h.int64Param(c, "history_id")
	if !ok {
		return
	}
	if err := h.store.DeletePromptHistory(c.Request.Context(), projectID, historyID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
