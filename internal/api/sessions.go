package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/store"
	"github.com/windschord/claude-work/internal/worktree"
)

// GetSession GET /api/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// StopSession POST /api/sessions/:id/stop
func (h *Handler) StopSession(c *gin.Context) {
	sess, err := h.sessions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// sessionWorktree resolves the session of the request and its worktree service.
func (h *Handler) sessionWorktree(c *gin.Context) (*worktree.Service, *store.Session, bool) {
	svc, sess, err := h.sessions.Worktree(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperrors.IsNotFound(err) {
			err = apperrors.NotFound("session", c.Param("id"))
		}
		h.respondError(c, err)
		return nil, nil, false
	}
	return svc, sess, true
}

// GetDiff returns the session branch changes against the default branch.
// GET /api/sessions/:id/diff
func (h *Handler) GetDiff(c *gin.Context) {
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	diff, err := svc.GetDiff(c.Request.Context(), sess.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, diff)
}

// Rebase rebases the session branch onto the default branch. Conflicts are
// answered with 409 and the conflicting paths.
// POST /api/sessions/:id/rebase
func (h *Handler) Rebase(c *gin.Context) {
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	res, err := svc.RebaseFromMain(c.Request.Context(), sess.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !res.Success {
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Merge squash merges the session branch into the default branch.
// POST /api/sessions/:id/merge
func (h *Handler) Merge(c *gin.Context) {
	var req MergeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	if err := svc.SquashMerge(c.Request.Context(), svc.BranchName(sess.Name), req.Message); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithSessionID(sess.ID).Info("session merged", zap.String("branch", svc.BranchName(sess.Name)))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListCommits GET /api/sessions/:id/commits?limit=
func (h *Handler) ListCommits(c *gin.Context) {
	limit := worktree.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(c, apperrors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	commits, err := svc.GetCommitHistory(c.Request.Context(), sess.Name, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if commits == nil {
		commits = []worktree.Commit{}
	}
	c.JSON(http.StatusOK, commits)
}

// GetCommitDiff GET /api/sessions/:id/commits/:hash/diff
func (h *Handler) GetCommitDiff(c *gin.Context) {
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	diff, err := svc.GetCommitDiff(c.Request.Context(), sess.Name, c.Param("hash"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diff": diff})
}

// ResetToCommit hard resets the worktree to a commit.
// POST /api/sessions/:id/commits/:hash/reset
func (h *Handler) ResetToCommit(c *gin.Context) {
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	if err := svc.ResetToCommit(c.Request.Context(), sess.Name, c.Param("hash")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetGitStatus GET /api/sessions/:id/status
func (h *Handler) GetGitStatus(c *gin.Context) {
	svc, sess, ok := h.sessionWorktree(c)
	if !ok {
		return
	}
	status, err := svc.GetGitStatus(c.Request.Context(), sess.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RunScript runs a project run script in the session worktree and returns
// its result.
// POST /api/sessions/:id/scripts/:script_id/run
func (h *Handler) RunScript(c *gin.Context) {
	scriptID, ok := h.int64Param(c, "script_id")
	if !ok {
		return
	}
	res, err := h.sessions.RunScript(c.Request.Context(), c.Param("id"), scriptID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
