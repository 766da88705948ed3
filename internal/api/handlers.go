package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/auth"
	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	gwws "github.com/windschord/claude-work/internal/gateway/websocket"
	"github.com/windschord/claude-work/internal/session"
	"github.com/windschord/claude-work/internal/store"
)

// Handler serves the REST routes.
type Handler struct {
	store    *store.Store
	sessions *session.Orchestrator
	auth     *auth.Service
	logger   *logger.Logger
}

func NewHandler(st *store.Store, sessions *session.Orchestrator, authSvc *auth.Service, log *logger.Logger) *Handler {
	return &Handler{
		store:    st,
		sessions: sessions,
		auth:     authSvc,
		logger:   log.WithFields(zap.String("component", "api")),
	}
}

// HealthCheck reports whether the database answers.
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// respondError writes err as {"error": message} with its mapped status.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperrors.GetHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// int64Param parses a numeric path parameter, answering 400 when it is not
// a number.
func (h *Handler) int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		h.respondError(c, apperrors.BadRequest("invalid "+name))
		return 0, false
	}
	return v, true
}

// terminalController exposes the orchestrator terminals to the socket
// gateway.
type terminalController struct {
	sessions *session.Orchestrator
}

func (t terminalController) AttachTerminal(ctx context.Context, sessionID string) (gwws.Terminal, error) {
	sh, err := t.sessions.AttachTerminal(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sh, nil
}

func (t terminalController) ReleaseTerminal(ctx context.Context, sessionID string) {
	t.sessions.ReleaseTerminal(ctx, sessionID)
}
