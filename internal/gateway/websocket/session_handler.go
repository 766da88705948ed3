package websocket

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// SessionController is what the session socket needs from the session
// orchestrator.
type SessionController interface {
	// EnsureSession returns NotFound for an unknown session.
	EnsureSession(ctx context.Context, sessionID string) error
	// SendUserInput forwards content to the session's agent. It returns
	// NotRunning when no agent is live.
	SendUserInput(ctx context.Context, sessionID, content string) error
	// RespondPermission answers a permission request of the live agent.
	RespondPermission(ctx context.Context, sessionID, permissionID string, approved bool) error
}

// StatusWatcher pushes git status of sessions that have subscribers.
type StatusWatcher interface {
	WatchSession(ctx context.Context, sessionID string) error
	UnwatchSession(sessionID string)
}

// SessionHandler serves /ws/sessions/:id.
type SessionHandler struct {
	hub      *Hub
	sessions SessionController
	watcher  StatusWatcher
	logger   *logger.Logger
}

// NewSessionHandler creates the session socket handler. watcher may be nil.
func NewSessionHandler(hub *Hub, sessions SessionController, watcher StatusWatcher, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		hub:      hub,
		sessions: sessions,
		watcher:  watcher,
		logger:   log.WithFields(zap.String("component", "ws_session_handler")),
	}
}

// HandleConnection upgrades the request and serves the socket until the
// peer disconnects.
func (h *SessionHandler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sessions.EnsureSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(apperrors.GetHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := sessionUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, h.logger)
	log := h.logger.WithSessionID(sessionID).WithFields(zap.String("client_id", client.ID()))
	log.Info("session socket connected", zap.String("remote_addr", c.Request.RemoteAddr))

	go client.WritePump()

	if err := h.hub.Send(sessionID, client, ws.NewSessionStatus(ws.StatusConnected)); err != nil {
		client.Close()
		return
	}
	h.hub.Connect(client, sessionID)

	// Request contexts end when the handler returns; agent runs started
	// from a socket message must outlive it.
	ctx := context.WithoutCancel(c.Request.Context())
	if h.watcher != nil {
		if err := h.watcher.WatchSession(ctx, sessionID); err != nil {
			log.Debug("git status watch not started", zap.Error(err))
		}
	}

	client.ReadPump(func(data []byte) {
		h.handleMessage(ctx, sessionID, client, data)
	})

	remaining := h.hub.Disconnect(client, sessionID)
	if remaining == 0 && h.watcher != nil {
		h.watcher.UnwatchSession(sessionID)
	}
	log.Info("session socket closed", zap.Int("remaining", remaining))
}

func (h *SessionHandler) handleMessage(ctx context.Context, sessionID string, client *Client, data []byte) {
	msg, err := ws.ParseInbound(data)
	if err != nil {
		_ = h.hub.Send(sessionID, client, ws.NewError("Invalid JSON format"))
		return
	}

	switch msg.Type {
	case ws.TypeUserInput:
		err = h.sessions.SendUserInput(ctx, sessionID, msg.Content)
	case ws.TypePermissionResponse:
		err = h.sessions.RespondPermission(ctx, sessionID, msg.PermissionID, msg.Approved)
	default:
		_ = h.hub.Send(sessionID, client, ws.NewError("Unknown message type: "+string(msg.Type)))
		return
	}
	if err != nil {
		h.logger.Debug("session message rejected",
			zap.String("session_id", sessionID),
			zap.String("type", string(msg.Type)),
			zap.Error(err))
		reply := err.Error()
		if errors.Is(err, apperrors.ErrNotRunning) {
			reply = "Process is not running"
		}
		_ = h.hub.Send(sessionID, client, ws.NewError(reply))
	}
}
