package websocket

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// Terminal is a live session shell as seen by the socket.
type Terminal interface {
	Write(ctx context.Context, data []byte) error
	Resize(ctx context.Context, rows, cols int) error
	Snapshot() []byte
	IsAlive() bool
	ExitCode() int
}

// TerminalController owns the per-session terminals. It broadcasts their
// output and exit to the terminal hub.
type TerminalController interface {
	// AttachTerminal returns the session's terminal, starting it if absent.
	AttachTerminal(ctx context.Context, sessionID string) (Terminal, error)
	// ReleaseTerminal gives back one successful attach. The terminal is
	// stopped once every attach has been released.
	ReleaseTerminal(ctx context.Context, sessionID string)
}

// TerminalHandler serves /ws/terminal/:id.
type TerminalHandler struct {
	hub       *Hub
	terminals TerminalController
	logger    *logger.Logger
}

func NewTerminalHandler(hub *Hub, terminals TerminalController, log *logger.Logger) *TerminalHandler {
	return &TerminalHandler{
		hub:       hub,
		terminals: terminals,
		logger:    log.WithFields(zap.String("component", "ws_terminal_handler")),
	}
}

// HandleConnection attaches the peer to the session terminal. The peer first
// receives a redraw of the current screen, then live output. Each peer
// releases its attach on leaving; the terminal stops with the last one.
func (h *TerminalHandler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := context.WithoutCancel(c.Request.Context())

	term, err := h.terminals.AttachTerminal(ctx, sessionID)
	if err != nil && apperrors.IsNotFound(err) {
		c.JSON(apperrors.GetHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, upErr := terminalUpgrader.Upgrade(c.Writer, c.Request, nil)
	if upErr != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(upErr))
		if err == nil {
			h.terminals.ReleaseTerminal(ctx, sessionID)
		}
		return
	}

	client := NewClient(uuid.New().String(), conn, h.logger)
	log := h.logger.WithSessionID(sessionID).WithFields(zap.String("client_id", client.ID()))
	go client.WritePump()

	if err != nil {
		log.Error("failed to start terminal", zap.Error(err))
		_ = client.Send(ws.NewError("Failed to start terminal: " + err.Error()))
		client.Close()
		return
	}

	if snap := term.Snapshot(); len(snap) > 0 {
		_ = client.Send(ws.NewOutput(snap))
	}
	h.hub.Connect(client, sessionID)
	log.Info("terminal socket connected", zap.String("remote_addr", c.Request.RemoteAddr))

	// The shell may have exited before this peer joined the hub and missed
	// the broadcast exit.
	if !term.IsAlive() {
		_ = h.hub.Send(sessionID, client, ws.NewExit(term.ExitCode()))
	}

	client.ReadPump(func(data []byte) {
		h.handleMessage(ctx, sessionID, client, term, data)
	})

	remaining := h.hub.Disconnect(client, sessionID)
	h.terminals.ReleaseTerminal(ctx, sessionID)
	log.Info("terminal socket closed", zap.Int("remaining", remaining))
}

func (h *TerminalHandler) handleMessage(ctx context.Context, sessionID string, client *Client, term Terminal, data []byte) {
	msg, err := ws.ParseInbound(data)
	if err != nil {
		h.logger.Debug("invalid terminal message", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	switch msg.Type {
	case ws.TypeInput:
		if err := term.Write(ctx, []byte(msg.Data)); err != nil {
			_ = h.hub.Send(sessionID, client, ws.NewError("PTY process is not running"))
		}
	case ws.TypeResize:
		rows, cols := msg.Rows, msg.Cols
		if rows == 0 {
			rows = 24
		}
		if cols == 0 {
			cols = 80
		}
		if err := term.Resize(ctx, rows, cols); err != nil {
			h.logger.Debug("terminal resize failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	default:
		h.logger.Warn("unknown terminal message type",
			zap.String("session_id", sessionID),
			zap.String("type", string(msg.Type)))
	}
}
