package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/events"
	"github.com/windschord/claude-work/internal/events/bus"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// StatusBroadcaster relays session status events from the bus to the
// subscribers of each session.
type StatusBroadcaster struct {
	hub    *Hub
	sub    bus.Subscription
	logger *logger.Logger
}

// RegisterSessionStatusNotifications subscribes to status events of every
// session. The subscription ends with ctx.
func RegisterSessionStatusNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) (*StatusBroadcaster, error) {
	b := &StatusBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws_status_broadcaster")),
	}

	sub, err := eventBus.Subscribe(events.SessionStatusWildcard, b.handle)
	if err != nil {
		return nil, err
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		b.Close()
	}()
	return b, nil
}

func (b *StatusBroadcaster) handle(_ context.Context, event *bus.Event) error {
	sessionID, _ := event.Data["session_id"].(string)
	status, _ := event.Data["status"].(string)
	if sessionID == "" || status == "" {
		b.logger.Warn("malformed session status event", zap.String("event_id", event.ID))
		return nil
	}
	n := b.hub.Broadcast(sessionID, ws.NewSessionStatus(status))
	b.logger.Debug("session status broadcast",
		zap.String("session_id", sessionID),
		zap.String("status", status),
		zap.Int("delivered", n))
	return nil
}

func (b *StatusBroadcaster) Close() {
	if b.sub != nil && b.sub.IsValid() {
		_ = b.sub.Unsubscribe()
	}
}
