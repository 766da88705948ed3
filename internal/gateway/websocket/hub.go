// Package websocket is the WebSocket gateway: the per-session subscriber hub
// and the session and terminal socket handlers.
package websocket

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/common/logger"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// Subscriber is one receiver of session messages.
type Subscriber interface {
	ID() string
	// Send delivers msg or returns an error. A subscriber that failed once
	// is dropped from the hub.
	Send(msg *ws.Message) error
}

// Hub tracks the subscribers of each session. Subscribers of a session are
// kept in connect order; a session entry is deleted once it has none.
type Hub struct {
	name   string
	mu     sync.RWMutex
	groups map[string][]Subscriber
	logger *logger.Logger
}

// NewHub creates an empty hub. name tags its log lines.
func NewHub(name string, log *logger.Logger) *Hub {
	return &Hub{
		name:   name,
		groups: make(map[string][]Subscriber),
		logger: log.WithFields(zap.String("component", "ws_hub"), zap.String("hub", name)),
	}
}

// Connect adds sub to sessionID. Connecting twice is a no-op.
func (h *Hub) Connect(sub Subscriber, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.groups[sessionID]
	if slices.Contains(subs, sub) {
		return
	}
	h.groups[sessionID] = append(subs, sub)
	h.logger.Debug("subscriber connected",
		zap.String("session_id", sessionID),
		zap.String("subscriber_id", sub.ID()),
		zap.Int("subscribers", len(subs)+1))
}

// Disconnect removes sub from sessionID and returns how many subscribers
// remain. Removing an unknown subscriber is a no-op.
func (h *Hub) Disconnect(sub Subscriber, sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(sub, sessionID)
}

func (h *Hub) removeLocked(sub Subscriber, sessionID string) int {
	subs, ok := h.groups[sessionID]
	if !ok {
		return 0
	}
	idx := slices.Index(subs, sub)
	if idx < 0 {
		return len(subs)
	}
	subs = slices.Delete(subs, idx, idx+1)
	if len(subs) == 0 {
		delete(h.groups, sessionID)
	} else {
		h.groups[sessionID] = subs
	}
	h.logger.Debug("subscriber disconnected",
		zap.String("session_id", sessionID),
		zap.String("subscriber_id", sub.ID()),
		zap.Int("subscribers", len(subs)))
	return len(subs)
}

// Send delivers msg to one subscriber and disconnects it on failure.
func (h *Hub) Send(sessionID string, sub Subscriber, msg *ws.Message) error {
	if err := sub.Send(msg); err != nil {
		h.logger.Debug("send failed, dropping subscriber",
			zap.String("session_id", sessionID),
			zap.String("subscriber_id", sub.ID()),
			zap.Error(err))
		h.Disconnect(sub, sessionID)
		return err
	}
	return nil
}

// Broadcast delivers msg to every subscriber of sessionID in connect order.
// A failed delivery does not stop the others; failed subscribers are
// removed after the pass. It returns the number of successful deliveries.
func (h *Hub) Broadcast(sessionID string, msg *ws.Message) int {
	h.mu.RLock()
	subs := slices.Clone(h.groups[sessionID])
	h.mu.RUnlock()

	var failed []Subscriber
	for _, sub := range subs {
		if err := sub.Send(msg); err != nil {
			h.logger.Debug("broadcast delivery failed",
				zap.String("session_id", sessionID),
				zap.String("subscriber_id", sub.ID()),
				zap.Error(err))
			failed = append(failed, sub)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sub := range failed {
			h.removeLocked(sub, sessionID)
		}
		h.mu.Unlock()
	}
	return len(subs) - len(failed)
}

// Count returns the number of subscribers of sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}

// Sessions returns the ids of sessions that have subscribers.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.groups))
	for id := range h.groups {
		ids = append(ids, id)
	}
	return ids
}
