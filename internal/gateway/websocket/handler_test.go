package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/events"
	"github.com/windschord/claude-work/internal/events/bus"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu          sync.Mutex
	inputs      []string
	permissions []string
	inputErr    error
}

func (f *fakeSessions) EnsureSession(_ context.Context, sessionID string) error {
	if sessionID == "missing" {
		return apperrors.NotFound("session", sessionID)
	}
	return nil
}

func (f *fakeSessions) SendUserInput(_ context.Context, _ string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputErr != nil {
		return f.inputErr
	}
	f.inputs = append(f.inputs, content)
	return nil
}

func (f *fakeSessions) RespondPermission(_ context.Context, _ string, permissionID string, approved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	answer := "no"
	if approved {
		answer = "yes"
	}
	f.permissions = append(f.permissions, permissionID+"="+answer)
	return nil
}

func (f *fakeSessions) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...), append([]string(nil), f.permissions...)
}

type fakeWatcher struct {
	mu      sync.Mutex
	watched map[string]bool
}

func (f *fakeWatcher) WatchSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched[sessionID] = true
	return nil
}

func (f *fakeWatcher) UnwatchSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, sessionID)
}

func (f *fakeWatcher) isWatched(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[sessionID]
}

func dial(t *testing.T, srv *httptest.Server, path string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gorillaws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func newSessionServer(t *testing.T, sessions *fakeSessions, watcher *fakeWatcher) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub("sessions", logger.NewNop())
	var w StatusWatcher
	if watcher != nil {
		w = watcher
	}
	handler := NewSessionHandler(hub, sessions, w, logger.NewNop())
	router := gin.New()
	router.GET("/ws/sessions/:id", handler.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestSessionHandler_Flow(t *testing.T) {
	sessions := &fakeSessions{}
	watcher := &fakeWatcher{watched: map[string]bool{}}
	srv, hub := newSessionServer(t, sessions, watcher)

	conn := dial(t, srv, "/ws/sessions/s1")
	msg := readMessage(t, conn)
	assert.Equal(t, "session_status", msg["type"])
	assert.Equal(t, "connected", msg["status"])

	require.Eventually(t, func() bool { return hub.Count("s1") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return watcher.isWatched("s1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "user_input", "content": "fix the bug"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "permission_response", "permission_id": "p1", "approved": true}))
	require.Eventually(t, func() bool {
		inputs, perms := sessions.snapshot()
		return len(inputs) == 1 && len(perms) == 1
	}, 2*time.Second, 10*time.Millisecond)
	inputs, perms := sessions.snapshot()
	assert.Equal(t, []string{"fix the bug"}, inputs)
	assert.Equal(t, []string{"p1=yes"}, perms)

	hub.Broadcast("s1", ws.NewAssistantOutput(map[string]any{"type": "assistant", "text": "done"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "assistant_output", msg["type"])
	assert.Equal(t, "done", msg["content"].(map[string]any)["text"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count("s1") == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !watcher.isWatched("s1") }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionHandler_ErrorReplies(t *testing.T) {
	sessions := &fakeSessions{inputErr: apperrors.NotRunning("agent")}
	srv, _ := newSessionServer(t, sessions, nil)

	conn := dial(t, srv, "/ws/sessions/s1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("{not json")))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid JSON format", msg["message"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "Unknown message type: dance", msg["message"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "user_input", "content": "hi"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Process is not running", msg["message"])
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	srv, _ := newSessionServer(t, &fakeSessions{}, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/missing"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

type fakeTerminal struct {
	mu      sync.Mutex
	written []string
	resized []string
	alive   bool
}

func (f *fakeTerminal) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return apperrors.NotRunning("terminal")
	}
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTerminal) Resize(_ context.Context, rows, cols int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resized = append(f.resized, fmt.Sprintf("%dx%d", rows, cols))
	return nil
}

func (f *fakeTerminal) Snapshot() []byte { return []byte("SCREEN") }

func (f *fakeTerminal) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTerminal) ExitCode() int { return 0 }

type fakeTerminals struct {
	term     *fakeTerminal
	err      error
	mu       sync.Mutex
	released int
}

func (f *fakeTerminals) AttachTerminal(_ context.Context, sessionID string) (Terminal, error) {
	if sessionID == "missing" {
		return nil, apperrors.NotFound("session", sessionID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.term, nil
}

func (f *fakeTerminals) ReleaseTerminal(_ context.Context, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeTerminals) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func newTerminalServer(t *testing.T, terms *fakeTerminals) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub("terminals", logger.NewNop())
	handler := NewTerminalHandler(hub, terms, logger.NewNop())
	router := gin.New()
	router.GET("/ws/terminal/:id", handler.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestTerminalHandler_Flow(t *testing.T) {
	term := &fakeTerminal{alive: true}
	terms := &fakeTerminals{term: term}
	srv, hub := newTerminalServer(t, terms)

	conn := dial(t, srv, "/ws/terminal/s1")
	msg := readMessage(t, conn)
	assert.Equal(t, "output", msg["type"])
	assert.Equal(t, "SCREEN", msg["data"])

	require.Eventually(t, func() bool { return hub.Count("s1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "data": "ls\n"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "resize", "rows": 40, "cols": 120}))
	require.Eventually(t, func() bool {
		term.mu.Lock()
		defer term.mu.Unlock()
		return len(term.written) == 1 && len(term.resized) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ls\n"}, term.written)
	assert.Equal(t, []string{"40x120"}, term.resized)

	hub.Broadcast("s1", ws.NewExit(3))
	msg = readMessage(t, conn)
	assert.Equal(t, "exit", msg["type"])
	assert.EqualValues(t, 3, msg["code"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return terms.releaseCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTerminalHandler_EveryPeerReleasesItsAttach(t *testing.T) {
	terms := &fakeTerminals{term: &fakeTerminal{alive: true}}
	srv, hub := newTerminalServer(t, terms)

	first := dial(t, srv, "/ws/terminal/s1")
	readMessage(t, first)
	second := dial(t, srv, "/ws/terminal/s1")
	readMessage(t, second)
	require.Eventually(t, func() bool { return hub.Count("s1") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return terms.releaseCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return terms.releaseCount() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestTerminalHandler_DeadTerminal(t *testing.T) {
	terms := &fakeTerminals{term: &fakeTerminal{alive: false}}
	srv, _ := newTerminalServer(t, terms)

	conn := dial(t, srv, "/ws/terminal/s1")
	assert.Equal(t, "output", readMessage(t, conn)["type"])
	msg := readMessage(t, conn)
	assert.Equal(t, "exit", msg["type"])
	assert.EqualValues(t, 0, msg["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "data": "ls\n"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "PTY process is not running", msg["message"])
}

func TestTerminalHandler_StartFailure(t *testing.T) {
	terms := &fakeTerminals{err: errors.New("no pty")}
	srv, _ := newTerminalServer(t, terms)

	conn := dial(t, srv, "/ws/terminal/s1")
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Failed to start terminal: no pty", msg["message"])
}

func TestStatusBroadcaster(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()
	hub := NewHub("sessions", logger.NewNop())
	sub := &fakeSubscriber{id: "a"}
	hub.Connect(sub, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := RegisterSessionStatusNotifications(ctx, eventBus, hub, logger.NewNop())
	require.NoError(t, err)

	event := bus.NewEvent(events.SessionStatusChanged, "test", map[string]interface{}{
		"session_id": "s1",
		"status":     "completed",
	})
	require.NoError(t, eventBus.Publish(ctx, events.SessionStatusSubject("s1"), event))

	require.Eventually(t, func() bool { return len(sub.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := sub.messages()[0]
	assert.Equal(t, ws.TypeSessionStatus, msg.Type)
	assert.Equal(t, "completed", msg.Status)
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:3000", "example.com", true},
		{"https://127.0.0.1:8443", "example.com", true},
		{"https://example.com", "example.com:8000", true},
		{"https://evil.com", "example.com:8000", false},
		{"http://localhost.evil.com", "example.com", false},
		{"ftp://example.com", "example.com", false},
		{"::not a url", "example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin+"->"+tt.host, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/sessions/s1", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkWebSocketOrigin(r))
		})
	}
}
