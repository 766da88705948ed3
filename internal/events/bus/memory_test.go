package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windschord/claude-work/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger())
	defer b.Close()

	received := make(chan *Event, 1)
	sub, err := b.Subscribe("session.status.s1", func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	event := NewEvent("session.status_changed", "test", map[string]interface{}{"status": "running"})
	require.NoError(t, b.Publish(context.Background(), "session.status.s1", event))

	select {
	case e := <-received:
		assert.Equal(t, event.ID, e.ID)
		assert.Equal(t, "running", e.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_Wildcards(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger())
	defer b.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 4)
	record := func(name string) EventHandler {
		return func(_ context.Context, e *Event) error {
			mu.Lock()
			got = append(got, name+":"+e.Type)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}

	_, err := b.Subscribe("session.status.*", record("star"))
	require.NoError(t, err)
	_, err = b.Subscribe("session.>", record("tail"))
	require.NoError(t, err)
	_, err = b.Subscribe("project.*", record("other"))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "session.status.abc", NewEvent("a", "t", nil)))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for deliveries")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"star:a", "tail:a"}, got)
}

func TestMemoryEventBus_PreservesOrderPerSubscription(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger())
	defer b.Close()

	const n = 50
	seen := make(chan string, n)
	_, err := b.Subscribe("ordered", func(_ context.Context, e *Event) error {
		seen <- e.Type
		return nil
	})
	require.NoError(t, err)

	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		typ := string(rune('a' + i%26))
		want = append(want, typ)
		require.NoError(t, b.Publish(context.Background(), "ordered", NewEvent(typ, "t", nil)))
	}

	got := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case typ := <-seen:
			got = append(got, typ)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ordered events")
		}
	}
	assert.Equal(t, want, got)
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger())
	defer b.Close()

	calls := make(chan struct{}, 1)
	sub, err := b.Subscribe("x", func(context.Context, *Event) error {
		calls <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, b.Publish(context.Background(), "x", NewEvent("t", "t", nil)))
	select {
	case <-calls:
		t.Fatal("handler called after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEventBus_Closed(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger())
	b.Close()
	b.Close()

	assert.False(t, b.IsConnected())
	assert.Error(t, b.Publish(context.Background(), "x", NewEvent("t", "t", nil)))
	_, err := b.Subscribe("x", func(context.Context, *Event) error { return nil })
	assert.Error(t, err)
}

func TestCompilePattern(t *testing.T) {
	assert.True(t, compilePattern("a.*.c").MatchString("a.b.c"))
	assert.False(t, compilePattern("a.*.c").MatchString("a.b.x.c"))
	assert.True(t, compilePattern("a.>").MatchString("a.b.x.c"))
	assert.False(t, compilePattern("a.>").MatchString("a"))
	assert.True(t, compilePattern("a.b").MatchString("a.b"))
	assert.False(t, compilePattern("a.b").MatchString("aXb"))
}
