package bus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/common/logger"
)

// MemoryEventBus is an in-process EventBus. Each subscription receives its
// events on its own goroutine, in publish order.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   []*memorySubscription
	logger *logger.Logger
	closed bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	pattern *regexp.Regexp
	handler EventHandler
	queue   chan delivery
	done    chan struct{}
	once    sync.Once
}

type delivery struct {
	ctx   context.Context
	event *Event
}

const subscriptionBuffer = 256

func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{logger: log.WithFields(zap.String("component", "memory-bus"))}
}

// Publish delivers event to every subscription whose pattern matches subject.
// A subscriber whose queue is full drops the event with a warning.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subs {
		if !sub.pattern.MatchString(subject) {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		case <-sub.done:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				zap.String("subject", subject),
				zap.String("event_type", event.Type))
		}
	}

	b.logger.Debug("published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		pattern: compilePattern(subject),
		handler: handler,
		queue:   make(chan delivery, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	go sub.run()

	b.logger.Debug("subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

func (s *memorySubscription) run() {
	for {
		select {
		case d := <-s.queue:
			if err := s.handler(d.ctx, d.event); err != nil {
				s.bus.logger.Error("event handler error",
					zap.String("subject", s.subject),
					zap.Error(err))
			}
		case <-s.done:
			return
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.done)

		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, sub := range s.bus.subs {
			if sub == s {
				s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (s *memorySubscription) IsValid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close stops every subscription.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.done) })
	}
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// compilePattern turns a NATS-style subject into an anchored regexp.
func compilePattern(subject string) *regexp.Regexp {
	tokens := strings.Split(subject, ".")
	parts := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		switch {
		case tok == ">" && i == len(tokens)-1:
			parts = append(parts, `.+`)
		case tok == "*":
			parts = append(parts, `[^.]+`)
		default:
			parts = append(parts, regexp.QuoteMeta(tok))
		}
	}
	return regexp.MustCompile("^" + strings.Join(parts, `\.`) + "$")
}
