// Package event provides an in-memory implementation of platform.EventBus.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"go.uber.org/zap"
)

var _ platform.EventBus = (*Bus)(nil)

// Bus delivers events to topic subscribers and to wildcard subscribers.
// Publish runs handlers in the caller's goroutine; PublishAsync gives each
// handler its own goroutine. A panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	byTopic  map[string][]subscription
	wildcard []subscription
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	id      uint64
	handler platform.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		byTopic: make(map[string][]subscription),
		logger:  logger,
	}
}

// Publish dispatches event synchronously to all matching handlers.
func (b *Bus) Publish(ctx context.Context, event platform.Event) error {
	event = stamp(event)
	for _, s := range b.matching(event.Topic) {
		b.deliver(ctx, s.handler, event)
	}
	return nil
}

// PublishAsync dispatches event to all matching handlers without waiting.
func (b *Bus) PublishAsync(ctx context.Context, event platform.Event) {
	event = stamp(event)
	for _, s := range b.matching(event.Topic) {
		go b.deliver(ctx, s.handler, event)
	}
}

// Subscribe registers handler for topic and returns its unsubscribe func.
func (b *Bus) Subscribe(topic string, handler platform.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.byTopic[topic] = append(b.byTopic[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = without(b.byTopic[topic], id)
		if len(b.byTopic[topic]) == 0 {
			delete(b.byTopic, topic)
		}
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler platform.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = without(b.wildcard, id)
	}
}

// matching snapshots the handlers for topic so delivery happens without the lock.
func (b *Bus) matching(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]subscription, 0, len(b.byTopic[topic])+len(b.wildcard))
	out = append(out, b.byTopic[topic]...)
	return append(out, b.wildcard...)
}

func (b *Bus) deliver(ctx context.Context, handler platform.EventHandler, event platform.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func stamp(event platform.Event) platform.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
