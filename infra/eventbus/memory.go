package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/eventbus"
)

// MemoryEventBus dispatches events synchronously to in-process handlers.
// It keeps every emitted event so tests can assert on them.
type MemoryEventBus struct {
	handlers  map[string][]eventbus.HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	published []events.Event
}

// NewWithMemory creates an in-memory event bus.
func NewWithMemory(logger *slog.Logger) *MemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryEventBus{
		handlers:  make(map[string][]eventbus.HandlerFunc),
		logger:    logger.With("bus", "memory"),
		published: make([]events.Event, 0),
	}
}

// Register adds a handler for eventType.
func (b *MemoryEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit runs every handler registered for the event's type. Handler errors
// and panics are logged; they never fail the emitter.
func (b *MemoryEventBus) Emit(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[event.Type()]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("panic recovered in event handler", "type", event.Type(), "panic", r)
				}
			}()
			if err := handler(ctx, event); err != nil {
				b.logger.Error("failed to process event", "type", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// ClearPublished forgets recorded events.
func (b *MemoryEventBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = make([]events.Event, 0)
}

// Published returns a copy of every emitted event, oldest first.
func (b *MemoryEventBus) Published() []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.Event(nil), b.published...)
}

// PublishedOfType filters Published by event type.
func (b *MemoryEventBus) PublishedOfType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range b.Published() {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

var _ eventbus.Bus = (*MemoryEventBus)(nil)
