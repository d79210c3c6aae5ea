// Package eventbus defines the publish/subscribe contract for events emitted
// after ledger changes commit.
package eventbus

import (
	"context"

	"github.com/amirasaad/remittance/pkg/domain/events"
)

// HandlerFunc handles one event. A returned error marks the delivery failed;
// durable buses move such messages to a dead-letter stream.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus publishes events and dispatches them to registered handlers.
type Bus interface {
	Register(eventType string, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}
