package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/amirasaad/remittance/pkg/domain/events"
)

// envelope is the wire format shared by the Redis and Kafka buses.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encode(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("event bus: marshal %s: %w", event.Type(), err)
	}
	env, err := json.Marshal(envelope{Type: event.Type(), Payload: data})
	if err != nil {
		return nil, fmt.Errorf("event bus: envelope %s: %w", event.Type(), err)
	}
	return env, nil
}

// decode rebuilds the concrete event using the registered factories.
func decode(raw []byte, factories map[string]func() events.Event) (events.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("event bus: envelope: %w", err)
	}
	constructor, ok := factories[env.Type]
	if !ok {
		return nil, fmt.Errorf("event bus: unknown event type %q", env.Type)
	}
	evt := constructor()
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("event bus: payload %s: %w", env.Type, err)
	}
	return evt, nil
}
