package app

import (
	"context"

	"github.com/amirasaad/remittance/pkg/domain/events"
)

// setupEventBus subscribes post-commit consumers. Payment outcomes go to the
// notification dispatcher; rejected webhooks are written to the security log.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	if bus == nil {
		return
	}
	a.Notifications.Register(bus)

	audit := a.Deps.Logger.With("handler", "security.WebhookRejected")
	bus.Register(events.TypeWebhookRejected, func(_ context.Context, e events.Event) error {
		rej, ok := e.(*events.WebhookRejected)
		if !ok {
			return nil
		}
		audit.Warn("🚨 webhook rejected",
			"gateway", rej.Gateway,
			"remote_ip", rej.RemoteIP,
			"reason", rej.Reason,
			"occurred_at", rej.OccurredAt,
		)
		return nil
	})
}
