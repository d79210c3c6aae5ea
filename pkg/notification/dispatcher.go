package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/eventbus"
	"github.com/amirasaad/remittance/pkg/kvstore"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

const dedupeTTL = 24 * time.Hour

// Dispatcher turns payment events into messages. Buses deliver at least
// once, so each (event type, payment) pair is sent once per dedupeTTL when a
// store is configured.
type Dispatcher struct {
	sender Sender
	seen   kvstore.Store
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. seen may be nil to disable
// de-duplication.
func NewDispatcher(sender Sender, seen kvstore.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, seen: seen, logger: logger}
}

// Register subscribes the dispatcher to every payment outcome.
func (d *Dispatcher) Register(bus eventbus.Bus) {
	for _, t := range []string{
		events.TypePaymentCompleted,
		events.TypePaymentFailed,
		events.TypePaymentCancelled,
		events.TypePaymentConflict,
		events.TypePaymentUnreconciled,
	} {
		bus.Register(t, d.Handle)
	}
}

// Handle is the bus handler for one event.
func (d *Dispatcher) Handle(ctx context.Context, e events.Event) error {
	log := d.logger.With("handler", "notification.Handle", "type", e.Type())

	paymentID, msgs := messagesFor(e)
	if len(msgs) == 0 {
		log.Debug("🔁 [SKIP] nothing to notify")
		return nil
	}
	first, err := d.firstDelivery(ctx, e.Type(), paymentID)
	if err != nil {
		log.Warn("dedupe store unavailable, sending anyway", "error", err)
	} else if !first {
		log.Info("🔁 [SKIP] already notified", "payment_id", paymentID)
		return nil
	}

	var errs []error
	for _, m := range msgs {
		if err := d.sender.Send(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", m.Kind, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("❌ notification failed", "payment_id", paymentID, "error", err)
		d.forget(ctx, e.Type(), paymentID)
		return err
	}
	log.Info("✅ [SUCCESS] notified", "payment_id", paymentID, "messages", len(msgs))
	return nil
}

func (d *Dispatcher) firstDelivery(ctx context.Context, eventType string, paymentID uuid.UUID) (bool, error) {
	if d.seen == nil {
		return true, nil
	}
	return d.seen.SetNX(ctx, dedupeKey(eventType, paymentID), []byte("1"), dedupeTTL)
}

func (d *Dispatcher) forget(ctx context.Context, eventType string, paymentID uuid.UUID) {
	if d.seen == nil {
		return
	}
	if err := d.seen.Delete(ctx, dedupeKey(eventType, paymentID)); err != nil {
		d.logger.Warn("failed to clear dedupe key", "error", err)
	}
}

func dedupeKey(eventType string, paymentID uuid.UUID) string {
	return "notify:" + eventType + ":" + paymentID.String()
}

func messagesFor(e events.Event) (uuid.UUID, []Message) {
	switch ev := e.(type) {
	case *events.PaymentCompleted:
		payer := ev.UserID
		msgs := []Message{{
			Kind:      KindPaymentSent,
			UserID:    &payer,
			PaymentID: ev.PaymentID,
			Subject:   "Your payment was sent",
			Body:      describe(ev.Amount, ev.Currency) + " was delivered.",
		}}
		if ev.RecipientID != nil {
			recipient := *ev.RecipientID
			msgs = append(msgs, Message{
				Kind:      KindPaymentReceived,
				UserID:    &recipient,
				PaymentID: ev.PaymentID,
				Subject:   "You received money",
				Body:      "You received " + describe(ev.Amount, ev.Currency) + ".",
			})
		}
		return ev.PaymentID, msgs
	case *events.PaymentFailed:
		payer := ev.UserID
		return ev.PaymentID, []Message{{
			Kind:      KindPaymentFailed,
			UserID:    &payer,
			PaymentID: ev.PaymentID,
			Subject:   "Your payment failed",
			Body:      "The payment could not be completed: " + ev.Reason,
		}}
	case *events.PaymentCancelled:
		payer := ev.UserID
		return ev.PaymentID, []Message{{
			Kind:      KindPaymentCancelled,
			UserID:    &payer,
			PaymentID: ev.PaymentID,
			Subject:   "Your payment was cancelled",
		}}
	case *events.PaymentConflict:
		return ev.PaymentID, []Message{{
			Kind:      KindOpsAlert,
			PaymentID: ev.PaymentID,
			Subject:   "Conflicting gateway status",
			Body: fmt.Sprintf("%s reported %s for %s, recorded %s",
				ev.Gateway, ev.ReportedStatus, ev.GatewayTransactionID, ev.RecordedStatus),
			Data: map[string]string{"gateway": ev.Gateway},
		}}
	case *events.PaymentUnreconciled:
		return ev.PaymentID, []Message{{
			Kind:      KindOpsAlert,
			PaymentID: ev.PaymentID,
			Subject:   "Payment completed without ledger entries",
			Body:      ev.Reason,
			Data:      map[string]string{"gateway": ev.Gateway},
		}}
	}
	return uuid.Nil, nil
}

func describe(amount int64, currency string) string {
	m, err := money.New(amount, money.Code(currency))
	if err != nil {
		return fmt.Sprintf("%d %s", amount, currency)
	}
	return m.String()
}
