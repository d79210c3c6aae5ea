// Package notification tells payers, recipients and operators about
// committed payment outcomes. Handlers run off the event bus, after the
// ledger transaction has committed; delivery itself is left to a Sender.
package notification

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Kind classifies a message for the delivery channel.
type Kind string

const (
	KindPaymentSent      Kind = "payment_sent"
	KindPaymentReceived  Kind = "payment_received"
	KindPaymentFailed    Kind = "payment_failed"
	KindPaymentCancelled Kind = "payment_cancelled"
	KindOpsAlert         Kind = "ops_alert"
)

// Message is one notification. UserID is nil for operator alerts.
type Message struct {
	Kind      Kind              `json:"kind"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	PaymentID uuid.UUID         `json:"payment_id"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sender delivers messages. Implementations live with the notification
// transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log. It is the default when no
// transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("📨 notification",
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"payment_id", msg.PaymentID,
		"subject", msg.Subject,
	)
	return nil
}
