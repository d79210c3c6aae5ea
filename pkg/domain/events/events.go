// Package events defines the notifications emitted after payment state
// changes are committed, plus the security audit trail for webhooks.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every message carried on the event bus.
type Event interface {
	Type() string
}

// Event type names.
const (
	TypePaymentInitiated    = "payment.initiated"
	TypePaymentCompleted    = "payment.completed"
	TypePaymentFailed       = "payment.failed"
	TypePaymentCancelled    = "payment.cancelled"
	TypePaymentConflict     = "payment.conflict"
	TypePaymentUnreconciled = "payment.unreconciled"
	TypeWebhookRejected     = "security.webhook_rejected"
)

// PaymentInitiated is emitted once a client send has been handed to a gateway.
type PaymentInitiated struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Gateway    string    `json:"gateway"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentInitiated) Type() string { return TypePaymentInitiated }

// PaymentCompleted is emitted after the ledger pair has been committed.
type PaymentCompleted struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	UserID        uuid.UUID  `json:"user_id"`
	RecipientID   *uuid.UUID `json:"recipient_id,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Gateway       string     `json:"gateway"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func (PaymentCompleted) Type() string { return TypePaymentCompleted }

// PaymentFailed is emitted when a payment reaches the failed state.
type PaymentFailed struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Gateway    string    `json:"gateway"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentFailed) Type() string { return TypePaymentFailed }

// PaymentCancelled is emitted when a pending payment is cancelled.
type PaymentCancelled struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Gateway    string    `json:"gateway"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentCancelled) Type() string { return TypePaymentCancelled }

// PaymentConflict is emitted when a provider reports a terminal status that
// differs from the recorded one. The recorded status is kept.
type PaymentConflict struct {
	PaymentID            uuid.UUID `json:"payment_id"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	Gateway              string    `json:"gateway"`
	RecordedStatus       string    `json:"recorded_status"`
	ReportedStatus       string    `json:"reported_status"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func (PaymentConflict) Type() string { return TypePaymentConflict }

// PaymentUnreconciled is emitted when a payment completed but its ledger pair
// could not be written.
type PaymentUnreconciled struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Gateway    string    `json:"gateway"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentUnreconciled) Type() string { return TypePaymentUnreconciled }

// WebhookRejected is the audit record of a webhook that failed verification.
type WebhookRejected struct {
	Gateway    string    `json:"gateway"`
	RemoteIP   string    `json:"remote_ip"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (WebhookRejected) Type() string { return TypeWebhookRejected }

// Factories builds empty events by type name for decoding bus payloads.
var Factories = map[string]func() Event{
	TypePaymentInitiated:    func() Event { return &PaymentInitiated{} },
	TypePaymentCompleted:    func() Event { return &PaymentCompleted{} },
	TypePaymentFailed:       func() Event { return &PaymentFailed{} },
	TypePaymentCancelled:    func() Event { return &PaymentCancelled{} },
	TypePaymentConflict:     func() Event { return &PaymentConflict{} },
	TypePaymentUnreconciled: func() Event { return &PaymentUnreconciled{} },
	TypeWebhookRejected:     func() Event { return &WebhookRejected{} },
}
