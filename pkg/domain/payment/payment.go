// Package payment holds the Payment aggregate and its lifecycle rules.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

// Gateway identifies an external payment provider.
type Gateway string

const (
	GatewayStripe  Gateway = "stripe"
	GatewayOzow    Gateway = "ozow"
	GatewayPayFast Gateway = "payfast"
)

// Gateways lists every supported provider.
var Gateways = []Gateway{GatewayStripe, GatewayOzow, GatewayPayFast}

// ParseGateway validates a provider name taken from a URL path.
func ParseGateway(s string) (Gateway, error) {
	for _, g := range Gateways {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownGateway, s)
}

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed:
// pending may go to processing or any terminal state, processing may only
// complete or fail, and terminal states are final.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to.IsTerminal()
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// ReservationState tracks the KYC limit hold attached to a payment.
type ReservationState string

const (
	ReservationNone     ReservationState = "none"
	ReservationHeld     ReservationState = "held"
	ReservationConsumed ReservationState = "consumed"
	ReservationReleased ReservationState = "released"
)

const provisionalPrefix = "pending:"

// Payment records a single funds movement attempt through one gateway.
//
// Invariants:
//   - GatewayTransactionID is globally unique.
//   - Status only moves forward; terminal states are final.
//   - TransactionID is set iff Status is completed, except for the
//     NeedsReview state where the counterpart could not be resolved.
type Payment struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	RecipientID          *uuid.UUID
	RecipientEmail       string
	Gateway              Gateway
	GatewayTransactionID string
	Reference            string
	Amount               money.Money
	Fee                  money.Money
	TotalAmount          money.Money
	ExchangeRate         *string
	TargetCurrency       money.Code
	ConvertedAmount      *int64
	Status               Status
	TransactionID        *uuid.UUID
	Description          string
	Metadata             map[string]string
	FailureReason        string
	ReservedAmount       int64
	ReservedCurrency     money.Code
	ReservationPeriod    *time.Time
	ReservationState     ReservationState
	NeedsReview          bool
	ReviewReason         string
	ProcessedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// New builds a pending payment. Until the provider assigns its own id the
// payment carries a provisional gateway transaction id, and Reference (the
// merchant reference sent to the provider) is the payment id.
func New(userID uuid.UUID, gateway Gateway, amount, fee money.Money) (*Payment, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: payer is required", domain.ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	total, err := amount.Add(fee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	id := uuid.New()
	now := time.Now().UTC()
	return &Payment{
		ID:                   id,
		UserID:               userID,
		Gateway:              gateway,
		GatewayTransactionID: provisionalPrefix + id.String(),
		Reference:            id.String(),
		Amount:               amount,
		Fee:                  fee,
		TotalAmount:          total,
		Status:               StatusPending,
		Metadata:             map[string]string{},
		ReservationState:     ReservationNone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// HasProvisionalGatewayID reports whether the provider has not assigned its
// own transaction id yet.
func (p *Payment) HasProvisionalGatewayID() bool {
	return strings.HasPrefix(p.GatewayTransactionID, provisionalPrefix)
}

// TransitionTo moves the payment to status or returns ErrInvalidTransition.
func (p *Payment) TransitionTo(status Status) error {
	if !CanTransition(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, p.Status, status)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsUnreconciled reports a completed payment that has no ledger pair.
func (p *Payment) IsUnreconciled() bool {
	return p.Status == StatusCompleted && p.TransactionID == nil
}

// HoldReservation records the KYC allowance held for this payment.
func (p *Payment) HoldReservation(amount int64, currency money.Code, period time.Time) {
	p.ReservedAmount = amount
	p.ReservedCurrency = currency
	p.ReservationPeriod = &period
	p.ReservationState = ReservationHeld
}
