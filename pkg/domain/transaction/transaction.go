package transaction

import (
	"time"

	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

// Type is the ledger leg direction.
type Type string

const (
	TypeSend    Type = "send"
	TypeReceive Type = "receive"
)

// Status of a ledger row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Transaction is one leg of a completed payment. Legs are created in pairs
// and never modified afterwards.
type Transaction struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	PaymentID            uuid.UUID
	Type                 Type
	Amount               money.Money
	CounterpartID        uuid.UUID
	Status               Status
	Fee                  money.Money
	TotalAmount          money.Money
	ExchangeRate         *string
	ConvertedAmount      *int64
	ConvertedCurrency    money.Code
	// RelatedTransactionID is set on receive legs and points at the send leg.
	RelatedTransactionID *uuid.UUID
	Description          string
	CreatedAt            time.Time
}

// Pair is the send/receive ledger pair for one payment.
type Pair struct {
	Send    *Transaction
	Receive *Transaction
}
