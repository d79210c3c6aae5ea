package repository

import (
	"time"

	"github.com/google/uuid"
)

// Payment represents a payment record in the database.
type Payment struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID         `gorm:"type:uuid;not null;index"`
	RecipientID          *uuid.UUID        `gorm:"type:uuid"`
	RecipientEmail       string            `gorm:"size:255"`
	Gateway              string            `gorm:"size:32;not null;index"`
	GatewayTransactionID string            `gorm:"size:255;not null;uniqueIndex"`
	Reference            string            `gorm:"size:255;not null;index"`
	Amount               int64             `gorm:"not null"`
	Currency             string            `gorm:"type:varchar(3);not null"`
	Fee                  int64             `gorm:"not null;default:0"`
	TotalAmount          int64             `gorm:"not null"`
	ExchangeRate         *string           `gorm:"size:64"`
	TargetCurrency       string            `gorm:"type:varchar(3)"`
	ConvertedAmount      *int64
	Status               string            `gorm:"size:16;not null;index"`
	TransactionID        *uuid.UUID        `gorm:"type:uuid"`
	SendLeg              *Transaction      `gorm:"foreignKey:TransactionID"`
	Description          string            `gorm:"size:255"`
	Metadata             map[string]string `gorm:"serializer:json"`
	FailureReason        string            `gorm:"size:255"`
	ReservedAmount       int64             `gorm:"not null;default:0"`
	ReservedCurrency     string            `gorm:"type:varchar(3)"`
	ReservationPeriod    *time.Time
	ReservationState     string            `gorm:"size:16;not null;default:'none'"`
	NeedsReview          bool              `gorm:"not null;default:false;index"`
	ReviewReason         string            `gorm:"size:255"`
	ProcessedAt          *time.Time
	CreatedAt            time.Time         `gorm:"index"`
	UpdatedAt            time.Time
}

// Transaction represents one persisted ledger leg.
type Transaction struct {
	ID                   uuid.UUID    `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID    `gorm:"type:uuid;not null;index"`
	PaymentID            uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_payment_type"`
	Type                 string       `gorm:"size:16;not null;uniqueIndex:idx_transactions_payment_type"`
	Amount               int64        `gorm:"not null"`
	Currency             string       `gorm:"type:varchar(3);not null"`
	CounterpartID        uuid.UUID    `gorm:"type:uuid;not null"`
	Status               string       `gorm:"size:16;not null"`
	Fee                  int64        `gorm:"not null;default:0"`
	TotalAmount          int64        `gorm:"not null"`
	ExchangeRate         *string      `gorm:"size:64"`
	ConvertedAmount      *int64
	ConvertedCurrency    string       `gorm:"type:varchar(3)"`
	RelatedTransactionID *uuid.UUID   `gorm:"type:uuid"`
	RelatedTransaction   *Transaction `gorm:"foreignKey:RelatedTransactionID"`
	Description          string       `gorm:"size:255"`
	CreatedAt            time.Time
}

// KYCRecord stores a user's verification tier and monthly allowance.
type KYCRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Level            string    `gorm:"size:16;not null"`
	Status           string    `gorm:"size:16;not null"`
	MonthlySendLimit int64     `gorm:"not null"`
	CurrentMonthSent int64     `gorm:"not null;default:0"`
	Currency         string    `gorm:"type:varchar(3);not null"`
	ResetDate        time.Time `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName keeps the table name stable regardless of naming strategy.
func (KYCRecord) TableName() string { return "kyc_records" }

// User is the read-only projection of the authentication service's users.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null;size:255"`
	Names     string    `gorm:"size:255"`
	CreatedAt time.Time
}

// Models lists every table, in dependency order, for AutoMigrate.
func Models() []any {
	return []any{&User{}, &KYCRecord{}, &Transaction{}, &Payment{}}
}
