package repository

import (
	"context"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/domain/transaction"
	"github.com/amirasaad/remittance/pkg/domain/user"
	"github.com/google/uuid"
)

// HistoryFilter narrows a user's payment history. Zero values mean "any".
type HistoryFilter struct {
	UserID   uuid.UUID
	Status   payment.Status
	Gateway  payment.Gateway
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// PaymentRepository persists payments. The ...ForUpdate variants take a row
// lock that is held until the enclosing unit of work ends.
type PaymentRepository interface {
	Create(ctx context.Context, p *payment.Payment) error
	Update(ctx context.Context, p *payment.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByGatewayTxIDForUpdate(ctx context.Context, gatewayTxID string) (*payment.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, gateway payment.Gateway, reference string) (*payment.Payment, error)
	List(ctx context.Context, filter HistoryFilter) ([]*payment.Payment, int64, error)
	// ListUnreconciled returns completed payments without a ledger pair and
	// payments flagged for review, oldest first.
	ListUnreconciled(ctx context.Context, limit int) ([]*payment.Payment, error)
}

// TransactionRepository persists ledger legs. Rows are append-only.
type TransactionRepository interface {
	Create(ctx context.Context, tx *transaction.Transaction) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*transaction.Transaction, error)
}

// KYCRepository persists per-user KYC rows.
type KYCRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*kyc.Record, error)
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*kyc.Record, error)
	Upsert(ctx context.Context, r *kyc.Record) error
	// ResetPeriod zeroes the counter and moves the reset date forward.
	ResetPeriod(ctx context.Context, userID uuid.UUID, resetDate time.Time) error
	// TryIncrement adds amount only if the user is approved and the new total
	// stays within the limit. It reports whether a row was updated.
	TryIncrement(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	// Decrement subtracts amount, clamping at zero.
	Decrement(ctx context.Context, userID uuid.UUID, amount int64) error
}

// UserRepository reads users owned by the authentication service.
type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}
