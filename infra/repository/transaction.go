package repository

import (
	"context"

	"github.com/amirasaad/remittance/pkg/domain/transaction"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a GORM-backed ledger repository.
func NewTransactionRepository(db *gorm.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a ledger leg. A second leg of the same type for the same
// payment violates idx_transactions_payment_type and maps to ErrAlreadyExists.
func (r *transactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	m := toTransactionModel(tx)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(m).Error
	})
}

func (r *transactionRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	var rows []Transaction
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("type DESC").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toTransactionDomains(rows), nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*transaction.Transaction, error) {
	if limit < 1 || limit > maxPageSize {
		limit = maxPageSize
	}
	var rows []Transaction
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toTransactionDomains(rows), nil
}

func toTransactionModel(t *transaction.Transaction) *Transaction {
	return &Transaction{
		ID:                   t.ID,
		UserID:               t.UserID,
		PaymentID:            t.PaymentID,
		Type:                 string(t.Type),
		Amount:               t.Amount.Amount(),
		Currency:             t.Amount.Code().String(),
		CounterpartID:        t.CounterpartID,
		Status:               string(t.Status),
		Fee:                  t.Fee.Amount(),
		TotalAmount:          t.TotalAmount.Amount(),
		ExchangeRate:         t.ExchangeRate,
		ConvertedAmount:      t.ConvertedAmount,
		ConvertedCurrency:    string(t.ConvertedCurrency),
		RelatedTransactionID: t.RelatedTransactionID,
		Description:          t.Description,
		CreatedAt:            t.CreatedAt,
	}
}

func toTransactionDomains(rows []Transaction) []*transaction.Transaction {
	out := make([]*transaction.Transaction, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		code := money.Code(m.Currency)
		out = append(out, &transaction.Transaction{
			ID:                   m.ID,
			UserID:               m.UserID,
			PaymentID:            m.PaymentID,
			Type:                 transaction.Type(m.Type),
			Amount:               hydrate(m.Amount, code),
			CounterpartID:        m.CounterpartID,
			Status:               transaction.Status(m.Status),
			Fee:                  hydrate(m.Fee, code),
			TotalAmount:          hydrate(m.TotalAmount, code),
			ExchangeRate:         m.ExchangeRate,
			ConvertedAmount:      m.ConvertedAmount,
			ConvertedCurrency:    money.Code(m.ConvertedCurrency),
			RelatedTransactionID: m.RelatedTransactionID,
			Description:          m.Description,
			CreatedAt:            m.CreatedAt,
		})
	}
	return out
}
