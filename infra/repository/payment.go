package repository

import (
	"context"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a GORM-backed payment repository.
func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(m).Error
	})
}

// Update writes every column so callers persist the aggregate as a whole.
func (r *paymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Model(&Payment{}).Where("id = ?", m.ID).
			Select("*").Omit("id", "created_at", clause.Associations).Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.first(r.locked(ctx), "id = ?", id)
}

func (r *paymentRepository) GetByGatewayTxIDForUpdate(ctx context.Context, gatewayTxID string) (*payment.Payment, error) {
	return r.first(r.locked(ctx), "gateway_transaction_id = ?", gatewayTxID)
}

func (r *paymentRepository) GetByReferenceForUpdate(
	ctx context.Context,
	gateway payment.Gateway,
	reference string,
) (*payment.Payment, error) {
	return r.first(r.locked(ctx), "gateway = ? AND reference = ?", string(gateway), reference)
}

func (r *paymentRepository) List(ctx context.Context, f repository.HistoryFilter) ([]*payment.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&Payment{}).Where("user_id = ?", f.UserID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Gateway != "" {
		q = q.Where("gateway = ?", string(f.Gateway))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, MapGormErrorToDomain(err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var rows []Payment
	err := q.Order("created_at DESC").Order("id").
		Offset((page - 1) * size).Limit(size).Find(&rows).Error
	if err != nil {
		return nil, 0, MapGormErrorToDomain(err)
	}
	return toPaymentDomains(rows), total, nil
}

func (r *paymentRepository) ListUnreconciled(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit < 1 {
		limit = maxPageSize
	}
	var rows []Payment
	err := r.db.WithContext(ctx).
		Where("(status = ? AND transaction_id IS NULL) OR needs_review = ?", string(payment.StatusCompleted), true).
		Order("created_at").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toPaymentDomains(rows), nil
}

func (r *paymentRepository) locked(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *paymentRepository) first(q *gorm.DB, cond string, args ...any) (*payment.Payment, error) {
	var m Payment
	if err := q.Where(cond, args...).First(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toPaymentDomain(&m), nil
}

func toPaymentModel(p *payment.Payment) *Payment {
	return &Payment{
		ID:                   p.ID,
		UserID:               p.UserID,
		RecipientID:          p.RecipientID,
		RecipientEmail:       p.RecipientEmail,
		Gateway:              string(p.Gateway),
		GatewayTransactionID: p.GatewayTransactionID,
		Reference:            p.Reference,
		Amount:               p.Amount.Amount(),
		Currency:             p.Amount.Code().String(),
		Fee:                  p.Fee.Amount(),
		TotalAmount:          p.TotalAmount.Amount(),
		ExchangeRate:         p.ExchangeRate,
		TargetCurrency:       string(p.TargetCurrency),
		ConvertedAmount:      p.ConvertedAmount,
		Status:               string(p.Status),
		TransactionID:        p.TransactionID,
		Description:          p.Description,
		Metadata:             p.Metadata,
		FailureReason:        p.FailureReason,
		ReservedAmount:       p.ReservedAmount,
		ReservedCurrency:     string(p.ReservedCurrency),
		ReservationPeriod:    p.ReservationPeriod,
		ReservationState:     string(p.ReservationState),
		NeedsReview:          p.NeedsReview,
		ReviewReason:         p.ReviewReason,
		ProcessedAt:          p.ProcessedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func toPaymentDomain(m *Payment) *payment.Payment {
	code := money.Code(m.Currency)
	md := m.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return &payment.Payment{
		ID:                   m.ID,
		UserID:               m.UserID,
		RecipientID:          m.RecipientID,
		RecipientEmail:       m.RecipientEmail,
		Gateway:              payment.Gateway(m.Gateway),
		GatewayTransactionID: m.GatewayTransactionID,
		Reference:            m.Reference,
		Amount:               hydrate(m.Amount, code),
		Fee:                  hydrate(m.Fee, code),
		TotalAmount:          hydrate(m.TotalAmount, code),
		ExchangeRate:         m.ExchangeRate,
		TargetCurrency:       money.Code(m.TargetCurrency),
		ConvertedAmount:      m.ConvertedAmount,
		Status:               payment.Status(m.Status),
		TransactionID:        m.TransactionID,
		Description:          m.Description,
		Metadata:             md,
		FailureReason:        m.FailureReason,
		ReservedAmount:       m.ReservedAmount,
		ReservedCurrency:     money.Code(m.ReservedCurrency),
		ReservationPeriod:    m.ReservationPeriod,
		ReservationState:     payment.ReservationState(m.ReservationState),
		NeedsReview:          m.NeedsReview,
		ReviewReason:         m.ReviewReason,
		ProcessedAt:          m.ProcessedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func toPaymentDomains(rows []Payment) []*payment.Payment {
	out := make([]*payment.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, toPaymentDomain(&rows[i]))
	}
	return out
}

// hydrate rebuilds Money from stored columns, which were validated on write.
func hydrate(amount int64, code money.Code) money.Money {
	m, err := money.New(amount, code)
	if err != nil {
		return money.Zero(code)
	}
	return m
}
