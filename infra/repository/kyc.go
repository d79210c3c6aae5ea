package repository

import (
	"context"
	"time"

	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type kycRepository struct {
	db *gorm.DB
}

// NewKYCRepository creates a GORM-backed KYC repository.
func NewKYCRepository(db *gorm.DB) repository.KYCRepository {
	return &kycRepository{db: db}
}

func (r *kycRepository) Get(ctx context.Context, userID uuid.UUID) (*kyc.Record, error) {
	return r.first(r.db.WithContext(ctx), userID)
}

func (r *kycRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*kyc.Record, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *kycRepository) first(q *gorm.DB, userID uuid.UUID) (*kyc.Record, error) {
	var m KYCRecord
	if err := q.Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toKYCDomain(&m), nil
}

// Upsert inserts the record or overwrites tier, status and limit on user_id.
// The running counter is left untouched on conflict.
func (r *kycRepository) Upsert(ctx context.Context, rec *kyc.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m := &KYCRecord{
		ID:               rec.ID,
		UserID:           rec.UserID,
		Level:            string(rec.Level),
		Status:           string(rec.Status),
		MonthlySendLimit: rec.MonthlySendLimit,
		CurrentMonthSent: rec.CurrentMonthSent,
		Currency:         string(rec.Currency),
		ResetDate:        rec.ResetDate,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "status", "monthly_send_limit", "currency", "updated_at"}),
		}).Create(m).Error
	})
}

func (r *kycRepository) ResetPeriod(ctx context.Context, userID uuid.UUID, resetDate time.Time) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&KYCRecord{}).Where("user_id = ?", userID).
			Updates(map[string]any{
				"current_month_sent": 0,
				"reset_date":         resetDate,
				"updated_at":         time.Now().UTC(),
			}).Error
	})
}

// TryIncrement is the single conditional update that makes reservations
// atomic: the limit check and the increment happen in one statement.
func (r *kycRepository) TryIncrement(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&KYCRecord{}).
		Where("user_id = ? AND status = ? AND current_month_sent + ? <= monthly_send_limit",
			userID, string(kyc.StatusApproved), amount).
		Updates(map[string]any{
			"current_month_sent": gorm.Expr("current_month_sent + ?", amount),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *kycRepository) Decrement(ctx context.Context, userID uuid.UUID, amount int64) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&KYCRecord{}).Where("user_id = ?", userID).
			Updates(map[string]any{
				"current_month_sent": gorm.Expr(
					"CASE WHEN current_month_sent >= ? THEN current_month_sent - ? ELSE 0 END", amount, amount),
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

func toKYCDomain(m *KYCRecord) *kyc.Record {
	return &kyc.Record{
		ID:               m.ID,
		UserID:           m.UserID,
		Level:            kyc.Level(m.Level),
		Status:           kyc.Status(m.Status),
		MonthlySendLimit: m.MonthlySendLimit,
		CurrentMonthSent: m.CurrentMonthSent,
		Currency:         money.Code(m.Currency),
		ResetDate:        m.ResetDate,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
