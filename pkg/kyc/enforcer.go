// Package kyc enforces per-user monthly send limits.
//
// A reservation is the check-and-increment of CurrentMonthSent. It runs as a
// single conditional UPDATE while the KYC row is locked, so concurrent sends
// for one user cannot both pass the check. Reservations that do not end in a
// completed payment are released in the same unit of work as the payment's
// terminal transition.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/metrics"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
)

// Limits maps a tier to its monthly allowance in base currency minor units.
type Limits map[kyc.Level]int64

// LimitsFromConfig reads tier limits from configuration.
func LimitsFromConfig(cfg *config.KYC) Limits {
	return Limits{
		kyc.LevelBronze: cfg.BronzeLimit,
		kyc.LevelSilver: cfg.SilverLimit,
		kyc.LevelGold:   cfg.GoldLimit,
	}
}

// Enforcer reserves and releases monthly allowance.
type Enforcer struct {
	uow    repository.UnitOfWork
	rates  fees.RateSource
	base   money.Code
	limits Limits
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes an Enforcer.
type Option func(*Enforcer)

// WithClock overrides the time source used for monthly resets.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// New creates an Enforcer. Allowances are tracked in base; amounts in other
// currencies are converted through rates before reserving.
func New(
	uow repository.UnitOfWork,
	rates fees.RateSource,
	base money.Code,
	limits Limits,
	logger *slog.Logger,
	opts ...Option,
) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enforcer{
		uow:    uow,
		rates:  rates,
		base:   base,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// BaseCurrency is the currency allowances are kept in.
func (e *Enforcer) BaseCurrency() money.Code { return e.base }

// LimitForLevel returns the monthly allowance of a tier.
func (e *Enforcer) LimitForLevel(level kyc.Level) (int64, error) {
	limit, ok := e.limits[level]
	if !ok {
		return 0, fmt.Errorf("%w: unknown KYC level %q", domain.ErrValidation, level)
	}
	return limit, nil
}

// ToBase expresses amount in the base currency. The rate lookup may hit the
// network, so callers do it before opening a unit of work.
func (e *Enforcer) ToBase(ctx context.Context, amount money.Money) (money.Money, error) {
	if amount.Code() == e.base {
		return amount, nil
	}
	if e.rates == nil {
		return money.Money{}, fmt.Errorf("%w: no rate source for %s", domain.ErrValidation, amount.Code())
	}
	rate, err := e.rates.Rate(ctx, amount.Code(), e.base)
	if err != nil {
		return money.Money{}, fmt.Errorf("kyc rate %s->%s: %w", amount.Code(), e.base, err)
	}
	return fees.Convert(amount, e.base, rate)
}

// Reserve converts amount to the base currency and reserves it in its own
// unit of work. Denials are ErrKYCNotVerified or *kyc.LimitExceededError.
func (e *Enforcer) Reserve(ctx context.Context, userID uuid.UUID, amount money.Money) (*kyc.Reservation, error) {
	base, err := e.ToBase(ctx, amount)
	if err != nil {
		return nil, err
	}
	var res *kyc.Reservation
	err = e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var txErr error
		res, txErr = e.ReserveTx(ctx, uow, userID, base)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReserveTx reserves amount, which must already be in the base currency,
// inside the caller's unit of work.
func (e *Enforcer) ReserveTx(
	ctx context.Context,
	uow repository.UnitOfWork,
	userID uuid.UUID,
	amount money.Money,
) (*kyc.Reservation, error) {
	log := e.logger.With("handler", "kyc.Reserve", "user_id", userID, "amount", amount.String())

	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: reservation amount must be positive", domain.ErrValidation)
	}
	if amount.Code() != e.base {
		return nil, fmt.Errorf("%w: reservation must be in %s, got %s", domain.ErrValidation, e.base, amount.Code())
	}

	repo, err := uow.KYCRepository()
	if err != nil {
		return nil, err
	}
	rec, err := repo.GetForUpdate(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncReservation("unverified")
		log.Warn("⛔ [DENIED] no KYC record")
		return nil, fmt.Errorf("%w: no KYC record", domain.ErrKYCNotVerified)
	}
	if err != nil {
		return nil, err
	}
	if !rec.Verified() {
		metrics.IncReservation("unverified")
		log.Warn("⛔ [DENIED] KYC not approved", "kyc_status", rec.Status)
		return nil, fmt.Errorf("%w: status %s", domain.ErrKYCNotVerified, rec.Status)
	}

	if rec.Rollover(e.now()) {
		if err := repo.ResetPeriod(ctx, userID, rec.ResetDate); err != nil {
			return nil, err
		}
		log.Info("🔄 monthly allowance reset", "reset_date", rec.ResetDate)
	}

	ok, err := repo.TryIncrement(ctx, userID, amount.Amount())
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncReservation("over_limit")
		remaining := money.Must(rec.Remaining(), e.base)
		log.Warn("⛔ [DENIED] monthly limit exceeded", "remaining", remaining.String())
		return nil, &kyc.LimitExceededError{Remaining: remaining}
	}

	metrics.IncReservation("granted")
	log.Info("✅ [SUCCESS] allowance reserved")
	return &kyc.Reservation{
		UserID:   userID,
		Amount:   amount.Amount(),
		Currency: e.base,
		Period:   rec.ResetDate,
	}, nil
}

// Release gives a reservation back in its own unit of work.
func (e *Enforcer) Release(ctx context.Context, res *kyc.Reservation) error {
	return e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		return e.ReleaseTx(ctx, uow, res)
	})
}

// ReleaseTx gives a reservation back inside the caller's unit of work. A
// reservation from an earlier period is dropped: that period's counter has
// already been reset.
func (e *Enforcer) ReleaseTx(ctx context.Context, uow repository.UnitOfWork, res *kyc.Reservation) error {
	if res == nil || res.Amount <= 0 {
		return nil
	}
	log := e.logger.With("handler", "kyc.Release", "user_id", res.UserID, "amount", res.Amount)

	repo, err := uow.KYCRepository()
	if err != nil {
		return err
	}
	rec, err := repo.GetForUpdate(ctx, res.UserID)
	if err != nil {
		return err
	}
	if rec.Rollover(e.now()) {
		if err := repo.ResetPeriod(ctx, res.UserID, rec.ResetDate); err != nil {
			return err
		}
	}
	if !rec.ResetDate.Equal(res.Period) {
		log.Info("🔁 [SKIP] reservation belongs to a past period")
		return nil
	}
	if err := repo.Decrement(ctx, res.UserID, res.Amount); err != nil {
		return err
	}
	log.Info("✅ [SUCCESS] allowance released")
	return nil
}

// Status returns the user's KYC record as of now. A period that has ended is
// reported as reset without writing; the write happens on the next reservation.
func (e *Enforcer) Status(ctx context.Context, userID uuid.UUID) (*kyc.Record, error) {
	repo, err := e.uow.KYCRepository()
	if err != nil {
		return nil, err
	}
	rec, err := repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.Rollover(e.now())
	return rec, nil
}

// SetLevel creates or updates a user's verification tier and status. The
// limit follows the tier; the running counter is kept.
func (e *Enforcer) SetLevel(ctx context.Context, userID uuid.UUID, level kyc.Level, status kyc.Status) (*kyc.Record, error) {
	limit, err := e.LimitForLevel(level)
	if err != nil {
		return nil, err
	}
	switch status {
	case kyc.StatusPending, kyc.StatusApproved, kyc.StatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown KYC status %q", domain.ErrValidation, status)
	}

	var out *kyc.Record
	err = e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.KYCRepository()
		if err != nil {
			return err
		}
		rec := &kyc.Record{
			UserID:           userID,
			Level:            level,
			Status:           status,
			MonthlySendLimit: limit,
			Currency:         e.base,
			ResetDate:        kyc.FirstOfNextMonth(e.now()),
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			return err
		}
		out, err = repo.Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
