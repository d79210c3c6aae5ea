package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/kvstore"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/google/uuid"
)

const quoteKeyPrefix = "quote:"

// Quote is a fee and FX breakdown shown to a payer before they confirm.
type Quote struct {
	ID              string      `json:"quoteId"`
	UserID          uuid.UUID   `json:"userId"`
	Amount          money.Money `json:"amount"`
	Fee             money.Money `json:"fee"`
	Total           money.Money `json:"totalAmount"`
	TargetCurrency  money.Code  `json:"targetCurrency,omitempty"`
	ExchangeRate    *string     `json:"exchangeRate,omitempty"`
	ConvertedAmount *int64      `json:"convertedAmount,omitempty"`
	ExpiresAt       time.Time   `json:"expiresAt"`
}

// Quoter computes quotes and keeps them for a limited time so the fee a
// payer confirmed is the fee charged.
type Quoter struct {
	schedule *fees.Schedule
	rates    fees.RateSource
	store    kvstore.Store
	ttl      time.Duration
	now      func() time.Time
}

func NewQuoter(schedule *fees.Schedule, rates fees.RateSource, store kvstore.Store, ttl time.Duration) *Quoter {
	return &Quoter{
		schedule: schedule,
		rates:    rates,
		store:    store,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Compute prices amount without storing the quote. target may be empty when
// the recipient is paid in the send currency.
func (q *Quoter) Compute(ctx context.Context, userID uuid.UUID, amount money.Money, target money.Code) (*Quote, error) {
	breakdown, err := q.schedule.Compute(amount)
	if err != nil {
		return nil, err
	}
	out := &Quote{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    breakdown.Amount,
		Fee:       breakdown.Fee,
		Total:     breakdown.Total,
		ExpiresAt: q.now().Add(q.ttl),
	}
	if target == "" || target == amount.Code() {
		return out, nil
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: invalid target currency %q", domain.ErrValidation, target)
	}
	if q.rates == nil {
		return nil, fmt.Errorf("%w: no exchange rates configured", domain.ErrValidation)
	}
	rate, err := q.rates.Rate(ctx, amount.Code(), target)
	if err != nil {
		return nil, fmt.Errorf("exchange rate %s->%s: %w", amount.Code(), target, err)
	}
	converted, err := fees.Convert(amount, target, rate)
	if err != nil {
		return nil, err
	}
	rateStr := rate.String()
	convertedAmount := converted.Amount()
	out.TargetCurrency = target
	out.ExchangeRate = &rateStr
	out.ConvertedAmount = &convertedAmount
	return out, nil
}

// Quote computes and stores a quote.
func (q *Quoter) Quote(ctx context.Context, userID uuid.UUID, amount money.Money, target money.Code) (*Quote, error) {
	out, err := q.Compute(ctx, userID, amount, target)
	if err != nil {
		return nil, err
	}
	if err := kvstore.SetJSON(ctx, q.store, quoteKeyPrefix+out.ID, out, q.ttl); err != nil {
		return nil, fmt.Errorf("store quote: %w", err)
	}
	return out, nil
}

// Get loads a stored quote. Expired quotes and quotes belonging to another
// user are reported as not found.
func (q *Quoter) Get(ctx context.Context, userID uuid.UUID, id string) (*Quote, error) {
	var out Quote
	err := kvstore.GetJSON(ctx, q.store, quoteKeyPrefix+id, &out)
	if errors.Is(err, kvstore.ErrMiss) {
		return nil, fmt.Errorf("%w: quote %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if out.UserID != userID || q.now().After(out.ExpiresAt) {
		return nil, fmt.Errorf("%w: quote %s", domain.ErrNotFound, id)
	}
	return &out, nil
}
