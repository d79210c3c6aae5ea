package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/kvstore"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/shopspring/decimal"
)

// ErrInvalidRate is returned for zero or negative exchange rates.
var ErrInvalidRate = fmt.Errorf("%w: exchange rate must be positive", domain.ErrValidation)

// Convert expresses amount in the target currency at rate (units of `to` per
// one unit of the source currency), rounding half-up to the target minor unit.
func Convert(amount money.Money, to money.Code, rate decimal.Decimal) (money.Money, error) {
	if !rate.IsPositive() {
		return money.Money{}, ErrInvalidRate
	}
	if !to.IsValid() {
		return money.Money{}, fmt.Errorf("%w: %v", domain.ErrValidation, money.ErrInvalidCurrency)
	}
	target := to.ToCurrency()
	converted := amount.Major().Mul(rate).Shift(int32(target.Decimals)).Round(0)
	if converted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return money.Money{}, money.ErrOverflow
	}
	return money.New(converted.IntPart(), to)
}

// RateSource resolves the exchange rate between two currencies.
type RateSource interface {
	Rate(ctx context.Context, from, to money.Code) (decimal.Decimal, error)
}

// StaticRates is a fixed rate table keyed "FROM:TO". Inverse pairs are derived.
type StaticRates map[string]decimal.Decimal

func (s StaticRates) Rate(_ context.Context, from, to money.Code) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := s[pairKey(from, to)]; ok {
		return r, nil
	}
	if r, ok := s[pairKey(to, from)]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, 12), nil
	}
	return decimal.Zero, fmt.Errorf("%w: no rate for %s", domain.ErrNotFound, pairKey(from, to))
}

func pairKey(from, to money.Code) string { return string(from) + ":" + string(to) }

// CachedRateSource serves rates from a TTL store and falls back to next on a miss.
type CachedRateSource struct {
	next   RateSource
	store  kvstore.Store
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedRateSource(next RateSource, store kvstore.Store, ttl time.Duration, prefix string, logger *slog.Logger) *CachedRateSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRateSource{next: next, store: store, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *CachedRateSource) Rate(ctx context.Context, from, to money.Code) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := c.prefix + pairKey(from, to)
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if r, perr := decimal.NewFromString(string(raw)); perr == nil {
			return r, nil
		}
		c.logger.Warn("discarding unparsable cached rate", "key", key)
	case !errors.Is(err, kvstore.ErrMiss):
		c.logger.Warn("rate cache unavailable", "key", key, "error", err)
	}

	r, err := c.next.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.store.Set(ctx, key, []byte(r.String()), c.ttl); err != nil {
		c.logger.Warn("failed to cache rate", "key", key, "error", err)
	}
	return r, nil
}
