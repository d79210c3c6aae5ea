package fees_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/remittance/infra/cache"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Compute(t *testing.T) {
	t.Parallel()

	flat, err := fees.NewSchedule(fees.FlatRate(300, 0), nil)
	require.NoError(t, err)

	tiered, err := fees.NewSchedule(
		fees.FlatRate(300, 0),
		map[money.Code][]fees.Tier{
			money.USD: {{UpTo: 100000, Bps: 300}, {Bps: 150, Flat: 500}},
		},
	)
	require.NoError(t, err)

	tests := []struct {
		name     string
		schedule *fees.Schedule
		amount   money.Money
		fee      int64
		total    int64
	}{
		{"1000 ZAR at 3%", flat, money.Must(100000, money.ZAR), 3000, 103000},
		{"rounds half up", flat, money.Must(50, money.ZAR), 2, 52},
		{"rounds down below half", flat, money.Must(16, money.ZAR), 0, 16},
		{"first USD tier inclusive bound", tiered, money.Must(100000, money.USD), 3000, 103000},
		{"second USD tier", tiered, money.Must(100001, money.USD), 2000, 102001},
		{"currency without override uses default", tiered, money.Must(10000, money.EUR), 300, 10300},
		{"zero decimal currency", flat, money.Must(1000, money.JPY), 30, 1030},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.schedule.Compute(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.fee, q.Fee.Amount())
			assert.Equal(t, tt.total, q.Total.Amount())
			assert.Equal(t, tt.amount.Code(), q.Fee.Code())
		})
	}
}

func TestSchedule_Deterministic(t *testing.T) {
	t.Parallel()

	s, err := fees.NewSchedule(fees.FlatRate(275, 99), nil)
	require.NoError(t, err)

	for _, amount := range []int64{1, 333, 99999, 123456789} {
		first, err := s.Compute(money.Must(amount, money.ZAR))
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			again, err := s.Compute(money.Must(amount, money.ZAR))
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestSchedule_RejectsNonPositive(t *testing.T) {
	s, err := fees.NewSchedule(fees.FlatRate(300, 0), nil)
	require.NoError(t, err)

	for _, amount := range []int64{0, -1} {
		_, err := s.Compute(money.Must(amount, money.ZAR))
		assert.ErrorIs(t, err, fees.ErrNonPositiveAmount)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestNewSchedule_Validation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []fees.Tier
	}{
		{"empty", nil},
		{"bounded last tier", []fees.Tier{{UpTo: 1000, Bps: 100}}},
		{"non increasing bounds", []fees.Tier{{UpTo: 1000, Bps: 100}, {UpTo: 1000, Bps: 50}, {Bps: 10}}},
		{"negative bps", []fees.Tier{{Bps: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fees.NewSchedule(tt.tiers, nil)
			assert.ErrorIs(t, err, fees.ErrInvalidSchedule)
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount money.Money
		to     money.Code
		rate   string
		want   int64
	}{
		{"ZAR to USD", money.Must(100000, money.ZAR), money.USD, "0.054", 5400},
		{"ZAR to JPY drops minor unit", money.Must(100000, money.ZAR), money.JPY, "8.1234", 8123},
		{"JPY to KWD gains a digit", money.Must(1000, money.JPY), money.KWD, "0.002", 2000},
		{"half up", money.Must(1, money.ZAR), money.USD, "0.5", 1},
		{"identity", money.Must(4800, money.ZAR), money.ZAR, "1", 4800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fees.Convert(tt.amount, tt.to, decimal.RequireFromString(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount())
			assert.Equal(t, tt.to, got.Code())
		})
	}

	_, err := fees.Convert(money.Must(100, money.ZAR), money.USD, decimal.Zero)
	assert.ErrorIs(t, err, fees.ErrInvalidRate)
	_, err = fees.Convert(money.Must(100, money.ZAR), money.USD, decimal.NewFromInt(-2))
	assert.ErrorIs(t, err, fees.ErrInvalidRate)
}

func TestStaticRates(t *testing.T) {
	rates := fees.StaticRates{"USD:ZAR": decimal.RequireFromString("18.5")}
	ctx := context.Background()

	r, err := rates.Rate(ctx, money.USD, money.ZAR)
	require.NoError(t, err)
	assert.Equal(t, "18.5", r.String())

	inv, err := rates.Rate(ctx, money.ZAR, money.USD)
	require.NoError(t, err)
	assert.True(t, inv.Sub(decimal.RequireFromString("0.054054054054")).Abs().LessThan(decimal.RequireFromString("0.000000000001")))

	_, err = rates.Rate(ctx, money.EUR, money.GBP)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) Rate(context.Context, money.Code, money.Code) (decimal.Decimal, error) {
	c.calls.Add(1)
	return decimal.RequireFromString("0.054"), nil
}

func TestCachedRateSource(t *testing.T) {
	next := &countingSource{}
	store := cache.NewMemoryStore()
	src := fees.NewCachedRateSource(next, store, time.Minute, "exr:rate:", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := src.Rate(ctx, money.ZAR, money.USD)
		require.NoError(t, err)
		assert.Equal(t, "0.054", r.String())
	}
	assert.Equal(t, int32(1), next.calls.Load())

	raw, err := store.Get(ctx, "exr:rate:ZAR:USD")
	require.NoError(t, err)
	assert.Equal(t, "0.054", string(raw))
}
