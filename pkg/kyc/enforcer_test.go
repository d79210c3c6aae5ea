package kyc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	infrarepo "github.com/amirasaad/remittance/infra/repository"
	"github.com/amirasaad/remittance/pkg/domain"
	domainkyc "github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testLimits = kyc.Limits{
	domainkyc.LevelBronze: 500000,
	domainkyc.LevelSilver: 2500000,
	domainkyc.LevelGold:   10000000,
}

func newEnforcer(t *testing.T, opts ...kyc.Option) (*kyc.Enforcer, *gorm.DB) {
	t.Helper()
	db := testutils.NewSQLiteDB(t)
	rates := fees.StaticRates{"USD:ZAR": decimal.RequireFromString("18.5")}
	return kyc.New(infrarepo.NewUoW(db), rates, money.ZAR, testLimits, testutils.Logger(), opts...), db
}

func zar(amount int64) money.Money { return money.Must(amount, money.ZAR) }

func TestReserve_Boundary(t *testing.T) {
	e, db := newEnforcer(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "boundary@example.com")
	testutils.SeedKYC(t, db, userID, 5000, testutils.WithSent(4800))

	_, err := e.Reserve(ctx, userID, zar(201))
	var limitErr *domainkyc.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, int64(200), limitErr.Remaining.Amount())

	res, err := e.Reserve(ctx, userID, zar(200))
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.Amount)

	rec, err := e.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), rec.CurrentMonthSent)

	_, err = e.Reserve(ctx, userID, zar(1))
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
}

func TestReserve_NotVerified(t *testing.T) {
	e, db := newEnforcer(t)
	ctx := context.Background()

	noRecord := testutils.SeedUser(t, db, "none@example.com")
	_, err := e.Reserve(ctx, noRecord, zar(100))
	assert.ErrorIs(t, err, domain.ErrKYCNotVerified)

	pending := testutils.SeedUser(t, db, "pending@example.com")
	testutils.SeedKYC(t, db, pending, 5000, testutils.WithStatus(domainkyc.StatusPending))
	_, err = e.Reserve(ctx, pending, zar(100))
	assert.ErrorIs(t, err, domain.ErrKYCNotVerified)
	assert.False(t, errors.Is(err, domain.ErrLimitExceeded))
}

func TestReserve_RejectsNonPositive(t *testing.T) {
	e, db := newEnforcer(t)
	userID := testutils.SeedUser(t, db, "zero@example.com")
	testutils.SeedKYC(t, db, userID, 5000)

	_, err := e.Reserve(context.Background(), userID, zar(0))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReserve_ConvertsToBaseCurrency(t *testing.T) {
	e, db := newEnforcer(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "usd@example.com")
	testutils.SeedKYC(t, db, userID, 500000)

	res, err := e.Reserve(ctx, userID, money.Must(10000, money.USD))
	require.NoError(t, err)
	assert.Equal(t, money.ZAR, res.Currency)
	assert.Equal(t, int64(185000), res.Amount)
}

func TestReserve_LazyMonthlyReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, db := newEnforcer(t, kyc.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "reset@example.com")
	testutils.SeedKYC(t, db, userID, 5000,
		testutils.WithSent(5000),
		testutils.WithResetDate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	)

	res, err := e.Reserve(ctx, userID, zar(1000))
	require.NoError(t, err)
	assert.True(t, res.Period.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	rec, err := e.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.CurrentMonthSent)
	assert.True(t, rec.ResetDate.Equal(res.Period))
}

func TestRelease_SamePeriodOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	e, db := newEnforcer(t, kyc.WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "release@example.com")
	testutils.SeedKYC(t, db, userID, 5000, testutils.WithResetDate(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	first, err := e.Reserve(ctx, userID, zar(3000))
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx, first))

	rec, err := e.Status(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, rec.CurrentMonthSent)

	second, err := e.Reserve(ctx, userID, zar(2000))
	require.NoError(t, err)

	clock = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	_, err = e.Reserve(ctx, userID, zar(500))
	require.NoError(t, err)

	require.NoError(t, e.Release(ctx, second))
	rec, err = e.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), rec.CurrentMonthSent, "a past-period release must not touch the new period")

	assert.NoError(t, e.Release(ctx, nil))
}

func TestReserve_ConcurrentSumWithinLimit(t *testing.T) {
	e, db := newEnforcer(t)
	userID := testutils.SeedUser(t, db, "concurrent@example.com")
	testutils.SeedKYC(t, db, userID, 5000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int64
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Reserve(context.Background(), userID, zar(300))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrLimitExceeded)
				return
			}
			mu.Lock()
			reserved += res.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, reserved, int64(5000))
	assert.Equal(t, int64(4800), reserved)
	rec, err := e.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, reserved, rec.CurrentMonthSent)
}

func TestSetLevel(t *testing.T) {
	e, db := newEnforcer(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "tier@example.com")

	rec, err := e.SetLevel(ctx, userID, domainkyc.LevelSilver, domainkyc.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, int64(2500000), rec.MonthlySendLimit)
	assert.Equal(t, money.ZAR, rec.Currency)

	_, err = e.SetLevel(ctx, userID, domainkyc.Level("platinum"), domainkyc.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.Status(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
