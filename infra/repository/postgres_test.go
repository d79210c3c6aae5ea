package repository_test

import (
	"context"
	"net/url"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/remittance/infra"
	infraeventbus "github.com/amirasaad/remittance/infra/eventbus"
	infrarepo "github.com/amirasaad/remittance/infra/repository"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/events"
	domainkyc "github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/domain/transaction"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/ledger"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/amirasaad/remittance/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// newPostgresDB starts a throwaway Postgres and applies the SQL migrations.
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	pg, err := tcpostgres.Run(
		ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("remittance"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pg) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDBConnection(&config.DB{
		Url:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, "test")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, filename, _, _ := runtime.Caller(0)
	require.NoError(t, infra.RunMigrations(db, filepath.Join(filepath.Dir(filename), "../../internal/migrations")))
	return db
}

func TestPostgres_GatewayTxIDIsUnique(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "pg-dup@example.com")
	repo := infrarepo.NewPaymentRepository(db)

	a := newPayment(t, userID, 1000)
	a.GatewayTransactionID = "pg-gw-1"
	require.NoError(t, repo.Create(ctx, a))

	b := newPayment(t, userID, 2000)
	b.GatewayTransactionID = "pg-gw-1"
	assert.ErrorIs(t, repo.Create(ctx, b), domain.ErrAlreadyExists)
}

func TestPostgres_TryIncrementNeverOvershoots(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "pg-kyc@example.com")
	testutils.SeedKYC(t, db, userID, 1000)
	repo := infrarepo.NewKYCRepository(db)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := repo.TryIncrement(ctx, userID, 200)
			assert.NoError(t, err)
			if applied {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	rec, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.CurrentMonthSent)
}

func TestPostgres_ForUpdateSerializesWebhooks(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	userID := testutils.SeedUser(t, db, "pg-lock@example.com")
	p := newPayment(t, userID, 5000)
	p.GatewayTransactionID = "pg-lock-1"
	require.NoError(t, infrarepo.NewPaymentRepository(db).Create(ctx, p))

	// Each worker moves the payment forward only from pending; with the row
	// lock exactly one of them sees pending.
	uow := infrarepo.NewUoW(db)
	var transitions atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
				repo, err := tx.PaymentRepository()
				if err != nil {
					return err
				}
				got, err := repo.GetByGatewayTxIDForUpdate(ctx, "pg-lock-1")
				if err != nil {
					return err
				}
				if got.Status != payment.StatusPending {
					return nil
				}
				if err := got.TransitionTo(payment.StatusProcessing); err != nil {
					return err
				}
				transitions.Add(1)
				return repo.Update(ctx, got)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
	got, err := infrarepo.NewPaymentRepository(db).Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, got.Status)
}

// The migrated schema carries real foreign keys on the ledger links, so the
// full completion path has to run against it and not only AutoMigrate.
func TestPostgres_ReconcilerCompletesPayment(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	logger := testutils.Logger()
	payer := testutils.SeedUser(t, db, "pg-payer@example.com")
	payee := testutils.SeedUser(t, db, "pg-payee@example.com")
	testutils.SeedKYC(t, db, payer, 500000)

	const key = "pg-ozow-key"
	uow := infrarepo.NewUoW(db)
	enforcer := kyc.New(uow, nil, money.ZAR, kyc.Limits{domainkyc.LevelBronze: 500000}, logger)
	bus := infraeventbus.NewWithMemory(logger)
	rec := ledger.NewReconciler(
		gateway.NewRegistry(gateway.NewOzow(key)),
		uow, ledger.NewWriter(enforcer, logger), bus, logger,
	)

	p, err := payment.New(payer, payment.GatewayOzow, money.Must(25000, money.ZAR), money.Must(750, money.ZAR))
	require.NoError(t, err)
	p.RecipientID = &payee
	p.Status = payment.StatusProcessing
	res, err := enforcer.Reserve(ctx, payer, p.TotalAmount)
	require.NoError(t, err)
	p.HoldReservation(res.Amount, res.Currency, res.Period)
	require.NoError(t, infrarepo.NewPaymentRepository(db).Create(ctx, p))

	form := url.Values{
		"SiteCode":             {"SITE-1"},
		"CurrencyCode":         {"ZAR"},
		"TransactionId":        {"pg-oz-1"},
		"TransactionReference": {p.Reference},
		"Status":               {"Complete"},
		"Amount":               {"250.00"},
	}
	form.Set(gateway.OzowHashField, gateway.SignOzow(form, key))

	out, err := rec.HandleWebhook(ctx, ledger.Webhook{
		Provider: payment.GatewayOzow,
		Payload:  []byte(form.Encode()),
		RemoteIP: "203.0.113.7",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, out.Status)

	got, err := infrarepo.NewPaymentRepository(db).Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.False(t, got.NeedsReview)
	require.NotNil(t, got.TransactionID)

	legs, err := infrarepo.NewTransactionRepository(db).ListByPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	byType := map[transaction.Type]*transaction.Transaction{}
	for _, l := range legs {
		byType[l.Type] = l
	}
	send, receive := byType[transaction.TypeSend], byType[transaction.TypeReceive]
	require.NotNil(t, send)
	require.NotNil(t, receive)
	assert.Equal(t, send.ID, *got.TransactionID)
	require.NotNil(t, receive.RelatedTransactionID)
	assert.Equal(t, send.ID, *receive.RelatedTransactionID)

	assert.Len(t, bus.PublishedOfType(events.TypePaymentCompleted), 1)
	open, err := rec.ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}
