// Package testutils provides database and fixture helpers shared by tests.
package testutils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	infrarepo "github.com/amirasaad/remittance/infra/repository"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewSQLiteDB opens a private in-memory SQLite database with the schema
// migrated and foreign keys enforced. A single connection serializes
// transactions the way row locks do on Postgres.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on", name, uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(infrarepo.Models()...))
	return db
}

// SeedUser inserts a user and returns its id.
func SeedUser(t testing.TB, db *gorm.DB, email string) uuid.UUID {
	t.Helper()
	u := &infrarepo.User{ID: uuid.New(), Email: email, Names: strings.Split(email, "@")[0]}
	require.NoError(t, db.Create(u).Error)
	return u.ID
}

// KYCOption customizes SeedKYC.
type KYCOption func(*kyc.Record)

func WithStatus(s kyc.Status) KYCOption { return func(r *kyc.Record) { r.Status = s } }
func WithSent(sent int64) KYCOption { return func(r *kyc.Record) { r.CurrentMonthSent = sent } }
func WithResetDate(d time.Time) KYCOption { return func(r *kyc.Record) { r.ResetDate = d } }
func WithCurrency(c money.Code) KYCOption { return func(r *kyc.Record) { r.Currency = c } }

// SeedKYC stores an approved bronze record with the given limit, resetting
// at the start of next month unless overridden.
func SeedKYC(t testing.TB, db *gorm.DB, userID uuid.UUID, limit int64, opts ...KYCOption) *kyc.Record {
	t.Helper()
	rec := &kyc.Record{
		ID:               uuid.New(),
		UserID:           userID,
		Level:            kyc.LevelBronze,
		Status:           kyc.StatusApproved,
		MonthlySendLimit: limit,
		Currency:         money.ZAR,
		ResetDate:        kyc.FirstOfNextMonth(time.Now()),
	}
	for _, o := range opts {
		o(rec)
	}
	require.NoError(t, infrarepo.NewKYCRepository(db).Upsert(context.Background(), rec))
	return rec
}

// SignToken issues an HS256 token the way the authentication service does.
// role may be empty.
func SignToken(t testing.TB, secret string, userID uuid.UUID, email, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
