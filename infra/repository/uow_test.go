package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestUoW_DoCommits(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(txUow repository.UnitOfWork) error {
		payments, err := txUow.PaymentRepository()
		require.NoError(t, err)
		_, ok := payments.(*paymentRepository)
		assert.True(t, ok)

		txs, err := txUow.TransactionRepository()
		require.NoError(t, err)
		assert.NotNil(t, txs)

		kycs, err := txUow.KYCRepository()
		require.NoError(t, err)
		assert.NotNil(t, kycs)

		users, err := txUow.UserRepository()
		require.NoError(t, err)
		assert.NotNil(t, users)

		// nested Do joins the outer transaction
		return txUow.Do(context.Background(), func(repository.UnitOfWork) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_DoRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := uow.Do(context.Background(), func(repository.UnitOfWork) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_RepositoriesOutsideTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	payments, err := uow.PaymentRepository()
	require.NoError(t, err)
	assert.NotNil(t, payments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
