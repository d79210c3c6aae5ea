package repository

import (
	"context"

	"github.com/amirasaad/remittance/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides the transaction boundary and repository access in one
// abstraction. Outside Do, repositories use the root connection.
type UoW struct {
	db *gorm.DB
	tx *gorm.DB
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{db: db}
}

// Do runs fn in a transaction. Nested calls reuse the outer transaction.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx})
	})
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UoW) PaymentRepository() (repository.PaymentRepository, error) {
	return NewPaymentRepository(u.session()), nil
}

func (u *UoW) TransactionRepository() (repository.TransactionRepository, error) {
	return NewTransactionRepository(u.session()), nil
}

func (u *UoW) KYCRepository() (repository.KYCRepository, error) {
	return NewKYCRepository(u.session()), nil
}

func (u *UoW) UserRepository() (repository.UserRepository, error) {
	return NewUserRepository(u.session()), nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
