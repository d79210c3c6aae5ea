package repository

import (
	"context"
)

// UnitOfWork defines the contract for transactional work and repository access.
//
// Do runs fn in a transaction boundary. Repositories obtained from the
// UnitOfWork passed to fn share that transaction; if fn returns an error
// everything is rolled back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	PaymentRepository() (PaymentRepository, error)
	TransactionRepository() (TransactionRepository, error)
	KYCRepository() (KYCRepository, error)
	UserRepository() (UserRepository, error)
}
