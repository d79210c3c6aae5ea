package repository

import (
	"errors"

	"github.com/amirasaad/remittance/pkg/domain"
	"gorm.io/gorm"
)

// MapGormErrorToDomain converts GORM errors to domain errors so callers never
// depend on the ORM. Unknown errors are returned unchanged.
func MapGormErrorToDomain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAlreadyExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	}
	return err
}

// WrapError runs a GORM operation and maps its error.
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(m).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}
