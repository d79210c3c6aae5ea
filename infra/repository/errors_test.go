package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapGormErrorToDomain(t *testing.T) {
	t.Parallel()

	other := errors.New("some other error")
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{"nil error returns nil", nil, nil},
		{"duplicate key maps to ErrAlreadyExists", gorm.ErrDuplicatedKey, domain.ErrAlreadyExists},
		{"record not found maps to ErrNotFound", gorm.ErrRecordNotFound, domain.ErrNotFound},
		{"wrapped duplicate key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), domain.ErrAlreadyExists},
		{"joined record not found", errors.Join(other, gorm.ErrRecordNotFound), domain.ErrNotFound},
		{"non-GORM error returns original", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, MapGormErrorToDomain(tt.input))
		})
	}
}
