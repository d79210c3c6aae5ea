package repository

import (
	"context"
	"strings"

	"github.com/amirasaad/remittance/pkg/domain/user"
	"github.com/amirasaad/remittance/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a read-only user repository.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var m User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toUserDomain(&m), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var m User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&m).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toUserDomain(&m), nil
}

func toUserDomain(m *User) *user.User {
	return &user.User{ID: m.ID, Email: m.Email, Names: m.Names, CreatedAt: m.CreatedAt}
}
