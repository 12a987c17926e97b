package repository

import (
	"github.com/yourusername/auth-api/internal/domain/entity"
)

// UserRepository is the subject directory: lookup and registration of accounts.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
}
