package repository

import (
	"context"
	"errors"

	"github.com/zackweld/crAPI/internal/user/domain"
)

// ErrPhoneTaken is returned by Create when another user already holds the phone number.
var ErrPhoneTaken = errors.New("phone number already registered")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// ExistsByPhone reports whether any user (including the caller) has phone as their number.
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
}
