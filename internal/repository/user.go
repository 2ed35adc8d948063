package repository

import (
	"context"

	"bookpay/internal/domain"
)

// UserRepository defines the persistence operations the engine needs for users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
