package repository

import (
	"context"

	"bookpay/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByExternalTransactionID retrieves a payment by the provider's
	// transaction reference. Returns nil with no error when no payment
	// carries the reference, so webhook handlers can no-op.
	GetByExternalTransactionID(ctx context.Context, externalID string) (*domain.Payment, error)

	// GetByUserID retrieves all payments made by a user, newest first.
	GetByUserID(ctx context.Context, userID string) ([]*domain.Payment, error)

	// GetCompletedByBookIDs retrieves completed or partially refunded
	// payments for the given books, used for author earnings.
	GetCompletedByBookIDs(ctx context.Context, bookIDs []string) ([]*domain.Payment, error)

	// Update persists the payment's current state. The update carries an
	// optimistic version check and returns ErrVersionConflict when the
	// stored row moved on since the payment was loaded.
	Update(ctx context.Context, payment *domain.Payment) error
}
