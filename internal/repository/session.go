package repository

import (
	"context"

	"bookpay/internal/domain"
)

// ReadingSessionRepository defines the persistence operations the engine
// needs for reading sessions.
type ReadingSessionRepository interface {
	// GetByID retrieves a reading session by ID.
	GetByID(ctx context.Context, id string) (*domain.ReadingSession, error)
}
