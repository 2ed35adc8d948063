package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookpay/internal/domain"
	"bookpay/internal/repository"
)

// ReadingSessionRepository is a PostgreSQL implementation of
// repository.ReadingSessionRepository.
type ReadingSessionRepository struct {
	q Querier
}

// NewReadingSessionRepository creates a new PostgreSQL reading session repository.
func NewReadingSessionRepository(db *sql.DB) *ReadingSessionRepository {
	return &ReadingSessionRepository{q: db}
}

// GetByID retrieves a reading session by ID.
func (r *ReadingSessionRepository) GetByID(ctx context.Context, id string) (*domain.ReadingSession, error) {
	query := `
		SELECT id, user_id, book_id, pages_read, duration_seconds, started_at, ended_at
		FROM reading_sessions WHERE id = $1
	`

	var (
		session         domain.ReadingSession
		durationSeconds int64
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.BookID,
		&session.PagesRead,
		&durationSeconds,
		&session.StartedAt,
		&session.EndedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.Duration = time.Duration(durationSeconds) * time.Second
	return &session, nil
}
