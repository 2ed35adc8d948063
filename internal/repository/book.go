package repository

import (
	"context"

	"bookpay/internal/domain"
)

// BookRepository defines the persistence operations the engine needs for books.
type BookRepository interface {
	// GetByID retrieves a book by ID.
	GetByID(ctx context.Context, id string) (*domain.Book, error)

	// GetByAuthorID retrieves all books written by an author.
	GetByAuthorID(ctx context.Context, authorID string) ([]*domain.Book, error)
}
