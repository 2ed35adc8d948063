package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
	"bookpay/internal/repository"
)

const bookColumns = `id, author_id, title, currency, price_per_page, price_per_hour, created_at`

// BookRepository is a PostgreSQL implementation of repository.BookRepository.
type BookRepository struct {
	q Querier
}

// NewBookRepository creates a new PostgreSQL book repository.
func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{q: db}
}

// GetByID retrieves a book by ID.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return book, nil
}

// GetByAuthorID retrieves all books written by an author.
func (r *BookRepository) GetByAuthorID(ctx context.Context, authorID string) ([]*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE author_id = $1`

	rows, err := r.q.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func scanBook(row rowScanner) (*domain.Book, error) {
	var (
		book         domain.Book
		pricePerPage decimal.NullDecimal
		pricePerHour decimal.NullDecimal
	)

	err := row.Scan(
		&book.ID,
		&book.AuthorID,
		&book.Title,
		&book.Currency,
		&pricePerPage,
		&pricePerHour,
		&book.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if pricePerPage.Valid {
		price, err := domain.NewMoney(pricePerPage.Decimal, book.Currency)
		if err != nil {
			return nil, err
		}
		book.PricePerPage = &price
	}
	if pricePerHour.Valid {
		price, err := domain.NewMoney(pricePerHour.Decimal, book.Currency)
		if err != nil {
			return nil, err
		}
		book.PricePerHour = &price
	}

	return &book, nil
}
