package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
	"bookpay/internal/repository"
)

const paymentColumns = `
	id, user_id, book_id, amount, currency, payment_type, provider, status,
	external_transaction_id, failure_reason, refunded_amount, refunded_at,
	processed_at, reading_session_id, last_webhook_event_id,
	created_at, updated_at, version
`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	rec := payment.Record()

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.q.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.BookID,
		rec.Amount.Amount(),
		rec.Amount.Currency(),
		rec.PaymentType,
		rec.Provider,
		rec.Status,
		nullString(rec.ExternalTransactionID),
		nullString(rec.FailureReason),
		rec.RefundedAmount.Amount(),
		rec.RefundedAt,
		rec.ProcessedAt,
		nullString(rec.ReadingSessionID),
		nullString(rec.LastWebhookEventID),
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.Version,
	)

	return err
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return payment, nil
}

// GetByExternalTransactionID retrieves a payment by the provider's
// transaction reference. Returns nil if no payment carries the reference.
func (r *PaymentRepository) GetByExternalTransactionID(ctx context.Context, externalID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_transaction_id = $1`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return payment, nil
}

// GetByUserID retrieves all payments made by a user, newest first.
func (r *PaymentRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

// GetCompletedByBookIDs retrieves completed or partially refunded payments
// for the given books.
func (r *PaymentRepository) GetCompletedByBookIDs(ctx context.Context, bookIDs []string) ([]*domain.Payment, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE book_id = ANY($1) AND status = $2`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(bookIDs), domain.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

// Update persists the payment's mutable state with an optimistic version
// check. Returns repository.ErrVersionConflict when the stored row has
// moved on since the payment was loaded.
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	rec := payment.Record()

	query := `
		UPDATE payments
		SET status = $1,
			external_transaction_id = $2,
			failure_reason = $3,
			refunded_amount = $4,
			refunded_at = $5,
			processed_at = $6,
			reading_session_id = $7,
			last_webhook_event_id = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $10 AND version = $11
	`

	result, err := r.q.ExecContext(ctx, query,
		rec.Status,
		nullString(rec.ExternalTransactionID),
		nullString(rec.FailureReason),
		rec.RefundedAmount.Amount(),
		rec.RefundedAt,
		rec.ProcessedAt,
		nullString(rec.ReadingSessionID),
		nullString(rec.LastWebhookEventID),
		rec.UpdatedAt,
		rec.ID,
		rec.Version,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		if err := r.q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return repository.ErrVersionConflict
		}
		return repository.ErrNotFound
	}

	payment.IncrementVersion()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		rec            domain.PaymentRecord
		amount         decimal.Decimal
		currency       string
		refundedAmount decimal.Decimal
		externalID     sql.NullString
		failureReason  sql.NullString
		refundedAt     sql.NullTime
		processedAt    sql.NullTime
		sessionID      sql.NullString
		webhookEventID sql.NullString
	)

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.BookID,
		&amount,
		&currency,
		&rec.PaymentType,
		&rec.Provider,
		&rec.Status,
		&externalID,
		&failureReason,
		&refundedAmount,
		&refundedAt,
		&processedAt,
		&sessionID,
		&webhookEventID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.Version,
	)
	if err != nil {
		return nil, err
	}

	rec.Amount, err = domain.NewMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	rec.RefundedAmount, err = domain.NewMoney(refundedAmount, currency)
	if err != nil {
		return nil, err
	}

	rec.ExternalTransactionID = externalID.String
	rec.FailureReason = failureReason.String
	rec.ReadingSessionID = sessionID.String
	rec.LastWebhookEventID = webhookEventID.String
	if refundedAt.Valid {
		t := refundedAt.Time
		rec.RefundedAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}

	return domain.RehydratePayment(rec), nil
}

func collectPayments(rows *sql.Rows) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
