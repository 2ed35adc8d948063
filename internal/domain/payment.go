package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// PaymentType identifies how the charge was metered.
type PaymentType string

const (
	PaymentTypePerPage PaymentType = "PER_PAGE"
	PaymentTypePerHour PaymentType = "PER_HOUR"
)

// Provider identifies which payment network owns a payment.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderMpesa  Provider = "mpesa"
)

// DefaultCommissionRate is the platform's cut of a completed payment.
var DefaultCommissionRate = decimal.NewFromFloat(0.15)

var (
	// ErrInvalidTransition is returned when a status transition is attempted
	// from a state that does not allow it. This is a programming-contract
	// violation, not a business failure.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrEmptyTransactionID is returned when MarkAsProcessing is called
	// without an external transaction id.
	ErrEmptyTransactionID = errors.New("external transaction id is required")

	// ErrEmptyFailureReason is returned when MarkAsFailed is called without a reason.
	ErrEmptyFailureReason = errors.New("failure reason is required")

	// ErrNotRefundable is returned when a refund is attempted against a
	// payment that is not in a refundable state.
	ErrNotRefundable = errors.New("payment is not refundable")

	// ErrInvalidRefundAmount is returned when a refund amount is not positive
	// or exceeds the refundable amount.
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
)

// Event is a domain fact raised by a payment transition, consumed
// downstream (notifications, earnings). Raised at most once per transition.
type Event interface {
	EventType() string
}

// PaymentInitiated is raised when a payment is created in PENDING.
type PaymentInitiated struct {
	PaymentID  string
	UserID     string
	BookID     string
	Amount     Money
	OccurredAt time.Time
}

func (PaymentInitiated) EventType() string { return "payment.initiated" }

// PaymentProcessing is raised when the provider acknowledges initiation.
type PaymentProcessing struct {
	PaymentID             string
	ExternalTransactionID string
	OccurredAt            time.Time
}

func (PaymentProcessing) EventType() string { return "payment.processing" }

// PaymentCompleted is raised when the provider confirms settlement.
type PaymentCompleted struct {
	PaymentID  string
	OccurredAt time.Time
}

func (PaymentCompleted) EventType() string { return "payment.completed" }

// PaymentFailed is raised when a payment fails before completion.
type PaymentFailed struct {
	PaymentID  string
	Reason     string
	OccurredAt time.Time
}

func (PaymentFailed) EventType() string { return "payment.failed" }

// PaymentRefunded is raised for each applied refund, carrying the
// incremental amount.
type PaymentRefunded struct {
	PaymentID  string
	Amount     Money
	Full       bool
	OccurredAt time.Time
}

func (PaymentRefunded) EventType() string { return "payment.refunded" }

// Payment is the settlement aggregate. All mutation goes through the
// guarded transition methods; a rejected transition leaves every field
// untouched.
type Payment struct {
	id                    string
	userID                string
	bookID                string
	amount                Money
	paymentType           PaymentType
	provider              Provider
	status                PaymentStatus
	externalTransactionID string
	failureReason         string
	refundedAmount        Money
	refundedAt            *time.Time
	processedAt           *time.Time
	readingSessionID      string
	lastWebhookEventID    string
	createdAt             time.Time
	updatedAt             time.Time
	version               int

	events []Event
}

// NewPayment creates a payment in PENDING and raises PaymentInitiated.
// The amount must be strictly positive.
func NewPayment(userID, bookID string, amount Money, paymentType PaymentType, provider Provider) (*Payment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(bookID) == "" {
		return nil, errors.New("book id is required")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	now := time.Now().UTC()
	p := &Payment{
		id:             uuid.New().String(),
		userID:         userID,
		bookID:         bookID,
		amount:         amount,
		paymentType:    paymentType,
		provider:       provider,
		status:         PaymentStatusPending,
		refundedAmount: Zero(amount.Currency()),
		createdAt:      now,
		updatedAt:      now,
		version:        1,
	}

	p.raise(PaymentInitiated{
		PaymentID:  p.id,
		UserID:     userID,
		BookID:     bookID,
		Amount:     amount,
		OccurredAt: now,
	})

	return p, nil
}

// MarkAsProcessing records the provider's acknowledgement of initiation.
// Legal only from PENDING.
func (p *Payment) MarkAsProcessing(externalTransactionID string) error {
	if strings.TrimSpace(externalTransactionID) == "" {
		return ErrEmptyTransactionID
	}
	if p.status != PaymentStatusPending {
		return fmt.Errorf("%w: cannot mark %s payment as processing", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PaymentStatusProcessing
	p.externalTransactionID = externalTransactionID
	p.updatedAt = now

	p.raise(PaymentProcessing{
		PaymentID:             p.id,
		ExternalTransactionID: externalTransactionID,
		OccurredAt:            now,
	})

	return nil
}

// MarkAsCompleted records provider confirmation. Legal only from PROCESSING.
func (p *Payment) MarkAsCompleted() error {
	if p.status != PaymentStatusProcessing {
		return fmt.Errorf("%w: cannot complete %s payment", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PaymentStatusCompleted
	p.processedAt = &now
	p.updatedAt = now

	p.raise(PaymentCompleted{PaymentID: p.id, OccurredAt: now})

	return nil
}

// MarkAsFailed records a failure. Legal from PENDING or PROCESSING.
func (p *Payment) MarkAsFailed(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyFailureReason
	}
	if p.status != PaymentStatusPending && p.status != PaymentStatusProcessing {
		return fmt.Errorf("%w: cannot fail %s payment", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PaymentStatusFailed
	p.failureReason = reason
	p.updatedAt = now

	p.raise(PaymentFailed{PaymentID: p.id, Reason: reason, OccurredAt: now})

	return nil
}

// ProcessRefund applies a full or partial refund. Legal only while the
// payment is refundable; the cumulative refunded amount never exceeds the
// original amount. Reaching the full amount moves the payment to REFUNDED.
func (p *Payment) ProcessRefund(refundAmount Money) error {
	if !p.IsRefundable() {
		return fmt.Errorf("%w: status %s", ErrNotRefundable, p.status)
	}
	if !refundAmount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidRefundAmount, refundAmount)
	}

	refundable := p.RefundableAmount()
	cmp, err := refundAmount.Cmp(refundable)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRefundAmount, err)
	}
	if cmp > 0 {
		return fmt.Errorf("%w: %s exceeds refundable %s", ErrInvalidRefundAmount, refundAmount, refundable)
	}

	newRefunded, err := p.refundedAmount.Add(refundAmount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRefundAmount, err)
	}

	now := time.Now().UTC()
	p.refundedAmount = newRefunded
	p.refundedAt = &now
	p.updatedAt = now

	full := newRefunded.Equal(p.amount)
	if full {
		p.status = PaymentStatusRefunded
	}

	p.raise(PaymentRefunded{
		PaymentID:  p.id,
		Amount:     refundAmount,
		Full:       full,
		OccurredAt: now,
	})

	return nil
}

// IsRefundable reports whether any amount can still be refunded.
func (p *Payment) IsRefundable() bool {
	if p.status != PaymentStatusCompleted {
		return false
	}
	cmp, err := p.refundedAmount.Cmp(p.amount)
	return err == nil && cmp < 0
}

// RefundableAmount returns the original amount minus cumulative refunds,
// or the currency zero when the payment is not completed.
func (p *Payment) RefundableAmount() Money {
	if p.status != PaymentStatusCompleted {
		return Zero(p.amount.Currency())
	}
	remaining, err := p.amount.Sub(p.refundedAmount)
	if err != nil {
		return Zero(p.amount.Currency())
	}
	return remaining
}

// CalculateAuthorEarnings returns the author's share of a completed
// payment: (amount - refunded) x (1 - commissionRate), rounded to the
// currency's minor units. Zero unless the payment is COMPLETED.
func (p *Payment) CalculateAuthorEarnings(commissionRate decimal.Decimal) Money {
	if p.status != PaymentStatusCompleted {
		return Zero(p.amount.Currency())
	}
	net, err := p.amount.Sub(p.refundedAmount)
	if err != nil {
		return Zero(p.amount.Currency())
	}
	return net.MulDecimal(decimal.NewFromInt(1).Sub(commissionRate))
}

// AttachReadingSession links the payment to the reading session it settles.
// Optional; never required by the state machine.
func (p *Payment) AttachReadingSession(sessionID string) {
	p.readingSessionID = sessionID
	p.updatedAt = time.Now().UTC()
}

// RecordWebhookEvent remembers the id of the last provider event applied
// to this payment, so replays can be detected beyond the status guards.
func (p *Payment) RecordWebhookEvent(eventID string) {
	p.lastWebhookEventID = eventID
	p.updatedAt = time.Now().UTC()
}

// HasAppliedWebhookEvent reports whether the given provider event id was
// the last one applied.
func (p *Payment) HasAppliedWebhookEvent(eventID string) bool {
	return eventID != "" && p.lastWebhookEventID == eventID
}

// IncrementVersion bumps the optimistic concurrency version. Called by
// repositories after a successful versioned update so the in-memory
// aggregate matches the stored row.
func (p *Payment) IncrementVersion() { p.version++ }

// Events returns the domain facts raised since creation or the last Clear.
func (p *Payment) Events() []Event { return p.events }

// ClearEvents drops accumulated events after they have been dispatched.
func (p *Payment) ClearEvents() { p.events = nil }

func (p *Payment) raise(e Event) { p.events = append(p.events, e) }

// Read accessors.

func (p *Payment) ID() string                    { return p.id }
func (p *Payment) UserID() string                { return p.userID }
func (p *Payment) BookID() string                { return p.bookID }
func (p *Payment) Amount() Money                 { return p.amount }
func (p *Payment) Type() PaymentType             { return p.paymentType }
func (p *Payment) Provider() Provider            { return p.provider }
func (p *Payment) Status() PaymentStatus         { return p.status }
func (p *Payment) ExternalTransactionID() string { return p.externalTransactionID }
func (p *Payment) FailureReason() string         { return p.failureReason }
func (p *Payment) RefundedAmount() Money         { return p.refundedAmount }
func (p *Payment) RefundedAt() *time.Time        { return p.refundedAt }
func (p *Payment) ProcessedAt() *time.Time       { return p.processedAt }
func (p *Payment) ReadingSessionID() string      { return p.readingSessionID }
func (p *Payment) LastWebhookEventID() string    { return p.lastWebhookEventID }
func (p *Payment) CreatedAt() time.Time          { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time          { return p.updatedAt }
func (p *Payment) Version() int                  { return p.version }

// PaymentRecord is the flat persisted form of a payment, used by
// repositories to rehydrate the aggregate.
type PaymentRecord struct {
	ID                    string
	UserID                string
	BookID                string
	Amount                Money
	PaymentType           PaymentType
	Provider              Provider
	Status                PaymentStatus
	ExternalTransactionID string
	FailureReason         string
	RefundedAmount        Money
	RefundedAt            *time.Time
	ProcessedAt           *time.Time
	ReadingSessionID      string
	LastWebhookEventID    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Version               int
}

// RehydratePayment rebuilds a payment from its persisted record without
// raising events.
func RehydratePayment(rec PaymentRecord) *Payment {
	return &Payment{
		id:                    rec.ID,
		userID:                rec.UserID,
		bookID:                rec.BookID,
		amount:                rec.Amount,
		paymentType:           rec.PaymentType,
		provider:              rec.Provider,
		status:                rec.Status,
		externalTransactionID: rec.ExternalTransactionID,
		failureReason:         rec.FailureReason,
		refundedAmount:        rec.RefundedAmount,
		refundedAt:            rec.RefundedAt,
		processedAt:           rec.ProcessedAt,
		readingSessionID:      rec.ReadingSessionID,
		lastWebhookEventID:    rec.LastWebhookEventID,
		createdAt:             rec.CreatedAt,
		updatedAt:             rec.UpdatedAt,
		version:               rec.Version,
	}
}

// Record returns the flat persisted form of the payment.
func (p *Payment) Record() PaymentRecord {
	return PaymentRecord{
		ID:                    p.id,
		UserID:                p.userID,
		BookID:                p.bookID,
		Amount:                p.amount,
		PaymentType:           p.paymentType,
		Provider:              p.provider,
		Status:                p.status,
		ExternalTransactionID: p.externalTransactionID,
		FailureReason:         p.failureReason,
		RefundedAmount:        p.refundedAmount,
		RefundedAt:            p.refundedAt,
		ProcessedAt:           p.processedAt,
		ReadingSessionID:      p.readingSessionID,
		LastWebhookEventID:    p.lastWebhookEventID,
		CreatedAt:             p.createdAt,
		UpdatedAt:             p.updatedAt,
		Version:               p.version,
	}
}
