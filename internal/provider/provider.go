package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bookpay/internal/domain"
)

// Status is the engine's normalized view of a network-native payment status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusRequiresAction Status = "requires_action"

	// StatusUnknown is the sentinel for network statuses this adapter has
	// never seen. Unknown is never treated as success.
	StatusUnknown Status = "unknown"
)

// EventClass is the engine's normalized view of a webhook event type.
type EventClass string

const (
	EventPaymentSucceeded EventClass = "payment_succeeded"
	EventPaymentFailed    EventClass = "payment_failed"
	EventRefund           EventClass = "refund"

	// EventUnknown marks event types the adapter does not recognize.
	// The reconciler logs and ignores them.
	EventUnknown EventClass = "unknown"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails
	// authenticity verification. It must never reach a payment.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrManualRefundRequired is returned by networks that only support
	// back-office reversal. The payment is left untouched.
	ErrManualRefundRequired = errors.New("refund requires manual processing")

	// ErrAmbiguousOutcome is returned when the network acknowledged a refund
	// but the adapter could not confirm the result. The caller must not
	// retry blindly; reconcile via GetPaymentStatus first.
	ErrAmbiguousOutcome = errors.New("ambiguous refund outcome, manual reconciliation required")
)

// PaymentRequest is the provider-agnostic payment initiation request.
// Metadata must carry the engine payment id under "payment_id" so inbound
// webhooks can be correlated.
type PaymentRequest struct {
	Amount        domain.Money
	PaymentMethod string
	Description   string
	Metadata      map[string]string
}

// PaymentRequestID returns the engine payment id carried in the metadata.
func (r PaymentRequest) PaymentRequestID() string { return r.Metadata["payment_id"] }

// PaymentResult reports the outcome of a payment initiation.
type PaymentResult struct {
	Success               bool
	PaymentID             string // engine payment id, echoed back
	ExternalTransactionID string // the network's own reference
	Status                Status
	RedirectURL           string // set when the user must be redirected
	ErrorMessage          string
}

// RefundRequest is the provider-agnostic refund request.
type RefundRequest struct {
	ExternalTransactionID string
	Amount                domain.Money
	Reason                string
	Metadata              map[string]string
}

// RefundResult reports the outcome of a refund request.
type RefundResult struct {
	Success          bool
	ExternalRefundID string
	Status           Status
	ProcessedAt      *time.Time
}

// WebhookValidation is the outcome of authenticating and parsing a raw
// webhook payload.
type WebhookValidation struct {
	Valid                 bool
	EventID               string
	EventType             EventClass
	ExternalTransactionID string
	Data                  map[string]string
}

// Processor is the capability offered by one external payment network.
// Implementations translate engine-level requests into the network's own
// protocol and webhooks back into engine-level facts. All network calls
// honor the context deadline.
type Processor interface {
	// Name identifies the network this processor owns payments for.
	Name() domain.Provider

	// ProcessPayment initiates a payment on the network.
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)

	// ProcessRefund requests a refund for a previously completed payment.
	ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)

	// ValidateWebhook authenticates a raw webhook payload using the
	// provider-specific headers and extracts the normalized event.
	// An invalid signature returns ErrInvalidSignature.
	ValidateWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookValidation, error)

	// GetPaymentStatus queries the network for the current status of a
	// transaction, used when webhooks are delayed or lost.
	GetPaymentStatus(ctx context.Context, externalTransactionID string) (Status, error)
}
