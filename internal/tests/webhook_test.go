package tests

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/service"
)

type webhookFixture struct {
	paymentRepo *MockPaymentRepository
	processor   *MockProcessor
	locks       *MockLockStore
	cache       *MockCacheStore
	svc         *service.WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	f := &webhookFixture{
		paymentRepo: NewMockPaymentRepository(),
		processor:   NewMockProcessor(domain.ProviderStripe),
		locks:       NewMockLockStore(),
		cache:       NewMockCacheStore(),
	}
	f.svc = service.NewWebhookService(
		f.paymentRepo,
		provider.NewRegistry(f.processor),
		service.NewNotificationService(),
		f.locks, f.cache,
	)
	return f
}

func processingPayment(t *testing.T, f *webhookFixture, extID string) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment("reader-1", "book-1", mustMoney(t, "10.00", "USD"), domain.PaymentTypePerPage, domain.ProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.MarkAsProcessing(extID); err != nil {
		t.Fatal(err)
	}
	p.ClearEvents()
	f.paymentRepo.AddPayment(p)
	return p
}

func deliver(t *testing.T, f *webhookFixture, v *provider.WebhookValidation) error {
	t.Helper()
	f.processor.WebhookValidation = v
	return f.svc.HandleWebhook(context.Background(), domain.ProviderStripe, []byte(`{}`), http.Header{})
}

func TestWebhook_SuccessEventCompletesPayment(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status())
	}
	if !stored.HasAppliedWebhookEvent("evt-1") {
		t.Error("expected event id to be recorded")
	}
	if f.locks.ReleaseCallCount != 1 {
		t.Error("payment lock must be released")
	}
}

func TestWebhook_ReplayedEventIsNoOp(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	event := &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	}
	if err := deliver(t, f, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	updates := f.paymentRepo.UpdateCallCount

	// The provider retries the exact same event.
	if err := deliver(t, f, event); err != nil {
		t.Fatalf("replay must be acknowledged: %v", err)
	}
	if f.paymentRepo.UpdateCallCount != updates {
		t.Error("replay must not write")
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status())
	}
}

func TestWebhook_UnknownTransactionAcknowledged(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)

	err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-ghost",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-never-seen",
	})
	if err != nil {
		t.Fatalf("unknown transaction must be acknowledged: %v", err)
	}
	if f.locks.AcquireCallCount != 0 {
		t.Error("no lock should be taken for an unknown transaction")
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	processingPayment(t, f, "ext-1")

	err := deliver(t, f, &provider.WebhookValidation{Valid: false})
	if !errors.Is(err, provider.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
	if f.paymentRepo.UpdateCallCount != 0 {
		t.Error("an unauthenticated event must never reach a payment")
	}
}

func TestWebhook_FailureEventIgnoredAfterCompletion(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	// Complete via webhook, then a stale failure event arrives.
	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	}); err != nil {
		t.Fatal(err)
	}

	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-2",
		EventType:             provider.EventPaymentFailed,
		ExternalTransactionID: "ext-1",
		Data:                  map[string]string{"failure_reason": "late decline"},
	}); err != nil {
		t.Fatalf("out-of-order failure must be acknowledged: %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusCompleted {
		t.Errorf("completed payment must stay COMPLETED, got %s", stored.Status())
	}
}

func TestWebhook_FailureEventFailsProcessingPayment(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentFailed,
		ExternalTransactionID: "ext-1",
		Data:                  map[string]string{"failure_reason": "insufficient funds"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", stored.Status())
	}
	if stored.FailureReason() != "insufficient funds" {
		t.Errorf("expected insufficient funds, got %q", stored.FailureReason())
	}
}

func TestWebhook_RefundEventAppliesAmount(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	}); err != nil {
		t.Fatal(err)
	}

	// Provider-side partial refund of 4.00.
	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-2",
		EventType:             provider.EventRefund,
		ExternalTransactionID: "ext-1",
		Data:                  map[string]string{"amount": "4.00", "currency": "USD"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED after partial refund, got %s", stored.Status())
	}
	if stored.RefundedAmount().StringFixed() != "4.00" {
		t.Errorf("expected 4.00 refunded, got %s", stored.RefundedAmount().StringFixed())
	}
}

func TestWebhook_MalformedRefundAmountRejected(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	}); err != nil {
		t.Fatal(err)
	}

	err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-2",
		EventType:             provider.EventRefund,
		ExternalTransactionID: "ext-1",
		Data:                  map[string]string{"amount": "not-a-number"},
	})
	if !errors.Is(err, service.ErrMalformedWebhook) {
		t.Errorf("expected ErrMalformedWebhook, got %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if !stored.RefundedAmount().IsZero() {
		t.Error("malformed refund must not mutate the payment")
	}
}

func TestWebhook_UnclassifiedEventAcknowledged(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")

	if err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-odd",
		EventType:             provider.EventUnknown,
		ExternalTransactionID: "ext-1",
	}); err != nil {
		t.Fatalf("unknown event class must be acknowledged: %v", err)
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusProcessing {
		t.Errorf("expected PROCESSING untouched, got %s", stored.Status())
	}
	if f.paymentRepo.UpdateCallCount != 0 {
		t.Error("no-op events must not write")
	}
}

func TestWebhook_LockedPaymentReturnsLocked(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	p := processingPayment(t, f, "ext-1")
	f.locks.Hold(p.ID())

	err := deliver(t, f, &provider.WebhookValidation{
		Valid:                 true,
		EventID:               "evt-1",
		EventType:             provider.EventPaymentSucceeded,
		ExternalTransactionID: "ext-1",
	})
	if !errors.Is(err, service.ErrPaymentLocked) {
		t.Errorf("expected ErrPaymentLocked, got %v", err)
	}
}

func TestWebhook_UnknownProviderRejected(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	err := f.svc.HandleWebhook(context.Background(), domain.Provider("carrier-pigeon"), []byte(`{}`), http.Header{})
	var unknown provider.ErrUnknownProvider
	if !errors.As(err, &unknown) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}
