package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/service"
)

type paymentFixture struct {
	paymentRepo *MockPaymentRepository
	bookRepo    *MockBookRepository
	userRepo    *MockUserRepository
	sessionRepo *MockSessionRepository
	processor   *MockProcessor
	locks       *MockLockStore
	cache       *MockCacheStore
	svc         *service.PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		paymentRepo: NewMockPaymentRepository(),
		bookRepo:    NewMockBookRepository(),
		userRepo:    NewMockUserRepository(),
		sessionRepo: NewMockSessionRepository(),
		processor:   NewMockProcessor(domain.ProviderStripe),
		locks:       NewMockLockStore(),
		cache:       NewMockCacheStore(),
	}

	commissionRate := decimal.NewFromFloat(0.15)
	f.svc = service.NewPaymentService(
		f.paymentRepo, f.bookRepo, f.userRepo, f.sessionRepo,
		provider.NewRegistry(f.processor),
		service.NewPricingService(),
		service.NewReceiptService(commissionRate),
		service.NewNotificationService(),
		f.locks, f.cache,
		commissionRate, 5*time.Second,
	)

	f.userRepo.AddUser(&domain.User{ID: "reader-1", Name: "Reader"})
	f.userRepo.AddUser(&domain.User{ID: "author-1", Name: "Author"})

	pricePerPage := mustMoney(t, "0.50", "USD")
	pricePerHour := mustMoney(t, "3.00", "USD")
	f.bookRepo.AddBook(&domain.Book{
		ID:           "book-1",
		AuthorID:     "author-1",
		Title:        "Practical Settlement",
		Currency:     "USD",
		PricePerPage: &pricePerPage,
		PricePerHour: &pricePerHour,
	})

	return f
}

func mustMoney(t *testing.T, amount, currency string) domain.Money {
	t.Helper()
	m, err := domain.NewMoneyFromString(amount, currency)
	if err != nil {
		t.Fatalf("NewMoneyFromString(%s %s): %v", amount, currency, err)
	}
	return m
}

func pageRequest(pages int) service.ProcessPaymentRequest {
	return service.ProcessPaymentRequest{
		UserID:        "reader-1",
		BookID:        "book-1",
		Provider:      domain.ProviderStripe,
		PaymentMethod: "pm_card_visa",
		PaymentType:   domain.PaymentTypePerPage,
		PagesRead:     pages,
	}
}

func completedPayment(t *testing.T, f *paymentFixture, amount string) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment("reader-1", "book-1", mustMoney(t, amount, "USD"), domain.PaymentTypePerPage, domain.ProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.MarkAsProcessing("ext-txn-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.MarkAsCompleted(); err != nil {
		t.Fatal(err)
	}
	p.ClearEvents()
	f.paymentRepo.AddPayment(p)
	return p
}

func TestProcessPayment_HappyPath(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	resp, err := f.svc.ProcessPayment(context.Background(), pageRequest(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Payment.Amount().StringFixed() != "2.50" {
		t.Errorf("expected 2.50 charge, got %s", resp.Payment.Amount().StringFixed())
	}
	if resp.Payment.Status() != domain.PaymentStatusProcessing {
		t.Errorf("expected PROCESSING, got %s", resp.Payment.Status())
	}
	if f.processor.ProcessPaymentCallCount != 1 {
		t.Errorf("expected 1 processor call, got %d", f.processor.ProcessPaymentCallCount)
	}

	stored := f.paymentRepo.GetStored(resp.Payment.ID())
	if stored == nil {
		t.Fatal("payment not persisted")
	}
	if stored.Status() != domain.PaymentStatusProcessing {
		t.Errorf("stored status: expected PROCESSING, got %s", stored.Status())
	}
	if stored.ExternalTransactionID() == "" {
		t.Error("expected external transaction id to be persisted")
	}
}

func TestProcessPayment_SynchronousCompletion(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.processor.PaymentResult = &provider.PaymentResult{
		Success:               true,
		ExternalTransactionID: "ext-sync",
		Status:                provider.StatusCompleted,
	}

	resp, err := f.svc.ProcessPayment(context.Background(), pageRequest(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payment.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", resp.Payment.Status())
	}
}

func TestProcessPayment_ProviderErrorMarksFailed(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.processor.PaymentError = errors.New("gateway unreachable")

	_, err := f.svc.ProcessPayment(context.Background(), pageRequest(5))
	if err == nil {
		t.Fatal("expected error")
	}

	// The created payment must not linger in PENDING.
	if f.paymentRepo.CountPayments() != 1 {
		t.Fatalf("expected 1 payment, got %d", f.paymentRepo.CountPayments())
	}
	var stored *domain.Payment
	payments, _ := f.paymentRepo.GetByUserID(context.Background(), "reader-1")
	stored = payments[0]
	if stored.Status() != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", stored.Status())
	}
	if stored.FailureReason() == "" {
		t.Error("expected a failure reason")
	}
}

func TestProcessPayment_ProviderDeclineMarksFailed(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.processor.PaymentResult = &provider.PaymentResult{
		Success:      false,
		Status:       provider.StatusFailed,
		ErrorMessage: "card declined",
	}

	_, err := f.svc.ProcessPayment(context.Background(), pageRequest(5))
	if !errors.Is(err, service.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	stored, err := f.paymentRepo.GetByUserID(context.Background(), "reader-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored payment, got %d", len(stored))
	}
	if stored[0].Status() != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", stored[0].Status())
	}
	if stored[0].FailureReason() != "card declined" {
		t.Errorf("expected card declined, got %q", stored[0].FailureReason())
	}
}

func TestProcessPayment_UnknownProviderRejected(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	req := pageRequest(5)
	req.Provider = domain.Provider("carrier-pigeon")

	_, err := f.svc.ProcessPayment(context.Background(), req)
	var unknown provider.ErrUnknownProvider
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if f.processor.ProcessPaymentCallCount != 0 {
		t.Error("processor must not be called for an unknown provider")
	}
}

func TestProcessPayment_ZeroConsumptionRejected(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	_, err := f.svc.ProcessPayment(context.Background(), pageRequest(0))
	if !errors.Is(err, service.ErrNothingToCharge) {
		t.Errorf("expected ErrNothingToCharge, got %v", err)
	}
	if f.paymentRepo.CountPayments() != 0 {
		t.Error("no payment may be created for a zero charge")
	}
}

func TestProcessPayment_AuthorReadsOwnBookFree(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	req := pageRequest(50)
	req.UserID = "author-1"

	_, err := f.svc.ProcessPayment(context.Background(), req)
	if !errors.Is(err, service.ErrNothingToCharge) {
		t.Errorf("expected ErrNothingToCharge for author-owned book, got %v", err)
	}
}

func TestProcessPayment_SessionMismatchRejected(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.sessionRepo.AddSession(&domain.ReadingSession{
		ID:     "session-1",
		UserID: "someone-else",
		BookID: "book-1",
	})

	req := pageRequest(5)
	req.ReadingSessionID = "session-1"

	_, err := f.svc.ProcessPayment(context.Background(), req)
	if !errors.Is(err, service.ErrSessionMismatch) {
		t.Errorf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestProcessRefund_FullRefund(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")

	resp, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		RequestingUserID: "reader-1",
		Reason:           "accidental purchase",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Payment.Status() != domain.PaymentStatusRefunded {
		t.Errorf("expected REFUNDED, got %s", resp.Payment.Status())
	}
	if resp.RefundedAmount.StringFixed() != "10.00" {
		t.Errorf("expected 10.00 refunded, got %s", resp.RefundedAmount.StringFixed())
	}
	if f.processor.ProcessRefundCallCount != 1 {
		t.Errorf("expected 1 refund call, got %d", f.processor.ProcessRefundCallCount)
	}
	if f.locks.ReleaseCallCount != 1 {
		t.Error("payment lock must be released")
	}
}

func TestProcessRefund_PartialKeepsCompleted(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")

	resp, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		Amount:           "4.00",
		RequestingUserID: "reader-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payment.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED after partial refund, got %s", resp.Payment.Status())
	}

	stored := f.paymentRepo.GetStored(p.ID())
	if stored.RefundedAmount().StringFixed() != "4.00" {
		t.Errorf("expected 4.00 refunded, got %s", stored.RefundedAmount().StringFixed())
	}
}

func TestProcessRefund_ExceedingRefundableRejected(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")

	_, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		Amount:           "10.01",
		RequestingUserID: "reader-1",
	})
	if !errors.Is(err, domain.ErrInvalidRefundAmount) {
		t.Errorf("expected ErrInvalidRefundAmount, got %v", err)
	}
	if f.processor.ProcessRefundCallCount != 0 {
		t.Error("processor must not see an invalid refund")
	}
}

func TestProcessRefund_StrangerForbidden(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")

	_, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		RequestingUserID: "stranger-1",
	})
	if !errors.Is(err, service.ErrRefundNotAllowed) {
		t.Errorf("expected ErrRefundNotAllowed, got %v", err)
	}

	// The book's author may refund.
	if _, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		RequestingUserID: "author-1",
	}); err != nil {
		t.Errorf("author refund should be allowed: %v", err)
	}
}

func TestProcessRefund_LockedPaymentUnavailable(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")
	f.locks.Hold(p.ID())

	_, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		RequestingUserID: "reader-1",
	})
	if !errors.Is(err, service.ErrPaymentLocked) {
		t.Errorf("expected ErrPaymentLocked, got %v", err)
	}
}

func TestProcessRefund_ManualRefundPassthrough(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "10.00")
	f.processor.RefundError = provider.ErrManualRefundRequired

	_, err := f.svc.ProcessRefund(context.Background(), service.ProcessRefundRequest{
		PaymentID:        p.ID(),
		RequestingUserID: "reader-1",
	})
	if !errors.Is(err, provider.ErrManualRefundRequired) {
		t.Errorf("expected ErrManualRefundRequired, got %v", err)
	}

	// The payment is left untouched for the back office.
	stored := f.paymentRepo.GetStored(p.ID())
	if stored.Status() != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status())
	}
	if !stored.RefundedAmount().IsZero() {
		t.Error("no refund may be recorded when the network could not execute it")
	}
}

func TestGetAuthorEarnings_SumsCompletedPayments(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	completedPayment(t, f, "100.00")
	p2 := completedPayment(t, f, "40.00")
	if err := p2.ProcessRefund(mustMoney(t, "20.00", "USD")); err != nil {
		t.Fatal(err)
	}
	p2.ClearEvents()
	f.paymentRepo.AddPayment(p2)

	// A failed payment never earns.
	failed, err := domain.NewPayment("reader-1", "book-1", mustMoney(t, "5.00", "USD"), domain.PaymentTypePerPage, domain.ProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if err := failed.MarkAsFailed("declined"); err != nil {
		t.Fatal(err)
	}
	f.paymentRepo.AddPayment(failed)

	earnings, err := f.svc.GetAuthorEarnings(context.Background(), "author-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 100 x 0.85 + (40-20) x 0.85 = 85 + 17 = 102.
	if got := earnings.Totals["USD"].StringFixed(); got != "102.00" {
		t.Errorf("expected 102.00, got %s", got)
	}
	if earnings.PaymentCount != 2 {
		t.Errorf("expected 2 earning payments, got %d", earnings.PaymentCount)
	}
}

func TestGetPaymentReceipt_ItemizesCommission(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	p := completedPayment(t, f, "100.00")

	receipt, err := f.svc.GetPaymentReceipt(context.Background(), p.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.AuthorEarnings.StringFixed() != "85.00" {
		t.Errorf("expected 85.00 earnings, got %s", receipt.AuthorEarnings.StringFixed())
	}
	if receipt.CommissionAmount.StringFixed() != "15.00" {
		t.Errorf("expected 15.00 commission, got %s", receipt.CommissionAmount.StringFixed())
	}
	if receipt.BookTitle != "Practical Settlement" {
		t.Errorf("unexpected book title %q", receipt.BookTitle)
	}

	// No receipt before settlement.
	pending, err := domain.NewPayment("reader-1", "book-1", mustMoney(t, "5.00", "USD"), domain.PaymentTypePerPage, domain.ProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	f.paymentRepo.AddPayment(pending)
	if _, err := f.svc.GetPaymentReceipt(context.Background(), pending.ID()); !errors.Is(err, service.ErrReceiptUnavailable) {
		t.Errorf("expected ErrReceiptUnavailable, got %v", err)
	}
}
