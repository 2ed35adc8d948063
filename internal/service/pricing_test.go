package service

import (
	"errors"
	"testing"
	"time"

	"bookpay/internal/domain"
)

func money(t *testing.T, amount, currency string) domain.Money {
	t.Helper()
	m, err := domain.NewMoneyFromString(amount, currency)
	if err != nil {
		t.Fatalf("NewMoneyFromString(%s %s): %v", amount, currency, err)
	}
	return m
}

func testBook(t *testing.T, pricePerPage, pricePerHour string) *domain.Book {
	t.Helper()
	book := &domain.Book{
		ID:       "book-1",
		AuthorID: "author-1",
		Title:    "Practical Settlement",
		Currency: "USD",
	}
	if pricePerPage != "" {
		p := money(t, pricePerPage, "USD")
		book.PricePerPage = &p
	}
	if pricePerHour != "" {
		p := money(t, pricePerHour, "USD")
		book.PricePerHour = &p
	}
	return book
}

func TestPricing_PageCharge(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()

	// 0.50/page x 5 pages = 2.50.
	charge, err := svc.CalculatePageCharge(money(t, "0.50", "USD"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.StringFixed() != "2.50" {
		t.Errorf("expected 2.50, got %s", charge.StringFixed())
	}

	// Zero pages cost zero.
	charge, err = svc.CalculatePageCharge(money(t, "0.50", "USD"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !charge.IsZero() {
		t.Errorf("expected zero, got %s", charge)
	}

	if _, err := svc.CalculatePageCharge(money(t, "0.50", "USD"), -1); !errors.Is(err, ErrInvalidConsumption) {
		t.Errorf("expected ErrInvalidConsumption, got %v", err)
	}
}

func TestPricing_TimeCharge(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()

	// 3.00/hour x 90 minutes = 4.50.
	charge, err := svc.CalculateTimeCharge(money(t, "3.00", "USD"), 90*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.StringFixed() != "4.50" {
		t.Errorf("expected 4.50, got %s", charge.StringFixed())
	}

	// Short reads round at the currency's minor units.
	charge, err = svc.CalculateTimeCharge(money(t, "3.00", "USD"), 6*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.StringFixed() != "0.30" {
		t.Errorf("expected 0.30, got %s", charge.StringFixed())
	}

	// Sub-minute durations stay exact; nothing passes through a float.
	charge, err = svc.CalculateTimeCharge(money(t, "3600.00", "USD"), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.StringFixed() != "1.00" {
		t.Errorf("expected 1.00, got %s", charge.StringFixed())
	}

	if _, err := svc.CalculateTimeCharge(money(t, "3.00", "USD"), -time.Minute); !errors.Is(err, ErrInvalidConsumption) {
		t.Errorf("expected ErrInvalidConsumption, got %v", err)
	}
}

func TestPricing_BreakdownSumsBothDimensions(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()
	book := testBook(t, "0.50", "3.00")

	breakdown, err := svc.CalculateCharge(book, "reader-1", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breakdown.PageCharge.StringFixed() != "2.50" {
		t.Errorf("page: expected 2.50, got %s", breakdown.PageCharge.StringFixed())
	}
	if breakdown.TimeCharge.StringFixed() != "3.00" {
		t.Errorf("time: expected 3.00, got %s", breakdown.TimeCharge.StringFixed())
	}
	if breakdown.Total.StringFixed() != "5.50" {
		t.Errorf("total: expected 5.50, got %s", breakdown.Total.StringFixed())
	}
}

func TestPricing_UnpricedDimensionIsZero(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()

	// Book priced per page only.
	book := testBook(t, "0.50", "")
	breakdown, err := svc.CalculateCharge(book, "reader-1", 4, 2*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breakdown.TimeCharge.IsZero() {
		t.Errorf("expected zero time charge, got %s", breakdown.TimeCharge)
	}
	if breakdown.Total.StringFixed() != "2.00" {
		t.Errorf("expected 2.00, got %s", breakdown.Total.StringFixed())
	}
}

func TestPricing_AuthorReadsOwnBookForFree(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()
	book := testBook(t, "0.50", "3.00")

	breakdown, err := svc.CalculateCharge(book, "author-1", 100, 10*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breakdown.AuthorOwned {
		t.Error("expected AuthorOwned")
	}
	if !breakdown.Total.IsZero() {
		t.Errorf("expected zero total, got %s", breakdown.Total)
	}
}

func TestPricing_ChargeForSelectsDimension(t *testing.T) {
	t.Parallel()

	svc := NewPricingService()
	book := testBook(t, "0.50", "3.00")

	perPage, err := svc.ChargeFor(book, "reader-1", domain.PaymentTypePerPage, 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perPage.StringFixed() != "2.50" {
		t.Errorf("per page: expected 2.50, got %s", perPage.StringFixed())
	}

	perHour, err := svc.ChargeFor(book, "reader-1", domain.PaymentTypePerHour, 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perHour.StringFixed() != "3.00" {
		t.Errorf("per hour: expected 3.00, got %s", perHour.StringFixed())
	}

	if _, err := svc.ChargeFor(book, "reader-1", domain.PaymentType("PER_WORD"), 5, time.Hour); !errors.Is(err, ErrInvalidPaymentType) {
		t.Errorf("expected ErrInvalidPaymentType, got %v", err)
	}
}
