package service

import (
	"time"

	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
)

// PricingService converts reading consumption and a book's price schedule
// into charge amounts. All arithmetic is exact decimal, rounded to the
// currency's minor units.
type PricingService struct{}

// NewPricingService creates a new PricingService.
func NewPricingService() *PricingService {
	return &PricingService{}
}

// ChargeBreakdown itemizes a computed charge.
type ChargeBreakdown struct {
	PageCharge domain.Money
	TimeCharge domain.Money
	Total      domain.Money

	// AuthorOwned is true when the reader is the book's own author, in
	// which case every charge is zero regardless of consumption.
	AuthorOwned bool
}

// CalculatePageCharge returns pricePerPage x pagesRead, rounded to the
// currency's minor units. Negative consumption is rejected, not clamped.
func (s *PricingService) CalculatePageCharge(pricePerPage domain.Money, pagesRead int) (domain.Money, error) {
	if pagesRead < 0 {
		return domain.Money{}, ErrInvalidConsumption
	}
	return pricePerPage.MulInt(int64(pagesRead))
}

// CalculateTimeCharge returns pricePerHour x the fractional hours in
// duration, rounded to the currency's minor units.
func (s *PricingService) CalculateTimeCharge(pricePerHour domain.Money, duration time.Duration) (domain.Money, error) {
	if duration < 0 {
		return domain.Money{}, ErrInvalidConsumption
	}
	hours := decimal.NewFromInt(int64(duration)).Div(decimal.NewFromInt(int64(time.Hour)))
	return pricePerHour.MulDecimal(hours), nil
}

// CalculateCharge computes the full breakdown for a reader's consumption
// of a book. An unpriced dimension contributes the currency zero; an
// author reading their own book is never charged.
func (s *PricingService) CalculateCharge(book *domain.Book, userID string, pagesRead int, duration time.Duration) (*ChargeBreakdown, error) {
	if pagesRead < 0 || duration < 0 {
		return nil, ErrInvalidConsumption
	}

	zero := domain.Zero(book.Currency)
	if userID == book.AuthorID {
		return &ChargeBreakdown{
			PageCharge:  zero,
			TimeCharge:  zero,
			Total:       zero,
			AuthorOwned: true,
		}, nil
	}

	pageCharge, err := s.CalculatePageCharge(book.PageRate(), pagesRead)
	if err != nil {
		return nil, err
	}

	timeCharge, err := s.CalculateTimeCharge(book.HourRate(), duration)
	if err != nil {
		return nil, err
	}

	total, err := pageCharge.Add(timeCharge)
	if err != nil {
		return nil, err
	}

	return &ChargeBreakdown{
		PageCharge: pageCharge,
		TimeCharge: timeCharge,
		Total:      total,
	}, nil
}

// ChargeFor returns the amount owed for one metering dimension.
func (s *PricingService) ChargeFor(book *domain.Book, userID string, paymentType domain.PaymentType, pagesRead int, duration time.Duration) (domain.Money, error) {
	breakdown, err := s.CalculateCharge(book, userID, pagesRead, duration)
	if err != nil {
		return domain.Money{}, err
	}
	if breakdown.AuthorOwned {
		return breakdown.Total, nil
	}

	switch paymentType {
	case domain.PaymentTypePerPage:
		return breakdown.PageCharge, nil
	case domain.PaymentTypePerHour:
		return breakdown.TimeCharge, nil
	default:
		return domain.Money{}, ErrInvalidPaymentType
	}
}
