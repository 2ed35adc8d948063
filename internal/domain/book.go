package domain

import "time"

// Book is a priced title on the platform. Either pricing dimension may be
// unset; an unset dimension contributes nothing to a charge.
type Book struct {
	ID           string
	AuthorID     string
	Title        string
	Currency     string
	PricePerPage *Money
	PricePerHour *Money
	CreatedAt    time.Time
}

// PageRate returns the per-page price, or the currency zero when the book
// has no per-page pricing.
func (b *Book) PageRate() Money {
	if b.PricePerPage == nil {
		return Zero(b.Currency)
	}
	return *b.PricePerPage
}

// HourRate returns the per-hour price, or the currency zero when the book
// has no per-hour pricing.
func (b *Book) HourRate() Money {
	if b.PricePerHour == nil {
		return Zero(b.Currency)
	}
	return *b.PricePerHour
}
