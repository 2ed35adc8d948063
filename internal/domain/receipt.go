package domain

import "time"

// Receipt is the itemized record of a settled payment.
type Receipt struct {
	ID                    string
	PaymentID             string
	UserID                string
	BookID                string
	BookTitle             string
	AuthorID              string
	Provider              Provider
	PaymentType           PaymentType
	ExternalTransactionID string
	Amount                Money
	RefundedAmount        Money
	NetAmount             Money
	CommissionAmount      Money
	AuthorEarnings        Money
	ProcessedAt           time.Time
	CreatedAt             time.Time
}
