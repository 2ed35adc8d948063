package service

import "errors"

var (
	// ErrInvalidUserID is returned when a user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidBookID is returned when a book ID is empty.
	ErrInvalidBookID = errors.New("invalid book id")

	// ErrInvalidPaymentID is returned when a payment ID is empty.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrInvalidSessionID is returned when a reading session ID is empty.
	ErrInvalidSessionID = errors.New("invalid reading session id")

	// ErrInvalidPaymentMethod is returned when the payment method reference is missing.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidPaymentType is returned when the payment type is not a known value.
	ErrInvalidPaymentType = errors.New("invalid payment type")

	// ErrInvalidConsumption is returned when pages read or duration are negative.
	ErrInvalidConsumption = errors.New("invalid consumption input")

	// ErrNothingToCharge is returned when the computed charge is zero,
	// e.g. an author reading their own book or an unpriced dimension.
	ErrNothingToCharge = errors.New("nothing to charge")

	// ErrPaymentDeclined is returned when the payment network rejected the
	// charge. The payment has already been marked FAILED.
	ErrPaymentDeclined = errors.New("payment declined by provider")

	// ErrRefundNotAllowed is returned when the requester is neither the
	// payer nor the book's author.
	ErrRefundNotAllowed = errors.New("refund not allowed for this user")

	// ErrPaymentLocked is returned when another handler holds the
	// per-payment lock. Safe to retry.
	ErrPaymentLocked = errors.New("payment is being processed by another request")

	// ErrMalformedWebhook is returned when a validated webhook carries
	// data the reconciler cannot apply, such as an unparseable refund amount.
	ErrMalformedWebhook = errors.New("malformed webhook event data")

	// ErrSessionMismatch is returned when a reading session does not belong
	// to the payment's user and book.
	ErrSessionMismatch = errors.New("reading session does not match payment")

	// ErrReceiptUnavailable is returned when a receipt is requested for a
	// payment that never completed.
	ErrReceiptUnavailable = errors.New("receipt unavailable for uncompleted payment")
)
