package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
)

// ReceiptService generates itemized receipts for settled payments.
type ReceiptService struct {
	commissionRate decimal.Decimal
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(commissionRate decimal.Decimal) *ReceiptService {
	return &ReceiptService{commissionRate: commissionRate}
}

// GenerateReceipt builds a receipt for a payment that reached COMPLETED
// (including one later partially or fully refunded).
func (s *ReceiptService) GenerateReceipt(ctx context.Context, payment *domain.Payment, book *domain.Book) (*domain.Receipt, error) {
	if payment == nil || book == nil {
		return nil, ErrInvalidPaymentID
	}

	status := payment.Status()
	if status != domain.PaymentStatusCompleted && status != domain.PaymentStatusRefunded {
		return nil, ErrReceiptUnavailable
	}

	net, err := payment.Amount().Sub(payment.RefundedAmount())
	if err != nil {
		return nil, err
	}

	earnings := payment.CalculateAuthorEarnings(s.commissionRate)
	commission, err := net.Sub(earnings)
	if err != nil {
		return nil, err
	}

	processedAt := time.Now()
	if payment.ProcessedAt() != nil {
		processedAt = *payment.ProcessedAt()
	}

	return &domain.Receipt{
		ID:                    uuid.New().String(),
		PaymentID:             payment.ID(),
		UserID:                payment.UserID(),
		BookID:                book.ID,
		BookTitle:             book.Title,
		AuthorID:              book.AuthorID,
		Provider:              payment.Provider(),
		PaymentType:           payment.Type(),
		ExternalTransactionID: payment.ExternalTransactionID(),
		Amount:                payment.Amount(),
		RefundedAmount:        payment.RefundedAmount(),
		NetAmount:             net,
		CommissionAmount:      commission,
		AuthorEarnings:        earnings,
		ProcessedAt:           processedAt,
		CreatedAt:             time.Now(),
	}, nil
}
