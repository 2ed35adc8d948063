package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookpay/internal/domain"
	"bookpay/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// ProcessPaymentRequest is the HTTP request body for processing a payment.
type ProcessPaymentRequest struct {
	UserID           string `json:"user_id"`
	BookID           string `json:"book_id"`
	Provider         string `json:"provider"`
	PaymentMethod    string `json:"payment_method"`
	PaymentType      string `json:"payment_type"`
	PagesRead        int    `json:"pages_read"`
	DurationSeconds  int64  `json:"duration_seconds"`
	ReadingSessionID string `json:"reading_session_id"`
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	ID                    string `json:"id"`
	UserID                string `json:"user_id"`
	BookID                string `json:"book_id"`
	ReadingSessionID      string `json:"reading_session_id,omitempty"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	RefundedAmount        string `json:"refunded_amount"`
	PaymentType           string `json:"payment_type"`
	Provider              string `json:"provider"`
	Status                string `json:"status"`
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
	FailureReason         string `json:"failure_reason,omitempty"`
	RedirectURL           string `json:"redirect_url,omitempty"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

func paymentToResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                    p.ID(),
		UserID:                p.UserID(),
		BookID:                p.BookID(),
		ReadingSessionID:      p.ReadingSessionID(),
		Amount:                p.Amount().StringFixed(),
		Currency:              p.Amount().Currency(),
		RefundedAmount:        p.RefundedAmount().StringFixed(),
		PaymentType:           string(p.Type()),
		Provider:              string(p.Provider()),
		Status:                string(p.Status()),
		ExternalTransactionID: p.ExternalTransactionID(),
		FailureReason:         p.FailureReason(),
		CreatedAt:             p.CreatedAt().Format(time.RFC3339),
		UpdatedAt:             p.UpdatedAt().Format(time.RFC3339),
	}
}

// ProcessPayment handles POST /v1/payments
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}
	if req.BookID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "book_id is required"})
		return
	}
	if req.Provider == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "provider is required"})
		return
	}
	if req.DurationSeconds < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "duration_seconds must not be negative"})
		return
	}

	resp, err := h.paymentService.ProcessPayment(c.Request.Context(), service.ProcessPaymentRequest{
		UserID:           req.UserID,
		BookID:           req.BookID,
		Provider:         domain.Provider(req.Provider),
		PaymentMethod:    req.PaymentMethod,
		PaymentType:      domain.PaymentType(req.PaymentType),
		PagesRead:        req.PagesRead,
		Duration:         time.Duration(req.DurationSeconds) * time.Second,
		ReadingSessionID: req.ReadingSessionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	body := paymentToResponse(resp.Payment)
	body.RedirectURL = resp.RedirectURL
	respondJSON(c, http.StatusCreated, body)
}

// GetPayment handles GET /v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, paymentToResponse(payment))
}

// ReceiptResponse is the HTTP response for a payment receipt.
type ReceiptResponse struct {
	ID                    string `json:"id"`
	PaymentID             string `json:"payment_id"`
	BookID                string `json:"book_id"`
	BookTitle             string `json:"book_title"`
	AuthorID              string `json:"author_id"`
	UserID                string `json:"user_id"`
	PaymentType           string `json:"payment_type"`
	Provider              string `json:"provider"`
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
	Currency              string `json:"currency"`
	Amount                string `json:"amount"`
	RefundedAmount        string `json:"refunded_amount"`
	NetAmount             string `json:"net_amount"`
	CommissionAmount      string `json:"commission_amount"`
	AuthorEarnings        string `json:"author_earnings"`
	ProcessedAt           string `json:"processed_at"`
	CreatedAt             string `json:"created_at"`
}

// GetReceipt handles GET /v1/payments/:id/receipt
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.paymentService.GetPaymentReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ReceiptResponse{
		ID:                    receipt.ID,
		PaymentID:             receipt.PaymentID,
		BookID:                receipt.BookID,
		BookTitle:             receipt.BookTitle,
		AuthorID:              receipt.AuthorID,
		UserID:                receipt.UserID,
		PaymentType:           string(receipt.PaymentType),
		Provider:              string(receipt.Provider),
		ExternalTransactionID: receipt.ExternalTransactionID,
		Currency:              receipt.Amount.Currency(),
		Amount:                receipt.Amount.StringFixed(),
		RefundedAmount:        receipt.RefundedAmount.StringFixed(),
		NetAmount:             receipt.NetAmount.StringFixed(),
		CommissionAmount:      receipt.CommissionAmount.StringFixed(),
		AuthorEarnings:        receipt.AuthorEarnings.StringFixed(),
		ProcessedAt:           receipt.ProcessedAt.Format(time.RFC3339),
		CreatedAt:             receipt.CreatedAt.Format(time.RFC3339),
	})
}

// RefundRequest is the HTTP request body for refunding a payment.
type RefundRequest struct {
	Amount           string `json:"amount"`
	Reason           string `json:"reason"`
	RequestingUserID string `json:"requesting_user_id"`
}

// RefundResponse is the HTTP response for a refund.
type RefundResponse struct {
	Payment          PaymentResponse `json:"payment"`
	RefundedAmount   string          `json:"refunded_amount"`
	ExternalRefundID string          `json:"external_refund_id,omitempty"`
}

// ProcessRefund handles POST /v1/payments/:id/refund
func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.RequestingUserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "requesting_user_id is required"})
		return
	}

	resp, err := h.paymentService.ProcessRefund(c.Request.Context(), service.ProcessRefundRequest{
		PaymentID:        c.Param("id"),
		Amount:           req.Amount,
		Reason:           req.Reason,
		RequestingUserID: req.RequestingUserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RefundResponse{
		Payment:          paymentToResponse(resp.Payment),
		RefundedAmount:   resp.RefundedAmount.StringFixed(),
		ExternalRefundID: resp.ExternalRefundID,
	})
}

// GetUserPayments handles GET /v1/users/:id/payments
func (h *PaymentHandler) GetUserPayments(c *gin.Context) {
	payments, err := h.paymentService.GetUserPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, paymentToResponse(p))
	}
	respondJSON(c, http.StatusOK, gin.H{"payments": responses})
}

// EarningsResponse is the HTTP response for author earnings.
type EarningsResponse struct {
	AuthorID     string            `json:"author_id"`
	Totals       map[string]string `json:"totals"`
	PaymentCount int               `json:"payment_count"`
}

// GetAuthorEarnings handles GET /v1/authors/:id/earnings
func (h *PaymentHandler) GetAuthorEarnings(c *gin.Context) {
	earnings, err := h.paymentService.GetAuthorEarnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	totals := make(map[string]string, len(earnings.Totals))
	for currency, total := range earnings.Totals {
		totals[currency] = total.StringFixed()
	}
	respondJSON(c, http.StatusOK, EarningsResponse{
		AuthorID:     earnings.AuthorID,
		Totals:       totals,
		PaymentCount: earnings.PaymentCount,
	})
}

// QuoteRequest is the HTTP request body for a charge quote.
type QuoteRequest struct {
	UserID          string `json:"user_id"`
	BookID          string `json:"book_id"`
	PagesRead       int    `json:"pages_read"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// QuoteResponse is the HTTP response for a charge quote.
type QuoteResponse struct {
	Currency   string `json:"currency"`
	PageCharge string `json:"page_charge"`
	TimeCharge string `json:"time_charge"`
	Total      string `json:"total"`
}

// CalculateCharges handles POST /v1/charges/quote
func (h *PaymentHandler) CalculateCharges(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	breakdown, err := h.paymentService.CalculateCharges(c.Request.Context(),
		req.UserID, req.BookID, req.PagesRead, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, QuoteResponse{
		Currency:   breakdown.Total.Currency(),
		PageCharge: breakdown.PageCharge.StringFixed(),
		TimeCharge: breakdown.TimeCharge.StringFixed(),
		Total:      breakdown.Total.StringFixed(),
	})
}
