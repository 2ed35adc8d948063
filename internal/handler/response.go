package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/repository"
	"bookpay/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps domain/service/provider errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var unknownProvider provider.ErrUnknownProvider

	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Authentication failures on webhook delivery
	case errors.Is(err, provider.ErrInvalidSignature):
		return http.StatusUnauthorized

	// Validation errors - Bad Request
	case errors.As(err, &unknownProvider),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidBookID),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrInvalidSessionID),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidPaymentType),
		errors.Is(err, service.ErrInvalidConsumption),
		errors.Is(err, service.ErrNothingToCharge),
		errors.Is(err, service.ErrSessionMismatch),
		errors.Is(err, service.ErrMalformedWebhook),
		errors.Is(err, domain.ErrInvalidRefundAmount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrNegativeAmount):
		return http.StatusBadRequest

	// Network declined the charge
	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrRefundNotAllowed):
		return http.StatusForbidden

	// Conflict errors
	case errors.Is(err, domain.ErrNotRefundable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, service.ErrReceiptUnavailable),
		errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict

	// Refunds the network cannot execute programmatically
	case errors.Is(err, provider.ErrManualRefundRequired):
		return http.StatusNotImplemented

	// Outcomes requiring manual reconciliation
	case errors.Is(err, provider.ErrAmbiguousOutcome):
		return http.StatusBadGateway

	// Another request holds the payment lock
	case errors.Is(err, service.ErrPaymentLocked):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
