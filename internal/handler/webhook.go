package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookpay/internal/domain"
	"bookpay/internal/service"
)

// WebhookHandler handles inbound provider notifications.
type WebhookHandler struct {
	webhookService *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// HandleWebhook handles POST /v1/webhooks/:provider. Providers retry on
// non-2xx, so events that were applied or safely ignored both return 200.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable request body"})
		return
	}

	providerName := domain.Provider(c.Param("provider"))
	if err := h.webhookService.HandleWebhook(c.Request.Context(), providerName, payload, c.Request.Header); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}
