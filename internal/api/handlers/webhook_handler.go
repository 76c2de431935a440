package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/eventreg/internal/services"
)

// WebhookHandler receives payment gateway notifications
type WebhookHandler struct {
	payments *services.PaymentService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhooks/gateway", h.HandleGatewayNotification)
}

// HandleGatewayNotification processes a gateway callback. The gateway retries
// on non-2xx, so transient failures return 500 and duplicates return 200.
func (h *WebhookHandler) HandleGatewayNotification(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := h.payments.ProcessNotification(c.Request.Context(), body); err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to process gateway notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
