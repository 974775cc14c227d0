package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/service"
)

type WebhookHandler struct {
	webhooks *service.WebhookService
	logger   *zap.Logger
}

func NewWebhookHandler(webhooks *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// Inbound handles POST /api/v1/webhooks/:psp. The raw body is read before
// any parsing so signature verification sees the exact bytes sent.
func (h *WebhookHandler) Inbound(c *gin.Context) {
	psp := c.Param("psp")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := h.webhooks.HandleInbound(c.Request.Context(), psp, c.GetHeader("X-Signature"), body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to process webhook",
				zap.String("psp", psp),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "event_id": event.ID})
}
