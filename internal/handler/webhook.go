package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bolo/internal/service"
)

var (
	telebirrAck     = gin.H{"status": "success"}
	telebirrFailure = gin.H{"error": "Webhook processing failed"}

	cbeAck = gin.H{
		"response_code":    "00",
		"response_message": "Callback processed successfully",
	}
	cbeFailure = gin.H{
		"response_code":    "99",
		"response_message": "Callback processing failed",
	}
)

// WebhookHandler receives payment notifications from the providers. The
// signature is checked by middleware before these handlers run.
type WebhookHandler struct {
	webhookService *service.WebhookService
	logger         *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookService *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, logger: logger}
}

// TelebirrNotify handles POST /api/telebirr/notify
func (h *WebhookHandler) TelebirrNotify(c *gin.Context) {
	var n service.TelebirrNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		h.logger.Warn("malformed telebirr notification", zap.Error(err))
		c.JSON(http.StatusBadRequest, telebirrFailure)
		return
	}

	outcome, err := h.webhookService.HandleTelebirrNotification(c.Request.Context(), n)
	if err != nil {
		h.fail(c, "telebirr", n.TransactionID, err, telebirrFailure)
		return
	}

	h.logger.Info("telebirr notification processed",
		zap.String("transaction_id", n.TransactionID),
		zap.String("outcome", string(outcome)))
	c.JSON(http.StatusOK, telebirrAck)
}

// CBEBirrCallback handles POST /api/cbe/callback
func (h *WebhookHandler) CBEBirrCallback(c *gin.Context) {
	var cb service.CBEBirrCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.logger.Warn("malformed cbe birr callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, cbeFailure)
		return
	}

	outcome, err := h.webhookService.HandleCBEBirrCallback(c.Request.Context(), cb)
	if err != nil {
		h.fail(c, "cbe_birr", cb.ReferenceNumber, err, cbeFailure)
		return
	}

	h.logger.Info("cbe birr callback processed",
		zap.String("reference_number", cb.ReferenceNumber),
		zap.String("outcome", string(outcome)))
	c.JSON(http.StatusOK, cbeAck)
}

func (h *WebhookHandler) fail(c *gin.Context, providerName, id string, err error, body gin.H) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrPaymentNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidWebhookPayload):
		code = http.StatusBadRequest
	}

	if code == http.StatusInternalServerError {
		h.logger.Error("webhook processing failed",
			zap.String("provider", providerName),
			zap.String("id", id),
			zap.Error(err))
		_ = c.Error(err)
	} else {
		h.logger.Warn("webhook rejected",
			zap.String("provider", providerName),
			zap.String("id", id),
			zap.Error(err))
	}
	c.JSON(code, body)
}
