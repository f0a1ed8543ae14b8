package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bolo/internal/metrics"
	"bolo/internal/provider"
)

const (
	signatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// SignatureMiddleware rejects provider notifications whose X-Signature
// header is not the hex HMAC-SHA256 of the raw body under secret. The body
// is restored so the handler can bind it.
func SignatureMiddleware(providerName, secret string, m *metrics.Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(signatureHeader)
		if signature == "" {
			reject(c, providerName, "missing signature", m, logger)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			reject(c, providerName, "unreadable body", m, logger)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !provider.VerifySignature(secret, body, signature) {
			reject(c, providerName, "signature mismatch", m, logger)
			return
		}

		c.Next()
	}
}

func reject(c *gin.Context, providerName, reason string, m *metrics.Metrics, logger *zap.Logger) {
	logger.Warn("webhook rejected",
		zap.String("provider", providerName),
		zap.String("reason", reason),
		zap.String("client_ip", c.ClientIP()))
	m.Webhook(providerName, metrics.OutcomeUnauthorized)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
}
