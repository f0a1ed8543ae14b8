// Package sms sends payment confirmation text messages.
package sms

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/metrics"
	"bolo/internal/provider"
)

type messagePayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Client posts messages to an HTTP SMS gateway.
type Client struct {
	senderID string
	caller   *provider.Caller
}

// NewClient creates a gateway client.
func NewClient(cfg config.SMSConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	httpClient := provider.NewHTTPClient(cfg.GatewayURL, cfg.Timeout).
		SetAuthToken(cfg.APIKey)
	return &Client{
		senderID: cfg.SenderID,
		caller:   provider.NewCaller("sms", httpClient, m, logger),
	}
}

// Send delivers one message.
func (c *Client) Send(ctx context.Context, to, message string) error {
	payload := messagePayload{To: to, From: c.senderID, Message: message}
	if err := c.caller.Send(c.caller.R(ctx).SetBody(payload), "send", http.MethodPost, "/messages", nil); err != nil {
		return provider.NewError(provider.CodeNetworkError, "SMS gateway request failed", err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// when no gateway is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, to, message string) error {
	s.logger.Info("sms not sent, no gateway configured",
		zap.String("to", to),
		zap.String("message", message))
	return nil
}
