// Package provider holds the plumbing shared by the outbound clients for
// Telebirr, CBE Birr, Ethiopia Post and the SMS gateway.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"bolo/internal/metrics"
)

// Error codes raised locally, as opposed to codes returned by a provider.
const (
	CodeNetworkError  = "NETWORK_ERROR"
	CodeRefundError   = "REFUND_ERROR"
	CodeReversalError = "REVERSAL_ERROR"

	// CodeRejected stands in when a provider declines without a code.
	CodeRejected = "PAYMENT_REJECTED"
)

// Error is a failed provider operation. Code is either one of the local codes
// above or the provider's own rejection code, passed through verbatim.
type Error struct {
	Code    string
	Message string
	Err     error
}

// NewError creates a provider error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected builds the error for a provider-declined request, keeping the
// provider's code when it sent one.
func Rejected(code, message string) *Error {
	if code == "" {
		code = CodeRejected
	}
	return &Error{Code: code, Message: message}
}

// IsNetwork reports whether err is a transport-level provider failure.
func IsNetwork(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == CodeNetworkError
}

// HTTPError is a non-2xx answer from a provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewHTTPClient builds the resty client used for one provider. Calls are
// traced as New Relic external segments when the request context carries a
// transaction.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetTransport(newrelic.NewRoundTripper(http.DefaultTransport)).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// Caller executes requests against one provider and records their outcome.
type Caller struct {
	name    string
	http    *resty.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCaller creates a Caller for the named provider.
func NewCaller(name string, client *resty.Client, m *metrics.Metrics, logger *zap.Logger) *Caller {
	return &Caller{
		name:    name,
		http:    client,
		metrics: m,
		logger:  logger.With(zap.String("provider", name)),
	}
}

// Logger returns the provider-scoped logger.
func (c *Caller) Logger() *zap.Logger {
	return c.logger
}

// R starts a new request on the provider's client.
func (c *Caller) R(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// Send executes req and decodes a 2xx JSON body into out when out is non-nil.
// Transport failures and non-2xx answers are returned as plain errors; callers
// translate them into an *Error with the code appropriate for the operation.
func (c *Caller) Send(req *resty.Request, operation, method, path string, out any) error {
	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.ProviderRequest(c.name, operation, metrics.OutcomeTransportError, elapsed)
		c.logger.Error("provider request failed",
			zap.String("operation", operation),
			zap.String("path", path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() {
		c.metrics.ProviderRequest(c.name, operation, metrics.OutcomeHTTPError, elapsed)
		c.logger.Error("provider returned error status",
			zap.String("operation", operation),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", elapsed))
		return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			c.metrics.ProviderRequest(c.name, operation, metrics.OutcomeHTTPError, elapsed)
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}

	c.metrics.ProviderRequest(c.name, operation, metrics.OutcomeOK, elapsed)
	c.logger.Debug("provider request completed",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", elapsed))

	return nil
}
