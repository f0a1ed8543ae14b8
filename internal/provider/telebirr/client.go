// Package telebirr is a client for the Telebirr merchant payment API.
package telebirr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/domain"
	"bolo/internal/metrics"
	"bolo/internal/provider"
)

const providerName = "telebirr"

const statusSuccess = "SUCCESS"

// PaymentRequest is a Telebirr payment initiation.
type PaymentRequest struct {
	Amount        decimal.Decimal
	Currency      string
	OrderID       string
	Description   string
	CustomerPhone string
	CustomerName  string
	Metadata      map[string]string
}

// PaymentResponse is an accepted initiation.
type PaymentResponse struct {
	TransactionID string
	PaymentURL    string
}

// StatusResponse is the result of a status poll.
type StatusResponse struct {
	Status        domain.PaymentStatus
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	PaidAt        string
	FailureReason string
}

// RefundResponse is an accepted refund.
type RefundResponse struct {
	RefundID string
	Message  string
}

type initiatePayload struct {
	MerchantID    string            `json:"merchant_id"`
	OrderID       string            `json:"order_id"`
	Amount        json.Number       `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	CustomerPhone string            `json:"customer_phone"`
	CustomerName  string            `json:"customer_name,omitempty"`
	NotifyURL     string            `json:"notify_url"`
	ReturnURL     string            `json:"return_url"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type initiateResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Message       string `json:"message"`
	ErrorCode     string `json:"error_code"`
}

type statusResponse struct {
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaidAt        string          `json:"paid_at"`
	FailureReason string          `json:"failure_reason"`
}

type refundPayload struct {
	TransactionID string       `json:"transaction_id"`
	Amount        *json.Number `json:"amount,omitempty"`
	Reason        string       `json:"reason"`
}

type refundResponse struct {
	Status    string `json:"status"`
	RefundID  string `json:"refund_id"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// Client talks to the Telebirr API. Every request is signed with
// HMAC-SHA256 over body, timestamp and merchant id.
type Client struct {
	cfg    config.TelebirrConfig
	caller *provider.Caller
	now    func() time.Time
}

// NewClient creates a Telebirr client.
func NewClient(cfg config.TelebirrConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	httpClient := provider.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	return &Client{
		cfg:    cfg,
		caller: provider.NewCaller(providerName, httpClient, m, logger),
		now:    time.Now,
	}
}

// InitiatePayment starts a payment. A provider rejection is returned as a
// *provider.Error carrying Telebirr's own error code.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	payload := initiatePayload{
		MerchantID:    c.cfg.MerchantID,
		OrderID:       req.OrderID,
		Amount:        json.Number(req.Amount.String()),
		Currency:      req.Currency,
		Description:   req.Description,
		CustomerPhone: req.CustomerPhone,
		CustomerName:  req.CustomerName,
		NotifyURL:     c.cfg.NotifyURL,
		ReturnURL:     c.cfg.ReturnURL,
		Metadata:      req.Metadata,
	}

	var resp initiateResponse
	if err := c.do(ctx, "initiate", http.MethodPost, "/payment/initiate", payload, &resp); err != nil {
		return nil, provider.NewError(provider.CodeNetworkError, "Network error occurred", err)
	}

	if resp.Status != statusSuccess {
		msg := resp.Message
		if msg == "" {
			msg = "Payment initiation failed"
		}
		return nil, provider.Rejected(resp.ErrorCode, msg)
	}

	return &PaymentResponse{
		TransactionID: resp.TransactionID,
		PaymentURL:    resp.PaymentURL,
	}, nil
}

// CheckPaymentStatus polls the status of a transaction.
func (c *Client) CheckPaymentStatus(ctx context.Context, transactionID string) (*StatusResponse, error) {
	var resp statusResponse
	path := "/payment/status/" + transactionID
	if err := c.do(ctx, "status", http.MethodGet, path, struct{}{}, &resp); err != nil {
		return nil, provider.NewError(provider.CodeNetworkError, "Status check failed", err)
	}

	currency := resp.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	return &StatusResponse{
		Status:        MapStatus(resp.Status),
		TransactionID: resp.TransactionID,
		Amount:        resp.Amount,
		Currency:      currency,
		PaidAt:        resp.PaidAt,
		FailureReason: resp.FailureReason,
	}, nil
}

// RefundPayment refunds a settled transaction. A nil amount asks for a full
// refund.
func (c *Client) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResponse, error) {
	payload := refundPayload{
		TransactionID: transactionID,
		Reason:        "Customer requested refund",
	}
	if amount != nil {
		n := json.Number(amount.String())
		payload.Amount = &n
	}

	var resp refundResponse
	if err := c.do(ctx, "refund", http.MethodPost, "/payment/refund", payload, &resp); err != nil {
		return nil, provider.NewError(provider.CodeRefundError, "Refund request failed", err)
	}

	if resp.Status != statusSuccess {
		code := resp.ErrorCode
		if code == "" {
			code = provider.CodeRefundError
		}
		return nil, provider.NewError(code, resp.Message, nil)
	}

	return &RefundResponse{RefundID: resp.RefundID, Message: resp.Message}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", operation, err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req := c.caller.R(ctx).
		SetHeader("X-Merchant-ID", c.cfg.MerchantID).
		SetHeader("X-API-Key", c.cfg.APIKey).
		SetHeader("X-Timestamp", timestamp).
		SetHeader("X-Signature", provider.Sign(c.cfg.AppSecret, string(body), timestamp, c.cfg.MerchantID))
	if method != http.MethodGet {
		req.SetBody(body)
	}

	return c.caller.Send(req, operation, method, path, out)
}

// MapStatus converts a Telebirr status string to the internal status.
// Unknown values are treated as failures.
func MapStatus(status string) domain.PaymentStatus {
	switch s := domain.PaymentStatus(status); s {
	case domain.PaymentStatusPending,
		domain.PaymentStatusSuccess,
		domain.PaymentStatusFailed,
		domain.PaymentStatusExpired,
		domain.PaymentStatusCancelled:
		return s
	default:
		return domain.PaymentStatusFailed
	}
}

