// Package cbebirr is a client for the CBE Birr merchant payment API.
package cbebirr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/domain"
	"bolo/internal/metrics"
	"bolo/internal/provider"
)

const providerName = "cbe_birr"

// ResponseCodeOK is the CBE Birr "approved" response and transaction code.
const ResponseCodeOK = "00"

const defaultExpiryMinutes = 30

// PaymentRequest is a CBE Birr payment initiation.
type PaymentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	ReferenceNumber string
	Description     string
	CustomerAccount string
	CustomerName    string
	CustomerPhone   string
	ExpiryMinutes   int
}

// PaymentResponse is an accepted initiation.
type PaymentResponse struct {
	ReferenceNumber string
	TransactionID   string
	QRCode          string
	DeepLink        string
}

// StatusResponse is the result of an inquiry. Label is CBE Birr's own name
// for the transaction state.
type StatusResponse struct {
	Status          domain.PaymentStatus
	Label           string
	ReferenceNumber string
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	CompletedAt     string
	FailureReason   string
}

// ReversalResponse is an accepted reversal.
type ReversalResponse struct {
	ReversalReference string
	Message           string
}

type initiatePayload struct {
	MerchantCode    string      `json:"merchant_code"`
	TerminalID      string      `json:"terminal_id"`
	ReferenceNumber string      `json:"reference_number"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	Description     string      `json:"description"`
	CustomerAccount string      `json:"customer_account"`
	CustomerName    string      `json:"customer_name,omitempty"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	CallbackURL     string      `json:"callback_url"`
	ExpiryMinutes   int         `json:"expiry_minutes"`
}

type initiateResponse struct {
	ResponseCode    string `json:"response_code"`
	ResponseMessage string `json:"response_message"`
	ReferenceNumber string `json:"reference_number"`
	TransactionID   string `json:"transaction_id"`
	QRCode          string `json:"qr_code"`
	DeepLink        string `json:"deep_link"`
}

type inquiryPayload struct {
	MerchantCode    string `json:"merchant_code"`
	ReferenceNumber string `json:"reference_number"`
}

type inquiryResponse struct {
	TransactionStatus string          `json:"transaction_status"`
	ReferenceNumber   string          `json:"reference_number"`
	TransactionID     string          `json:"transaction_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CompletedAt       string          `json:"completed_at"`
	FailureReason     string          `json:"failure_reason"`
}

type reversePayload struct {
	MerchantCode      string `json:"merchant_code"`
	OriginalReference string `json:"original_reference"`
	ReversalReason    string `json:"reversal_reason"`
}

type reverseResponse struct {
	ResponseCode      string `json:"response_code"`
	ResponseMessage   string `json:"response_message"`
	ReversalReference string `json:"reversal_reference"`
}

// Client talks to the CBE Birr API. Requests carry an RFC 3339 timestamp and
// a random nonce, both covered by the HMAC-SHA256 signature.
type Client struct {
	cfg    config.CBEBirrConfig
	caller *provider.Caller
	now    func() time.Time
	nonce  func() string
}

// NewClient creates a CBE Birr client.
func NewClient(cfg config.CBEBirrConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	httpClient := provider.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	return &Client{
		cfg:    cfg,
		caller: provider.NewCaller(providerName, httpClient, m, logger),
		now:    time.Now,
		nonce:  newNonce,
	}
}

// InitiatePayment starts a payment. Expiry falls back to the configured
// value and then to 30 minutes.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	expiry := req.ExpiryMinutes
	if expiry <= 0 {
		expiry = c.cfg.ExpiryMinutes
	}
	if expiry <= 0 {
		expiry = defaultExpiryMinutes
	}

	payload := initiatePayload{
		MerchantCode:    c.cfg.MerchantCode,
		TerminalID:      c.cfg.TerminalID,
		ReferenceNumber: req.ReferenceNumber,
		Amount:          json.Number(req.Amount.String()),
		Currency:        req.Currency,
		Description:     req.Description,
		CustomerAccount: req.CustomerAccount,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CallbackURL:     c.cfg.CallbackURL,
		ExpiryMinutes:   expiry,
	}

	var resp initiateResponse
	if err := c.do(ctx, "initiate", "/payment/initiate", payload, &resp); err != nil {
		return nil, provider.NewError(provider.CodeNetworkError, "Network error occurred", err)
	}

	if resp.ResponseCode != ResponseCodeOK {
		msg := resp.ResponseMessage
		if msg == "" {
			msg = "Payment initiation failed"
		}
		return nil, provider.Rejected(resp.ResponseCode, msg)
	}

	return &PaymentResponse{
		ReferenceNumber: resp.ReferenceNumber,
		TransactionID:   resp.TransactionID,
		QRCode:          resp.QRCode,
		DeepLink:        resp.DeepLink,
	}, nil
}

// CheckPaymentStatus runs a payment inquiry by reference number.
func (c *Client) CheckPaymentStatus(ctx context.Context, referenceNumber string) (*StatusResponse, error) {
	payload := inquiryPayload{
		MerchantCode:    c.cfg.MerchantCode,
		ReferenceNumber: referenceNumber,
	}

	var resp inquiryResponse
	if err := c.do(ctx, "inquiry", "/payment/inquiry", payload, &resp); err != nil {
		return nil, provider.NewError(provider.CodeNetworkError, "Status inquiry failed", err)
	}

	currency := resp.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	return &StatusResponse{
		Status:          MapStatus(resp.TransactionStatus),
		Label:           Label(resp.TransactionStatus),
		ReferenceNumber: resp.ReferenceNumber,
		TransactionID:   resp.TransactionID,
		Amount:          resp.Amount,
		Currency:        currency,
		CompletedAt:     resp.CompletedAt,
		FailureReason:   resp.FailureReason,
	}, nil
}

// ReversePayment reverses a completed payment.
func (c *Client) ReversePayment(ctx context.Context, referenceNumber string) (*ReversalResponse, error) {
	payload := reversePayload{
		MerchantCode:      c.cfg.MerchantCode,
		OriginalReference: referenceNumber,
		ReversalReason:    "Customer requested reversal",
	}

	var resp reverseResponse
	if err := c.do(ctx, "reverse", "/payment/reverse", payload, &resp); err != nil {
		return nil, provider.NewError(provider.CodeReversalError, "Reversal request failed", err)
	}

	if resp.ResponseCode != ResponseCodeOK {
		code := resp.ResponseCode
		if code == "" {
			code = provider.CodeReversalError
		}
		return nil, provider.NewError(code, resp.ResponseMessage, nil)
	}

	return &ReversalResponse{
		ReversalReference: resp.ReversalReference,
		Message:           resp.ResponseMessage,
	}, nil
}

func (c *Client) do(ctx context.Context, operation, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", operation, err)
	}

	timestamp := c.now().UTC().Format(time.RFC3339)
	nonce := c.nonce()
	signature := provider.Sign(c.cfg.AppSecret, string(body), timestamp, nonce, c.cfg.MerchantCode)

	req := c.caller.R(ctx).
		SetHeader("X-Merchant-Code", c.cfg.MerchantCode).
		SetHeader("X-Terminal-ID", c.cfg.TerminalID).
		SetHeader("X-API-Key", c.cfg.APIKey).
		SetHeader("X-Timestamp", timestamp).
		SetHeader("X-Nonce", nonce).
		SetHeader("X-Signature", signature).
		SetBody(body)

	return c.caller.Send(req, operation, http.MethodPost, path, out)
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
