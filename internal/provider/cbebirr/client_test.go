package cbebirr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/domain"
	"bolo/internal/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.CBEBirrConfig{
		MerchantCode: "BOLO001",
		TerminalID:   "TERM001",
		APIKey:       "key",
		AppSecret:    "secret",
		BaseURL:      srv.URL,
		CallbackURL:  "https://bolo.test/api/cbe/callback",
		Timeout:      time.Second,
	}, nil, zap.NewNop())
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	c.nonce = func() string { return "nonce123" }
	return c
}

func TestInitiatePayment_SignsWithNonce(t *testing.T) {
	var (
		headers http.Header
		body    []byte
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/initiate", r.URL.Path)
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{
			"response_code":"00",
			"reference_number":"CBE_AA-1_1",
			"transaction_id":"CBETX1",
			"qr_code":"qr-data",
			"deep_link":"cbebirr://pay/CBETX1"
		}`))
	})

	resp, err := c.InitiatePayment(context.Background(), PaymentRequest{
		Amount:          decimal.NewFromInt(500),
		Currency:        "ETB",
		ReferenceNumber: "CBE_AA-1_1",
		CustomerAccount: "1000123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "CBETX1", resp.TransactionID)
	assert.Equal(t, "CBE_AA-1_1", resp.ReferenceNumber)
	assert.Equal(t, "qr-data", resp.QRCode)
	assert.Equal(t, "cbebirr://pay/CBETX1", resp.DeepLink)

	assert.Equal(t, "BOLO001", headers.Get("X-Merchant-Code"))
	assert.Equal(t, "TERM001", headers.Get("X-Terminal-ID"))
	assert.Equal(t, "2024-01-02T03:04:05Z", headers.Get("X-Timestamp"))
	assert.Equal(t, "nonce123", headers.Get("X-Nonce"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t,
		provider.Sign("secret", string(body), "2024-01-02T03:04:05Z", "nonce123", "BOLO001"),
		headers.Get("X-Signature"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, float64(30), sent["expiry_minutes"])
	assert.Equal(t, "1000123456789", sent["customer_account"])
}

func TestInitiatePayment_RejectionKeepsResponseCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response_code":"51","response_message":"Insufficient funds"}`))
	})

	_, err := c.InitiatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1)})

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "51", perr.Code)
	assert.Equal(t, "Insufficient funds", perr.Message)
}

func TestCheckPaymentStatus_MapsInquiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/inquiry", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CBE_AA-1_1", body["reference_number"])
		_, _ = w.Write([]byte(`{"transaction_status":"01","reference_number":"CBE_AA-1_1","amount":"500","currency":"ETB"}`))
	})

	resp, err := c.CheckPaymentStatus(context.Background(), "CBE_AA-1_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, resp.Status)
	assert.Equal(t, "INITIATED", resp.Label)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(500)))
}

func TestReversePayment(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "CBE_AA-1_1", body["original_reference"])
			_, _ = w.Write([]byte(`{"response_code":"00","response_message":"Reversed","reversal_reference":"REV1"}`))
		})

		resp, err := c.ReversePayment(context.Background(), "CBE_AA-1_1")
		require.NoError(t, err)
		assert.Equal(t, "REV1", resp.ReversalReference)
	})

	t.Run("transport failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.ReversePayment(context.Background(), "CBE_AA-1_1")
		var perr *provider.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, provider.CodeReversalError, perr.Code)
	})
}
