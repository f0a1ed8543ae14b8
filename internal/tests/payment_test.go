package tests

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/provider"
	"bolo/internal/provider/cbebirr"
	"bolo/internal/provider/telebirr"
	"bolo/internal/service"
)

// paymentFixture wires the payment and webhook services to mocks.
type paymentFixture struct {
	repo     *MockPaymentRepository
	telebirr *MockTelebirrClient
	cbe      *MockCBEBirrClient
	sms      *MockSMSSender
	locks    *MockLockStore

	payments *service.PaymentService
	webhooks *service.WebhookService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	logger := zap.NewNop()

	f := &paymentFixture{
		repo:     NewMockPaymentRepository(),
		telebirr: NewMockTelebirrClient(),
		cbe:      NewMockCBEBirrClient(),
		sms:      NewMockSMSSender(),
		locks:    NewMockLockStore(),
	}
	notifier := service.NewNotificationService(f.sms, nil, logger)
	reconciler := service.NewReconciler(f.repo, notifier, logger)
	f.payments = service.NewPaymentService(f.repo, f.telebirr, f.cbe, f.locks, reconciler, logger)
	f.webhooks = service.NewWebhookService(f.repo, f.locks, reconciler, nil, logger)
	return f
}

func telebirrRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		Amount:        decimal.RequireFromString("350.00"),
		Description:   "Annual road fee",
		VehicleID:     "AA-3-12345",
		PaymentType:   domain.PaymentTypeRoadFee,
		CustomerPhone: "+251911223344",
		CustomerName:  "Abebe Kebede",
	}
}

func cbeRequest() domain.PaymentRequest {
	req := telebirrRequest()
	req.CustomerPhone = ""
	req.CustomerAccount = "1000123456789"
	return req
}

func pendingPayment(p domain.Provider, txID string) *domain.PaymentRecord {
	return &domain.PaymentRecord{
		ID:            "pay-" + txID,
		OrderID:       "ORDER-" + txID,
		TransactionID: txID,
		Amount:        decimal.NewFromInt(350),
		Currency:      "ETB",
		VehicleID:     "AA-3-12345",
		PaymentType:   domain.PaymentTypeRoadFee,
		Provider:      p,
		Status:        domain.PaymentStatusPending,
		CustomerPhone: "+251911223344",
	}
}

// ──────────────────────────────────────────────
// INITIATION VALIDATION
// ──────────────────────────────────────────────

func TestInitiateTelebirr_MissingPhoneMakesNoCalls(t *testing.T) {
	f := newPaymentFixture(t)
	req := telebirrRequest()
	req.CustomerPhone = ""

	result := f.payments.InitiateTelebirrPayment(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, "MISSING_PHONE", result.ErrorCode)
	assert.Equal(t, int32(0), f.telebirr.InitiateCallCount)
	assert.Equal(t, int32(0), f.repo.CreateCallCount)
}

func TestInitiateCBEBirr_MissingAccountMakesNoCalls(t *testing.T) {
	f := newPaymentFixture(t)
	req := cbeRequest()
	req.CustomerAccount = ""

	result := f.payments.InitiateCBEBirrPayment(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, "MISSING_ACCOUNT", result.ErrorCode)
	assert.Equal(t, int32(0), f.cbe.InitiateCallCount)
	assert.Equal(t, int32(0), f.repo.CreateCallCount)
}

func TestInitiate_ValidationOrder(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*domain.PaymentRequest)
		code   string
	}{
		{"phone checked before vehicle", func(r *domain.PaymentRequest) { r.CustomerPhone = ""; r.VehicleID = "" }, "MISSING_PHONE"},
		{"missing vehicle", func(r *domain.PaymentRequest) { r.VehicleID = "" }, "MISSING_VEHICLE_ID"},
		{"zero amount", func(r *domain.PaymentRequest) { r.Amount = decimal.Zero }, "INVALID_AMOUNT"},
		{"negative amount", func(r *domain.PaymentRequest) { r.Amount = decimal.NewFromInt(-5) }, "INVALID_AMOUNT"},
		{"unknown payment type", func(r *domain.PaymentRequest) { r.PaymentType = "parking" }, "INVALID_PAYMENT_TYPE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			req := telebirrRequest()
			tc.mutate(&req)

			result := f.payments.InitiateTelebirrPayment(context.Background(), req)

			assert.False(t, result.Success)
			assert.Equal(t, tc.code, result.ErrorCode)
			assert.Equal(t, int32(0), f.telebirr.InitiateCallCount)
		})
	}
}

// ──────────────────────────────────────────────
// INITIATION
// ──────────────────────────────────────────────

func TestInitiateTelebirr_PersistsPendingPayment(t *testing.T) {
	f := newPaymentFixture(t)

	result := f.payments.InitiateTelebirrPayment(context.Background(), telebirrRequest())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, "TB-TX-1", result.TransactionID)
	assert.NotEmpty(t, result.PaymentURL)
	assert.Contains(t, result.Message, "Telebirr app")

	require.Len(t, f.telebirr.Requests, 1)
	sent := f.telebirr.Requests[0]
	assert.True(t, strings.HasPrefix(sent.OrderID, "BOLO_AA-3-12345_"), sent.OrderID)
	assert.Equal(t, "ETB", sent.Currency)
	assert.Equal(t, "Annual road fee - Vehicle: AA-3-12345", sent.Description)
	assert.Equal(t, map[string]string{
		"vehicleId":    "AA-3-12345",
		"paymentType":  "road_fee",
		"systemSource": "bolo_digital",
	}, sent.Metadata)

	stored := f.repo.Payment("TB-TX-1")
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentStatusPending, stored.Status)
	assert.Equal(t, domain.ProviderTelebirr, stored.Provider)
	assert.Equal(t, sent.OrderID, stored.OrderID)
}

func TestInitiateCBEBirr_FallsBackToReferenceAsTransactionID(t *testing.T) {
	f := newPaymentFixture(t)
	f.cbe.InitiateResponse = &cbebirr.PaymentResponse{QRCode: "qr"}

	result := f.payments.InitiateCBEBirrPayment(context.Background(), cbeRequest())

	require.True(t, result.Success, result.Message)
	require.Len(t, f.cbe.Requests, 1)
	ref := f.cbe.Requests[0].ReferenceNumber
	assert.True(t, strings.HasPrefix(ref, "CBE_AA-3-12345_"), ref)
	assert.Equal(t, ref, result.TransactionID)
	assert.Equal(t, ref, result.ReferenceNumber)
	assert.Equal(t, "qr", result.QRCode)

	stored := f.repo.Payment(ref)
	require.NotNil(t, stored)
	assert.Equal(t, "1000123456789", stored.CustomerAccount)
}

func TestInitiate_ProviderErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code string
	}{
		{"decline keeps provider code", provider.Rejected("INSUFFICIENT_BALANCE", "Insufficient balance"), "INSUFFICIENT_BALANCE"},
		{"transport failure", provider.NewError(provider.CodeNetworkError, "Network error occurred", errors.New("dial tcp")), "NETWORK_ERROR"},
		{"unexpected error", errors.New("boom"), "SYSTEM_ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			f.telebirr.InitiateError = tc.err

			result := f.payments.InitiateTelebirrPayment(context.Background(), telebirrRequest())

			assert.False(t, result.Success)
			assert.Equal(t, tc.code, result.ErrorCode)
			assert.Equal(t, int32(0), f.repo.CreateCallCount)
		})
	}
}

func TestInitiate_PersistenceFailureIsSystemError(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.CreateError = errors.New("connection refused")

	result := f.payments.InitiateCBEBirrPayment(context.Background(), cbeRequest())

	assert.False(t, result.Success)
	assert.Equal(t, "SYSTEM_ERROR", result.ErrorCode)
}

// ──────────────────────────────────────────────
// STATUS POLLING
// ──────────────────────────────────────────────

func TestCheckPaymentStatus_ReconcilesRecord(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))
	f.telebirr.StatusResponse = &telebirr.StatusResponse{
		Status:   domain.PaymentStatusSuccess,
		Amount:   decimal.NewFromInt(350),
		Currency: "ETB",
		PaidAt:   "2024-03-01T10:00:00Z",
	}

	result, err := f.payments.CheckPaymentStatus(context.Background(), "TX1", domain.ProviderTelebirr)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.PaymentStatusSuccess, result.Status)

	stored := f.repo.Payment("TX1")
	assert.Equal(t, domain.PaymentStatusSuccess, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Len(t, f.sms.Sent(), 1)

	// A second poll with the same answer changes nothing and sends nothing.
	_, err = f.payments.CheckPaymentStatus(context.Background(), "TX1", domain.ProviderTelebirr)
	require.NoError(t, err)
	assert.Len(t, f.sms.Sent(), 1)
}

func TestCheckPaymentStatus_CBEUsesStoredReference(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))
	f.cbe.StatusResponse = &cbebirr.StatusResponse{Status: domain.PaymentStatusExpired, Currency: "ETB"}

	result, err := f.payments.CheckPaymentStatus(context.Background(), "CTX1", domain.ProviderCBEBirr)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusExpired, result.Status)
	assert.Equal(t, []string{"ORDER-CTX1"}, f.cbe.Inquiries)
	assert.Equal(t, domain.PaymentStatusExpired, f.repo.Payment("CTX1").Status)
	assert.Empty(t, f.sms.Sent())
}

func TestCheckPaymentStatus_FailedPollLeavesRecord(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))
	f.telebirr.StatusError = provider.NewError(provider.CodeNetworkError, "Network error occurred", errors.New("timeout"))

	result, err := f.payments.CheckPaymentStatus(context.Background(), "TX1", domain.ProviderTelebirr)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.PaymentStatusFailed, result.Status)
	assert.Equal(t, "ETB", result.Currency)
	assert.Equal(t, "Status check failed", result.FailureReason)
	assert.Equal(t, domain.PaymentStatusPending, f.repo.Payment("TX1").Status)
	assert.Equal(t, int32(0), f.repo.TransitionCallCount)
}

func TestCheckPaymentStatus_PollCannotMoveSettledPaymentBack(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)
	f.telebirr.StatusResponse = &telebirr.StatusResponse{Status: domain.PaymentStatusFailed}

	_, err := f.payments.CheckPaymentStatus(context.Background(), "TX1", domain.ProviderTelebirr)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("TX1").Status)
}

func TestCheckPaymentStatus_ProviderMismatchIsRejected(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX9"))
	f.cbe.StatusResponse = &cbebirr.StatusResponse{Status: domain.PaymentStatusSuccess}

	result, err := f.payments.CheckPaymentStatus(context.Background(), "TX9", domain.ProviderCBEBirr)

	assert.ErrorIs(t, err, service.ErrInvalidProvider)
	assert.Nil(t, result)
	assert.Empty(t, f.cbe.Inquiries)
	assert.Equal(t, domain.PaymentStatusPending, f.repo.Payment("TX9").Status)
	assert.Empty(t, f.sms.Sent())
}

func TestCheckPaymentStatus_SettledPaymentIsNotReconciled(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusFailed
	f.repo.AddPayment(p)
	f.telebirr.StatusResponse = &telebirr.StatusResponse{Status: domain.PaymentStatusSuccess}

	result, err := f.payments.CheckPaymentStatus(context.Background(), "TX1", domain.ProviderTelebirr)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSuccess, result.Status)
	assert.Equal(t, domain.PaymentStatusFailed, f.repo.Payment("TX1").Status)
	assert.Equal(t, int32(0), f.repo.TransitionCallCount)
}

func TestCheckPaymentStatus_RejectsBadInput(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.payments.CheckPaymentStatus(context.Background(), "", domain.ProviderTelebirr)
	assert.ErrorIs(t, err, service.ErrInvalidTransactionID)

	_, err = f.payments.CheckPaymentStatus(context.Background(), "TX1", "paypal")
	assert.ErrorIs(t, err, service.ErrInvalidProvider)
}

// ──────────────────────────────────────────────
// REFUNDS AND READS
// ──────────────────────────────────────────────

func TestRefundPayment_TelebirrSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)

	result, err := f.payments.RefundPayment(context.Background(), "TX1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "RF-TX1", result.ReferenceNumber)
	assert.Equal(t, domain.PaymentStatusRefunded, f.repo.Payment("TX1").Status)
}

func TestRefundPayment_CBEReversesByReference(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderCBEBirr, "CTX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)

	result, err := f.payments.RefundPayment(context.Background(), "CTX1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"ORDER-CTX1"}, f.cbe.Reversals)
	assert.Equal(t, domain.PaymentStatusRefunded, f.repo.Payment("CTX1").Status)
}

func TestRefundPayment_OnlySuccessfulPayments(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))

	_, err := f.payments.RefundPayment(context.Background(), "TX1")
	assert.ErrorIs(t, err, service.ErrRefundNotAllowed)
	assert.Equal(t, int32(0), f.telebirr.RefundCallCount)

	_, err = f.payments.RefundPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

func TestRefundPayment_ProviderFailureKeepsStatus(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)
	f.telebirr.RefundError = provider.NewError(provider.CodeRefundError, "Refund request failed", errors.New("503"))

	result, err := f.payments.RefundPayment(context.Background(), "TX1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "REFUND_ERROR", result.ErrorCode)
	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("TX1").Status)
}

func TestRefundPayment_ProviderFailureAllowsRetry(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)
	f.telebirr.RefundError = provider.NewError(provider.CodeRefundError, "Refund request failed", errors.New("503"))

	_, err := f.payments.RefundPayment(context.Background(), "TX1")
	require.NoError(t, err)

	f.telebirr.RefundError = nil
	result, err := f.payments.RefundPayment(context.Background(), "TX1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, int32(2), f.telebirr.RefundCallCount)
	assert.Equal(t, domain.PaymentStatusRefunded, f.repo.Payment("TX1").Status)
}

func TestRefundPayment_ConcurrentRequestsRefundOnce(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)
	f.telebirr.RefundDelay = 50 * time.Millisecond

	const callers = 3
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		errs      []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.payments.RefundPayment(context.Background(), "TX1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if result.Success {
				successes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.telebirr.RefundCallCount)
	assert.Equal(t, 1, successes)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		assert.True(t,
			errors.Is(err, service.ErrRefundInProgress) || errors.Is(err, service.ErrRefundNotAllowed),
			"unexpected error: %v", err)
	}
	assert.Equal(t, domain.PaymentStatusRefunded, f.repo.Payment("TX1").Status)
}

func TestRefundPayment_ClaimUnavailableMakesNoProviderCall(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderCBEBirr, "CTX1")
	p.Status = domain.PaymentStatusSuccess
	f.repo.AddPayment(p)
	f.locks.ClaimError = errors.New("redis down")

	_, err := f.payments.RefundPayment(context.Background(), "CTX1")

	assert.Error(t, err)
	assert.Empty(t, f.cbe.Reversals)
	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("CTX1").Status)
}

func TestGetAndListPayments(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "TX2"))

	payment, err := f.payments.GetPayment(context.Background(), "TX1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderTelebirr, payment.Provider)

	_, err = f.payments.GetPayment(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)

	list, err := f.payments.ListPayments(context.Background(), domain.PaymentFilter{Provider: domain.ProviderCBEBirr})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "TX2", list[0].TransactionID)

	_, err = f.payments.ListPayments(context.Background(), domain.PaymentFilter{Status: "PAID"})
	assert.ErrorIs(t, err, service.ErrInvalidStatus)
}
