package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bolo/internal/domain"
	"bolo/internal/service"
)

func cbeCallback(status string) service.CBEBirrCallback {
	return service.CBEBirrCallback{
		ReferenceNumber:   "ORDER-CTX1",
		TransactionID:     "CTX1",
		TransactionStatus: status,
		Amount:            decimal.NewFromInt(350),
		Currency:          "ETB",
		CompletedAt:       "2024-03-01T10:00:00Z",
	}
}

func TestCBECallback_CompletedMarksSuccessAndSendsOneSMS(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	outcome, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeApplied, outcome)
	stored := f.repo.Payment("CTX1")
	assert.Equal(t, domain.PaymentStatusSuccess, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	sent := f.sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+251911223344", sent[0].To)
	assert.Contains(t, sent[0].Message, "350.00 ETB")
	assert.Contains(t, sent[0].Message, "AA-3-12345")
}

func TestCBECallback_InitiatedPaymentNotifiesAccount(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	res := f.payments.InitiateCBEBirrPayment(ctx, cbeRequest())
	require.True(t, res.Success, res.Message)
	require.Equal(t, "CBE-TX-1", res.TransactionID)

	outcome, err := f.webhooks.HandleCBEBirrCallback(ctx, service.CBEBirrCallback{
		ReferenceNumber:   res.ReferenceNumber,
		TransactionID:     "CBE-TX-1",
		TransactionStatus: "00",
		Amount:            decimal.NewFromInt(350),
		Currency:          "ETB",
	})
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeApplied, outcome)
	sent := f.sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "1000123456789", sent[0].To)
}

func TestCBECallback_CallbackAccountUsedWhenNoneStored(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderCBEBirr, "CTX1")
	p.CustomerPhone = ""
	f.repo.AddPayment(p)

	cb := cbeCallback("00")
	cb.CustomerAccount = "0911000111"
	_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cb)
	require.NoError(t, err)

	sent := f.sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "0911000111", sent[0].To)
}

func TestCBECallback_ReplayIsAcknowledgedWithoutSecondSMS(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
	require.NoError(t, err)

	outcome, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeReplay, outcome)
	assert.Len(t, f.sms.Sent(), 1)
	assert.Equal(t, int32(1), f.repo.TransitionCallCount)
}

func TestCBECallback_ReplayWithoutRedisStillSendsOneSMS(t *testing.T) {
	f := newPaymentFixture(t)
	f.locks.ClaimError = errors.New("redis down")
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	for i := 0; i < 3; i++ {
		_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
		require.NoError(t, err)
	}

	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("CTX1").Status)
	assert.Len(t, f.sms.Sent(), 1)
}

func TestCBECallback_BackwardTransitionIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
	require.NoError(t, err)

	outcome, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("03"))
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeIgnored, outcome)
	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("CTX1").Status)
	assert.Len(t, f.sms.Sent(), 1)
}

func TestCBECallback_PendingCodesKeepPaymentPending(t *testing.T) {
	for _, code := range []string{"01", "02"} {
		t.Run(code, func(t *testing.T) {
			f := newPaymentFixture(t)
			f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

			outcome, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback(code))
			require.NoError(t, err)

			assert.Equal(t, service.OutcomeReplay, outcome)
			assert.Equal(t, domain.PaymentStatusPending, f.repo.Payment("CTX1").Status)
			assert.Empty(t, f.sms.Sent())
		})
	}
}

func TestCBECallback_UnknownCodeFailsPayment(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("77"))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusFailed, f.repo.Payment("CTX1").Status)
	assert.Empty(t, f.sms.Sent())
}

func TestWebhook_UnknownTransaction(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{
		TransactionID: "nope",
		OrderID:       "nope",
		Status:        "SUCCESS",
	})

	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

func TestWebhook_ProviderMismatchIsNotFound(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "CTX1"))

	_, err := f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))

	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
	assert.Equal(t, domain.PaymentStatusPending, f.repo.Payment("CTX1").Status)
}

func TestWebhook_EmptyPayload(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{Status: "SUCCESS"})

	assert.ErrorIs(t, err, service.ErrInvalidWebhookPayload)
}

func TestTelebirrNotification_FindsPaymentByOrderID(t *testing.T) {
	f := newPaymentFixture(t)
	p := pendingPayment(domain.ProviderTelebirr, "TX1")
	p.CustomerPhone = ""
	f.repo.AddPayment(p)

	outcome, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{
		OrderID:       "ORDER-TX1",
		Status:        "SUCCESS",
		Amount:        decimal.NewFromInt(350),
		CustomerPhone: "+251922000000",
	})
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeApplied, outcome)
	sent := f.sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+251922000000", sent[0].To)
}

func TestWebhook_StoreFailureReleasesClaim(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))
	f.repo.TransitionError = errors.New("connection reset")

	_, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{
		TransactionID: "TX1",
		Status:        "SUCCESS",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), f.locks.ReleaseCount)

	// The provider retries once the database is back.
	f.repo.TransitionError = nil
	outcome, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{
		TransactionID: "TX1",
		Status:        "SUCCESS",
	})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeApplied, outcome)
	assert.Len(t, f.sms.Sent(), 1)
}

func TestWebhook_LosesRaceToPoll(t *testing.T) {
	f := newPaymentFixture(t)
	f.repo.AddPayment(pendingPayment(domain.ProviderTelebirr, "TX1"))
	f.repo.BeforeTransition = func(m *MockPaymentRepository) {
		m.SetStatus("TX1", domain.PaymentStatusSuccess)
	}

	outcome, err := f.webhooks.HandleTelebirrNotification(context.Background(), service.TelebirrNotification{
		TransactionID: "TX1",
		Status:        "SUCCESS",
	})
	require.NoError(t, err)

	assert.Equal(t, service.OutcomeReplay, outcome)
	assert.Empty(t, f.sms.Sent())
}

func TestWebhook_ConcurrentDeliveriesSendOneSMS(t *testing.T) {
	f := newPaymentFixture(t)
	f.locks.ClaimError = errors.New("redis down")
	f.repo.AddPayment(pendingPayment(domain.ProviderCBEBirr, "CTX1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.webhooks.HandleCBEBirrCallback(context.Background(), cbeCallback("00"))
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.PaymentStatusSuccess, f.repo.Payment("CTX1").Status)
	assert.Len(t, f.sms.Sent(), 1)
}
