package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/metrics"
	"bolo/internal/provider/cbebirr"
	"bolo/internal/provider/telebirr"
	"bolo/internal/redis"
	"bolo/internal/repository"
)

// TelebirrNotification is the body Telebirr posts to the notify URL.
type TelebirrNotification struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaidAt        string          `json:"paid_at"`
	CustomerPhone string          `json:"customer_phone"`
}

// CBEBirrCallback is the body CBE Birr posts to the callback URL.
type CBEBirrCallback struct {
	ReferenceNumber   string          `json:"reference_number"`
	TransactionID     string          `json:"transaction_id"`
	TransactionStatus string          `json:"transaction_status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CompletedAt       string          `json:"completed_at"`
	CustomerAccount   string          `json:"customer_account"`
}

// WebhookEvent is a provider notification in provider-neutral form.
type WebhookEvent struct {
	Provider      domain.Provider
	TransactionID string
	Reference     string
	Status        domain.PaymentStatus
	Amount        decimal.Decimal
	CompletedAt   string
	Phone         string
}

// WebhookService reconciles payments from provider notifications.
type WebhookService struct {
	paymentRepo repository.PaymentRepository
	locks       redis.LockStoreInterface
	reconciler  *Reconciler
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	paymentRepo repository.PaymentRepository,
	locks redis.LockStoreInterface,
	reconciler *Reconciler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		paymentRepo: paymentRepo,
		locks:       locks,
		reconciler:  reconciler,
		metrics:     m,
		logger:      logger,
	}
}

// HandleTelebirrNotification processes a Telebirr payment notification.
func (s *WebhookService) HandleTelebirrNotification(ctx context.Context, n TelebirrNotification) (Outcome, error) {
	return s.Process(ctx, WebhookEvent{
		Provider:      domain.ProviderTelebirr,
		TransactionID: n.TransactionID,
		Reference:     n.OrderID,
		Status:        telebirr.MapStatus(n.Status),
		Amount:        n.Amount,
		CompletedAt:   n.PaidAt,
		Phone:         n.CustomerPhone,
	})
}

// HandleCBEBirrCallback processes a CBE Birr payment callback.
func (s *WebhookService) HandleCBEBirrCallback(ctx context.Context, c CBEBirrCallback) (Outcome, error) {
	return s.Process(ctx, WebhookEvent{
		Provider:      domain.ProviderCBEBirr,
		TransactionID: c.TransactionID,
		Reference:     c.ReferenceNumber,
		Status:        cbebirr.MapStatus(c.TransactionStatus),
		Amount:        c.Amount,
		CompletedAt:   c.CompletedAt,
		Phone:         c.CustomerAccount,
	})
}

// Process applies a provider notification to the stored payment.
//
// Replays and conflicting transitions are not errors: the provider gets its
// acknowledgement either way. ErrPaymentNotFound is returned for unknown
// transactions.
func (s *WebhookService) Process(ctx context.Context, event WebhookEvent) (Outcome, error) {
	if event.TransactionID == "" && event.Reference == "" {
		s.metrics.Webhook(string(event.Provider), metrics.OutcomeFailed)
		return "", ErrInvalidWebhookPayload
	}

	payment, err := s.lookup(ctx, event)
	if err != nil {
		s.metrics.Webhook(string(event.Provider), metrics.OutcomeFailed)
		return "", err
	}
	if payment.Provider != event.Provider {
		s.logger.Warn("webhook provider does not match payment",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("payment_provider", string(payment.Provider)),
			zap.String("webhook_provider", string(event.Provider)))
		s.metrics.Webhook(string(event.Provider), metrics.OutcomeFailed)
		return "", ErrPaymentNotFound
	}

	provider, status := string(event.Provider), string(event.Status)

	claimed, err := s.locks.ClaimEvent(ctx, provider, payment.TransactionID, status, redis.ReplayWindow)
	if err != nil {
		s.logger.Warn("webhook replay guard unavailable",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		claimed = true
	}
	if !claimed {
		s.logger.Info("webhook replay ignored",
			zap.String("provider", provider),
			zap.String("transaction_id", payment.TransactionID),
			zap.String("status", status))
		s.metrics.Webhook(provider, metrics.OutcomeReplay)
		return OutcomeReplay, nil
	}

	if !event.Amount.IsZero() && !event.Amount.Equal(payment.Amount) {
		s.logger.Warn("webhook amount does not match payment",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("expected", payment.Amount.String()),
			zap.String("received", event.Amount.String()))
	}

	outcome, err := s.reconciler.Apply(ctx, payment, Transition{
		To:          event.Status,
		CompletedAt: parseProviderTime(event.CompletedAt),
		NotifyPhone: event.Phone,
	})
	switch {
	case errors.Is(err, ErrInvalidTransition):
		s.logger.Warn("webhook transition ignored",
			zap.String("provider", provider),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		outcome = OutcomeIgnored
	case err != nil:
		if relErr := s.locks.ReleaseEvent(ctx, provider, payment.TransactionID, status); relErr != nil {
			s.logger.Warn("release webhook claim", zap.Error(relErr))
		}
		s.metrics.Webhook(provider, metrics.OutcomeFailed)
		return "", err
	}

	s.metrics.Webhook(provider, string(outcome))
	return outcome, nil
}

func (s *WebhookService) lookup(ctx context.Context, event WebhookEvent) (*domain.PaymentRecord, error) {
	if event.TransactionID != "" {
		payment, err := s.paymentRepo.GetByTransactionID(ctx, event.TransactionID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load payment: %w", err)
		}
	}

	if event.Reference != "" {
		payment, err := s.paymentRepo.GetByOrderID(ctx, event.Reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load payment: %w", err)
		}
	}

	return nil, ErrPaymentNotFound
}
