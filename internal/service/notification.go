package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/metrics"
)

// ErrNoRecipient is returned when a payment has no phone or account to notify.
var ErrNoRecipient = errors.New("no notification recipient")

// SMSSender delivers a text message.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// NotificationService sends customer notifications about payments.
type NotificationService struct {
	sender  SMSSender
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender SMSSender, m *metrics.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		sender:  sender,
		metrics: m,
		logger:  logger,
	}
}

// NotifyPaymentConfirmed sends the payment confirmation SMS. The message
// goes to the phone stored on the payment, then to fallback, then to the
// stored account. CBE Birr accounts are the customer's mobile number.
func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, payment *domain.PaymentRecord, fallback string) error {
	to := payment.CustomerPhone
	if to == "" {
		to = fallback
	}
	if to == "" {
		to = payment.CustomerAccount
	}
	if to == "" {
		s.metrics.SMS(metrics.OutcomeFailed)
		return ErrNoRecipient
	}

	if err := s.sender.Send(ctx, to, confirmationMessage(payment)); err != nil {
		s.metrics.SMS(metrics.OutcomeFailed)
		return fmt.Errorf("send confirmation sms: %w", err)
	}

	s.metrics.SMS(metrics.OutcomeOK)
	s.logger.Info("payment confirmation sent",
		zap.String("transaction_id", payment.TransactionID),
		zap.String("provider", string(payment.Provider)))

	return nil
}

func confirmationMessage(payment *domain.PaymentRecord) string {
	currency := payment.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return fmt.Sprintf(
		"Bolo: payment of %s %s for vehicle %s was received. Transaction: %s. Thank you.",
		payment.Amount.StringFixed(2), currency, payment.VehicleID, payment.TransactionID,
	)
}
