package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/metrics"
	"bolo/internal/repository"
)

// Outcome describes what applying a provider status did to a payment.
type Outcome string

const (
	OutcomeApplied Outcome = metrics.OutcomeApplied
	OutcomeReplay  Outcome = metrics.OutcomeReplay
	OutcomeIgnored Outcome = metrics.OutcomeIgnored
)

// PaymentNotifier is told about payments that just succeeded.
type PaymentNotifier interface {
	NotifyPaymentConfirmed(ctx context.Context, payment *domain.PaymentRecord, fallback string) error
}

// Transition is a status reported by a provider for a stored payment.
type Transition struct {
	To            domain.PaymentStatus
	CompletedAt   *time.Time
	FailureReason string
	// NotifyPhone is used for the confirmation SMS when the payment has no phone.
	NotifyPhone string
}

// Reconciler applies provider statuses to stored payments. Webhooks, status
// polls and refunds all go through it so the state machine is enforced in
// one place.
type Reconciler struct {
	paymentRepo repository.PaymentRepository
	notifier    PaymentNotifier
	logger      *zap.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(paymentRepo repository.PaymentRepository, notifier PaymentNotifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		paymentRepo: paymentRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// Apply moves payment to t.To. On success payment is updated in place.
//
// A status the payment already has is a replay. A move the state machine
// forbids returns ErrInvalidTransition. The confirmation SMS goes out only
// on the PENDING to SUCCESS edge, and only from the caller that won the
// compare-and-swap.
func (r *Reconciler) Apply(ctx context.Context, payment *domain.PaymentRecord, t Transition) (Outcome, error) {
	if payment.Status == t.To {
		return OutcomeReplay, nil
	}
	if !payment.Status.CanTransitionTo(t.To) {
		return OutcomeIgnored, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, payment.Status, t.To)
	}

	from := payment.Status
	err := r.paymentRepo.TransitionStatus(ctx, domain.StatusUpdate{
		TransactionID: payment.TransactionID,
		From:          from,
		To:            t.To,
		CompletedAt:   t.CompletedAt,
		FailureReason: t.FailureReason,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return r.resolveConflict(ctx, payment, t.To)
	}
	if err != nil {
		return "", fmt.Errorf("transition payment %s: %w", payment.TransactionID, err)
	}

	payment.Status = t.To
	if t.CompletedAt != nil {
		payment.CompletedAt = t.CompletedAt
	}
	if t.FailureReason != "" {
		payment.FailureReason = t.FailureReason
	}

	r.logger.Info("payment status changed",
		zap.String("transaction_id", payment.TransactionID),
		zap.String("provider", string(payment.Provider)),
		zap.String("from", string(from)),
		zap.String("to", string(t.To)))

	if from == domain.PaymentStatusPending && t.To == domain.PaymentStatusSuccess {
		if err := r.notifier.NotifyPaymentConfirmed(ctx, payment, t.NotifyPhone); err != nil {
			r.logger.Warn("payment confirmation sms failed",
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err))
		}
	}

	return OutcomeApplied, nil
}

// resolveConflict runs after another writer changed the payment first.
func (r *Reconciler) resolveConflict(ctx context.Context, payment *domain.PaymentRecord, to domain.PaymentStatus) (Outcome, error) {
	current, err := r.paymentRepo.GetByTransactionID(ctx, payment.TransactionID)
	if err != nil {
		return "", fmt.Errorf("reload payment %s: %w", payment.TransactionID, err)
	}
	*payment = *current

	if current.Status == to {
		return OutcomeReplay, nil
	}
	return OutcomeIgnored, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
}
