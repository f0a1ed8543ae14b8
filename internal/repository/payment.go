package repository

import (
	"context"

	"bolo/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	Create(ctx context.Context, payment *domain.PaymentRecord) error

	// GetByTransactionID retrieves a payment by the provider transaction id.
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error)

	// GetByOrderID retrieves a payment by order id or CBE Birr reference number.
	GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error)

	// TransitionStatus moves a payment from update.From to update.To.
	// Returns ErrStatusConflict if the stored status is no longer update.From.
	TransitionStatus(ctx context.Context, update domain.StatusUpdate) error

	// List returns payments matching the filter, newest first.
	List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.PaymentRecord, error)
}
