package repository

import (
	"context"

	"bolo/internal/domain"
)

// DeliveryRepository defines the persistence operations for document deliveries.
type DeliveryRepository interface {
	// Create persists a scheduled delivery.
	Create(ctx context.Context, delivery *domain.DeliveryRecord) error

	// GetByTrackingNumber retrieves a delivery by its Ethiopia Post tracking number.
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.DeliveryRecord, error)

	// UpdateStatus records the latest known shipment status.
	UpdateStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus) error
}
