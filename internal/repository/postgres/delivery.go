package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bolo/internal/domain"
	"bolo/internal/repository"
)

// DeliveryRepository is a PostgreSQL implementation of repository.DeliveryRepository.
type DeliveryRepository struct {
	q Querier
}

// NewDeliveryRepository creates a new PostgreSQL delivery repository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{q: db}
}

// Create persists a scheduled delivery.
func (r *DeliveryRepository) Create(ctx context.Context, delivery *domain.DeliveryRecord) error {
	query := `
		INSERT INTO deliveries (id, tracking_number, document_type, document_id, vehicle_plate_number, owner_name, service_type, region, status, delivery_fee, estimated_delivery_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	delivery.UpdatedAt = delivery.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		delivery.ID,
		delivery.TrackingNumber,
		delivery.DocumentType,
		delivery.DocumentID,
		delivery.VehiclePlateNumber,
		delivery.OwnerName,
		delivery.ServiceType,
		delivery.Region,
		delivery.Status,
		delivery.DeliveryFee,
		nullString(delivery.EstimatedDeliveryDate),
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

// GetByTrackingNumber retrieves a delivery by tracking number.
func (r *DeliveryRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.DeliveryRecord, error) {
	query := `
		SELECT id, tracking_number, document_type, document_id, vehicle_plate_number, owner_name, service_type, region, status, delivery_fee, estimated_delivery_date, created_at, updated_at
		FROM deliveries WHERE tracking_number = $1
	`

	var (
		delivery      domain.DeliveryRecord
		estimatedDate sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, trackingNumber).Scan(
		&delivery.ID,
		&delivery.TrackingNumber,
		&delivery.DocumentType,
		&delivery.DocumentID,
		&delivery.VehiclePlateNumber,
		&delivery.OwnerName,
		&delivery.ServiceType,
		&delivery.Region,
		&delivery.Status,
		&delivery.DeliveryFee,
		&estimatedDate,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	delivery.EstimatedDeliveryDate = estimatedDate.String

	return &delivery, nil
}

// UpdateStatus records the latest known shipment status.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus) error {
	query := `UPDATE deliveries SET status = $1, updated_at = $2 WHERE tracking_number = $3`

	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), trackingNumber)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
