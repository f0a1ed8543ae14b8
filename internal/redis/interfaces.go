package redis

import (
	"context"
	"time"

	"bolo/internal/domain"
)

// LocationStoreInterface defines the post office geo index operations.
type LocationStoreInterface interface {
	IndexPostOffices(ctx context.Context, offices []domain.PostOffice) error
	FindNearby(ctx context.Context, lat, lng, radiusKm float64) ([]domain.NearbyPostOffice, error)
}

// LockStoreInterface defines the webhook replay guard.
type LockStoreInterface interface {
	ClaimEvent(ctx context.Context, provider, transactionID, status string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, provider, transactionID, status string) error
}

// CacheStoreInterface defines the tracking cache.
type CacheStoreInterface interface {
	GetTracking(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error)
	SetTracking(ctx context.Context, info *domain.TrackingInfo) error
	InvalidateTracking(ctx context.Context, trackingNumber string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ CacheStoreInterface    = (*CacheStore)(nil)
)
