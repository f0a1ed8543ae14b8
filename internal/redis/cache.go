package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"bolo/internal/domain"
)

// TrackingCacheTTL bounds how stale a cached shipment state can be.
const TrackingCacheTTL = 5 * time.Minute

const trackingCachePrefix = "cache:tracking:"

// CacheStore caches Ethiopia Post tracking lookups.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client, ttl: TrackingCacheTTL}
}

// GetTracking retrieves tracking information from cache.
// Returns nil, nil on a cache miss.
func (s *CacheStore) GetTracking(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error) {
	data, err := s.client.Get(ctx, trackingCachePrefix+trackingNumber).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var info domain.TrackingInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetTracking stores tracking information. Delivered and failed shipments
// no longer change, so they are kept for a day.
func (s *CacheStore) SetTracking(ctx context.Context, info *domain.TrackingInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	ttl := s.ttl
	if info.Status == domain.DeliveryStatusDelivered || info.Status == domain.DeliveryStatusFailed {
		ttl = 24 * time.Hour
	}
	return s.client.Set(ctx, trackingCachePrefix+info.TrackingNumber, data, ttl).Err()
}

// InvalidateTracking removes a shipment from cache.
func (s *CacheStore) InvalidateTracking(ctx context.Context, trackingNumber string) error {
	return s.client.Del(ctx, trackingCachePrefix+trackingNumber).Err()
}
