package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"bolo/internal/domain"
)

const (
	postOfficeLocationKey = "post_offices:locations"
	postOfficeDataKey     = "post_offices:data"
)

// LocationStore keeps a geo index of post offices in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// IndexPostOffices adds offices to the geo index using GEOADD and stores their
// details in a hash. Offices without coordinates are skipped.
func (s *LocationStore) IndexPostOffices(ctx context.Context, offices []domain.PostOffice) error {
	pipe := s.client.Pipeline()
	indexed := 0

	for _, office := range offices {
		if office.ID == "" || (office.Coordinates.Latitude == 0 && office.Coordinates.Longitude == 0) {
			continue
		}
		data, err := json.Marshal(office)
		if err != nil {
			return err
		}
		pipe.GeoAdd(ctx, postOfficeLocationKey, &redis.GeoLocation{
			Name:      office.ID,
			Longitude: office.Coordinates.Longitude,
			Latitude:  office.Coordinates.Latitude,
		})
		pipe.HSet(ctx, postOfficeDataKey, office.ID, data)
		indexed++
	}

	if indexed == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// FindNearby returns indexed post offices within radiusKm, nearest first.
func (s *LocationStore) FindNearby(ctx context.Context, lat, lng, radiusKm float64) ([]domain.NearbyPostOffice, error) {
	results, err := s.client.GeoRadius(ctx, postOfficeLocationKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []domain.NearbyPostOffice{}, nil
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Name)
	}
	raw, err := s.client.HMGet(ctx, postOfficeDataKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	offices := make([]domain.NearbyPostOffice, 0, len(results))
	for i, r := range results {
		data, ok := raw[i].(string)
		if !ok {
			continue
		}
		var office domain.PostOffice
		if err := json.Unmarshal([]byte(data), &office); err != nil {
			continue
		}
		offices = append(offices, domain.NearbyPostOffice{PostOffice: office, DistanceKm: r.Dist})
	}

	return offices, nil
}

// RemovePostOffice removes an office from the geo index.
func (s *LocationStore) RemovePostOffice(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, postOfficeLocationKey, id)
	pipe.HDel(ctx, postOfficeDataKey, id)
	_, err := pipe.Exec(ctx)
	return err
}
