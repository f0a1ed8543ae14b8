package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayWindow is how long a processed provider event is remembered.
const ReplayWindow = 72 * time.Hour

// LockStore remembers which provider events were already processed.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func eventKey(provider, transactionID, status string) string {
	return fmt.Sprintf("webhook:%s:%s:%s", provider, transactionID, status)
}

// ClaimEvent marks the event as being processed using SETNX.
// Returns true if the caller is the first to see it, false for a replay.
func (s *LockStore) ClaimEvent(ctx context.Context, provider, transactionID, status string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, eventKey(provider, transactionID, status), "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseEvent forgets an event so that a provider retry is processed again.
// It is called when processing failed after the claim.
func (s *LockStore) ReleaseEvent(ctx context.Context, provider, transactionID, status string) error {
	return s.client.Del(ctx, eventKey(provider, transactionID, status)).Err()
}
