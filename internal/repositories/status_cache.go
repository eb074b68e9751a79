package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lastSyncedKeyPrefix = "sync:last_synced:"

type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

// SetLastSynced stores the timestamp of the organization's most recent
// successfully applied batch. No TTL: "last synced two weeks ago" is
// exactly the information a field coordinator wants to see.
func (r *RedisStatusCache) SetLastSynced(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	key := lastSyncedKey(orgID)
	if err := r.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last synced: %w", err)
	}
	return nil
}

func (r *RedisStatusCache) LastSynced(ctx context.Context, orgID uuid.UUID) (*time.Time, error) {
	key := lastSyncedKey(orgID)

	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Never synced
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last synced: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last synced timestamp: %w", err)
	}
	return &at, nil
}

// Helper: build Redis key for an organization's last sync timestamp
func lastSyncedKey(orgID uuid.UUID) string {
	return lastSyncedKeyPrefix + orgID.String()
}
