package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/winfeed/backend/internal/monitoring"
)

// Redis wraps the Redis client used for short-lived decision caches.
// The cache is an optimization, never a source of truth: on any
// disagreement with the store, the store wins.
type Redis struct {
	Client *redis.Client
}

// New creates a new Redis wrapper from a URL
func New(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Msg("Redis connection established")
	return &Redis{Client: client}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.Client.Close()
}

func entitlementKey(userID uuid.UUID) string {
	return fmt.Sprintf("entitlement:%s", userID.String())
}

// GetEntitlement fetches a cached entitlement decision. The boolean reports
// whether a cached value existed.
func (r *Redis) GetEntitlement(ctx context.Context, userID uuid.UUID, dest any) (bool, error) {
	data, err := r.Client.Get(ctx, entitlementKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			monitoring.RecordCacheMiss("entitlement")
			return false, nil
		}
		return false, fmt.Errorf("failed to get entitlement cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		r.Client.Del(ctx, entitlementKey(userID))
		monitoring.RecordCacheMiss("entitlement")
		return false, nil
	}

	monitoring.RecordCacheHit("entitlement")
	return true, nil
}

// SetEntitlement caches an entitlement decision with a short TTL
func (r *Redis) SetEntitlement(ctx context.Context, userID uuid.UUID, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}
	return r.Client.Set(ctx, entitlementKey(userID), data, ttl).Err()
}

// InvalidateEntitlement drops the cached decision for a user. Every write
// path that affects VIP access must call this before returning success.
func (r *Redis) InvalidateEntitlement(ctx context.Context, userID uuid.UUID) error {
	if err := r.Client.Del(ctx, entitlementKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate entitlement cache: %w", err)
	}
	return nil
}
