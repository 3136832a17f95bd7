// Package cache implements the Redis-backed sync cooldowns and result cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// Cache holds short-lived per-user sync state shared between runs and processes
type Cache interface {
	SetCooldown(ctx context.Context, userID string, d time.Duration) error
	Cooldown(ctx context.Context, userID string) (time.Duration, error)
	GetJSON(ctx context.Context, key string, value any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type RedisCache struct {
	conn *redis.Client
}

func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisCache{conn: client}, nil
}

func cooldownKey(userID string) string {
	return "veloskill:cooldown:" + userID
}

// LastSyncKey is where the last sync result of a user is kept
func LastSyncKey(userID string) string {
	return "veloskill:sync:last:" + userID
}

// SetCooldown marks a user as rate limited for d.
func (rc *RedisCache) SetCooldown(ctx context.Context, userID string, d time.Duration) error {
	return rc.conn.Set(ctx, cooldownKey(userID), time.Now().Add(d).Unix(), d).Err()
}

// Cooldown returns how long the user's cooldown still runs, 0 if there is none.
func (rc *RedisCache) Cooldown(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := rc.conn.PTTL(ctx, cooldownKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	// -2 missing key, -1 no expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// GetJSON retrieves a JSON string and unmarshals it into value.
// It reports false when the key doesn't exist.
func (rc *RedisCache) GetJSON(ctx context.Context, key string, value any) (bool, error) {
	s, err := rc.conn.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(s), value); err != nil {
		return false, fmt.Errorf("unmarshaling cached JSON for %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a value as a JSON string. A zero ttl keeps it forever.
func (rc *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	t, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling JSON for cache key %q: %w", key, err)
	}
	return rc.conn.Set(ctx, key, string(t), ttl).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.conn.Close()
}

// Nop is used when no Redis is configured: nothing is kept.
type Nop struct{}

func (Nop) SetCooldown(context.Context, string, time.Duration) error { return nil }

func (Nop) Cooldown(context.Context, string) (time.Duration, error) { return 0, nil }

func (Nop) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

func (Nop) SetJSON(context.Context, string, any, time.Duration) error { return nil }
