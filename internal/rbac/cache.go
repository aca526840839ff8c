package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheKey namespaces the cached permission set.
const DefaultCacheKey = "odyssey:authz:permissions"

// PermissionCache stores the full permission set under a single key.
// Implementations are responsible for the atomicity of each call.
type PermissionCache interface {
	Get(ctx context.Context, key string) ([]Permission, bool, error)
	Set(ctx context.Context, key string, perms []Permission, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// RedisCache keeps permission snapshots in Redis as JSON.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache instantiates the cache helper.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached snapshot. A missing or expired key reports false.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Permission, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rbac/cache: get %s: %w", key, err)
	}
	perms := make([]Permission, 0)
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, fmt.Errorf("rbac/cache: decode %s: %w", key, err)
	}
	return perms, true, nil
}

// Set replaces the snapshot stored under key.
func (c *RedisCache) Set(ctx context.Context, key string, perms []Permission, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if perms == nil {
		perms = []Permission{}
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("rbac/cache: set %s: %w", key, err)
	}
	return nil
}

// Forget removes the snapshot. Missing keys are not an error.
func (c *RedisCache) Forget(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rbac/cache: forget %s: %w", key, err)
	}
	return nil
}
