package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps Redis transport failures.
var ErrCacheUnavailable = errors.New("permission cache unavailable")

const defaultRedisPrefix = "tg:perm"

// RedisCache stores permission sets as JSON arrays under prefix:userID.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCache returns a cache on client. An empty prefix selects "tg:perm".
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{redis: client, prefix: prefix}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + ":" + userID
}

func (c *RedisCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	raw, err := c.redis.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		// A corrupt entry is treated as a miss and overwritten by the caller.
		return nil, false, nil
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, perms []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if perms == nil {
		perms = []string{}
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
