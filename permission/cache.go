package permission

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores permission sets keyed by user id.
type Cache interface {
	// Get returns the cached set and whether it was present.
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Set(ctx context.Context, userID string, perms []string, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

const defaultLocalSize = 10_000

// LocalCache is an in-process, size-bounded cache. Every entry lives for the
// TTL given to NewLocalCache; the ttl argument of Set may only shorten it to
// zero, which skips the write.
type LocalCache struct {
	lru *expirable.LRU[string, []string]
}

// NewLocalCache returns a cache holding at most size entries for ttl each.
func NewLocalCache(size int, ttl time.Duration) *LocalCache {
	if size <= 0 {
		size = defaultLocalSize
	}
	return &LocalCache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

func (c *LocalCache) Get(_ context.Context, userID string) ([]string, bool, error) {
	perms, ok := c.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(perms), true, nil
}

func (c *LocalCache) Set(_ context.Context, userID string, perms []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.lru.Add(userID, slices.Clone(perms))
	return nil
}

func (c *LocalCache) Delete(_ context.Context, userID string) error {
	c.lru.Remove(userID)
	return nil
}

// Len reports the number of live entries.
func (c *LocalCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *LocalCache) Purge() {
	c.lru.Purge()
}
