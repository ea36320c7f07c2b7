package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired entries are evicted.
const DefaultCleanupInterval = time.Minute

// MemoryCache is an in-process implementation of Cache backed by go-cache.
// Use this for development/testing or single-instance deployments.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
// Entries never outlive the TTL passed to Set.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &MemoryCache{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get retrieves a value by key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	obj, found := c.items.Get(key)
	if !found {
		return nil, ErrCacheMiss
	}
	value := obj.([]byte)

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// GetMany retrieves every cached key of keys.
func (c *MemoryCache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, err := c.Get(ctx, key); err == nil {
			out[key] = value
		}
	}
	return out, nil
}

// Set stores a value with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, valueCopy, ttl)
	return nil
}

// Delete removes a value by key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// Exists checks if a key exists and is not expired.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found := c.items.Get(key)
	return found, nil
}

// GetOrSet retrieves a value or computes and stores it if missing.
func (c *MemoryCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}

	return value, nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

// Close is a no-op; go-cache stops its janitor when the cache is collected.
func (c *MemoryCache) Close() error {
	return nil
}

var (
	_ Cache       = (*MemoryCache)(nil)
	_ MultiGetter = (*MemoryCache)(nil)
)
