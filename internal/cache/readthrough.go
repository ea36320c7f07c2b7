package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cardvault-api/internal/observability"
)

// ReadThrough pairs a Cache with the logger used for best-effort failures.
// Cache errors never fail a read; the value is fetched from the source.
type ReadThrough struct {
	cache Cache
	log   zerolog.Logger
}

// NewReadThrough wraps c.
func NewReadThrough(c Cache, log zerolog.Logger) *ReadThrough {
	return &ReadThrough{cache: c, log: log}
}

// Cache returns the underlying cache.
func (r *ReadThrough) Cache() Cache {
	return r.cache
}

// Invalidate deletes keys, logging failures.
func (r *ReadThrough) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := r.cache.Delete(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	}
}

func (r *ReadThrough) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := r.cache.Set(ctx, key, data, ttl); err != nil {
		observability.CacheRequests.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Cached returns the value cached at key, or calls fetch, caches its result
// for ttl and returns it.
func Cached[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	data, err := r.cache.Get(ctx, key)
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
			observability.CacheRequests.WithLabelValues("hit").Inc()
			return v, nil
		}
		r.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		observability.CacheRequests.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}
	observability.CacheRequests.WithLabelValues("miss").Inc()

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	r.store(ctx, key, v, ttl)
	return v, nil
}

// CachedBatch resolves keys from the cache and calls fetch exactly once with
// every key that missed; fetch is not called when all keys hit. Keys that
// fetch does not return are absent from the result and are not cached.
func CachedBatch[T any](ctx context.Context, r *ReadThrough, keys []string, ttl time.Duration, fetch func(ctx context.Context, missing []string) (map[string]T, error)) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	raw := r.getMany(ctx, keys)

	var missing []string
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if data, ok := raw[key]; ok {
			var v T
			if json.Unmarshal(data, &v) == nil {
				out[key] = v
				continue
			}
		}
		missing = append(missing, key)
	}
	observability.CacheRequests.WithLabelValues("hit").Add(float64(len(out)))
	observability.CacheRequests.WithLabelValues("miss").Add(float64(len(missing)))

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for key, v := range fetched {
		out[key] = v
		r.store(ctx, key, v, ttl)
	}
	return out, nil
}

func (r *ReadThrough) getMany(ctx context.Context, keys []string) map[string][]byte {
	if mg, ok := r.cache.(MultiGetter); ok {
		found, err := mg.GetMany(ctx, keys)
		if err == nil {
			return found
		}
		observability.CacheRequests.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Int("keys", len(keys)).Msg("cache multi-get failed")
		return nil
	}

	found := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if data, err := r.cache.Get(ctx, key); err == nil {
			found[key] = data
		}
	}
	return found
}
