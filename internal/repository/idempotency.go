package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// IdempotencyRepository manages transfer idempotency markers.
type IdempotencyRepository struct {
	store store.Store
}

// NewIdempotencyRepository creates a new idempotency repository.
func NewIdempotencyRepository(st store.Store) *IdempotencyRepository {
	return &IdempotencyRepository{store: st}
}

// Claim inserts a processing marker for key. When another request already
// holds the key, the existing record is returned instead.
func (r *IdempotencyRepository) Claim(ctx context.Context, key string, now time.Time, ttl time.Duration) (*model.IdempotencyRecord, error) {
	item, err := store.NewItem(IdempotencyKey(key), model.IdempotencyRecord{
		Key:        key,
		Status:     model.IdempotencyProcessing,
		CreatedAt:  now,
		TTLSeconds: int64(ttl / time.Second),
	})
	if err != nil {
		return nil, err
	}

	err = r.store.ConditionalPut(ctx, item.WithTTL(now, ttl), 0)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, store.ErrConditionFailed) {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Released or expired between the claim and the read.
		return nil, fmt.Errorf("claim idempotency key: %w", store.ErrTransactionConflict)
	}
	return existing, nil
}

// Get returns the marker for key, or nil.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	item, err := r.store.Get(ctx, IdempotencyKey(key))
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	var rec model.IdempotencyRecord
	if err := item.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Complete stores the final response for key.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	_, err := r.store.Update(ctx, IdempotencyKey(key), map[string]interface{}{
		"status":       model.IdempotencyCompleted,
		"statusCode":   statusCode,
		"responseBody": json.RawMessage(body),
	})
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes the marker so the client may retry with the same key.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, IdempotencyKey(key)); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
