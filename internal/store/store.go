// Package store is a partitioned key-value store with single-item conditional
// writes and bounded all-or-nothing transactions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store limits.
const (
	MaxTransactItems = 100
	MaxBatchGet      = 100
	MaxBatchWrite    = 25
)

var (
	// ErrTransactionConflict is the retryable failure class: a condition
	// failed or the backend aborted the write because of a concurrent writer.
	ErrTransactionConflict = errors.New("store: transaction conflict")

	// ErrConditionFailed is returned when a write condition does not hold.
	ErrConditionFailed = fmt.Errorf("%w: condition check failed", ErrTransactionConflict)

	// ErrTooManyItems is returned for transactions above MaxTransactItems.
	ErrTooManyItems = fmt.Errorf("store: more than %d items in transaction", MaxTransactItems)

	// ErrDuplicateKey is returned when one transaction touches a key twice.
	ErrDuplicateKey = errors.New("store: duplicate key in transaction")
)

// Key addresses one item.
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

func (k Key) String() string {
	return k.PK + "/" + k.SK
}

// Item is a stored record. Version is assigned by the store on every write:
// 1 for a new item, previous+1 otherwise.
type Item struct {
	PK        string          `json:"pk"`
	SK        string          `json:"sk"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expiresAt,omitzero"`
}

// NewItem encodes v as the item payload.
func NewItem(key Key, v interface{}) (Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Item{PK: key.PK, SK: key.SK, Data: data}, nil
}

// Key returns the item's key.
func (i Item) Key() Key {
	return Key{PK: i.PK, SK: i.SK}
}

// Decode unmarshals the payload into v.
func (i Item) Decode(v interface{}) error {
	if err := json.Unmarshal(i.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", i.Key(), err)
	}
	return nil
}

// WithTTL sets the item to expire ttl after now.
func (i Item) WithTTL(now time.Time, ttl time.Duration) Item {
	i.ExpiresAt = now.Add(ttl)
	return i
}

func (i *Item) expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// live hides expired items.
func live(i *Item, now time.Time) *Item {
	if i == nil || i.expired(now) {
		return nil
	}
	return i
}

// Store is the uniform interface over the key-value backends.
type Store interface {
	// Get returns the item, or nil when it is absent or expired.
	Get(ctx context.Context, key Key) (*Item, error)

	// Put writes the item unconditionally.
	Put(ctx context.Context, item Item) error

	// Update merges fields into the item's JSON payload, creating the item if
	// it does not exist, and returns the stored result.
	Update(ctx context.Context, key Key, fields map[string]interface{}) (*Item, error)

	// Delete removes the item. Deleting a missing item is not an error.
	Delete(ctx context.Context, key Key) error

	// ConditionalPut writes the item only if it does not exist
	// (expectedVersion 0) or its version equals expectedVersion.
	// Returns ErrConditionFailed otherwise.
	ConditionalPut(ctx context.Context, item Item, expectedVersion int64) error

	// Query returns the items of a partition whose sort key matches pred,
	// in ascending sort key order.
	Query(ctx context.Context, pk string, pred SortPredicate) ([]Item, error)

	// BatchGet returns the items that exist among keys, in no particular order.
	BatchGet(ctx context.Context, keys []Key) ([]Item, error)

	// BatchPut writes items unconditionally in chunks of MaxBatchWrite.
	BatchPut(ctx context.Context, items []Item) error

	// BatchDelete removes keys in chunks of MaxBatchWrite.
	BatchDelete(ctx context.Context, keys []Key) error

	// TransactWrite applies ops atomically. If any condition fails nothing
	// is written and an error wrapping ErrTransactionConflict is returned.
	TransactWrite(ctx context.Context, ops []TransactOp) error

	// PurgeExpired physically removes expired items.
	PurgeExpired(ctx context.Context) (int64, error)

	// Stats returns backend statistics.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// IsConflict reports whether err belongs to the retryable conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}
