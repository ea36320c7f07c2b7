package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_storage "github.com/syndtr/goleveldb/leveldb/storage"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// keySep separates partition and sort key in the LevelDB key space, so a
// partition prefix scan never bleeds into a partition sharing a prefix.
const keySep = "\x00"

// Option configures a store backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// levelRecord is the on-disk value.
type levelRecord struct {
	Version   int64           `json:"v"`
	Data      json.RawMessage `json:"d"`
	ExpiresAt int64           `json:"e,omitempty"` // unix nanoseconds
}

// LevelStore implements Store on an embedded LevelDB.
// Reads go straight to LevelDB; every write path holds mu so conditions are
// evaluated and applied as one step, and a leveldb.Batch makes each
// transaction atomic on disk.
type LevelStore struct {
	db   *leveldb.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// OpenLevelStore opens (or creates) a LevelDB at path. An empty path opens
// an in-memory database.
func OpenLevelStore(path string, opts ...Option) (*LevelStore, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(ldb_storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}

	o := buildOptions(opts)
	return &LevelStore{db: db, path: path, now: o.now}, nil
}

func levelKey(k Key) []byte {
	return []byte(k.PK + keySep + k.SK)
}

func encodeRecord(item *Item) ([]byte, error) {
	rec := levelRecord{Version: item.Version, Data: item.Data}
	if !item.ExpiresAt.IsZero() {
		rec.ExpiresAt = item.ExpiresAt.UnixNano()
	}
	return json.Marshal(rec)
}

func decodeRecord(k Key, value []byte) (*Item, error) {
	var rec levelRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", k, err)
	}
	item := &Item{PK: k.PK, SK: k.SK, Version: rec.Version, Data: rec.Data}
	if rec.ExpiresAt != 0 {
		item.ExpiresAt = time.Unix(0, rec.ExpiresAt)
	}
	return item, nil
}

func (s *LevelStore) load(k Key) (*Item, error) {
	value, err := s.db.Get(levelKey(k), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s: %w", k, err)
	}
	item, err := decodeRecord(k, value)
	if err != nil {
		return nil, err
	}
	return live(item, s.now()), nil
}

// Get returns the live item at key.
func (s *LevelStore) Get(ctx context.Context, key Key) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(key)
}

// Put writes item unconditionally.
func (s *LevelStore) Put(ctx context.Context, item Item) error {
	_, err := s.transact(ctx, []TransactOp{PutOp(item, Always())})
	return err
}

// Update merges fields into the item at key.
func (s *LevelStore) Update(ctx context.Context, key Key, fields map[string]interface{}) (*Item, error) {
	written, err := s.transact(ctx, []TransactOp{UpdateOp(key, fields, Always())})
	if err != nil {
		return nil, err
	}
	return written[0], nil
}

// Delete removes the item at key.
func (s *LevelStore) Delete(ctx context.Context, key Key) error {
	_, err := s.transact(ctx, []TransactOp{DeleteOp(key, Always())})
	return err
}

// ConditionalPut writes item if its stored version matches expectedVersion.
func (s *LevelStore) ConditionalPut(ctx context.Context, item Item, expectedVersion int64) error {
	_, err := s.transact(ctx, []TransactOp{PutOp(item, ExpectVersion(expectedVersion))})
	return err
}

// TransactWrite applies ops atomically.
func (s *LevelStore) TransactWrite(ctx context.Context, ops []TransactOp) error {
	_, err := s.transact(ctx, ops)
	return err
}

// transact returns the item each op left behind (nil for deletes and checks).
func (s *LevelStore) transact(ctx context.Context, ops []TransactOp) ([]*Item, error) {
	if err := validateTransact(ops); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	written := make([]*Item, len(ops))
	for i, op := range ops {
		existing, err := s.load(op.Key)
		if err != nil {
			return nil, err
		}
		next, write, err := op.resolve(existing)
		if err != nil {
			return nil, err
		}
		if !write {
			continue
		}
		if next == nil {
			batch.Delete(levelKey(op.Key))
			continue
		}
		value, err := encodeRecord(next)
		if err != nil {
			return nil, err
		}
		batch.Put(levelKey(op.Key), value)
		written[i] = next
	}

	if batch.Len() == 0 {
		return written, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("leveldb write: %w", err)
	}
	return written, nil
}

// Query scans one partition in sort key order.
func (s *LevelStore) Query(ctx context.Context, pk string, pred SortPredicate) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(pk + keySep)
	iter := s.db.NewIterator(ldb_util.BytesPrefix(prefix), nil)
	defer iter.Release()

	now := s.now()
	var items []Item
	for iter.Next() {
		sk := string(iter.Key()[len(prefix):])
		if !pred.Matches(sk) {
			continue
		}
		// iterator buffers are reused, decodeRecord copies what it keeps
		item, err := decodeRecord(Key{PK: pk, SK: sk}, append([]byte(nil), iter.Value()...))
		if err != nil {
			return nil, err
		}
		if live(item, now) == nil {
			continue
		}
		items = append(items, *item)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb query %s: %w", pk, err)
	}
	return items, nil
}

// BatchGet loads keys in concurrent chunks of MaxBatchGet.
func (s *LevelStore) BatchGet(ctx context.Context, keys []Key) ([]Item, error) {
	var (
		mu    sync.Mutex
		items []Item
	)
	err := forEachChunk(ctx, uniqueKeys(keys), MaxBatchGet, func(ctx context.Context, chunk []Key) error {
		found := make([]Item, 0, len(chunk))
		for _, k := range chunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := s.load(k)
			if err != nil {
				return err
			}
			if item != nil {
				found = append(found, *item)
			}
		}
		mu.Lock()
		items = append(items, found...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// BatchPut writes items in concurrent chunks of MaxBatchWrite.
func (s *LevelStore) BatchPut(ctx context.Context, items []Item) error {
	return forEachChunk(ctx, items, MaxBatchWrite, func(ctx context.Context, chunk []Item) error {
		return s.TransactWrite(ctx, putOps(chunk))
	})
}

// BatchDelete removes keys in concurrent chunks of MaxBatchWrite.
func (s *LevelStore) BatchDelete(ctx context.Context, keys []Key) error {
	return forEachChunk(ctx, uniqueKeys(keys), MaxBatchWrite, func(ctx context.Context, chunk []Key) error {
		return s.TransactWrite(ctx, deleteOps(chunk))
	})
}

// PurgeExpired deletes every expired record.
func (s *LevelStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixNano()
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Release()
			return 0, err
		}
		var rec levelRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.ExpiresAt != 0 && rec.ExpiresAt <= now {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldb purge scan: %w", err)
	}

	purged := int64(batch.Len())
	if purged == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("leveldb purge: %w", err)
	}
	return purged, nil
}

// Stats returns record counts and the LevelDB compaction summary.
func (s *LevelStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var count int64
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		count++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	stats["total_items"] = count

	if path := s.path; path != "" {
		stats["path"] = path
	} else {
		stats["path"] = "memory"
	}
	if levelStats, err := s.db.GetProperty("leveldb.stats"); err == nil {
		stats["leveldb"] = levelStats
	}
	return stats, nil
}

// Ping fails once the database is closed.
func (s *LevelStore) Ping(ctx context.Context) error {
	_, err := s.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// Ensure LevelStore implements Store
var _ Store = (*LevelStore)(nil)
