package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/store"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// backends returns a fresh instance of every embeddable backend.
func backends(t *testing.T, clock *fakeClock) map[string]store.Store {
	t.Helper()

	level, err := store.OpenLevelStore("", store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { level.Close() })

	sqlite, err := store.OpenSQLite(":memory:", store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]store.Store{"level": level, "sqlite": sqlite}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s store.Store, clock *fakeClock)) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			fn(t, s, clock)
		})
	}
}

func mustItem(t *testing.T, pk, sk string, v payload) store.Item {
	t.Helper()
	item, err := store.NewItem(store.Key{PK: pk, SK: sk}, v)
	require.NoError(t, err)
	return item
}

func TestGet_Missing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		item, err := s.Get(context.Background(), store.Key{PK: "USER#x", SK: "INVENTORY"})
		require.NoError(t, err)
		assert.Nil(t, item)
	})
}

func TestPut_AssignsIncreasingVersions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		item := mustItem(t, "P", "S", payload{Name: "a"})

		require.NoError(t, s.Put(ctx, item))
		require.NoError(t, s.Put(ctx, item))

		got, err := s.Get(ctx, item.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(2), got.Version)

		var p payload
		require.NoError(t, got.Decode(&p))
		assert.Equal(t, "a", p.Name)
	})
}

func TestConditionalPut(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		item := mustItem(t, "P", "S", payload{Count: 1})

		require.NoError(t, s.ConditionalPut(ctx, item, 0))

		err := s.ConditionalPut(ctx, item, 0)
		assert.ErrorIs(t, err, store.ErrConditionFailed)
		assert.True(t, store.IsConflict(err))

		err = s.ConditionalPut(ctx, item, 7)
		assert.ErrorIs(t, err, store.ErrTransactionConflict)

		item = mustItem(t, "P", "S", payload{Count: 2})
		require.NoError(t, s.ConditionalPut(ctx, item, 1))

		got, err := s.Get(ctx, item.Key())
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})
}

func TestUpdate_MergesFieldsAndCreates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		key := store.Key{PK: "P", SK: "S"}

		created, err := s.Update(ctx, key, map[string]interface{}{"name": "first"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.Version)

		updated, err := s.Update(ctx, key, map[string]interface{}{"count": 3})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		var p payload
		require.NoError(t, updated.Decode(&p))
		assert.Equal(t, payload{Name: "first", Count: 3}, p)
	})
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		item := mustItem(t, "P", "S", payload{})
		require.NoError(t, s.Put(ctx, item))

		require.NoError(t, s.Delete(ctx, item.Key()))
		require.NoError(t, s.Delete(ctx, item.Key()))

		got, err := s.Get(ctx, item.Key())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTransactWrite_AllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		existing := mustItem(t, "A", "1", payload{Name: "keep"})
		require.NoError(t, s.Put(ctx, existing))

		err := s.TransactWrite(ctx, []store.TransactOp{
			store.PutOp(mustItem(t, "B", "1", payload{Name: "new"}), store.NotExists()),
			store.DeleteOp(existing.Key(), store.Exists()),
			store.CheckOp(store.Key{PK: "C", SK: "1"}, store.Exists()),
		})
		require.ErrorIs(t, err, store.ErrTransactionConflict)

		got, err := s.Get(ctx, store.Key{PK: "B", SK: "1"})
		require.NoError(t, err)
		assert.Nil(t, got, "put must not be visible after abort")

		got, err = s.Get(ctx, existing.Key())
		require.NoError(t, err)
		assert.NotNil(t, got, "delete must not be visible after abort")
	})
}

func TestTransactWrite_Commits(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, mustItem(t, "A", "1", payload{Count: 1})))

		err := s.TransactWrite(ctx, []store.TransactOp{
			store.UpdateOp(store.Key{PK: "A", SK: "1"}, map[string]interface{}{"count": 2}, store.VersionEquals(1)),
			store.PutOp(mustItem(t, "B", "1", payload{Name: "b"}), store.NotExists()),
			store.CheckOp(store.Key{PK: "A", SK: "1"}, store.Always()),
		})
		// the same key twice is rejected before anything is read
		require.ErrorIs(t, err, store.ErrDuplicateKey)

		err = s.TransactWrite(ctx, []store.TransactOp{
			store.UpdateOp(store.Key{PK: "A", SK: "1"}, map[string]interface{}{"count": 2}, store.VersionEquals(1)),
			store.PutOp(mustItem(t, "B", "1", payload{Name: "b"}), store.NotExists()),
		})
		require.NoError(t, err)

		a, err := s.Get(ctx, store.Key{PK: "A", SK: "1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), a.Version)

		b, err := s.Get(ctx, store.Key{PK: "B", SK: "1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), b.Version)
	})
}

func TestTransactWrite_TooManyItems(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ops := make([]store.TransactOp, store.MaxTransactItems+1)
		for i := range ops {
			ops[i] = store.PutOp(mustItem(t, "P", fmt.Sprintf("%03d", i), payload{}), store.Always())
		}
		err := s.TransactWrite(context.Background(), ops)
		assert.ErrorIs(t, err, store.ErrTooManyItems)
	})
}

func TestQuery_Predicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		for _, sk := range []string{"HISTORY#2026-01-03", "CURRENT", "HISTORY#2026-01-01", "HISTORY#2026-01-02"} {
			require.NoError(t, s.Put(ctx, mustItem(t, "RAP#card#Dragon", sk, payload{Name: sk})))
		}
		// a partition sharing the prefix must not leak in
		require.NoError(t, s.Put(ctx, mustItem(t, "RAP#card#Dragonfly", "CURRENT", payload{})))

		all, err := s.Query(ctx, "RAP#card#Dragon", store.AllSortKeys())
		require.NoError(t, err)
		assert.Len(t, all, 4)

		history, err := s.Query(ctx, "RAP#card#Dragon", store.SortPrefix("HISTORY#"))
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "HISTORY#2026-01-01", history[0].SK)
		assert.Equal(t, "HISTORY#2026-01-03", history[2].SK)

		between, err := s.Query(ctx, "RAP#card#Dragon", store.SortBetween("HISTORY#2026-01-02", "HISTORY#2026-01-03"))
		require.NoError(t, err)
		assert.Len(t, between, 2)

		pred, err := store.SortCompare(">", "HISTORY#2026-01-01")
		require.NoError(t, err)
		after, err := s.Query(ctx, "RAP#card#Dragon", pred)
		require.NoError(t, err)
		assert.Len(t, after, 2)
	})
}

func TestBatchOperations_Chunking(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()

		items := make([]store.Item, 130)
		keys := make([]store.Key, 0, 131)
		for i := range items {
			items[i] = mustItem(t, fmt.Sprintf("USER#%d", i), "INVENTORY", payload{Count: i})
			keys = append(keys, items[i].Key())
		}
		require.NoError(t, s.BatchPut(ctx, items))

		keys = append(keys, store.Key{PK: "USER#missing", SK: "INVENTORY"})
		got, err := s.BatchGet(ctx, keys)
		require.NoError(t, err)
		assert.Len(t, got, 130)

		require.NoError(t, s.BatchDelete(ctx, keys[:60]))
		got, err = s.BatchGet(ctx, keys)
		require.NoError(t, err)
		assert.Len(t, got, 70)
	})
}

func TestExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()
		item := mustItem(t, "IDEMPOTENCY#k", "TRANSFER", payload{Name: "processing"}).WithTTL(clock.Now(), time.Hour)
		require.NoError(t, s.ConditionalPut(ctx, item, 0))

		got, err := s.Get(ctx, item.Key())
		require.NoError(t, err)
		require.NotNil(t, got)

		clock.Advance(2 * time.Hour)

		got, err = s.Get(ctx, item.Key())
		require.NoError(t, err)
		assert.Nil(t, got, "expired items are invisible")

		// an expired item no longer blocks a not-exists claim
		require.NoError(t, s.ConditionalPut(ctx, item.WithTTL(clock.Now(), time.Hour), 0))

		clock.Advance(2 * time.Hour)
		purged, err := s.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)
	})
}

func TestConcurrentConditionalPut_OneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		item := mustItem(t, "IDEMPOTENCY#race", "TRANSFER", payload{})

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.ConditionalPut(ctx, item, 0); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, mustItem(t, "P", "S", payload{})))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats["total_items"])
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestSortPredicate_Matches(t *testing.T) {
	_, err := store.SortCompare("!=", "x")
	assert.Error(t, err)

	assert.True(t, store.AllSortKeys().Matches("anything"))
	assert.True(t, store.SortPrefix("card#").Matches("card#1"))
	assert.False(t, store.SortPrefix("card#").Matches("pack#1"))
}

func TestExpectVersion(t *testing.T) {
	assert.Equal(t, store.NotExists(), store.ExpectVersion(0))
	assert.Equal(t, store.VersionEquals(3), store.ExpectVersion(3))
}
