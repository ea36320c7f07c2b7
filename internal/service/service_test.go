package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
	"cardvault-api/internal/repository"
	"cardvault-api/internal/store"
	"cardvault-api/pkg/apierror"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc    *Services
	repos  *repository.Repositories
	store  store.Store
	clock  *testClock
	events *recorder
}

func newFixture(t *testing.T, tweak ...func(*Options)) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	st, err := store.OpenLevelStore("", store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return newFixtureWithStore(t, st, clock, tweak...)
}

func newFixtureWithStore(t *testing.T, st store.Store, clock *testClock, tweak ...func(*Options)) *fixture {
	t.Helper()

	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { mem.Close() })

	opts := DefaultOptions()
	opts.BaseDelay = time.Millisecond
	opts.Now = clock.Now
	for _, fn := range tweak {
		fn(&opts)
	}

	rec := &recorder{}
	repos := repository.New(st)
	return &fixture{
		svc:    New(repos, cache.NewReadThrough(mem, zerolog.Nop()), rec, opts, zerolog.Nop()),
		repos:  repos,
		store:  st,
		clock:  clock,
		events: rec,
	}
}

func (f *fixture) addCard(t *testing.T, userID, cardID, name string) {
	t.Helper()
	_, err := f.svc.Inventory.Modify(context.Background(), userID, []InventoryOperation{
		{Type: OpAddCard, Card: &model.InventoryCard{CardID: cardID, CardName: name}},
	})
	require.NoError(t, err)
}

func (f *fixture) addPacks(t *testing.T, userID, pack string, n int) {
	t.Helper()
	_, err := f.svc.Inventory.Modify(context.Background(), userID, []InventoryOperation{
		{Type: OpAddPack, PackName: pack, Quantity: &n},
	})
	require.NoError(t, err)
}

func (f *fixture) inventory(t *testing.T, userID string) *model.UserInventory {
	t.Helper()
	inv, err := f.repos.Inventory.Get(context.Background(), userID)
	require.NoError(t, err)
	return inv
}

func requireAPIError(t *testing.T, err error, status int) *apierror.Error {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok, "expected API error, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode, apiErr.Message)
	return apiErr
}

// conflictStore fails every transaction with a condition failure.
type conflictStore struct {
	store.Store
	calls int
	mu    sync.Mutex
}

func (s *conflictStore) TransactWrite(context.Context, []store.TransactOp) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return store.ErrConditionFailed
}
