package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
)

func listCard(t *testing.T, f *fixture, seller, cardID string, cost int64) *ListResult {
	t.Helper()
	res, err := f.svc.Marketplace.List(context.Background(), ListRequest{
		Type: "card", UserID: seller, Username: seller + "-name", CardID: cardID, Cost: cost,
	})
	require.NoError(t, err)
	return res
}

func TestList_CardMovesOutOfInventory(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "seller", "c1", "Dragon")

	res := listCard(t, f, "seller", "c1", 100)

	assert.Equal(t, model.ItemCard, res.Listing.Type)
	assert.Equal(t, "Dragon", res.Listing.ItemName())
	assert.Equal(t, int64(100), res.Listing.Cost())
	assert.Len(t, res.Listings, 1)
	assert.False(t, res.Inventory.HasCard("c1"))
	assert.Equal(t, int64(2), res.Inventory.Version)

	stored := f.inventory(t, "seller")
	assert.False(t, stored.HasCard("c1"))

	byItem, err := f.repos.Listings.ByItem(context.Background(), model.ItemCard, "Dragon")
	require.NoError(t, err)
	assert.Len(t, byItem, 1)
	assert.Contains(t, f.events.types(), events.ListingCreated)
}

func TestList_AlreadyListedIsConflict(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)

	_, err := f.svc.Marketplace.List(context.Background(), ListRequest{Type: "card", UserID: "seller", CardID: "c1", Cost: 50})
	requireAPIError(t, err, http.StatusConflict)

	l, err := f.repos.Listings.Get(context.Background(), model.ItemCard, "c1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, int64(100), l.Cost(), "original listing untouched")
}

func TestList_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")

	_, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "card", UserID: "seller", CardID: "c1", Cost: 0})
	requireAPIError(t, err, http.StatusBadRequest)

	_, err = f.svc.Marketplace.List(ctx, ListRequest{Type: "bundle", UserID: "seller", CardID: "c1", Cost: 5})
	requireAPIError(t, err, http.StatusBadRequest)

	_, err = f.svc.Marketplace.List(ctx, ListRequest{Type: "card", UserID: "seller", CardID: "missing", Cost: 5})
	requireAPIError(t, err, http.StatusNotFound)

	_, err = f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 5})
	requireAPIError(t, err, http.StatusBadRequest)
}

func TestList_PackDebitsOneUnit(t *testing.T) {
	f := newFixture(t)
	f.addPacks(t, "seller", "Starter", 2)
	ctx := context.Background()

	first, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 10})
	require.NoError(t, err)
	second, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 12})
	require.NoError(t, err)

	assert.NotEqual(t, first.Listing.ID(), second.Listing.ID())
	assert.Len(t, second.Listings, 2)
	assert.Equal(t, 0, second.Inventory.PackCount("Starter"))

	_, err = f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 12})
	requireAPIError(t, err, http.StatusBadRequest)
}

func TestList_EnforcesPerSellerLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxListingsPerUser = 2 })
	f.addPacks(t, "seller", "Starter", 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 10})
		require.NoError(t, err)
	}
	_, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 10})
	requireAPIError(t, err, http.StatusBadRequest)
	assert.Equal(t, 1, f.inventory(t, "seller").PackCount("Starter"))
}

func TestUnlist_OtherUserIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)

	_, err := f.svc.Marketplace.Unlist(context.Background(), UnlistRequest{Type: "card", UserID: "mallory", CardID: "c1"})
	requireAPIError(t, err, http.StatusForbidden)

	l, err := f.repos.Listings.Get(context.Background(), model.ItemCard, "c1")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestUnlist_ReturnsItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	f.addPacks(t, "seller", "Starter", 1)
	listCard(t, f, "seller", "c1", 100)
	packRes, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 10})
	require.NoError(t, err)

	res, err := f.svc.Marketplace.Unlist(ctx, UnlistRequest{Type: "card", UserID: "seller", CardID: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Inventory.HasCard("c1"))
	assert.Len(t, res.Listings, 1)

	res, err = f.svc.Marketplace.Unlist(ctx, UnlistRequest{Type: "pack", UserID: "seller", ListingID: packRes.Listing.ID()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inventory.PackCount("Starter"))
	assert.Empty(t, res.Listings)

	byItem, err := f.repos.Listings.ByItem(ctx, model.ItemCard, "Dragon")
	require.NoError(t, err)
	assert.Empty(t, byItem)

	_, err = f.svc.Marketplace.Unlist(ctx, UnlistRequest{Type: "card", UserID: "seller", CardID: "c1"})
	requireAPIError(t, err, http.StatusNotFound)
	assert.Contains(t, f.events.types(), events.ListingRemoved)
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Marketplace.Heartbeat(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), p.LastSeen)

	got, err := f.repos.Presence.GetMany(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "u1", got["u1"].UserID)
}
