package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
	"cardvault-api/internal/repository"
)

func TestNextRap(t *testing.T) {
	assert.Equal(t, 100.0, NextRap(nil, 100))

	prior := 100.0
	assert.Equal(t, 110.0, NextRap(&prior, 200))
	assert.Equal(t, 95.0, NextRap(&prior, 50))
}

func TestBuy_Card(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)

	res, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 100})
	require.NoError(t, err)

	assert.Equal(t, 100.0, res.Rap)
	assert.True(t, res.BuyerInventory.HasCard("c1"))
	assert.Equal(t, int64(1), res.BuyerInventory.Version)
	assert.False(t, res.SellerInventory.HasCard("c1"))

	l, err := f.repos.Listings.Get(ctx, model.ItemCard, "c1")
	require.NoError(t, err)
	assert.Nil(t, l)
	sellerListings, err := f.repos.Listings.BySeller(ctx, "seller")
	require.NoError(t, err)
	assert.Empty(t, sellerListings)

	card, ok := f.inventory(t, "buyer").Card("c1")
	require.True(t, ok)
	assert.Equal(t, "Dragon", card.CardName)

	registry, err := f.repos.Prices.Registry(ctx)
	require.NoError(t, err)
	require.Len(t, registry, 1)
	assert.Equal(t, "Dragon", registry[0].ItemName)

	types := f.events.types()
	assert.Contains(t, types, events.ListingSold)
	assert.Contains(t, types, events.RapUpdated)
}

func TestBuy_RollingAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	f.addCard(t, "seller", "c2", "Dragon")
	listCard(t, f, "seller", "c1", 100)
	listCard(t, f, "seller", "c2", 200)

	_, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 100})
	require.NoError(t, err)
	res, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c2", ExpectedCost: 200})
	require.NoError(t, err)
	assert.Equal(t, 110.0, res.Rap)

	rec, err := f.repos.Prices.GetRap(ctx, model.ItemCard, "Dragon")
	require.NoError(t, err)
	assert.Equal(t, 110.0, rec.Rap)
}

func TestBuy_ExpectedCostMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)
	before := f.inventory(t, "seller").Version

	_, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 90})
	requireAPIError(t, err, http.StatusConflict)

	l, err := f.repos.Listings.Get(ctx, model.ItemCard, "c1")
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.Equal(t, before, f.inventory(t, "seller").Version)
	assert.Equal(t, int64(0), f.inventory(t, "buyer").Version)
}

func TestBuy_RejectsOwnListingAndDoublePurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)

	_, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "seller", CardID: "c1", ExpectedCost: 100})
	requireAPIError(t, err, http.StatusBadRequest)

	_, err = f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 100})
	require.NoError(t, err)
	_, err = f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "other", CardID: "c1", ExpectedCost: 100})
	requireAPIError(t, err, http.StatusNotFound)
}

func TestBuy_OrphanedListingIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)

	require.NoError(t, f.store.Delete(ctx, repository.InventoryKey("seller")))

	_, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 100})
	requireAPIError(t, err, http.StatusGone)

	l, err := f.repos.Listings.Get(ctx, model.ItemCard, "c1")
	require.NoError(t, err)
	assert.Nil(t, l, "orphan listing is cleaned up")
	byItem, err := f.repos.Listings.ByItem(ctx, model.ItemCard, "Dragon")
	require.NoError(t, err)
	assert.Empty(t, byItem)
	assert.Equal(t, int64(0), f.inventory(t, "buyer").Version)
}

func TestBuy_DriftedCardIsRemovedFromSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCard(t, "seller", "c1", "Dragon")
	listCard(t, f, "seller", "c1", 100)
	f.addCard(t, "seller", "c1", "Dragon")

	res, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "card", BuyerID: "buyer", CardID: "c1", ExpectedCost: 100})
	require.NoError(t, err)
	assert.False(t, res.SellerInventory.HasCard("c1"))
	assert.False(t, f.inventory(t, "seller").HasCard("c1"))
	assert.True(t, f.inventory(t, "buyer").HasCard("c1"))
}

func TestBuy_Pack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPacks(t, "seller", "Starter", 1)
	listed, err := f.svc.Marketplace.List(ctx, ListRequest{Type: "pack", UserID: "seller", PackName: "Starter", Cost: 40})
	require.NoError(t, err)
	sellerVersion := listed.Inventory.Version

	res, err := f.svc.Purchase.Buy(ctx, BuyRequest{Type: "pack", BuyerID: "buyer", ListingID: listed.Listing.ID(), ExpectedCost: 40})
	require.NoError(t, err)
	assert.Equal(t, 1, res.BuyerInventory.PackCount("Starter"))
	assert.Equal(t, 40.0, res.Rap)
	assert.Equal(t, sellerVersion, f.inventory(t, "seller").Version, "seller was debited at listing time")
}
