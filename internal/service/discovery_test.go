package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/model"
)

func TestFindSellers_RanksOnlineSellersByBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Establish a RAP of 100.
	sell(t, f, "seed", 100)

	for _, l := range []struct {
		seller, card string
		cost         int64
	}{
		{"cheap", "c1", 90},
		{"fair", "c2", 120},
		{"exact", "c3", 100},
		{"stale", "c4", 101},
		{"pricey", "c5", 500},
	} {
		f.addCard(t, l.seller, l.card, "Dragon")
		listCard(t, f, l.seller, l.card, l.cost)
	}

	_, err := f.svc.Marketplace.Heartbeat(ctx, "stale")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	for _, id := range []string{"cheap", "fair", "exact", "pricey"} {
		_, err := f.svc.Marketplace.Heartbeat(ctx, id)
		require.NoError(t, err)
	}

	res, err := f.svc.Discovery.FindSellers(ctx, "card", "Dragon")
	require.NoError(t, err)
	require.NotNil(t, res.Rap)
	assert.Equal(t, 100.0, *res.Rap)

	var order []string
	for _, m := range res.Sellers {
		order = append(order, m.Listing.SellerID())
	}
	assert.Equal(t, []string{"exact", "fair", "cheap", "pricey"}, order)
	assert.True(t, res.Sellers[0].InBand)
	assert.False(t, res.Sellers[2].InBand)
}

func TestFindSellers_NoRapSortsByCost(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.FindSellersLimit = 2 })
	ctx := context.Background()

	for i, cost := range []int64{30, 10, 20} {
		seller := string(rune('a' + i))
		f.addCard(t, seller, "card-"+seller, "Golem")
		listCard(t, f, seller, "card-"+seller, cost)
		_, err := f.svc.Marketplace.Heartbeat(ctx, seller)
		require.NoError(t, err)
	}

	res, err := f.svc.Discovery.FindSellers(ctx, "card", "Golem")
	require.NoError(t, err)
	assert.Nil(t, res.Rap)
	require.Len(t, res.Sellers, 2)
	assert.Equal(t, int64(10), res.Sellers[0].Listing.Cost())
	assert.Equal(t, int64(20), res.Sellers[1].Listing.Cost())
}

func TestFindSellers_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Discovery.FindSellers(context.Background(), "card", "")
	requireAPIError(t, err, http.StatusBadRequest)
	_, err = f.svc.Discovery.FindSellers(context.Background(), "gem", "Dragon")
	requireAPIError(t, err, http.StatusBadRequest)

	res, err := f.svc.Discovery.FindSellers(context.Background(), string(model.ItemPack), "Nothing")
	require.NoError(t, err)
	assert.Empty(t, res.Sellers)
}
