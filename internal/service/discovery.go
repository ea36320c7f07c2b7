package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/model"
	"cardvault-api/pkg/apierror"
)

// Price band around the RAP that ranks first.
const (
	bandLow  = 0.95
	bandHigh = 1.30
)

// SellerMatch is one online seller's listing.
type SellerMatch struct {
	Listing  model.Listing `json:"listing"`
	LastSeen time.Time     `json:"lastSeen"`
	InBand   bool          `json:"inBand"`
}

// FindSellersResult ranks the online sellers of one item.
type FindSellersResult struct {
	ItemType model.ItemType `json:"itemType"`
	ItemName string         `json:"itemName"`
	Rap      *float64       `json:"rap"`
	Sellers  []SellerMatch  `json:"sellers"`
}

// DiscoveryService finds online sellers of an item.
type DiscoveryService struct {
	*core
	pricing *PricingService
}

// ItemListings returns the active listings of an item through the cache.
func (s *DiscoveryService) ItemListings(ctx context.Context, t model.ItemType, name string) ([]model.Listing, error) {
	return cache.Cached(ctx, s.cache, listingsCacheKey(t, name), s.opts.ListingTTL, func(ctx context.Context) ([]model.Listing, error) {
		return s.repos.Listings.ByItem(ctx, t, name)
	})
}

func (s *DiscoveryService) presence(ctx context.Context, sellerIDs []string) (map[string]model.Presence, error) {
	keys := make([]string, len(sellerIDs))
	for i, id := range sellerIDs {
		keys[i] = presenceCacheKey(id)
	}

	byKey, err := cache.CachedBatch(ctx, s.cache, keys, s.opts.PresenceTTL, func(ctx context.Context, missing []string) (map[string]model.Presence, error) {
		ids := make([]string, len(missing))
		for i, key := range missing {
			ids[i] = strings.TrimPrefix(key, presenceCachePrefix)
		}
		found, err := s.repos.Presence.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]model.Presence, len(found))
		for id, p := range found {
			out[presenceCacheKey(id)] = p
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.Presence, len(byKey))
	for key, p := range byKey {
		out[strings.TrimPrefix(key, presenceCachePrefix)] = p
	}
	return out, nil
}

// FindSellers returns up to FindSellersLimit listings of the item whose
// sellers were seen within the presence window. Listings priced within
// [0.95, 1.30] × RAP come first; each group is sorted by cost, then age.
func (s *DiscoveryService) FindSellers(ctx context.Context, itemType, name string) (res *FindSellersResult, err error) {
	defer func() { observe("marketplace.find_sellers", err) }()

	t, err := model.ParseItemType(itemType)
	if err != nil {
		return nil, apierror.BadRequest(err.Error())
	}
	if name == "" {
		return nil, apierror.BadRequest("itemName is required")
	}

	listings, err := s.ItemListings(ctx, t, name)
	if err != nil {
		return nil, err
	}

	res = &FindSellersResult{ItemType: t, ItemName: name, Sellers: []SellerMatch{}}
	if len(listings) == 0 {
		return res, nil
	}

	seen := make(map[string]bool)
	var sellerIDs []string
	for _, l := range listings {
		if id := l.SellerID(); !seen[id] {
			seen[id] = true
			sellerIDs = append(sellerIDs, id)
		}
	}

	presence, err := s.presence(ctx, sellerIDs)
	if err != nil {
		return nil, err
	}

	rec, err := s.pricing.Rap(ctx, t, name)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rap := rec.Rap
		res.Rap = &rap
	}

	cutoff := s.now().Add(-s.opts.PresenceWindow)
	for _, l := range listings {
		p, ok := presence[l.SellerID()]
		if !ok || p.LastSeen.Before(cutoff) {
			continue
		}
		m := SellerMatch{Listing: l, LastSeen: p.LastSeen}
		if res.Rap != nil {
			cost := float64(l.Cost())
			m.InBand = cost >= *res.Rap*bandLow && cost <= *res.Rap*bandHigh
		}
		res.Sellers = append(res.Sellers, m)
	}

	rankSellers(res.Sellers)
	if limit := s.opts.FindSellersLimit; limit > 0 && len(res.Sellers) > limit {
		res.Sellers = res.Sellers[:limit]
	}
	return res, nil
}

// rankSellers puts in-band listings first, then orders by cost and
// listing time.
func rankSellers(ms []SellerMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.InBand != b.InBand {
			return a.InBand
		}
		if a.Listing.Cost() != b.Listing.Cost() {
			return a.Listing.Cost() < b.Listing.Cost()
		}
		return a.Listing.Timestamp().Before(b.Listing.Timestamp())
	})
}
