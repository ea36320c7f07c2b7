package repository

import (
	"context"
	"fmt"
	"sort"

	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// ListingRepository stores marketplace listings with their seller and item
// index rows. The three rows are always written and deleted together.
type ListingRepository struct {
	store store.Store
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(st store.Store) *ListingRepository {
	return &ListingRepository{store: st}
}

func listingKeys(l model.Listing) (primary, seller, item store.Key) {
	id := l.ID()
	return ListingKey(l.Type, id),
		SellerIndexKey(l.SellerID(), l.Type, id),
		ItemIndexKey(l.Type, l.ItemName(), id)
}

// Get returns the active listing, or nil.
func (r *ListingRepository) Get(ctx context.Context, t model.ItemType, id string) (*model.Listing, error) {
	item, err := r.store.Get(ctx, ListingKey(t, id))
	if err != nil {
		return nil, fmt.Errorf("get listing %s/%s: %w", t, id, err)
	}
	if item == nil {
		return nil, nil
	}
	var l model.Listing
	if err := item.Decode(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateOps inserts the listing and both index rows, each conditioned on
// not existing yet.
func (r *ListingRepository) CreateOps(l model.Listing) ([]store.TransactOp, error) {
	primary, seller, index := listingKeys(l)
	ops := make([]store.TransactOp, 0, 3)
	for _, key := range []store.Key{primary, seller, index} {
		item, err := store.NewItem(key, l)
		if err != nil {
			return nil, err
		}
		ops = append(ops, store.PutOp(item, store.NotExists()))
	}
	return ops, nil
}

// DeleteOps removes the listing, which must still exist, and its index rows.
func (r *ListingRepository) DeleteOps(l model.Listing) []store.TransactOp {
	primary, seller, index := listingKeys(l)
	return []store.TransactOp{
		store.DeleteOp(primary, store.Exists()),
		store.DeleteOp(seller, store.Always()),
		store.DeleteOp(index, store.Always()),
	}
}

// Purge deletes all three rows of l without conditions.
func (r *ListingRepository) Purge(ctx context.Context, l model.Listing) error {
	primary, seller, index := listingKeys(l)
	if err := r.store.BatchDelete(ctx, []store.Key{primary, seller, index}); err != nil {
		return fmt.Errorf("purge listing %s: %w", primary, err)
	}
	return nil
}

func (r *ListingRepository) query(ctx context.Context, pk string) ([]model.Listing, error) {
	items, err := r.store.Query(ctx, pk, store.AllSortKeys())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", pk, err)
	}
	out := make([]model.Listing, 0, len(items))
	for _, item := range items {
		var l model.Listing
		if err := item.Decode(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// BySeller returns the seller's active listings, oldest first.
func (r *ListingRepository) BySeller(ctx context.Context, sellerID string) ([]model.Listing, error) {
	out, err := r.query(ctx, sellerPK(sellerID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp().Before(out[j].Timestamp())
	})
	return out, nil
}

// ByItem returns the active listings of one item.
func (r *ListingRepository) ByItem(ctx context.Context, t model.ItemType, name string) ([]model.Listing, error) {
	return r.query(ctx, itemPK(t, name))
}
