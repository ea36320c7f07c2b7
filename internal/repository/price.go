package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// PriceRepository stores RAP records, their daily history and the registry
// of tracked items.
type PriceRepository struct {
	store store.Store
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(st store.Store) *PriceRepository {
	return &PriceRepository{store: st}
}

// GetRap returns the item's RAP record, or nil if it never sold.
func (r *PriceRepository) GetRap(ctx context.Context, t model.ItemType, name string) (*model.RapRecord, error) {
	item, err := r.store.Get(ctx, RapKey(t, name))
	if err != nil {
		return nil, fmt.Errorf("get rap %s/%s: %w", t, name, err)
	}
	if item == nil {
		return nil, nil
	}
	var rec model.RapRecord
	if err := item.Decode(&rec); err != nil {
		return nil, err
	}
	rec.ItemType, rec.ItemName = t, name
	rec.Version = item.Version
	return &rec, nil
}

// RapOps builds the write of a new RAP value. An existing record is updated
// conditioned on the version it was read at; the first sale creates the
// record and its registry entry.
func (r *PriceRepository) RapOps(t model.ItemType, name string, prior *model.RapRecord, rap float64, now time.Time) ([]store.TransactOp, error) {
	if prior != nil {
		fields := map[string]interface{}{
			"rap":         rap,
			"lastUpdated": now,
		}
		return []store.TransactOp{
			store.UpdateOp(RapKey(t, name), fields, store.VersionEquals(prior.Version)),
		}, nil
	}

	rec, err := store.NewItem(RapKey(t, name), model.RapRecord{
		ItemType:    t,
		ItemName:    name,
		Rap:         rap,
		LastUpdated: now,
	})
	if err != nil {
		return nil, err
	}
	reg, err := store.NewItem(RegistryKey(t, name), model.RapRegistryEntry{
		ItemType:  t,
		ItemName:  name,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return []store.TransactOp{
		store.PutOp(rec, store.NotExists()),
		store.PutOp(reg, store.NotExists()),
	}, nil
}

// Registry lists every tracked item.
func (r *PriceRepository) Registry(ctx context.Context) ([]model.RapRegistryEntry, error) {
	items, err := r.store.Query(ctx, pkRapRegistry, store.AllSortKeys())
	if err != nil {
		return nil, fmt.Errorf("query rap registry: %w", err)
	}
	out := make([]model.RapRegistryEntry, 0, len(items))
	for _, item := range items {
		var e model.RapRegistryEntry
		if err := item.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// History returns an item's snapshots in date order.
func (r *PriceRepository) History(ctx context.Context, t model.ItemType, name string) ([]model.RapHistoryEntry, error) {
	items, err := r.store.Query(ctx, rapPK(t, name), store.SortPrefix(skHistory))
	if err != nil {
		return nil, fmt.Errorf("query history %s/%s: %w", t, name, err)
	}
	out := make([]model.RapHistoryEntry, 0, len(items))
	for _, item := range items {
		var e model.RapHistoryEntry
		if err := item.Decode(&e); err != nil {
			return nil, err
		}
		if e.Date == "" {
			e.Date = strings.TrimPrefix(item.SK, skHistory)
		}
		out = append(out, e)
	}
	return out, nil
}

// PutHistory writes a snapshot unless one already exists for that date.
// It reports whether the entry was written.
func (r *PriceRepository) PutHistory(ctx context.Context, t model.ItemType, name string, e model.RapHistoryEntry) (bool, error) {
	item, err := store.NewItem(HistoryKey(t, name, e.Date), e)
	if err != nil {
		return false, err
	}
	err = r.store.ConditionalPut(ctx, item, 0)
	if errors.Is(err, store.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("put history %s/%s %s: %w", t, name, e.Date, err)
	}
	return true, nil
}

// MarkSnapshot records the last snapshotted date on the RAP record.
func (r *PriceRepository) MarkSnapshot(ctx context.Context, t model.ItemType, name, date string) error {
	_, err := r.store.Update(ctx, RapKey(t, name), map[string]interface{}{"lastSnapshotDate": date})
	if err != nil {
		return fmt.Errorf("mark snapshot %s/%s: %w", t, name, err)
	}
	return nil
}
