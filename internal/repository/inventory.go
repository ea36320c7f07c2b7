package repository

import (
	"context"
	"fmt"

	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// InventoryRepository loads and writes user inventories. Every write is
// conditioned on the version the inventory was read at.
type InventoryRepository struct {
	store store.Store
}

// NewInventoryRepository creates a new inventory repository.
func NewInventoryRepository(st store.Store) *InventoryRepository {
	return &InventoryRepository{store: st}
}

func decodeInventory(userID string, item *store.Item) (*model.UserInventory, error) {
	if item == nil {
		return model.NewUserInventory(userID), nil
	}
	var inv model.UserInventory
	if err := item.Decode(&inv); err != nil {
		return nil, err
	}
	inv.UserID = userID
	inv.Version = item.Version
	inv.Normalize()
	return &inv, nil
}

// Get returns the user's inventory. A user without one gets an empty
// inventory at version 0.
func (r *InventoryRepository) Get(ctx context.Context, userID string) (*model.UserInventory, error) {
	item, err := r.store.Get(ctx, InventoryKey(userID))
	if err != nil {
		return nil, fmt.Errorf("get inventory %s: %w", userID, err)
	}
	return decodeInventory(userID, item)
}

// GetMany loads the inventories of userIDs in one batch read.
func (r *InventoryRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*model.UserInventory, error) {
	keys := make([]store.Key, len(userIDs))
	for i, id := range userIDs {
		keys[i] = InventoryKey(id)
	}
	items, err := r.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("batch get inventories: %w", err)
	}

	byPK := make(map[string]*store.Item, len(items))
	for i := range items {
		byPK[items[i].PK] = &items[i]
	}

	out := make(map[string]*model.UserInventory, len(userIDs))
	for _, id := range userIDs {
		inv, err := decodeInventory(id, byPK[userPK(id)])
		if err != nil {
			return nil, err
		}
		out[id] = inv
	}
	return out, nil
}

func (r *InventoryRepository) encode(inv *model.UserInventory) (store.Item, error) {
	next := *inv
	next.Version = inv.Version + 1
	next.Normalize()
	return store.NewItem(InventoryKey(inv.UserID), &next)
}

// Save writes inv conditioned on inv.Version and advances it on success.
func (r *InventoryRepository) Save(ctx context.Context, inv *model.UserInventory) error {
	item, err := r.encode(inv)
	if err != nil {
		return err
	}
	if err := r.store.ConditionalPut(ctx, item, inv.Version); err != nil {
		return fmt.Errorf("save inventory %s: %w", inv.UserID, err)
	}
	inv.Version++
	return nil
}

// SaveOp builds the transaction op that writes inv conditioned on the
// version it was read at.
func (r *InventoryRepository) SaveOp(inv *model.UserInventory) (store.TransactOp, error) {
	item, err := r.encode(inv)
	if err != nil {
		return store.TransactOp{}, err
	}
	return store.PutOp(item, store.ExpectVersion(inv.Version)), nil
}

// ExistsOp asserts the user's inventory still exists.
func (r *InventoryRepository) ExistsOp(userID string) store.TransactOp {
	return store.CheckOp(InventoryKey(userID), store.Exists())
}
