// Package repository maps the ledger's entities onto the key-value store:
// key layout, typed loads and transaction-op builders.
package repository

import "cardvault-api/internal/store"

// Repositories bundles the typed repositories over one store.
type Repositories struct {
	Store       store.Store
	Inventory   *InventoryRepository
	Listings    *ListingRepository
	Prices      *PriceRepository
	Idempotency *IdempotencyRepository
	Presence    *PresenceRepository
}

// New creates every repository over st.
func New(st store.Store) *Repositories {
	return &Repositories{
		Store:       st,
		Inventory:   NewInventoryRepository(st),
		Listings:    NewListingRepository(st),
		Prices:      NewPriceRepository(st),
		Idempotency: NewIdempotencyRepository(st),
		Presence:    NewPresenceRepository(st),
	}
}
