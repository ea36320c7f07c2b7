package repository

import (
	"cardvault-api/internal/model"
	"cardvault-api/internal/store"
)

// Partition and sort key layout.
const (
	skInventory   = "INVENTORY"
	skPresence    = "PRESENCE"
	skListing     = "LISTING"
	skRapCurrent  = "CURRENT"
	skHistory     = "HISTORY#"
	skTransfer    = "TRANSFER"
	pkRapRegistry = "RAP_REGISTRY"
)

func userPK(userID string) string { return "USER#" + userID }

// InventoryKey addresses a user's inventory.
func InventoryKey(userID string) store.Key {
	return store.Key{PK: userPK(userID), SK: skInventory}
}

// PresenceKey addresses a user's last heartbeat.
func PresenceKey(userID string) store.Key {
	return store.Key{PK: userPK(userID), SK: skPresence}
}

// ListingKey addresses the primary listing row.
func ListingKey(t model.ItemType, id string) store.Key {
	return store.Key{PK: "LISTING#" + string(t) + "#" + id, SK: skListing}
}

func sellerPK(sellerID string) string { return "SELLER#" + sellerID }

func itemPK(t model.ItemType, name string) string {
	return "ITEM#" + string(t) + "#" + name
}

func indexSK(t model.ItemType, id string) string { return string(t) + "#" + id }

// SellerIndexKey addresses a listing under its seller.
func SellerIndexKey(sellerID string, t model.ItemType, id string) store.Key {
	return store.Key{PK: sellerPK(sellerID), SK: indexSK(t, id)}
}

// ItemIndexKey addresses a listing under its item.
func ItemIndexKey(t model.ItemType, name, id string) store.Key {
	return store.Key{PK: itemPK(t, name), SK: indexSK(t, id)}
}

func rapPK(t model.ItemType, name string) string {
	return "RAP#" + string(t) + "#" + name
}

// RapKey addresses an item's current RAP.
func RapKey(t model.ItemType, name string) store.Key {
	return store.Key{PK: rapPK(t, name), SK: skRapCurrent}
}

// HistoryKey addresses one daily snapshot.
func HistoryKey(t model.ItemType, name, date string) store.Key {
	return store.Key{PK: rapPK(t, name), SK: skHistory + date}
}

// RegistryKey addresses an item's registry entry.
func RegistryKey(t model.ItemType, name string) store.Key {
	return store.Key{PK: pkRapRegistry, SK: string(t) + "#" + name}
}

// IdempotencyKey addresses a transfer's idempotency marker.
func IdempotencyKey(key string) store.Key {
	return store.Key{PK: "IDEMPOTENCY#" + key, SK: skTransfer}
}
