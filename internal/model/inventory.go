package model

import (
	"errors"
	"fmt"
)

// Card defaults applied when a card is added without them.
const (
	DefaultCardLevel   = 1
	DefaultCardVariant = "Normal"
)

// Inventory mutation errors. The service layer maps these to API errors.
var (
	ErrInvalidCard       = errors.New("card requires cardId and cardName")
	ErrDuplicateCard     = errors.New("card already in inventory")
	ErrCardNotFound      = errors.New("card not found in inventory")
	ErrInvalidLevel      = errors.New("level must be a positive integer")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidPackName   = errors.New("packName is required")
	ErrInsufficientPacks = errors.New("insufficient pack quantity")
)

// InventoryCard is one card instance. CardID is globally unique.
type InventoryCard struct {
	CardID   string `json:"cardId"`
	CardName string `json:"cardName"`
	Level    int    `json:"level"`
	Variant  string `json:"variant"`
}

// UserInventory is a user's cards and pack counts. Version is the store
// version the inventory was read at; 0 means it does not exist yet.
type UserInventory struct {
	UserID  string          `json:"userId"`
	Cards   []InventoryCard `json:"cards"`
	Packs   map[string]int  `json:"packs"`
	Version int64           `json:"version"`
}

// NewUserInventory returns the empty, not yet stored inventory of userID.
func NewUserInventory(userID string) *UserInventory {
	return &UserInventory{
		UserID: userID,
		Cards:  []InventoryCard{},
		Packs:  map[string]int{},
	}
}

// Normalize replaces nil collections so the JSON shape is stable.
func (inv *UserInventory) Normalize() {
	if inv.Cards == nil {
		inv.Cards = []InventoryCard{}
	}
	if inv.Packs == nil {
		inv.Packs = map[string]int{}
	}
}

// Clone returns a deep copy.
func (inv *UserInventory) Clone() *UserInventory {
	out := &UserInventory{
		UserID:  inv.UserID,
		Cards:   append([]InventoryCard{}, inv.Cards...),
		Packs:   make(map[string]int, len(inv.Packs)),
		Version: inv.Version,
	}
	for name, n := range inv.Packs {
		out.Packs[name] = n
	}
	return out
}

func (inv *UserInventory) cardIndex(cardID string) int {
	for i, c := range inv.Cards {
		if c.CardID == cardID {
			return i
		}
	}
	return -1
}

// HasCard reports whether the inventory holds cardID.
func (inv *UserInventory) HasCard(cardID string) bool {
	return inv.cardIndex(cardID) >= 0
}

// Card returns the card with cardID.
func (inv *UserInventory) Card(cardID string) (InventoryCard, bool) {
	if i := inv.cardIndex(cardID); i >= 0 {
		return inv.Cards[i], true
	}
	return InventoryCard{}, false
}

// AddCard appends card, applying the level and variant defaults.
func (inv *UserInventory) AddCard(card InventoryCard) error {
	if card.CardID == "" || card.CardName == "" {
		return ErrInvalidCard
	}
	if card.Level == 0 {
		card.Level = DefaultCardLevel
	}
	if card.Level < 0 {
		return ErrInvalidLevel
	}
	if card.Variant == "" {
		card.Variant = DefaultCardVariant
	}
	if inv.HasCard(card.CardID) {
		return fmt.Errorf("%w: %s", ErrDuplicateCard, card.CardID)
	}
	inv.Cards = append(inv.Cards, card)
	return nil
}

// RemoveCard removes and returns the card with cardID.
func (inv *UserInventory) RemoveCard(cardID string) (InventoryCard, error) {
	i := inv.cardIndex(cardID)
	if i < 0 {
		return InventoryCard{}, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	card := inv.Cards[i]
	inv.Cards = append(inv.Cards[:i:i], inv.Cards[i+1:]...)
	return card, nil
}

// SetCardLevel sets the level of cardID.
func (inv *UserInventory) SetCardLevel(cardID string, level int) error {
	if level < 1 {
		return ErrInvalidLevel
	}
	i := inv.cardIndex(cardID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	inv.Cards[i].Level = level
	return nil
}

// PackCount returns how many packs called name the user holds.
func (inv *UserInventory) PackCount(name string) int {
	return inv.Packs[name]
}

// AddPack adds qty packs called name.
func (inv *UserInventory) AddPack(name string, qty int) error {
	if name == "" {
		return ErrInvalidPackName
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if inv.Packs == nil {
		inv.Packs = map[string]int{}
	}
	inv.Packs[name] += qty
	return nil
}

// RemovePack removes qty packs called name, dropping the entry at zero.
func (inv *UserInventory) RemovePack(name string, qty int) error {
	if name == "" {
		return ErrInvalidPackName
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	have := inv.Packs[name]
	if have < qty {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientPacks, name, have, qty)
	}
	if have == qty {
		delete(inv.Packs, name)
		return nil
	}
	inv.Packs[name] = have - qty
	return nil
}
