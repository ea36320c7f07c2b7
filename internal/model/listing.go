package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType discriminates the two kinds of tradeable item.
type ItemType string

const (
	ItemCard ItemType = "card"
	ItemPack ItemType = "pack"
)

// ParseItemType validates s.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case ItemCard, ItemPack:
		return ItemType(s), nil
	default:
		return "", fmt.Errorf("unknown item type %q", s)
	}
}

// CardListing offers one specific card instance.
type CardListing struct {
	CardID         string    `json:"cardId"`
	CardName       string    `json:"cardName"`
	CardLevel      int       `json:"cardLevel"`
	CardVariant    string    `json:"cardVariant"`
	SellerID       string    `json:"sellerId"`
	SellerUsername string    `json:"sellerUsername"`
	Cost           int64     `json:"cost"`
	Timestamp      time.Time `json:"timestamp"`
}

// Card returns the inventory card this listing holds.
func (l *CardListing) Card() InventoryCard {
	return InventoryCard{
		CardID:   l.CardID,
		CardName: l.CardName,
		Level:    l.CardLevel,
		Variant:  l.CardVariant,
	}
}

// PackListing offers one unit of a pack type.
type PackListing struct {
	ListingID      string    `json:"listingId"`
	PackName       string    `json:"packName"`
	SellerID       string    `json:"sellerId"`
	SellerUsername string    `json:"sellerUsername"`
	Cost           int64     `json:"cost"`
	Timestamp      time.Time `json:"timestamp"`
}

// Listing is a marketplace listing: exactly one of Card or Pack is set,
// matching Type.
type Listing struct {
	Type ItemType
	Card *CardListing
	Pack *PackListing
}

// NewCardListing wraps l.
func NewCardListing(l CardListing) Listing {
	return Listing{Type: ItemCard, Card: &l}
}

// NewPackListing wraps l.
func NewPackListing(l PackListing) Listing {
	return Listing{Type: ItemPack, Pack: &l}
}

// ID is the listing identity: cardId for cards, listingId for packs.
func (l Listing) ID() string {
	switch l.Type {
	case ItemCard:
		return l.Card.CardID
	case ItemPack:
		return l.Pack.ListingID
	}
	panic(fmt.Sprintf("listing: unknown type %q", l.Type))
}

// ItemName is the card or pack name the listing is indexed under.
func (l Listing) ItemName() string {
	switch l.Type {
	case ItemCard:
		return l.Card.CardName
	case ItemPack:
		return l.Pack.PackName
	}
	panic(fmt.Sprintf("listing: unknown type %q", l.Type))
}

// SellerID returns the listing owner.
func (l Listing) SellerID() string {
	switch l.Type {
	case ItemCard:
		return l.Card.SellerID
	case ItemPack:
		return l.Pack.SellerID
	}
	panic(fmt.Sprintf("listing: unknown type %q", l.Type))
}

// Cost returns the asking price.
func (l Listing) Cost() int64 {
	switch l.Type {
	case ItemCard:
		return l.Card.Cost
	case ItemPack:
		return l.Pack.Cost
	}
	panic(fmt.Sprintf("listing: unknown type %q", l.Type))
}

// Timestamp returns when the listing was created.
func (l Listing) Timestamp() time.Time {
	switch l.Type {
	case ItemCard:
		return l.Card.Timestamp
	case ItemPack:
		return l.Pack.Timestamp
	}
	panic(fmt.Sprintf("listing: unknown type %q", l.Type))
}

// MarshalJSON flattens the variant and adds the "type" discriminant.
func (l Listing) MarshalJSON() ([]byte, error) {
	switch l.Type {
	case ItemCard:
		if l.Card == nil {
			return nil, fmt.Errorf("card listing without card")
		}
		return json.Marshal(struct {
			Type ItemType `json:"type"`
			CardListing
		}{l.Type, *l.Card})
	case ItemPack:
		if l.Pack == nil {
			return nil, fmt.Errorf("pack listing without pack")
		}
		return json.Marshal(struct {
			Type ItemType `json:"type"`
			PackListing
		}{l.Type, *l.Pack})
	default:
		return nil, fmt.Errorf("listing: unknown type %q", l.Type)
	}
}

// UnmarshalJSON reads the discriminant and decodes the matching variant.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	t, err := ParseItemType(head.Type)
	if err != nil {
		return fmt.Errorf("listing: %w", err)
	}

	switch t {
	case ItemCard:
		var c CardListing
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*l = NewCardListing(c)
	case ItemPack:
		var p PackListing
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*l = NewPackListing(p)
	}
	return nil
}
