package service

import (
	"context"
	"fmt"

	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
	"cardvault-api/internal/retry"
	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/uid"
)

// ListRequest creates a listing.
type ListRequest struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	CardID   string `json:"cardId,omitempty"`
	PackName string `json:"packName,omitempty"`
	Cost     int64  `json:"cost"`
}

// ListResult is the seller's state after listing.
type ListResult struct {
	Listing   model.Listing        `json:"listing"`
	Listings  []model.Listing      `json:"listings"`
	Inventory *model.UserInventory `json:"inventory"`
}

// UnlistRequest removes a listing.
type UnlistRequest struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	CardID    string `json:"cardId,omitempty"`
	ListingID string `json:"listingId,omitempty"`
}

// UnlistResult is the seller's state after unlisting.
type UnlistResult struct {
	Listings  []model.Listing      `json:"listings"`
	Inventory *model.UserInventory `json:"inventory"`
}

// MarketplaceService creates and removes listings. The listing, its index
// rows and the seller's inventory always change in one transaction.
type MarketplaceService struct {
	*core
}

func (r ListRequest) validate() (model.ItemType, error) {
	t, err := model.ParseItemType(r.Type)
	if err != nil {
		return "", apierror.BadRequest(err.Error())
	}
	if r.UserID == "" {
		return "", apierror.BadRequest("userId is required")
	}
	if r.Cost <= 0 {
		return "", apierror.BadRequest("cost must be a positive integer")
	}
	switch t {
	case model.ItemCard:
		if r.CardID == "" {
			return "", apierror.BadRequest("cardId is required")
		}
	case model.ItemPack:
		if r.PackName == "" {
			return "", apierror.BadRequest("packName is required")
		}
	}
	return t, nil
}

// List moves an item from the seller's inventory into a new listing.
func (s *MarketplaceService) List(ctx context.Context, req ListRequest) (res *ListResult, err error) {
	defer func() { observe("marketplace.list", err) }()

	t, err := req.validate()
	if err != nil {
		return nil, err
	}

	type committed struct {
		listing   model.Listing
		inventory *model.UserInventory
	}

	out, err := retry.Do(ctx, s.policy("marketplace.list"), func(ctx context.Context) (*committed, error) {
		if t == model.ItemCard {
			existing, err := s.repos.Listings.Get(ctx, model.ItemCard, req.CardID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, apierror.Conflict("card is already listed")
			}
		}

		current, err := s.repos.Listings.BySeller(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if len(current) >= s.opts.MaxListingsPerUser {
			return nil, apierror.BadRequest(fmt.Sprintf("listing limit of %d reached", s.opts.MaxListingsPerUser))
		}

		inv, err := s.repos.Inventory.Get(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		next := inv.Clone()

		var listing model.Listing
		switch t {
		case model.ItemCard:
			card, err := next.RemoveCard(req.CardID)
			if err != nil {
				return nil, domainError(err)
			}
			listing = model.NewCardListing(model.CardListing{
				CardID:         card.CardID,
				CardName:       card.CardName,
				CardLevel:      card.Level,
				CardVariant:    card.Variant,
				SellerID:       req.UserID,
				SellerUsername: req.Username,
				Cost:           req.Cost,
				Timestamp:      s.now(),
			})
		case model.ItemPack:
			if next.PackCount(req.PackName) < 1 {
				return nil, apierror.BadRequest("no " + req.PackName + " packs to list")
			}
			if err := next.RemovePack(req.PackName, 1); err != nil {
				return nil, domainError(err)
			}
			listing = model.NewPackListing(model.PackListing{
				ListingID:      uid.New(),
				PackName:       req.PackName,
				SellerID:       req.UserID,
				SellerUsername: req.Username,
				Cost:           req.Cost,
				Timestamp:      s.now(),
			})
		}

		ops, err := s.repos.Listings.CreateOps(listing)
		if err != nil {
			return nil, err
		}
		saveOp, err := s.repos.Inventory.SaveOp(next)
		if err != nil {
			return nil, err
		}
		if err := s.repos.Store.TransactWrite(ctx, append(ops, saveOp)); err != nil {
			return nil, err
		}
		next.Version++
		return &committed{listing: listing, inventory: next}, nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, listingsCacheKey(t, out.listing.ItemName()))
	s.publish(ctx, events.ListingCreated, out.listing)

	listings, err := s.repos.Listings.BySeller(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &ListResult{Listing: out.listing, Listings: listings, Inventory: out.inventory}, nil
}

func (r UnlistRequest) validate() (model.ItemType, string, error) {
	t, err := model.ParseItemType(r.Type)
	if err != nil {
		return "", "", apierror.BadRequest(err.Error())
	}
	if r.UserID == "" {
		return "", "", apierror.BadRequest("userId is required")
	}
	id := r.CardID
	if t == model.ItemPack {
		id = r.ListingID
	}
	if id == "" {
		if t == model.ItemPack {
			return "", "", apierror.BadRequest("listingId is required")
		}
		return "", "", apierror.BadRequest("cardId is required")
	}
	return t, id, nil
}

// Unlist removes a listing owned by the caller and returns the item to
// the caller's inventory.
func (s *MarketplaceService) Unlist(ctx context.Context, req UnlistRequest) (res *UnlistResult, err error) {
	defer func() { observe("marketplace.unlist", err) }()

	t, id, err := req.validate()
	if err != nil {
		return nil, err
	}

	type committed struct {
		listing   model.Listing
		inventory *model.UserInventory
	}

	out, err := retry.Do(ctx, s.policy("marketplace.unlist"), func(ctx context.Context) (*committed, error) {
		listing, err := s.repos.Listings.Get(ctx, t, id)
		if err != nil {
			return nil, err
		}
		if listing == nil {
			return nil, apierror.NotFound("listing not found")
		}
		if listing.SellerID() != req.UserID {
			return nil, apierror.Forbidden("listing belongs to another user")
		}

		inv, err := s.repos.Inventory.Get(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		next := inv.Clone()

		switch listing.Type {
		case model.ItemCard:
			if !next.HasCard(listing.Card.CardID) {
				if err := next.AddCard(listing.Card.Card()); err != nil {
					return nil, domainError(err)
				}
			}
		case model.ItemPack:
			if err := next.AddPack(listing.Pack.PackName, 1); err != nil {
				return nil, domainError(err)
			}
		default:
			return nil, fmt.Errorf("unlist: unknown listing type %q", listing.Type)
		}

		saveOp, err := s.repos.Inventory.SaveOp(next)
		if err != nil {
			return nil, err
		}
		ops := append(s.repos.Listings.DeleteOps(*listing), saveOp)
		if err := s.repos.Store.TransactWrite(ctx, ops); err != nil {
			return nil, err
		}
		next.Version++
		return &committed{listing: *listing, inventory: next}, nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, listingsCacheKey(t, out.listing.ItemName()))
	s.publish(ctx, events.ListingRemoved, out.listing)

	listings, err := s.repos.Listings.BySeller(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &UnlistResult{Listings: listings, Inventory: out.inventory}, nil
}

// SellerListings returns the seller's active listings.
func (s *MarketplaceService) SellerListings(ctx context.Context, sellerID string) ([]model.Listing, error) {
	if sellerID == "" {
		return nil, apierror.BadRequest("userId is required")
	}
	return s.repos.Listings.BySeller(ctx, sellerID)
}

// Heartbeat records that the user is online.
func (s *MarketplaceService) Heartbeat(ctx context.Context, userID string) (model.Presence, error) {
	if userID == "" {
		return model.Presence{}, apierror.BadRequest("userId is required")
	}
	p, err := s.repos.Presence.Heartbeat(ctx, userID, s.now())
	if err != nil {
		return model.Presence{}, err
	}
	s.cache.Invalidate(ctx, presenceCacheKey(userID))
	return p, nil
}
