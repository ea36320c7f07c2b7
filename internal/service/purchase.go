package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cardvault-api/internal/events"
	"cardvault-api/internal/model"
	"cardvault-api/internal/observability"
	"cardvault-api/internal/retry"
	"cardvault-api/pkg/apierror"
)

// BuyRequest purchases a listing at the price the buyer saw.
type BuyRequest struct {
	Type         string `json:"type"`
	BuyerID      string `json:"buyerId"`
	CardID       string `json:"cardId,omitempty"`
	ListingID    string `json:"listingId,omitempty"`
	ExpectedCost int64  `json:"expectedCost"`
}

// BuyResult is the state of both parties after a purchase.
type BuyResult struct {
	Listing         model.Listing        `json:"listing"`
	Rap             float64              `json:"rap"`
	BuyerInventory  *model.UserInventory `json:"buyerInventory"`
	SellerInventory *model.UserInventory `json:"sellerInventory"`
}

// PurchaseService settles purchases. The listing delete, both inventory
// writes and the RAP update commit in one transaction; the Exists
// condition on the listing makes a second purchase of it impossible.
type PurchaseService struct {
	*core
}

func (r BuyRequest) validate() (model.ItemType, string, error) {
	t, err := model.ParseItemType(r.Type)
	if err != nil {
		return "", "", apierror.BadRequest(err.Error())
	}
	if r.BuyerID == "" {
		return "", "", apierror.BadRequest("buyerId is required")
	}
	if r.ExpectedCost <= 0 {
		return "", "", apierror.BadRequest("expectedCost must be a positive integer")
	}
	switch t {
	case model.ItemCard:
		if r.CardID == "" {
			return "", "", apierror.BadRequest("cardId is required")
		}
		return t, r.CardID, nil
	case model.ItemPack:
		if r.ListingID == "" {
			return "", "", apierror.BadRequest("listingId is required")
		}
		return t, r.ListingID, nil
	}
	return "", "", apierror.BadRequest("unknown item type")
}

// Buy purchases a card or pack listing.
func (s *PurchaseService) Buy(ctx context.Context, req BuyRequest) (res *BuyResult, err error) {
	defer func() { observe("marketplace.buy", err) }()

	t, id, err := req.validate()
	if err != nil {
		return nil, err
	}

	res, err = retry.Do(ctx, s.policy("marketplace.buy"), func(ctx context.Context) (*BuyResult, error) {
		return s.attempt(ctx, req, t, id)
	})
	if err != nil {
		return nil, err
	}

	name := res.Listing.ItemName()
	s.cache.Invalidate(ctx, listingsCacheKey(t, name), rapCacheKey(t, name), historyCacheKey)
	observability.RapValue.WithLabelValues(string(t), name).Set(res.Rap)
	s.publish(ctx, events.ListingSold, map[string]interface{}{
		"listing": res.Listing,
		"buyerId": req.BuyerID,
	})
	s.publish(ctx, events.RapUpdated, map[string]interface{}{
		"itemType": t,
		"itemName": name,
		"rap":      res.Rap,
	})
	return res, nil
}

func (s *PurchaseService) attempt(ctx context.Context, req BuyRequest, t model.ItemType, id string) (*BuyResult, error) {
	listing, err := s.repos.Listings.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, apierror.NotFound("listing not found")
	}
	if listing.Cost() != req.ExpectedCost {
		return nil, apierror.Conflict(fmt.Sprintf("listing price is %d, expected %d", listing.Cost(), req.ExpectedCost))
	}
	sellerID := listing.SellerID()
	if sellerID == req.BuyerID {
		return nil, apierror.BadRequest("cannot buy your own listing")
	}

	var (
		seller, buyer *model.UserInventory
		prior         *model.RapRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		seller, err = s.repos.Inventory.Get(gctx, sellerID)
		return err
	})
	g.Go(func() (err error) {
		buyer, err = s.repos.Inventory.Get(gctx, req.BuyerID)
		return err
	})
	g.Go(func() (err error) {
		prior, err = s.repos.Prices.GetRap(gctx, t, listing.ItemName())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ops := s.repos.Listings.DeleteOps(*listing)
	nextSeller := seller.Clone()
	nextBuyer := buyer.Clone()
	sellerWritten := false

	switch listing.Type {
	case model.ItemCard:
		if seller.Version == 0 {
			s.purgeOrphan(ctx, *listing)
			return nil, apierror.Gone("listing is no longer backed by the seller")
		}
		if nextSeller.HasCard(listing.Card.CardID) {
			// The card drifted back to the seller; it must not exist twice.
			if _, err := nextSeller.RemoveCard(listing.Card.CardID); err != nil {
				return nil, domainError(err)
			}
			op, err := s.repos.Inventory.SaveOp(nextSeller)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			sellerWritten = true
		} else {
			ops = append(ops, s.repos.Inventory.ExistsOp(sellerID))
		}
		if err := nextBuyer.AddCard(listing.Card.Card()); err != nil {
			return nil, domainError(err)
		}
	case model.ItemPack:
		if err := nextBuyer.AddPack(listing.Pack.PackName, 1); err != nil {
			return nil, domainError(err)
		}
	default:
		return nil, fmt.Errorf("buy: unknown listing type %q", listing.Type)
	}

	buyerOp, err := s.repos.Inventory.SaveOp(nextBuyer)
	if err != nil {
		return nil, err
	}
	ops = append(ops, buyerOp)

	var priorRap *float64
	if prior != nil {
		priorRap = &prior.Rap
	}
	rap := NextRap(priorRap, listing.Cost())
	rapOps, err := s.repos.Prices.RapOps(t, listing.ItemName(), prior, rap, s.now())
	if err != nil {
		return nil, err
	}
	ops = append(ops, rapOps...)

	if err := s.repos.Store.TransactWrite(ctx, ops); err != nil {
		return nil, err
	}

	nextBuyer.Version++
	if sellerWritten {
		nextSeller.Version++
	}
	return &BuyResult{
		Listing:         *listing,
		Rap:             rap,
		BuyerInventory:  nextBuyer,
		SellerInventory: nextSeller,
	}, nil
}

// purgeOrphan deletes a listing whose seller state is gone. Failures are
// logged; the next purchase attempt retries the cleanup.
func (s *PurchaseService) purgeOrphan(ctx context.Context, l model.Listing) {
	if err := s.repos.Listings.Purge(ctx, l); err != nil {
		s.log.Warn().Err(err).Str("listing", l.ID()).Msg("orphan listing cleanup failed")
		return
	}
	s.cache.Invalidate(ctx, listingsCacheKey(l.Type, l.ItemName()))
	s.log.Info().Str("listing", l.ID()).Str("seller", l.SellerID()).Msg("removed orphan listing")
}
