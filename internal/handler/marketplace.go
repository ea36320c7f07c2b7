package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardvault-api/internal/service"
	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/response"
)

// MarketplaceHandler serves listing, purchase and discovery endpoints.
type MarketplaceHandler struct {
	marketplace *service.MarketplaceService
	purchase    *service.PurchaseService
	discovery   *service.DiscoveryService
	pricing     *service.PricingService
}

// NewMarketplaceHandler creates a new marketplace handler.
func NewMarketplaceHandler(svc *service.Services) *MarketplaceHandler {
	return &MarketplaceHandler{
		marketplace: svc.Marketplace,
		purchase:    svc.Purchase,
		discovery:   svc.Discovery,
		pricing:     svc.Pricing,
	}
}

// List handles POST /marketplace/list
func (h *MarketplaceHandler) List(w http.ResponseWriter, r *http.Request) {
	var req service.ListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.marketplace.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, res)
}

// Buy handles POST /marketplace/buy
func (h *MarketplaceHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req service.BuyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.purchase.Buy(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, res)
}

// Unlist handles POST /marketplace/unlist
func (h *MarketplaceHandler) Unlist(w http.ResponseWriter, r *http.Request) {
	var req service.UnlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.marketplace.Unlist(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, res)
}

// SellerListings handles GET /marketplace/listings/{userId}
func (h *MarketplaceHandler) SellerListings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		response.Error(w, apierror.BadRequest("userId is required"))
		return
	}

	listings, err := h.marketplace.SellerListings(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, listings)
}

// FindSellers handles GET /marketplace/find-sellers?itemName=&itemType=
func (h *MarketplaceHandler) FindSellers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := h.discovery.FindSellers(r.Context(), q.Get("itemType"), q.Get("itemName"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, res)
}

// History handles GET /marketplace/history
func (h *MarketplaceHandler) History(w http.ResponseWriter, r *http.Request) {
	items, err := h.pricing.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"items": items,
	})
}
