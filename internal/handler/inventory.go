package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardvault-api/internal/service"
	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/response"
)

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	inventory   *service.InventoryService
	marketplace *service.MarketplaceService
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory *service.InventoryService, marketplace *service.MarketplaceService) *InventoryHandler {
	return &InventoryHandler{
		inventory:   inventory,
		marketplace: marketplace,
	}
}

// ModifyRequest is the body of POST /user/inventory/modify.
type ModifyRequest struct {
	UserID     string                       `json:"userId"`
	Operations []service.InventoryOperation `json:"operations"`
}

// Modify handles POST /user/inventory/modify
func (h *InventoryHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := h.inventory.Modify(r.Context(), req.UserID, req.Operations)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, inv)
}

// Get handles GET /user/inventory/{userId}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		response.Error(w, apierror.BadRequest("userId is required"))
		return
	}

	inv, err := h.inventory.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, inv)
}

// Heartbeat handles POST /user/heartbeat
func (h *InventoryHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.marketplace.Heartbeat(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, p)
}
