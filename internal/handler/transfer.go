package handler

import (
	"net/http"
	"strings"

	"cardvault-api/internal/service"
	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/response"
	"cardvault-api/pkg/uid"
)

const (
	// IdempotencyKeyHeader carries the client's key for POST /transfer.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from a stored outcome.
	ReplayedHeader = "Idempotent-Replayed"
)

// TransferHandler serves multi-party transfers.
type TransferHandler struct {
	transfers *service.TransferService
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(transfers *service.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// Transfer handles POST /transfer
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		response.Error(w, apierror.BadRequest("Idempotency-Key header is required"))
		return
	}
	if !uid.IsValidKey(key) {
		response.Error(w, apierror.BadRequest("Idempotency-Key header is malformed"))
		return
	}

	var req service.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.transfers.Transfer(r.Context(), key, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if out.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	response.Raw(w, out.StatusCode, out.Body)
}
