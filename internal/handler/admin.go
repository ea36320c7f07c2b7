package handler

import (
	"net/http"
	"runtime"
	"time"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/service"
	"cardvault-api/internal/store"
	"cardvault-api/pkg/response"
)

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	Clients() int
}

// CacheSizer reports the number of cached entries.
type CacheSizer interface {
	Len() int
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     store.Store
	storeType string
	cache     cache.Cache
	hub       ClientCounter
	pricing   *service.PricingService
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. cache and hub are optional.
func NewAdminHandler(st store.Store, storeType string, c cache.Cache, hub ClientCounter, pricing *service.PricingService) *AdminHandler {
	return &AdminHandler{
		store:     st,
		storeType: storeType,
		cache:     c,
		hub:       hub,
		pricing:   pricing,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if storeStats, err := h.store.Stats(ctx); err == nil {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	} else {
		stats["store"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	switch c := h.cache.(type) {
	case CacheSizer:
		stats["cache"] = map[string]interface{}{"entries": c.Len(), "status": "memory"}
	case nil:
		stats["cache"] = map[string]interface{}{"status": "not_configured"}
	default:
		stats["cache"] = map[string]interface{}{"status": "remote"}
	}

	if h.hub != nil {
		stats["websocket_clients"] = h.hub.Clients()
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// Backfill handles POST /api/admin/backfill
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	res, err := h.pricing.Backfill(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}
