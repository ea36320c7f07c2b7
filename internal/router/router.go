package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"cardvault-api/internal/handler"
	"cardvault-api/internal/middleware"
	"cardvault-api/internal/observability"
)

// Config holds the configuration for creating a router.
type Config struct {
	Logger             zerolog.Logger
	Handler            *handler.Handler
	InventoryHandler   *handler.InventoryHandler
	MarketplaceHandler *handler.MarketplaceHandler
	TransferHandler    *handler.TransferHandler
	AdminHandler       *handler.AdminHandler
	// LiveFeed serves GET /marketplace/ws when set.
	LiveFeed       http.HandlerFunc
	AuthMiddleware func(http.Handler) http.Handler
	// Metrics mounts /metrics and the request collectors.
	Metrics bool
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// RequestID goes first so everything below logs with the request id.
	r.Use(middleware.RequestID(cfg.Logger))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	if cfg.Metrics {
		r.Use(observability.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", handler.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID", handler.ReplayedHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/health", cfg.Handler.Health)
		r.Get("/ready", cfg.Handler.Ready)
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", observability.Handler())
	}
	if cfg.InventoryHandler != nil {
		r.Get("/user/inventory/{userId}", cfg.InventoryHandler.Get)
	}
	if cfg.MarketplaceHandler != nil {
		r.Route("/marketplace", func(r chi.Router) {
			r.Get("/listings/{userId}", cfg.MarketplaceHandler.SellerListings)
			r.Get("/find-sellers", cfg.MarketplaceHandler.FindSellers)
			r.Get("/history", cfg.MarketplaceHandler.History)
			if cfg.LiveFeed != nil {
				r.Get("/ws", cfg.LiveFeed)
			}
		})
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		if cfg.InventoryHandler != nil {
			r.Post("/user/inventory/modify", cfg.InventoryHandler.Modify)
			r.Post("/user/heartbeat", cfg.InventoryHandler.Heartbeat)
		}

		if cfg.MarketplaceHandler != nil {
			r.Post("/marketplace/list", cfg.MarketplaceHandler.List)
			r.Post("/marketplace/buy", cfg.MarketplaceHandler.Buy)
			r.Post("/marketplace/unlist", cfg.MarketplaceHandler.Unlist)
		}

		if cfg.TransferHandler != nil {
			r.Post("/transfer", cfg.TransferHandler.Transfer)
		}

		if cfg.AdminHandler != nil {
			r.Route("/api/admin", func(r chi.Router) {
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Post("/backfill", cfg.AdminHandler.Backfill)
			})
		}
	})

	return r
}
