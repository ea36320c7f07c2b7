// Package service holds the ledger engines: inventory edits, marketplace
// listing, purchase, multi-party transfer, pricing and seller discovery.
// Every mutation is an optimistic read-validate-commit cycle retried on
// store conflicts.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/config"
	"cardvault-api/internal/events"
	"cardvault-api/internal/observability"
	"cardvault-api/internal/repository"
	"cardvault-api/internal/retry"
	"cardvault-api/pkg/apierror"
)

// Options tunes the engines.
type Options struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxListingsPerUser int
	IdempotencyTTL     time.Duration
	PresenceWindow     time.Duration
	FindSellersLimit   int

	ListingTTL  time.Duration
	PresenceTTL time.Duration
	RapTTL      time.Duration
	HistoryTTL  time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:        retry.DefaultMaxAttempts,
		BaseDelay:          retry.DefaultBaseDelay,
		MaxListingsPerUser: 256,
		IdempotencyTTL:     24 * time.Hour,
		PresenceWindow:     60 * time.Second,
		FindSellersLimit:   30,
		ListingTTL:         15 * time.Second,
		PresenceTTL:        5 * time.Second,
		RapTTL:             30 * time.Second,
		HistoryTTL:         time.Minute,
		Now:                time.Now,
	}
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.MaxAttempts = cfg.Ledger.MaxAttempts
	opts.BaseDelay = cfg.Ledger.BaseDelay
	opts.MaxListingsPerUser = cfg.Ledger.MaxListingsPerUser
	opts.IdempotencyTTL = cfg.Ledger.IdempotencyTTL
	opts.PresenceWindow = cfg.Ledger.PresenceWindow
	opts.FindSellersLimit = cfg.Ledger.FindSellersLimit
	opts.ListingTTL = cfg.Cache.ListingTTL
	opts.PresenceTTL = cfg.Cache.PresenceTTL
	opts.RapTTL = cfg.Cache.RapTTL
	opts.HistoryTTL = cfg.Cache.HistoryTTL
	return opts
}

// core is shared by every engine.
type core struct {
	repos  *repository.Repositories
	cache  *cache.ReadThrough
	events events.Publisher
	opts   Options
	log    zerolog.Logger
}

func (c *core) now() time.Time {
	return c.opts.Now().UTC()
}

func (c *core) policy(name string) retry.Policy {
	return retry.Policy{
		Name:        name,
		MaxAttempts: c.opts.MaxAttempts,
		BaseDelay:   c.opts.BaseDelay,
	}
}

func (c *core) publish(ctx context.Context, eventType string, data interface{}) {
	if err := c.events.Publish(ctx, events.New(eventType, data)); err != nil {
		c.log.Warn().Err(err).Str("type", eventType).Msg("event publish failed")
	}
}

// observe counts a ledger operation by outcome.
func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if apiErr, ok := apierror.As(err); ok {
			outcome = apiErr.Code
		}
	}
	observability.LedgerOps.WithLabelValues(op, outcome).Inc()
}

// Services bundles the engines over one store, cache and event sink.
type Services struct {
	Inventory   *InventoryService
	Marketplace *MarketplaceService
	Purchase    *PurchaseService
	Transfer    *TransferService
	Pricing     *PricingService
	Discovery   *DiscoveryService
}

// New wires every engine.
func New(repos *repository.Repositories, rt *cache.ReadThrough, pub events.Publisher, opts Options, log zerolog.Logger) *Services {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = events.Nop{}
	}
	c := &core{repos: repos, cache: rt, events: pub, opts: opts, log: log}

	pricing := &PricingService{core: c}
	return &Services{
		Inventory:   &InventoryService{core: c},
		Marketplace: &MarketplaceService{core: c},
		Purchase:    &PurchaseService{core: c},
		Transfer:    &TransferService{core: c},
		Pricing:     pricing,
		Discovery:   &DiscoveryService{core: c, pricing: pricing},
	}
}
