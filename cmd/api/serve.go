package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/config"
	"cardvault-api/internal/events"
	"cardvault-api/internal/handler"
	"cardvault-api/internal/middleware"
	"cardvault-api/internal/observability"
	"cardvault-api/internal/repository"
	"cardvault-api/internal/router"
	"cardvault-api/internal/service"
	"cardvault-api/internal/store"
)

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return store.OpenPostgres(cfg.PostgresDSN())
	case "mysql":
		return store.OpenMySQL(cfg.MySQLDSN())
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return store.OpenSQLite(cfg.SQLitePath)
	case "level", "leveldb", "":
		if cfg.LevelPath != "" {
			if err := os.MkdirAll(cfg.LevelPath, 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
		return store.OpenLevelStore(cfg.LevelPath)
	default:
		return nil, fmt.Errorf("unknown STORE_TYPE %q", cfg.Type)
	}
}

func ensureDir(file string) error {
	if file == "" || file == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return nil
}

func openCache(cfg config.CacheConfig, log zerolog.Logger) cache.Cache {
	if cfg.Type == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.RedisAddress(),
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err == nil {
			log.Info().Str("addr", cfg.RedisAddress()).Msg("redis cache initialized")
			return rc
		}
		log.Warn().Err(err).Msg("redis cache unavailable, falling back to memory")
	}
	return cache.NewMemoryCache(cfg.CleanupInterval)
}

// app is everything the serve and backfill commands share.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    store.Store
	cache    cache.Cache
	services *service.Services
	closers  []func() error
}

func newApp(cfg *config.Config, pub events.Publisher) (*app, error) {
	log := observability.NewLogger("api", cfg.Log.Level)

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Type, err)
	}
	log.Info().Str("type", cfg.Store.Type).Msg("store initialized")

	c := openCache(cfg.Cache, log)
	rt := cache.NewReadThrough(c, observability.NewLogger("cache", cfg.Log.Level))

	if pub == nil {
		pub = events.Nop{}
	}

	svc := service.New(
		repository.New(st),
		rt,
		pub,
		service.OptionsFromConfig(cfg),
		observability.NewLogger("ledger", cfg.Log.Level),
	)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		cache:    c,
		services: svc,
		closers:  []func() error{c.Close, st.Close},
	}, nil
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}

func runBackfill(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.services.Pricing.Backfill(ctx)
	if err != nil {
		return err
	}
	a.log.Info().
		Int("items", res.Items).
		Int("written", res.Written).
		Str("date", res.Date).
		Msg("backfill complete")
	return nil
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := observability.NewLogger("api", cfg.Log.Level)
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).Msg("starting cardvault api")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []events.Publisher
	var hub *events.Hub
	if cfg.Events.WebSocket {
		hub = events.NewHub(observability.NewLogger("ws", cfg.Log.Level))
		go hub.Run(ctx)
		sinks = append(sinks, hub)
	}
	var natsPub *events.NATSPublisher
	if cfg.Events.NATSURL != "" {
		natsPub, err = events.ConnectNATS(ctx, events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			Stream:        cfg.Events.Stream,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, observability.NewLogger("nats", cfg.Log.Level))
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, events will not be streamed")
		} else {
			sinks = append(sinks, natsPub)
		}
	}

	a, err := newApp(cfg, events.NewMulti(log, sinks...))
	if err != nil {
		return err
	}
	defer a.Close()
	if natsPub != nil {
		defer natsPub.Close()
	}

	scheduler := service.NewCleanupScheduler(a.store, a.services.Pricing, service.CleanupConfig{
		PurgeInterval:    cfg.Ledger.CleanupInterval,
		BackfillInterval: cfg.Ledger.BackfillInterval,
		InitialDelay:     service.DefaultCleanupConfig().InitialDelay,
	}, observability.NewLogger("cleanup", cfg.Log.Level))
	scheduler.Start()
	defer scheduler.Stop()

	authDisabled := len(cfg.Auth.APIKeys) == 0 && cfg.App.IsDevelopment()
	if authDisabled {
		log.Warn().Msg("API_KEYS not set, authentication disabled in development")
	}

	var liveFeed http.HandlerFunc
	var clients handler.ClientCounter
	if hub != nil {
		liveFeed = hub.HandleWS
		clients = hub
	}

	r := router.New(router.Config{
		Logger:             observability.NewLogger("http", cfg.Log.Level),
		Handler:            handler.New(a.store, cfg.App.Version),
		InventoryHandler:   handler.NewInventoryHandler(a.services.Inventory, a.services.Marketplace),
		MarketplaceHandler: handler.NewMarketplaceHandler(a.services),
		TransferHandler:    handler.NewTransferHandler(a.services.Transfer),
		AdminHandler:       handler.NewAdminHandler(a.store, cfg.Store.Type, a.cache, clients, a.services.Pricing),
		LiveFeed:           liveFeed,
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:  cfg.Auth.APIKeys,
			Disabled: authDisabled,
		}),
		Metrics: true,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}
