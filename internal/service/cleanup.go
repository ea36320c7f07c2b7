package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cardvault-api/internal/store"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// PurgeInterval is how often expired items (idempotency markers) are
	// physically removed. Default: 10 minutes
	PurgeInterval time.Duration

	// BackfillInterval is how often the RAP history backfill runs.
	// Default: 1 hour
	BackfillInterval time.Duration

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		PurgeInterval:    10 * time.Minute,
		BackfillInterval: time.Hour,
		InitialDelay:     time.Minute,
	}
}

// CleanupScheduler runs periodic store maintenance: expired item purges and
// the history backfill.
type CleanupScheduler struct {
	store     store.Store
	pricing   *PricingService
	config    CleanupConfig
	log       zerolog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(st store.Store, pricing *PricingService, config CleanupConfig, log zerolog.Logger) *CleanupScheduler {
	defaults := DefaultCleanupConfig()
	if config.PurgeInterval <= 0 {
		config.PurgeInterval = defaults.PurgeInterval
	}
	if config.BackfillInterval <= 0 {
		config.BackfillInterval = defaults.BackfillInterval
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}

	return &CleanupScheduler{
		store:   st,
		pricing: pricing,
		config:  config,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true

	s.log.Info().
		Dur("purge_interval", s.config.PurgeInterval).
		Dur("backfill_interval", s.config.BackfillInterval).
		Msg("cleanup scheduler started")

	s.wg.Add(1)
	go s.run()
}

// run is the main cleanup loop.
func (s *CleanupScheduler) run() {
	defer s.wg.Done()

	select {
	case <-time.After(s.config.InitialDelay):
		s.RunPurge()
		s.RunBackfill()
	case <-s.stopCh:
		return
	}

	purge := time.NewTicker(s.config.PurgeInterval)
	defer purge.Stop()
	backfill := time.NewTicker(s.config.BackfillInterval)
	defer backfill.Stop()

	for {
		select {
		case <-purge.C:
			s.RunPurge()
		case <-backfill.C:
			s.RunBackfill()
		case <-s.stopCh:
			s.log.Info().Msg("cleanup scheduler stopped")
			return
		}
	}
}

// RunPurge removes expired items now.
func (s *CleanupScheduler) RunPurge() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	purged, err := s.store.PurgeExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired items failed")
		return 0, err
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("purged expired items")
	}
	return purged, nil
}

// RunBackfill runs the history backfill now.
func (s *CleanupScheduler) RunBackfill() (BackfillResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := s.pricing.Backfill(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("history backfill failed")
		return res, err
	}
	if res.Written > 0 {
		s.log.Info().Int("items", res.Items).Int("written", res.Written).Msg("history backfilled")
	}
	return res, nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	})
}
