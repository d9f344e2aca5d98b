package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/database"
	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/pricestore"
	"github.com/aristath/lookback/internal/modules/sampling"
	"github.com/aristath/lookback/internal/resultcache"
)

// syncTimeout bounds a full basket refresh.
const syncTimeout = 10 * time.Minute

// PriceSyncJob refreshes the local price store from the market data vendor
// for every ticker in the sampling configuration.
type PriceSyncJob struct {
	loader     *sampling.Loader
	configPath string
	source     history.PriceSource
	store      *pricestore.Store
	log        zerolog.Logger
}

// NewPriceSyncJob creates a new price sync job.
func NewPriceSyncJob(loader *sampling.Loader, configPath string, source history.PriceSource, store *pricestore.Store, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		loader:     loader,
		configPath: configPath,
		source:     source,
		store:      store,
		log:        log.With().Str("component", "price_sync_job").Logger(),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Run fetches each configured ticker's history over the sample period and
// writes it to the price store. A failed ticker does not abort the rest.
func (j *PriceSyncJob) Run() error {
	runID := uuid.New().String()
	log := j.log.With().Str("run_id", runID).Logger()

	cfg, err := j.loader.LoadFromFile(j.configPath)
	if err != nil {
		return fmt.Errorf("failed to load sampling config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	start := cfg.SamplePeriodStart()
	end := cfg.SamplePeriodEnd

	var failed int
	for _, ticker := range cfg.Tickers {
		prices, err := j.source.FetchDailyPrices(ctx, ticker, start, end)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("Failed to fetch prices")
			failed++
			continue
		}
		if err := j.store.SyncDailyPrices(ticker, prices); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("Failed to store prices")
			failed++
			continue
		}
	}

	log.Info().
		Int("tickers", len(cfg.Tickers)).
		Int("failed", failed).
		Msg("Price sync finished")

	if failed == len(cfg.Tickers) && failed > 0 {
		return fmt.Errorf("price sync failed for all %d tickers", failed)
	}
	return nil
}

// CacheCleanupJob evicts expired result cache entries.
type CacheCleanupJob struct {
	cache *resultcache.Cache
	log   zerolog.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job.
func NewCacheCleanupJob(cache *resultcache.Cache, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache: cache,
		log:   log.With().Str("component", "cache_cleanup_job").Logger(),
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Run deletes expired cache rows.
func (j *CacheCleanupJob) Run() error {
	if _, err := j.cache.DeleteExpired(); err != nil {
		return fmt.Errorf("cache cleanup failed: %w", err)
	}
	return nil
}

// maintenanceTimeout bounds the integrity check across all databases.
const maintenanceTimeout = time.Minute

// MaintenanceJob runs an integrity check and a WAL checkpoint on each sqlite
// database. Checkpointing keeps the WAL files from growing unbounded between
// restarts.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the given databases.
func NewMaintenanceJob(databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("component", "db_maintenance_job").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run checks and checkpoints every database. One failing database does not
// skip the others.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	var failed int
	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			failed++
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			failed++
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("Database maintenance completed")
	}

	if failed > 0 {
		return fmt.Errorf("maintenance failed for %d of %d databases", failed, len(j.databases))
	}
	return nil
}
