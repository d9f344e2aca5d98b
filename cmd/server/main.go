// Package main is the entry point for the lookback risk metrics service.
// The service builds monthly return series for a configured instrument
// basket, derives volatilities and a covariance matrix, and exposes the
// pipeline over HTTP along with backtest windowing of the same metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/lookback/internal/clients/marketdata"
	"github.com/aristath/lookback/internal/config"
	"github.com/aristath/lookback/internal/database"
	"github.com/aristath/lookback/internal/modules/backtest"
	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/metrics"
	"github.com/aristath/lookback/internal/modules/pricestore"
	riskhandlers "github.com/aristath/lookback/internal/modules/risk/handlers"
	"github.com/aristath/lookback/internal/modules/sampling"
	"github.com/aristath/lookback/internal/resultcache"
	"github.com/aristath/lookback/internal/scheduler"
	"github.com/aristath/lookback/internal/server"
	"github.com/aristath/lookback/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting lookback")

	// Databases: price history and the result cache live in separate files so
	// the cache can be wiped without touching synced history.
	pricesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "prices.db"),
		Profile: database.ProfileStandard,
		Name:    "prices",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open prices database")
	}
	defer pricesDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	store := pricestore.New(pricesDB.Conn(), log)
	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate price store")
	}

	cache := resultcache.New(cacheDB.Conn(), resultcache.DefaultTTL, log)
	if err := cache.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate result cache")
	}

	// The pipeline reads prices from the local store; the vendor client only
	// feeds the store through the sync job.
	client := marketdata.NewClient(cfg.MarketDataBaseURL, cfg.MarketDataAPIKey, log)
	loader := sampling.NewLoader(log)
	builder := history.NewBuilder(store, log)
	engine := metrics.NewEngine(log)
	resampler := backtest.NewResampler(engine, log)

	handler := riskhandlers.NewHandler(loader, builder, engine, resampler, cache, log)

	sched := scheduler.New(log)
	syncJob := scheduler.NewPriceSyncJob(loader, cfg.SamplingConfigPath, client, store, log)
	if err := sched.AddJob(cfg.SyncSchedule, syncJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price sync job")
	}
	cleanupJob := scheduler.NewCacheCleanupJob(cache, log)
	if err := sched.AddJob("@hourly", cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	maintenanceJob := scheduler.NewMaintenanceJob([]*database.DB{pricesDB, cacheDB}, log)
	if err := sched.AddJob("0 0 3 * * *", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register database maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	// Refresh the store on boot so requests can be served before the first
	// scheduled sync.
	go func() {
		if err := sched.RunNow(syncJob); err != nil {
			log.Warn().Err(err).Msg("Initial price sync failed")
		}
	}()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		PricesDB:     pricesDB,
		CacheDB:      cacheDB,
		RiskHandlers: handler,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
