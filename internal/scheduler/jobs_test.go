package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookback/internal/database"
	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/pricestore"
	"github.com/aristath/lookback/internal/modules/sampling"
	"github.com/aristath/lookback/internal/resultcache"
)

type fixedSource struct {
	prices map[string][]history.DailyPrice
	errFor map[string]error
}

func (f *fixedSource) FetchDailyPrices(_ context.Context, symbol string, _, _ time.Time) ([]history.DailyPrice, error) {
	if err := f.errFor[symbol]; err != nil {
		return nil, err
	}
	return f.prices[symbol], nil
}

func (f *fixedSource) FetchAdjustedCloses(context.Context, []string, time.Time, time.Time) (*history.PriceTable, error) {
	return nil, errors.New("not used by the sync job")
}

func writeConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "basket.json")
	document := `{
		"tickers": ["XLC", "XLY"],
		"dataParameters": {
			"sample_time_step": "1mo",
			"total_sample_period": "1y",
			"sample_period_end": "2024-01-01"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(document), 0644))
	return path
}

func setupJobStore(t *testing.T) *pricestore.Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := pricestore.New(db, zerolog.Nop())
	require.NoError(t, store.Migrate())
	return store
}

func TestPriceSyncJob(t *testing.T) {
	source := &fixedSource{prices: map[string][]history.DailyPrice{
		"XLC": {{Date: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), AdjClose: 100}},
		"XLY": {{Date: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), AdjClose: 50}},
	}}
	store := setupJobStore(t)
	job := NewPriceSyncJob(sampling.NewLoader(zerolog.Nop()), writeConfigFile(t), source, store, zerolog.Nop())

	require.NoError(t, job.Run())

	for _, symbol := range []string{"XLC", "XLY"} {
		count, err := store.CountPrices(symbol)
		require.NoError(t, err)
		assert.Equal(t, 1, count, symbol)
	}
}

func TestPriceSyncJobToleratesPartialFailure(t *testing.T) {
	source := &fixedSource{
		prices: map[string][]history.DailyPrice{
			"XLY": {{Date: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), AdjClose: 50}},
		},
		errFor: map[string]error{"XLC": errors.New("rate limited")},
	}
	store := setupJobStore(t)
	job := NewPriceSyncJob(sampling.NewLoader(zerolog.Nop()), writeConfigFile(t), source, store, zerolog.Nop())

	require.NoError(t, job.Run())

	count, err := store.CountPrices("XLY")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPriceSyncJobFailsWhenAllTickersFail(t *testing.T) {
	source := &fixedSource{errFor: map[string]error{
		"XLC": errors.New("down"),
		"XLY": errors.New("down"),
	}}
	job := NewPriceSyncJob(sampling.NewLoader(zerolog.Nop()), writeConfigFile(t), source, setupJobStore(t), zerolog.Nop())

	assert.Error(t, job.Run())
}

func TestPriceSyncJobMissingConfig(t *testing.T) {
	source := &fixedSource{}
	job := NewPriceSyncJob(sampling.NewLoader(zerolog.Nop()), "/nonexistent/basket.json", source, setupJobStore(t), zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sampling.ErrNotFound))
}

func TestCacheCleanupJob(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := resultcache.New(db, time.Minute, zerolog.Nop())
	require.NoError(t, cache.Migrate())

	job := NewCacheCleanupJob(cache, zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	assert.NoError(t, job.Run())
}

func TestMaintenanceJob(t *testing.T) {
	prices, err := database.New(database.Config{
		Path:    "file:jobs_test_prices?mode=memory&cache=shared",
		Profile: database.ProfileStandard,
		Name:    "prices",
	})
	require.NoError(t, err)
	t.Cleanup(func() { prices.Close() })

	cache, err := database.New(database.Config{
		Path:    "file:jobs_test_cache?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	job := NewMaintenanceJob([]*database.DB{prices, cache}, zerolog.Nop())
	assert.Equal(t, "db_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
