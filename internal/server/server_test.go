package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookback/internal/database"
	"github.com/aristath/lookback/internal/modules/backtest"
	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/metrics"
	"github.com/aristath/lookback/internal/modules/pricestore"
	riskhandlers "github.com/aristath/lookback/internal/modules/risk/handlers"
	"github.com/aristath/lookback/internal/modules/sampling"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	pricesDB, err := database.New(database.Config{
		Path:    "file:server_test_prices?mode=memory&cache=shared",
		Profile: database.ProfileStandard,
		Name:    "prices",
	})
	require.NoError(t, err)
	t.Cleanup(func() { pricesDB.Close() })

	cacheDB, err := database.New(database.Config{
		Path:    "file:server_test_cache?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })

	log := zerolog.Nop()
	store := pricestore.New(pricesDB.Conn(), log)
	require.NoError(t, store.Migrate())

	engine := metrics.NewEngine(log)
	handler := riskhandlers.NewHandler(
		sampling.NewLoader(log),
		history.NewBuilder(store, log),
		engine,
		backtest.NewResampler(engine, log),
		nil,
		log,
	)

	return New(Config{
		Log:          log,
		Port:         0,
		DevMode:      true,
		PricesDB:     pricesDB,
		CacheDB:      cacheDB,
		RiskHandlers: handler,
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSystemHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"prices":"ok"`)
	assert.Contains(t, rec.Body.String(), `"cache":"ok"`)
}

func TestRiskRoutesMounted(t *testing.T) {
	srv := setupTestServer(t)

	// An empty store means a valid document fails on availability, proving
	// the route is wired through to the pipeline.
	body := `{
		"tickers": ["XLC"],
		"dataParameters": {
			"sample_time_step": "1mo",
			"total_sample_period": "1y",
			"sample_period_end": "2024-01-01"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/risk/metrics", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
