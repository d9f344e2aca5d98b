// Package handlers provides HTTP handlers for risk metrics operations.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/modules/backtest"
	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/metrics"
	"github.com/aristath/lookback/internal/modules/sampling"
	"github.com/aristath/lookback/internal/resultcache"
)

// Handler handles risk metrics HTTP requests
type Handler struct {
	loader    *sampling.Loader
	builder   *history.Builder
	engine    *metrics.Engine
	resampler *backtest.Resampler
	cache     *resultcache.Cache
	log       zerolog.Logger
}

// NewHandler creates a new risk metrics handler. The cache is optional; a nil
// cache disables result caching.
func NewHandler(
	loader *sampling.Loader,
	builder *history.Builder,
	engine *metrics.Engine,
	resampler *backtest.Resampler,
	cache *resultcache.Cache,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		loader:    loader,
		builder:   builder,
		engine:    engine,
		resampler: resampler,
		cache:     cache,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// metricsPayload is the JSON shape of a computed bundle, cacheable as-is.
type metricsPayload struct {
	Symbols      []string             `json:"symbols" msgpack:"symbols"`
	Dates        []string             `json:"dates" msgpack:"dates"`
	Returns      map[string][]float64 `json:"returns" msgpack:"returns"`
	Volatilities map[string]float64   `json:"volatilities" msgpack:"volatilities"`
	Covariance   [][]float64          `json:"covariance" msgpack:"covariance"`
}

// backtestRequest is the body of POST /risk/backtest: a sampling document
// plus the shortened window length. duration_months must be a JSON integer.
type backtestRequest struct {
	Config         json.RawMessage `json:"config"`
	DurationMonths json.Number     `json:"duration_months"`
}

// HandleComputeMetrics handles POST /api/risk/metrics. The body is a sampling
// configuration document; the response carries the full-period return series
// with its volatilities and covariance matrix.
func (h *Handler) HandleComputeMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	cfg, err := h.loader.Parse(body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cacheKey := configCacheKey(cfg)
	if h.cache != nil {
		var cached metricsPayload
		if hit, err := h.cache.Get(cacheKey, &cached); err != nil {
			h.log.Warn().Err(err).Msg("Cache lookup failed")
		} else if hit {
			h.writeData(w, cached)
			return
		}
	}

	series, err := h.builder.Build(r.Context(), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}

	bundle, err := h.engine.Compute(series)
	if err != nil {
		h.writeError(w, err)
		return
	}

	payload := bundlePayload(bundle)
	if h.cache != nil {
		if err := h.cache.Set(cacheKey, payload); err != nil {
			h.log.Warn().Err(err).Msg("Cache store failed")
		}
	}

	h.writeData(w, payload)
}

// HandleBacktest handles POST /api/risk/backtest. Metrics are recomputed over
// the first duration_months of the configured sample period.
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return
	}

	if len(req.Config) == 0 {
		http.Error(w, "Missing config", http.StatusBadRequest)
		return
	}
	if req.DurationMonths == "" {
		http.Error(w, "Missing duration_months", http.StatusBadRequest)
		return
	}

	months, err := req.DurationMonths.Int64()
	if err != nil {
		http.Error(w, "duration_months must be an integer", http.StatusBadRequest)
		return
	}

	cfg, err := h.loader.Parse(req.Config)
	if err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.builder.Build(r.Context(), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}

	bundle, err := h.resampler.Resample(series, int(months))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, bundlePayload(bundle))
}

func bundlePayload(bundle *metrics.Bundle) metricsPayload {
	dates := make([]string, len(bundle.Returns.Dates))
	for i, d := range bundle.Returns.Dates {
		dates[i] = d.Format(sampling.DateFormat)
	}

	return metricsPayload{
		Symbols:      bundle.Returns.Symbols,
		Dates:        dates,
		Returns:      bundle.Returns.Data,
		Volatilities: bundle.Volatilities,
		Covariance:   bundle.Covariance,
	}
}

// configCacheKey derives the cache key from everything that affects the
// result, in a stable order. Ticker order is significant.
func configCacheKey(cfg *sampling.Config) string {
	parts := make([]string, 0, len(cfg.Tickers)+3)
	parts = append(parts, cfg.Tickers...)
	parts = append(parts,
		cfg.SampleTimeStep.Token(),
		cfg.TotalSamplePeriod.Token(),
		cfg.SamplePeriodEnd.Format(sampling.DateFormat),
	)
	return resultcache.Key(parts...)
}

// writeError maps domain errors onto HTTP statuses. Malformed or invalid
// inputs are 400s, absent upstream data is a 422, a statistics failure is
// a 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal_error"

	var (
		parseErr       *sampling.ParseError
		schemaErr      *sampling.SchemaError
		validationErr  *sampling.ValidationError
		windowErr      *backtest.ValidationError
		unavailableErr *history.DataUnavailableError
		compErr        *metrics.ComputationError
	)

	switch {
	case errors.Is(err, sampling.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &parseErr):
		status, kind = http.StatusBadRequest, "parse_error"
	case errors.As(err, &schemaErr):
		status, kind = http.StatusBadRequest, "schema_error"
	case errors.As(err, &validationErr):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.As(err, &windowErr):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.As(err, &unavailableErr):
		status, kind = http.StatusUnprocessableEntity, "data_unavailable"
	case errors.As(err, &compErr):
		status, kind = http.StatusInternalServerError, "computation_error"
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Risk request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Risk request rejected")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"type":    kind,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
