package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/lookback/internal/database"
)

// SystemHandlers serves system monitoring endpoints
type SystemHandlers struct {
	log      zerolog.Logger
	pricesDB *database.DB
	cacheDB  *database.DB
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(log zerolog.Logger, pricesDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:      log.With().Str("component", "system_handlers").Logger(),
		pricesDB: pricesDB,
		cacheDB:  cacheDB,
	}
}

// HandleSystemHealth handles GET /api/system/health. Reports process stats
// and a quick check of each database.
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	databases := map[string]string{}
	healthy := true
	for name, db := range map[string]*database.DB{
		"prices": h.pricesDB,
		"cache":  h.cacheDB,
	} {
		if db == nil {
			continue
		}
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Database check failed")
			databases[name] = "unhealthy"
			healthy = false
		} else {
			databases[name] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"status":         status,
			"cpu_percent":    cpuPct,
			"memory_percent": memPct,
			"databases":      databases,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// getSystemStats calculates CPU and RAM usage percentages. The short CPU
// sampling interval keeps the endpoint responsive for pollers.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
