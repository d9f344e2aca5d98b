// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the sqlite databases (always absolute)
	SamplingConfigPath string // Path to the sampling configuration JSON document
	MarketDataBaseURL  string
	MarketDataAPIKey   string
	SyncSchedule       string // Cron expression for the price sync job
	LogLevel           string
	Port               int
	DevMode            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. Check LOOKBACK_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("LOOKBACK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		SamplingConfigPath: getEnv("SAMPLING_CONFIG_PATH", "basket.json"),
		MarketDataBaseURL:  getEnv("MARKETDATA_BASE_URL", "https://www.alphavantage.co"),
		MarketDataAPIKey:   getEnv("MARKETDATA_API_KEY", ""),
		SyncSchedule:       getEnv("SYNC_SCHEDULE", "0 30 6 * * *"), // daily, after market-data vendors refresh
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnvAsInt("GO_PORT", 8002),
		DevMode:            getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// Note: API key optional when the price store already holds history
	// (offline/research mode); the sync job logs and skips in that case.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
