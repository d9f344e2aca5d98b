// Package resultcache stores computed risk metric bundles in sqlite, keyed by
// a hash of the request parameters, with a fixed time-to-live.
package resultcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is how long a cached bundle stays valid.
const DefaultTTL = 1 * time.Hour

// Cache is a TTL result cache backed by sqlite. Values are msgpack-encoded.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// New creates a new result cache with the given TTL. A non-positive ttl
// falls back to DefaultTTL.
func New(db *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "result_cache").Logger(),
	}
}

// Migrate creates the cache schema if it does not exist.
func (c *Cache) Migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics_cache (
			cache_key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate result cache: %w", err)
	}
	return nil
}

// Key derives a cache key from the request parameters. Parameter order is
// part of the key: column order changes the covariance matrix layout, so two
// requests with reordered tickers are distinct entries.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// Get looks up a live entry and decodes it into dest. The second return is
// false on a miss or an expired entry.
func (c *Cache) Get(key string, dest interface{}) (bool, error) {
	var data []byte
	var expiresAt int64

	err := c.db.QueryRow(
		"SELECT data, expires_at FROM metrics_cache WHERE cache_key = ?", key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if time.Now().Unix() >= expiresAt {
		return false, nil
	}

	if err := msgpack.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}

	c.log.Debug().Str("key", key).Msg("Cache hit")
	return true, nil
}

// Set stores a value under key, replacing any previous entry.
func (c *Cache) Set(key string, value interface{}) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	expiresAt := time.Now().Add(c.ttl).Unix()

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO metrics_cache (cache_key, data, expires_at)
		VALUES (?, ?, ?)
	`, key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// DeleteExpired removes entries past their expiry. Used by the cleanup job
// to prevent unbounded table growth.
func (c *Cache) DeleteExpired() (int64, error) {
	result, err := c.db.Exec(
		"DELETE FROM metrics_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		c.log.Info().Int64("rows_deleted", deleted).Msg("Deleted expired cache entries")
	}

	return deleted, nil
}
