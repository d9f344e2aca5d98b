package resultcache

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedBundle struct {
	Volatilities map[string]float64 `msgpack:"volatilities"`
	Covariance   [][]float64        `msgpack:"covariance"`
}

func setupTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := New(db, ttl, zerolog.Nop())
	require.NoError(t, cache.Migrate())
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := setupTestCache(t, time.Minute)

	stored := cachedBundle{
		Volatilities: map[string]float64{"XLC": 0.04, "XLY": 0.05},
		Covariance:   [][]float64{{0.0016, 0.0005}, {0.0005, 0.0025}},
	}
	key := Key("XLC", "XLY", "1mo", "5y", "2024-01-01")

	require.NoError(t, cache.Set(key, stored))

	var got cachedBundle
	hit, err := cache.Get(key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, stored, got)
}

func TestCacheMiss(t *testing.T) {
	cache := setupTestCache(t, time.Minute)

	var got cachedBundle
	hit, err := cache.Get(Key("unknown"), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheExpiry(t *testing.T) {
	// Zero-length entries are expired the moment they are written.
	cache := setupTestCache(t, time.Minute)
	cache.ttl = -time.Second

	key := Key("XLC")
	require.NoError(t, cache.Set(key, cachedBundle{}))

	var got cachedBundle
	hit, err := cache.Get(key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	deleted, err := cache.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCacheSetReplaces(t *testing.T) {
	cache := setupTestCache(t, time.Minute)
	key := Key("XLC", "1mo")

	require.NoError(t, cache.Set(key, cachedBundle{Volatilities: map[string]float64{"XLC": 0.01}}))
	require.NoError(t, cache.Set(key, cachedBundle{Volatilities: map[string]float64{"XLC": 0.02}}))

	var got cachedBundle
	hit, err := cache.Get(key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 0.02, got.Volatilities["XLC"])
}

func TestKeyIsOrderSensitive(t *testing.T) {
	// Ticker order decides covariance matrix layout, so it must be part of
	// the key.
	assert.NotEqual(t, Key("XLC", "XLY"), Key("XLY", "XLC"))
	assert.Equal(t, Key("XLC", "XLY"), Key("XLC", "XLY"))

	// Joining with a separator keeps ("ab","c") and ("a","bc") distinct.
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}
