// Package pricestore persists daily adjusted-close history in sqlite and
// serves it back as a price source for the return series builder.
package pricestore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/database"
	"github.com/aristath/lookback/internal/modules/history"
)

// Store provides access to the daily price history database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates a new price store accessor.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "price_store").Logger(),
	}
}

// Migrate creates the price history schema if it does not exist.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date INTEGER NOT NULL,
			adjusted_close REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol_date
			ON daily_prices (symbol, date);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate price store: %w", err)
	}
	return nil
}

// SyncDailyPrices writes a symbol's daily price history in a single
// transaction, replacing rows that already exist for the same dates.
func (s *Store) SyncDailyPrices(symbol string, prices []history.DailyPrice) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO daily_prices (symbol, date, adjusted_close)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, price := range prices {
			dateUnix := time.Date(price.Date.Year(), price.Date.Month(), price.Date.Day(), 0, 0, 0, 0, time.UTC).Unix()
			if _, err := stmt.Exec(symbol, dateUnix, price.AdjClose); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", price.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Synced daily prices")

	return nil
}

// FetchDailyPrices returns the ascending adjusted-close series for one symbol
// within [start, end).
func (s *Store) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]history.DailyPrice, error) {
	query := `
		SELECT date, adjusted_close
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date < ?
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, symbol, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []history.DailyPrice
	for rows.Next() {
		var dateUnix int64
		var p history.DailyPrice

		if err := rows.Scan(&dateUnix, &p.AdjClose); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()

		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// FetchAdjustedCloses returns the combined adjusted-close table for all
// symbols within [start, end). Dates are the union of observation dates;
// a cell with no observation for its symbol is NaN.
func (s *Store) FetchAdjustedCloses(ctx context.Context, symbols []string, start, end time.Time) (*history.PriceTable, error) {
	dateSet := make(map[int64]bool)
	perSymbol := make(map[string]map[int64]float64, len(symbols))

	for _, symbol := range symbols {
		prices, err := s.FetchDailyPrices(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		byDate := make(map[int64]float64, len(prices))
		for _, p := range prices {
			unix := p.Date.Unix()
			byDate[unix] = p.AdjClose
			dateSet[unix] = true
		}
		perSymbol[symbol] = byDate
	}

	dateUnixes := make([]int64, 0, len(dateSet))
	for d := range dateSet {
		dateUnixes = append(dateUnixes, d)
	}
	sort.Slice(dateUnixes, func(i, j int) bool { return dateUnixes[i] < dateUnixes[j] })

	table := &history.PriceTable{
		Dates:  make([]time.Time, len(dateUnixes)),
		Prices: make(map[string][]float64, len(symbols)),
	}
	for i, unix := range dateUnixes {
		table.Dates[i] = time.Unix(unix, 0).UTC()
	}

	for _, symbol := range symbols {
		col := make([]float64, len(dateUnixes))
		for i, unix := range dateUnixes {
			if v, ok := perSymbol[symbol][unix]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		table.Prices[symbol] = col
	}

	return table, nil
}

// EarliestDate returns the first stored observation date for a symbol.
// Returns a zero time when the symbol has no rows (not an error).
func (s *Store) EarliestDate(ctx context.Context, symbol string) (time.Time, error) {
	var dateUnix sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(date) FROM daily_prices WHERE symbol = ?", symbol,
	).Scan(&dateUnix)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query earliest date: %w", err)
	}
	if !dateUnix.Valid {
		return time.Time{}, nil
	}

	return time.Unix(dateUnix.Int64, 0).UTC(), nil
}

// CountPrices returns the number of stored observations for a symbol.
func (s *Store) CountPrices(symbol string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM daily_prices WHERE symbol = ?", symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}
