// Package history builds periodic percent-return series from raw price
// observations.
package history

import (
	"context"
	"time"
)

// DailyPrice is a single adjusted-close observation.
type DailyPrice struct {
	Date     time.Time `json:"date"`
	AdjClose float64   `json:"adjusted_close"`
}

// PriceTable is a combined adjusted-close table for several symbols.
// Dates are ascending; a missing cell is NaN.
type PriceTable struct {
	Dates  []time.Time
	Prices map[string][]float64
}

// PriceSource fetches adjusted price history for symbols. Implementations
// include the market-data HTTP client and the sqlite price store, so the
// builder is testable with deterministic fixture data.
type PriceSource interface {
	// FetchDailyPrices returns the ascending adjusted-close series for one
	// symbol within [start, end). Used for availability probing.
	FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]DailyPrice, error)

	// FetchAdjustedCloses returns the combined adjusted-close table for all
	// symbols within [start, end). Missing cells are NaN.
	FetchAdjustedCloses(ctx context.Context, symbols []string, start, end time.Time) (*PriceTable, error)
}

// ReturnSeries is a time-indexed table of periodic fractional returns.
// Rows are distinct month-end dates in ascending order; columns preserve the
// configured ticker order. The first row is synthetic (no prior period) and
// holds zeros; missing cells are coerced to zero at build time, so a
// constructed series never contains NaN.
type ReturnSeries struct {
	Dates   []time.Time
	Symbols []string
	Data    map[string][]float64
}

// NumRows returns the number of period rows.
func (rs *ReturnSeries) NumRows() int {
	return len(rs.Dates)
}

// NumColumns returns the number of instruments.
func (rs *ReturnSeries) NumColumns() int {
	return len(rs.Symbols)
}

// Column returns the return column for a symbol, or nil if absent.
func (rs *ReturnSeries) Column(symbol string) []float64 {
	return rs.Data[symbol]
}

// Slice returns a copy of the series restricted to rows [0, endRow].
// The receiver is not modified.
func (rs *ReturnSeries) Slice(endRow int) *ReturnSeries {
	if endRow >= len(rs.Dates) {
		endRow = len(rs.Dates) - 1
	}

	out := &ReturnSeries{
		Dates:   make([]time.Time, endRow+1),
		Symbols: make([]string, len(rs.Symbols)),
		Data:    make(map[string][]float64, len(rs.Symbols)),
	}
	copy(out.Dates, rs.Dates[:endRow+1])
	copy(out.Symbols, rs.Symbols)

	for _, symbol := range rs.Symbols {
		col := make([]float64, endRow+1)
		copy(col, rs.Data[symbol][:endRow+1])
		out.Data[symbol] = col
	}

	return out
}
