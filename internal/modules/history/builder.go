package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/modules/sampling"
)

// Builder converts raw adjusted-close history into a monthly percent-return
// series for all configured instruments.
type Builder struct {
	source PriceSource
	log    zerolog.Logger
}

// NewBuilder creates a new return series builder.
func NewBuilder(source PriceSource, log zerolog.Logger) *Builder {
	return &Builder{
		source: source,
		log:    log.With().Str("component", "history_builder").Logger(),
	}
}

// Build produces the monthly ReturnSeries for the configured basket:
// availability check per symbol, combined fetch, month-end resample,
// row-over-row fractional change, zero-fill of undefined cells.
func (b *Builder) Build(ctx context.Context, cfg *sampling.Config) (*ReturnSeries, error) {
	start := cfg.SamplePeriodStart()
	end := cfg.SamplePeriodEnd

	b.log.Info().
		Int("tickers", len(cfg.Tickers)).
		Str("start", start.Format(sampling.DateFormat)).
		Str("end", end.Format(sampling.DateFormat)).
		Msg("Building return series")

	if err := b.checkAvailability(ctx, cfg.Tickers, start, end); err != nil {
		return nil, err
	}

	table, err := b.source.FetchAdjustedCloses(ctx, cfg.Tickers, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch adjusted closes: %w", err)
	}

	monthly := resampleMonthEnd(table, cfg.Tickers)
	series := percentChange(monthly, cfg.Tickers)

	b.log.Info().
		Int("rows", series.NumRows()).
		Int("columns", series.NumColumns()).
		Msg("Built return series")

	return series, nil
}

// checkAvailability probes the earliest available observation year per symbol
// and fails when the symbols disagree on coverage. A single divergent start
// year is tolerated when it equals the requested start year; this keeps the
// early-start edge case (one symbol listed mid-window tolerance) intact.
func (b *Builder) checkAvailability(ctx context.Context, symbols []string, start, end time.Time) error {
	startYear := start.Year()

	earliestYears := make([]int, 0, len(symbols))
	var missing []string

	for _, symbol := range symbols {
		prices, err := b.source.FetchDailyPrices(ctx, symbol, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch price history for %s: %w", symbol, err)
		}
		if len(prices) == 0 {
			missing = append(missing, symbol)
			continue
		}
		earliestYears = append(earliestYears, prices[0].Date.Year())
	}

	if len(missing) > 0 {
		return &DataUnavailableError{Symbols: missing, StartYear: startYear}
	}

	minYear, maxYear := earliestYears[0], earliestYears[0]
	for _, y := range earliestYears[1:] {
		if y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}

	if maxYear != minYear && maxYear != startYear {
		var bad []string
		for i, y := range earliestYears {
			if y != startYear {
				bad = append(bad, symbols[i])
			}
		}
		return &DataUnavailableError{Symbols: bad, StartYear: startYear}
	}

	return nil
}

// resampleMonthEnd collapses the daily table to one row per calendar month,
// taking the last non-NaN observation within each month per column. Rows are
// labeled with the calendar month-end date.
func resampleMonthEnd(table *PriceTable, symbols []string) *PriceTable {
	type monthKey struct {
		year  int
		month time.Month
	}

	rowsByMonth := make(map[monthKey][]int)
	for i, d := range table.Dates {
		key := monthKey{year: d.Year(), month: d.Month()}
		rowsByMonth[key] = append(rowsByMonth[key], i)
	}

	// Every calendar month between the first and last observation gets a row,
	// including months in which no symbol traded at all. The gap cells stay
	// NaN here and become zero returns downstream, so the row count depends
	// only on the span of the input, never on holes in it.
	var months []monthKey
	if len(table.Dates) > 0 {
		first := table.Dates[0]
		last := table.Dates[len(table.Dates)-1]
		for key := (monthKey{year: first.Year(), month: first.Month()}); ; {
			months = append(months, key)
			if key.year == last.Year() && key.month == last.Month() {
				break
			}
			key.month++
			if key.month > time.December {
				key.month = time.January
				key.year++
			}
		}
	}

	out := &PriceTable{
		Dates:  make([]time.Time, len(months)),
		Prices: make(map[string][]float64, len(symbols)),
	}
	for i, key := range months {
		// Day 0 of the next month is the last day of this month.
		out.Dates[i] = time.Date(key.year, key.month+1, 0, 0, 0, 0, 0, time.UTC)
	}

	for _, symbol := range symbols {
		daily := table.Prices[symbol]
		col := make([]float64, len(months))
		for i, key := range months {
			value := math.NaN()
			for _, row := range rowsByMonth[key] {
				if row < len(daily) && !math.IsNaN(daily[row]) {
					value = daily[row]
				}
			}
			col[i] = value
		}
		out.Prices[symbol] = col
	}

	return out
}

// percentChange computes row-over-row fractional change per column. The first
// row has no prior period and is defined as zero; any undefined cell (NaN
// prices, zero prior price) is coerced to zero as well.
func percentChange(table *PriceTable, symbols []string) *ReturnSeries {
	series := &ReturnSeries{
		Dates:   table.Dates,
		Symbols: symbols,
		Data:    make(map[string][]float64, len(symbols)),
	}

	for _, symbol := range symbols {
		prices := table.Prices[symbol]
		returns := make([]float64, len(prices))
		for i := 1; i < len(prices); i++ {
			prev, cur := prices[i-1], prices[i]
			if prev > 0 && !math.IsNaN(prev) && !math.IsNaN(cur) {
				returns[i] = (cur - prev) / prev
			}
		}
		series.Data[symbol] = returns
	}

	return series
}
