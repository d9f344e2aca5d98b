// Package backtest restricts a return series to a shortened lookback window
// and recomputes risk metrics over it.
package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/internal/modules/metrics"
)

// ValidationError indicates a backtest window request that cannot be
// satisfied by the series at hand.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid backtest window: %s", e.Reason)
}

// Resampler cuts a prefix window out of a full-period return series and runs
// the metrics engine over the shortened table.
type Resampler struct {
	engine *metrics.Engine
	log    zerolog.Logger
}

// NewResampler creates a new backtest window resampler.
func NewResampler(engine *metrics.Engine, log zerolog.Logger) *Resampler {
	return &Resampler{
		engine: engine,
		log:    log.With().Str("component", "backtest_resampler").Logger(),
	}
}

// Resample restricts the series to its first durationMonths calendar months
// and computes risk metrics over the restriction. The window end is the
// series start plus durationMonths; the actual cut row is the row whose date
// lies nearest to that nominal end (ties resolve to the earlier row).
//
// A duration that is not strictly positive, or one whose nominal end
// overshoots the series without the duration matching the full row count,
// is rejected with a ValidationError.
func (r *Resampler) Resample(series *history.ReturnSeries, durationMonths int) (*metrics.Bundle, error) {
	if durationMonths <= 0 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("duration_months must be a positive integer, got %d", durationMonths),
		}
	}
	if series == nil || series.NumRows() == 0 {
		return nil, &ValidationError{Reason: "return series is empty"}
	}

	first := series.Dates[0]
	last := series.Dates[series.NumRows()-1]
	nominalEnd := addMonths(first, durationMonths)

	if last.Before(nominalEnd) && durationMonths != series.NumRows() {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("duration_months %d extends past the available history ending %s",
				durationMonths, last.Format("2006-01-02")),
		}
	}

	cutRow := nearestRow(series.Dates, nominalEnd)
	window := series.Slice(cutRow)

	r.log.Debug().
		Int("duration_months", durationMonths).
		Str("nominal_end", nominalEnd.Format("2006-01-02")).
		Str("cut_date", series.Dates[cutRow].Format("2006-01-02")).
		Int("rows", window.NumRows()).
		Msg("Resampled backtest window")

	bundle, err := r.engine.Compute(window)
	if err != nil {
		return nil, fmt.Errorf("failed to compute backtest metrics: %w", err)
	}
	return bundle, nil
}

// addMonths advances a date by whole calendar months, clamping the day to the
// target month's length (Jan 31 plus one month is Feb 28, not Mar 3).
func addMonths(t time.Time, months int) time.Time {
	year := t.Year()
	month := int(t.Month()) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1

	day := t.Day()
	if lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, t.Location()).Day(); day > lastDay {
		day = lastDay
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, t.Location())
}

// nearestRow returns the index of the date closest to target. Dates are
// ascending; on an exact tie the earlier row wins.
func nearestRow(dates []time.Time, target time.Time) int {
	best := 0
	bestDist := absDuration(dates[0].Sub(target))
	for i := 1; i < len(dates); i++ {
		if d := absDuration(dates[i].Sub(target)); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
