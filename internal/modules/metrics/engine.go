// Package metrics derives per-instrument volatility and a covariance matrix
// from a return series.
package metrics

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/modules/history"
	"github.com/aristath/lookback/pkg/formulas"
)

// ComputationError indicates a statistical reduction could not be produced.
// The message reports the input table's shape.
type ComputationError struct {
	Op   string
	Rows int
	Cols int
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("error calculating %s: returns matrix of shape (%d, %d)", e.Op, e.Rows, e.Cols)
}

// Bundle is the ordered result of a risk computation:
// the returns as given, per-instrument volatilities, and the covariance
// matrix indexed by Returns.Symbols order.
type Bundle struct {
	Returns      *history.ReturnSeries
	Volatilities map[string]float64
	Covariance   [][]float64
}

// Engine computes risk metrics over a return series. It is a pure function
// over the input table: nothing is cached, nothing is mutated, every call
// recomputes from scratch.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new risk metrics engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "metrics_engine").Logger(),
	}
}

// Compute returns the risk metrics bundle for a return series. Volatility is
// the sample standard deviation per column and covariance the pairwise sample
// covariance (both N-1 denominator), matching the conventions of the price
// history the series was built from.
func (e *Engine) Compute(series *history.ReturnSeries) (*Bundle, error) {
	if err := validateShape(series, "covariance matrix"); err != nil {
		return nil, err
	}

	n := series.NumColumns()
	rows := series.NumRows()

	covariance := make([][]float64, n)
	for i := range covariance {
		covariance[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		colI := series.Column(series.Symbols[i])
		covariance[i][i] = formulas.Variance(colI)
		for j := i + 1; j < n; j++ {
			colJ := series.Column(series.Symbols[j])
			cov := formulas.Covariance(colI, colJ)
			covariance[i][j] = cov
			covariance[j][i] = cov // Symmetry
		}
	}

	volatilities := make(map[string]float64, n)
	for _, symbol := range series.Symbols {
		volatilities[symbol] = formulas.StdDev(series.Column(symbol))
	}

	e.log.Debug().
		Int("rows", rows).
		Int("columns", n).
		Msg("Computed risk metrics")

	return &Bundle{
		Returns:      series,
		Volatilities: volatilities,
		Covariance:   covariance,
	}, nil
}

// validateShape rejects tables on which the sample statistics are undefined:
// no columns, ragged columns, or fewer than two rows (the N-1 denominator
// needs at least two observations).
func validateShape(series *history.ReturnSeries, op string) error {
	if series == nil {
		return &ComputationError{Op: op}
	}

	rows := series.NumRows()
	cols := series.NumColumns()

	if cols == 0 || rows < 2 {
		return &ComputationError{Op: op, Rows: rows, Cols: cols}
	}

	for _, symbol := range series.Symbols {
		if len(series.Column(symbol)) != rows {
			return &ComputationError{Op: op, Rows: rows, Cols: cols}
		}
	}

	return nil
}
