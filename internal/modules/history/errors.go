package history

import (
	"fmt"
	"strings"
)

// DataUnavailableError indicates that price history does not cover the
// requested sample period start for one or more symbols. The message
// enumerates the offending symbols.
type DataUnavailableError struct {
	Symbols   []string
	StartYear int
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("historical data during specified sample period does not exist for [%s] (requested start year %d)",
		strings.Join(e.Symbols, ", "), e.StartYear)
}
