// Package sampling validates the basket sampling configuration document.
//
// The document fixes which tickers to sample, at what step, over what total
// period, and up to which end date:
//
//	{
//	  "tickers": ["XLC", "XLY", "XLP"],
//	  "dataParameters": {
//	    "sample_time_step": "1mo",
//	    "total_sample_period": "5y",
//	    "sample_period_end": "2024-01-01"
//	  }
//	}
package sampling

import (
	"time"
)

// DateFormat is the required layout for sample_period_end.
const DateFormat = "2006-01-02"

// Config is a validated sampling configuration. Constructed once by the
// Loader, immutable thereafter.
type Config struct {
	Tickers           []string
	SampleTimeStep    Period
	TotalSamplePeriod Period
	SamplePeriodEnd   time.Time
}

// SamplePeriodStart derives the start of the sampling window by reducing the
// end date's year by the total sample period's magnitude, month and day
// unchanged. Only whole-year periods reach this point; the Loader rejects
// anything else.
func (c *Config) SamplePeriodStart() time.Time {
	end := c.SamplePeriodEnd
	return time.Date(end.Year()-c.TotalSamplePeriod.N, end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
}
