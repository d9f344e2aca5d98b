package sampling

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// requiredParameterKeys are the keys that must be present under dataParameters.
var requiredParameterKeys = []string{"sample_time_step", "total_sample_period", "sample_period_end"}

// Loader handles loading sampling configurations from JSON documents.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("component", "sampling_loader").Logger(),
	}
}

// LoadFromFile loads and validates a sampling configuration from a JSON file.
func (l *Loader) LoadFromFile(configPath string) (*Config, error) {
	l.log.Info().Str("path", configPath).Msg("Loading sampling configuration")

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Int("tickers", len(cfg.Tickers)).
		Str("sample_time_step", cfg.SampleTimeStep.Token()).
		Str("total_sample_period", cfg.TotalSamplePeriod.Token()).
		Str("sample_period_end", cfg.SamplePeriodEnd.Format(DateFormat)).
		Msg("Sampling configuration loaded")

	return cfg, nil
}

// Parse decodes and validates a sampling configuration document.
func (l *Loader) Parse(data []byte) (*Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	// tickers must be present and must be a sequence of strings
	tickersRaw, ok := raw["tickers"]
	if !ok {
		return nil, &SchemaError{Key: "tickers", Reason: "missing"}
	}
	var tickers []string
	if err := json.Unmarshal(tickersRaw, &tickers); err != nil {
		return nil, &SchemaError{Key: "tickers", Reason: "not a sequence of strings"}
	}
	if len(tickers) == 0 {
		return nil, &ValidationError{Field: "tickers", Reason: "must not be empty"}
	}
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		if t == "" {
			return nil, &ValidationError{Field: "tickers", Reason: "symbols must be non-empty strings"}
		}
		if seen[t] {
			return nil, &ValidationError{Field: "tickers", Reason: fmt.Sprintf("duplicate symbol %q", t)}
		}
		seen[t] = true
	}

	// dataParameters must be present and must hold string values
	paramsRaw, ok := raw["dataParameters"]
	if !ok {
		return nil, &SchemaError{Key: "dataParameters", Reason: "missing"}
	}
	var params map[string]string
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return nil, &SchemaError{Key: "dataParameters", Reason: "not an object of string values"}
	}
	for _, key := range requiredParameterKeys {
		if _, ok := params[key]; !ok {
			return nil, &SchemaError{Key: "dataParameters." + key, Reason: "missing"}
		}
	}

	// sample_period_end must match YYYY-MM-DD
	endValue := params["sample_period_end"]
	end, err := time.Parse(DateFormat, endValue)
	if err != nil {
		return nil, &ValidationError{Field: "sample_period_end", Reason: fmt.Sprintf("%q does not match YYYY-MM-DD", endValue)}
	}

	// Every other parameter value must be one of the accepted period tokens
	periods := make(map[string]Period, len(params))
	for key, value := range params {
		if key == "sample_period_end" {
			continue
		}
		p, err := ParsePeriod(value)
		if err != nil {
			return nil, &ValidationError{Field: key, Reason: err.Error()}
		}
		periods[key] = p
	}

	// The start-date derivation only handles whole-year periods. Reject other
	// units loudly instead of mis-reading their magnitude.
	total := periods["total_sample_period"]
	if total.Unit != UnitYears {
		return nil, &ValidationError{Field: "total_sample_period", Reason: fmt.Sprintf("must be expressed in whole years, got %q", total.Token())}
	}
	if total.N <= 0 {
		return nil, &ValidationError{Field: "total_sample_period", Reason: "must be a positive number of years"}
	}

	return &Config{
		Tickers:           tickers,
		SampleTimeStep:    periods["sample_time_step"],
		TotalSamplePeriod: total,
		SamplePeriodEnd:   end,
	}, nil
}
