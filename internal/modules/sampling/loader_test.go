package sampling

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
	"tickers": ["XLC", "XLY", "XLP"],
	"dataParameters": {
		"sample_time_step": "1mo",
		"total_sample_period": "5y",
		"sample_period_end": "2024-01-01"
	}
}`

func newTestLoader() *Loader {
	return NewLoader(zerolog.Nop())
}

func TestLoadFromFileValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basket.json")
	require.NoError(t, os.WriteFile(path, []byte(validDocument), 0644))

	cfg, err := newTestLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"XLC", "XLY", "XLP"}, cfg.Tickers)
	assert.Equal(t, Period{N: 1, Unit: UnitMonths}, cfg.SampleTimeStep)
	assert.Equal(t, Period{N: 5, Unit: UnitYears}, cfg.TotalSamplePeriod)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.SamplePeriodEnd)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := newTestLoader().LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := newTestLoader().Parse([]byte(`{"tickers": [`))
	require.Error(t, err)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{
			name: "missing tickers",
			doc:  `{"dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			key:  "tickers",
		},
		{
			name: "tickers not a sequence",
			doc:  `{"tickers": "XLC", "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			key:  "tickers",
		},
		{
			name: "missing dataParameters",
			doc:  `{"tickers": ["XLC"]}`,
			key:  "dataParameters",
		},
		{
			name: "missing sample_time_step",
			doc:  `{"tickers": ["XLC"], "dataParameters": {"total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			key:  "dataParameters.sample_time_step",
		},
		{
			name: "missing total_sample_period",
			doc:  `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "1mo", "sample_period_end": "2024-01-01"}}`,
			key:  "dataParameters.total_sample_period",
		},
		{
			name: "missing sample_period_end",
			doc:  `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y"}}`,
			key:  "dataParameters.sample_period_end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().Parse([]byte(tt.doc))
			require.Error(t, err)

			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr))
			assert.Equal(t, tt.key, schemaErr.Key)
		})
	}
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "invalid date",
			doc:   `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "2024-13-40"}}`,
			field: "sample_period_end",
		},
		{
			name:  "date with wrong layout",
			doc:   `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "01/01/2024"}}`,
			field: "sample_period_end",
		},
		{
			name:  "unknown interval token",
			doc:   `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "2wk", "total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			field: "sample_time_step",
		},
		{
			name:  "total period not in years",
			doc:   `{"tickers": ["XLC"], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "3mo", "sample_period_end": "2024-01-01"}}`,
			field: "total_sample_period",
		},
		{
			name:  "empty tickers",
			doc:   `{"tickers": [], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			field: "tickers",
		},
		{
			name:  "duplicate tickers",
			doc:   `{"tickers": ["XLC", "XLC"], "dataParameters": {"sample_time_step": "1mo", "total_sample_period": "5y", "sample_period_end": "2024-01-01"}}`,
			field: "tickers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().Parse([]byte(tt.doc))
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSamplePeriodStart(t *testing.T) {
	cfg, err := newTestLoader().Parse([]byte(validDocument))
	require.NoError(t, err)

	// Year reduced by the period magnitude, month/day unchanged
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), cfg.SamplePeriodStart())
}

func TestSamplePeriodStartLeapDay(t *testing.T) {
	doc := `{
		"tickers": ["VT"],
		"dataParameters": {
			"sample_time_step": "1mo",
			"total_sample_period": "2y",
			"sample_period_end": "2024-02-29"
		}
	}`
	cfg, err := newTestLoader().Parse([]byte(doc))
	require.NoError(t, err)

	// 2022-02-29 does not exist; time.Date normalizes to March 1st
	assert.Equal(t, time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), cfg.SamplePeriodStart())
}

func TestParsePeriodTokens(t *testing.T) {
	for _, token := range AcceptedPeriodTokens() {
		p, err := ParsePeriod(token)
		require.NoError(t, err, "token %s", token)
		assert.Equal(t, token, p.Token())
	}

	for _, token := range []string{"2wk", "0y", "", "1h", "5yr"} {
		_, err := ParsePeriod(token)
		assert.Error(t, err, "token %s", token)
	}
}
