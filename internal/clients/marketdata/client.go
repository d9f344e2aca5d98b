// Package marketdata fetches daily adjusted-close history from an
// Alpha-Vantage-compatible HTTP API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookback/internal/modules/history"
)

const (
	defaultTimeout  = 30 * time.Second
	dailyAdjusted   = "TIME_SERIES_DAILY_ADJUSTED"
	seriesResultKey = "Time Series (Daily)"
	dateFormat      = "2006-01-02"
)

// Client talks to the market data vendor.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new market data client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("component", "marketdata_client").Logger(),
	}
}

// FetchDailyPrices returns the ascending adjusted-close series for one symbol
// within [start, end).
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]history.DailyPrice, error) {
	raw, err := c.queryTimeSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}

	prices, err := parseAdjustedCloses(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time series for %s: %w", symbol, err)
	}

	filtered := make([]history.DailyPrice, 0, len(prices))
	for _, p := range prices {
		if !p.Date.Before(start) && p.Date.Before(end) {
			filtered = append(filtered, p)
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(filtered)).
		Msg("Fetched daily prices")

	return filtered, nil
}

// FetchAdjustedCloses returns the combined adjusted-close table for all
// symbols within [start, end). Dates are the union of observation dates;
// a cell with no observation for its symbol is NaN.
func (c *Client) FetchAdjustedCloses(ctx context.Context, symbols []string, start, end time.Time) (*history.PriceTable, error) {
	dateSet := make(map[time.Time]bool)
	perSymbol := make(map[string]map[time.Time]float64, len(symbols))

	for _, symbol := range symbols {
		prices, err := c.FetchDailyPrices(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		byDate := make(map[time.Time]float64, len(prices))
		for _, p := range prices {
			byDate[p.Date] = p.AdjClose
			dateSet[p.Date] = true
		}
		perSymbol[symbol] = byDate
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	table := &history.PriceTable{
		Dates:  dates,
		Prices: make(map[string][]float64, len(symbols)),
	}
	for _, symbol := range symbols {
		col := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := perSymbol[symbol][d]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		table.Prices[symbol] = col
	}

	return table, nil
}

func (c *Client) queryTimeSeries(ctx context.Context, symbol string) (map[string]json.RawMessage, error) {
	params := url.Values{}
	params.Set("function", dailyAdjusted)
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	params.Set("datatype", "json")
	params.Set("apikey", c.apiKey)

	endpoint := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch time series for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data API returned status %d for %s", resp.StatusCode, symbol)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if msg, ok := raw["Error Message"]; ok {
		var text string
		_ = json.Unmarshal(msg, &text)
		return nil, fmt.Errorf("market data API error for %s: %s", symbol, text)
	}

	return raw, nil
}

// parseAdjustedCloses extracts the per-day adjusted closes from the vendor's
// time series object. Field names are numbered ("5. adjusted close"), so the
// adjusted close is located by suffix match rather than exact key.
func parseAdjustedCloses(raw map[string]json.RawMessage) ([]history.DailyPrice, error) {
	seriesRaw, ok := raw[seriesResultKey]
	if !ok {
		return nil, fmt.Errorf("response has no %q object", seriesResultKey)
	}

	var series map[string]map[string]string
	if err := json.Unmarshal(seriesRaw, &series); err != nil {
		return nil, fmt.Errorf("failed to unmarshal time series: %w", err)
	}

	prices := make([]history.DailyPrice, 0, len(series))
	for dateKey, fields := range series {
		date, err := time.Parse(dateFormat, dateKey)
		if err != nil {
			return nil, fmt.Errorf("bad observation date %q: %w", dateKey, err)
		}

		adjClose, found := 0.0, false
		for field, value := range fields {
			if strings.HasSuffix(strings.ToLower(field), ". adjusted close") {
				adjClose, err = strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad adjusted close %q on %s: %w", value, dateKey, err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("observation on %s has no adjusted close field", dateKey)
		}

		prices = append(prices, history.DailyPrice{Date: date, AdjClose: adjClose})
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })
	return prices, nil
}
