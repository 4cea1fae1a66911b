package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fxlab/ratecast/pkg/series"
)

// HTTPSource calls a REST API returning JSON and extracts an exchange-rate
// series using gjson path expressions.
//
// Example for a rates API returning {"rates": [{"date": "...", "rate": 1.08}, ...]}:
//
//	src := &HTTPSource{
//	    URL:        "https://api.example.com/rates?base=USD&symbol=EUR",
//	    SeriesName: "usd_eur",
//	    DatePath:   "rates.#.date",
//	    ValuePath:  "rates.#.rate",
//	}
//
// A fetch is a single request; it fails rather than retries.
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string

	// SeriesName labels the resulting series (required).
	SeriesName string

	// ValuePath is the gjson path to the rate values. Use "#" for arrays,
	// e.g. "rates.#.rate".
	ValuePath string

	// DatePath is the gjson path to the observation dates. Must yield the
	// same number of elements as ValuePath.
	DatePath string

	// DateFormat selects how dates are parsed:
	//   "date"    - calendar dates like 2024-01-31 (default)
	//   "rfc3339" - RFC3339 strings
	//   "unix"    - Unix seconds
	DateFormat string

	// Headers are extra HTTP headers, e.g. an API key.
	Headers map[string]string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (h *HTTPSource) Name() string { return "http" }

// Fetch calls the endpoint once and shapes the response into a series.
// Observations are sorted by date before validation.
func (h *HTTPSource) Fetch(ctx context.Context) (*series.TimeSeries, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}
	if h.SeriesName == "" {
		return nil, errors.New("http source: SeriesName is required")
	}
	if h.ValuePath == "" || h.DatePath == "" {
		return nil, errors.New("http source: ValuePath and DatePath are required")
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http source: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http source: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http source: status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http source: read response: %w", err)
	}

	values := gjson.GetBytes(respBody, h.ValuePath)
	dates := gjson.GetBytes(respBody, h.DatePath)
	if !values.Exists() {
		return nil, fmt.Errorf("http source: value path %q not found in response", h.ValuePath)
	}
	if !dates.Exists() {
		return nil, fmt.Errorf("http source: date path %q not found in response", h.DatePath)
	}

	valArray := values.Array()
	dateArray := dates.Array()
	if len(valArray) != len(dateArray) {
		return nil, fmt.Errorf("http source: value count (%d) != date count (%d)", len(valArray), len(dateArray))
	}
	if len(valArray) == 0 {
		return nil, fmt.Errorf("http source: empty response from %s", h.URL)
	}

	type obs struct {
		ts    time.Time
		value float64
	}
	observations := make([]obs, len(valArray))
	for i := range valArray {
		ts, err := h.parseDate(dateArray[i])
		if err != nil {
			return nil, fmt.Errorf("http source: parse date[%d]: %w", i, err)
		}
		observations[i] = obs{ts: ts, value: valArray[i].Float()}
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].ts.Before(observations[j].ts)
	})

	times := make([]time.Time, len(observations))
	rates := make([]float64, len(observations))
	for i, o := range observations {
		times[i] = o.ts
		rates[i] = o.value
	}

	return series.New(h.SeriesName, times, rates)
}

func (h *HTTPSource) parseDate(value gjson.Result) (time.Time, error) {
	format := h.DateFormat
	if format == "" {
		format = "date"
	}

	switch format {
	case "date":
		return time.Parse("2006-01-02", value.String())
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date format: %s", format)
	}
}
