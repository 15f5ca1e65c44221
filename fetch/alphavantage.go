package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/screener/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the Alpha Vantage query endpoint.
	BaseURL = "https://www.alphavantage.co/query"
	// DateLayout is the format layout of intraday series timestamps.
	DateLayout = "2006-01-02 15:04:05"
	// DayLayout is the format layout of daily series timestamps.
	DayLayout = "2006-01-02"

	// intradayFunction is the provider function for intraday fx series.
	intradayFunction = "FX_INTRADAY"
	// defaultTimeout is the default request timeout.
	defaultTimeout = time.Second * 10
	// maxBodySize caps the size of a provider response body.
	maxBodySize = 4 << 20
)

// ErrNoSeries is returned when a provider response holds no usable time series.
var ErrNoSeries = errors.New("no time series")

var (
	// seriesKeyPatterns locate the time series object, in order of preference.
	seriesKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Time Series`),
		regexp.MustCompile(`FX Intraday`),
	}
	// closeKeyPattern matches numbered ("4. close") and plain ("close") close fields.
	closeKeyPattern = regexp.MustCompile(`^(\d+\.\s*)?close$`)
	// noticeKeys are the keys the provider uses to explain a missing series.
	noticeKeys = []string{"Error Message", "Note", "Information"}
)

// AlphaVantageConfig represents the configuration for the Alpha Vantage client.
type AlphaVantageConfig struct {
	// APIKey is the Alpha Vantage API key.
	APIKey string
	// BaseURL is the query endpoint.
	BaseURL string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *AlphaVantageConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("alpha vantage api key cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("alpha vantage base url cannot be an empty string"))
	}
	if cfg.Timeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("alpha vantage timeout cannot be negative"))
	}

	return errs
}

// AlphaVantageClient represents the Alpha Vantage API client.
type AlphaVantageClient struct {
	cfg   *AlphaVantageConfig
	httpc *http.Client
}

// Ensure the AlphaVantageClient implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*AlphaVantageClient)(nil)

// NewAlphaVantageClient instantiates a new Alpha Vantage client.
func NewAlphaVantageClient(cfg *AlphaVantageConfig) (*AlphaVantageClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating alpha vantage config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &AlphaVantageClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
	}, nil
}

// formURL creates the full intraday url including parameters for the api.
func (c *AlphaVantageClient) formURL(pair shared.Pair, intervalMinutes int) string {
	params := url.Values{}
	params.Add("function", intradayFunction)
	params.Add("from_symbol", pair.Base)
	params.Add("to_symbol", pair.Quote)
	params.Add("interval", fmt.Sprintf("%dmin", intervalMinutes))
	params.Add("outputsize", "compact")
	params.Add("apikey", c.cfg.APIKey)

	return c.cfg.BaseURL + "?" + params.Encode()
}

// FetchIntradaySeries fetches the intraday series of the provided pair, oldest first.
// Any failure yields an empty series alongside the error describing it.
func (c *AlphaVantageClient) FetchIntradaySeries(ctx context.Context, pair shared.Pair, intervalMinutes int) ([]shared.Sample, error) {
	if !pair.IsValid() {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidSymbol, pair.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(pair, intervalMinutes), nil)
	if err != nil {
		return nil, fmt.Errorf("creating intraday request for %s: %w", pair.String(), err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching intraday data (%dmin) for %s: %w", intervalMinutes, pair.String(), err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching intraday data for %s: unexpected status %d", pair.String(), resp.StatusCode)
	}

	samples, err := ParseIntradaySeries(body)
	if err != nil {
		return nil, fmt.Errorf("parsing intraday data for %s: %w", pair.String(), err)
	}

	return samples, nil
}

// findSeries locates the time series object by matching its key name, the exact label
// varies by provider version.
func findSeries(root gjson.Result) gjson.Result {
	for _, pattern := range seriesKeyPatterns {
		var series gjson.Result
		root.ForEach(func(key, value gjson.Result) bool {
			if pattern.MatchString(key.String()) && value.IsObject() {
				series = value
				return false
			}
			return true
		})

		if series.Exists() {
			return series
		}
	}

	return gjson.Result{}
}

// findClose reads the closing price of a series entry.
func findClose(entry gjson.Result) (float64, bool) {
	var closePrice float64
	var found bool
	entry.ForEach(func(key, value gjson.Result) bool {
		if !closeKeyPattern.MatchString(strings.ToLower(strings.TrimSpace(key.String()))) {
			return true
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value.String()), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}

		closePrice = v
		found = true
		return false
	})

	return closePrice, found
}

// parseTimestamp parses an intraday or daily series timestamp in UTC.
func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(DateLayout, s)
	if err == nil {
		return ts, nil
	}

	return time.Parse(DayLayout, s)
}

// ParseIntradaySeries parses the provider time series response into samples sorted
// oldest first. Entries without a parsable timestamp or close are skipped.
func ParseIntradaySeries(body []byte) ([]shared.Sample, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed json payload", ErrNoSeries)
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected a json object payload", ErrNoSeries)
	}

	series := findSeries(root)
	if !series.Exists() {
		for _, key := range noticeKeys {
			notice := root.Get(key)
			if notice.Exists() {
				return nil, fmt.Errorf("%w: %s: %s", ErrNoSeries, key, notice.String())
			}
		}

		return nil, fmt.Errorf("%w: no time series key in payload", ErrNoSeries)
	}

	samples := make([]shared.Sample, 0, 100)
	series.ForEach(func(key, value gjson.Result) bool {
		ts, err := parseTimestamp(key.String())
		if err != nil {
			return true
		}

		closePrice, ok := findClose(value)
		if !ok {
			return true
		}

		samples = append(samples, shared.Sample{Time: ts, Close: closePrice})
		return true
	})

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: time series has no usable entries", ErrNoSeries)
	}

	slices.SortStableFunc(samples, func(a, b shared.Sample) int {
		return a.Time.Compare(b.Time)
	})

	return samples, nil
}
