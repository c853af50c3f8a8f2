package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jdelaney/brokerbot/internal/broker"
)

const (
	yahooBaseURL        = "https://query1.finance.yahoo.com"
	yahooRequestTimeout = 10 * time.Second
	// Yahoo rejects the default Go user agent.
	yahooUserAgent = "Mozilla/5.0 (compatible; brokerbot/1.0)"
)

// YahooSource reads last-close prices from the Yahoo Finance chart endpoint.
// It is the secondary stage of the resolution chain.
type YahooSource struct {
	client  *http.Client
	baseURL string
}

// Ensure YahooSource implements SecondarySource at compile time.
var _ SecondarySource = (*YahooSource)(nil)

// NewYahooSource creates a Yahoo Finance price source with default settings.
func NewYahooSource() *YahooSource {
	return NewYahooSourceWithBaseURL(yahooBaseURL)
}

// NewYahooSourceWithBaseURL creates a source against a custom endpoint,
// used by tests to point at an httptest server.
func NewYahooSourceWithBaseURL(baseURL string) *YahooSource {
	return &YahooSource{
		client:  &http.Client{Timeout: yahooRequestTimeout},
		baseURL: baseURL,
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// LastClose returns the last-known market price for ticker, or
// broker.ErrNotFound when Yahoo does not know the symbol.
func (y *YahooSource) LastClose(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d", y.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("building yahoo request for %s: %w", ticker, err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("yahoo request for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("yahoo has no data for %s: %w", ticker, broker.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &broker.APIError{Status: resp.StatusCode,
			Body: fmt.Sprintf("GET /v8/finance/chart/%s -> %s", ticker, string(body))}
	}

	var chart yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return 0, fmt.Errorf("decoding yahoo response for %s: %w", ticker, err)
	}
	if chart.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo error for %s (%s): %w",
			ticker, chart.Chart.Error.Code, broker.ErrNotFound)
	}
	if len(chart.Chart.Result) == 0 {
		return 0, fmt.Errorf("yahoo returned no results for %s: %w", ticker, broker.ErrNotFound)
	}

	meta := chart.Chart.Result[0].Meta
	price := meta.RegularMarketPrice
	if price <= 0 {
		price = meta.ChartPreviousClose
	}
	if price <= 0 {
		return 0, fmt.Errorf("yahoo has no usable price for %s: %w", ticker, broker.ErrNotFound)
	}
	return price, nil
}
