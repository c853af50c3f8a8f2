// Package search provides the web_search capability behind a small
// interface, implemented against the DuckDuckGo instant-answer API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jdelaney/brokerbot/internal/broker"
)

const (
	duckDuckGoBaseURL = "https://api.duckduckgo.com"
	requestTimeout    = 10 * time.Second
	maxResults        = 5
)

// Searcher answers a free-text query with a short human-readable summary.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DuckDuckGo implements Searcher against the instant-answer endpoint. It
// needs no API key, which keeps search usable in paper-trading setups.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// Ensure DuckDuckGo implements Searcher at compile time.
var _ Searcher = (*DuckDuckGo)(nil)

// NewDuckDuckGo creates a search client with default settings.
func NewDuckDuckGo() *DuckDuckGo {
	return NewDuckDuckGoWithBaseURL(duckDuckGoBaseURL)
}

// NewDuckDuckGoWithBaseURL creates a client against a custom endpoint, used
// by tests to point at an httptest server.
func NewDuckDuckGoWithBaseURL(baseURL string) *DuckDuckGo {
	return &DuckDuckGo{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
	}
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search queries the instant-answer API and renders up to a handful of
// snippets. An empty result set returns a "no results" message instead of an
// error so the calling model can adapt.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		d.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &broker.APIError{Status: resp.StatusCode,
			Body: fmt.Sprintf("search for %q -> %s", query, string(body))}
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("decoding search response for %q: %w", query, err)
	}

	var lines []string
	if answer.Answer != "" {
		lines = append(lines, answer.Answer)
	}
	if answer.AbstractText != "" {
		lines = append(lines, answer.AbstractText)
	}
	for _, topic := range answer.RelatedTopics {
		if len(lines) >= maxResults {
			break
		}
		if topic.Text != "" {
			lines = append(lines, "- "+topic.Text)
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}
	return strings.Join(lines, "\n"), nil
}
