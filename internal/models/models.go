// Package models defines the core domain types shared across the bot:
// the canonical portfolio view, trades, resolved price quotes, and the
// normalized tool-call shape every model provider converges on.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Side identifies the direction of a trade.
type Side string

// Trade sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// QuoteSource identifies which stage of the price-resolution chain produced a quote.
type QuoteSource string

// Price quote sources, in fallthrough order.
const (
	SourcePrimary   QuoteSource = "primary"
	SourceSecondary QuoteSource = "secondary"
	SourceFallback  QuoteSource = "fallback"
)

// PriceQuote is a freshly resolved price for one ticker. Quotes are never
// persisted; every use resolves a new one.
type PriceQuote struct {
	Ticker     string
	Price      float64
	Source     QuoteSource
	ResolvedAt time.Time
}

// Trade is a single filled order. Immutable once filled.
type Trade struct {
	Date   time.Time `json:"date"`
	Side   Side      `json:"side"`
	Ticker string    `json:"ticker"`
	Shares float64   `json:"shares"`
	Price  float64   `json:"price"`
	Total  float64   `json:"total"`
}

// Portfolio is the canonical account view reconstructed from the brokerage.
// Holdings carry net signed share counts (negative means short). The
// brokerage snapshot is the source of truth; History is a reporting cache.
type Portfolio struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]float64 `json:"holdings"`
	History  []Trade            `json:"history"`
}

// EmptyPortfolio returns the degraded portfolio used when the brokerage
// cannot be reached. Downstream reporting must never crash on it.
func EmptyPortfolio() *Portfolio {
	return &Portfolio{Holdings: map[string]float64{}, History: []Trade{}}
}

// Tickers returns the held tickers in stable order.
func (p *Portfolio) Tickers() []string {
	tickers := make([]string, 0, len(p.Holdings))
	for t := range p.Holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Names of the actions the model may invoke.
const (
	ToolThink         = "think"
	ToolGetStockPrice = "get_stock_price"
	ToolGetPortfolio  = "get_portfolio"
	ToolGetNetWorth   = "get_net_worth"
	ToolWebSearch     = "web_search"
	ToolBuy           = "buy"
	ToolSell          = "sell"
	ToolShortSell     = "short_sell"
	ToolCoverShort    = "cover_short"
)

var knownTools = map[string]bool{
	ToolThink:         true,
	ToolGetStockPrice: true,
	ToolGetPortfolio:  true,
	ToolGetNetWorth:   true,
	ToolWebSearch:     true,
	ToolBuy:           true,
	ToolSell:          true,
	ToolShortSell:     true,
	ToolCoverShort:    true,
}

// IsKnownTool reports whether name is one of the dispatchable actions.
func IsKnownTool(name string) bool {
	return knownTools[name]
}

// ToolCall is the single dispatch shape every provider-specific calling
// protocol normalizes to: structured function calls, quoted pseudo-code,
// and JSON blobs embedded in free text all end up here.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ArgsJSON renders the call arguments as a JSON object string.
func (c ToolCall) ArgsJSON() string {
	if len(c.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(c.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// StringArg returns the named argument as a string, tolerating numeric values.
func (c ToolCall) StringArg(key string) string {
	v, ok := c.Args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FloatArg returns the named argument as a float64. The bool reports whether
// a usable number was present.
func (c ToolCall) FloatArg(key string) (float64, bool) {
	v, ok := c.Args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
