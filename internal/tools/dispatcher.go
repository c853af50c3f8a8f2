// Package tools executes model-requested actions against the brokerage,
// price resolver, and search capability. Dispatch never returns an error:
// failures come back as descriptive strings so the calling model can react,
// and a single failing tool cannot terminate the session.
package tools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/retry"
	"github.com/jdelaney/brokerbot/internal/search"
)

// Short-selling eligibility thresholds, approximating Reg-T margin.
const (
	shortMinEquity = 40000.0
	shortMarginPct = 0.5
)

// Dispatcher executes canonical tool calls for one session. Create a new one
// per session: the price cache and statistics are session-scoped.
type Dispatcher struct {
	broker   broker.Broker
	prices   *pricing.Resolver
	folio    *portfolio.Reconciler
	searcher search.Searcher
	retryCfg retry.Config
	logger   *log.Logger

	stats      *Stats
	priceCache map[string]models.PriceQuote
}

// NewDispatcher creates a dispatcher with fresh session state.
func NewDispatcher(b broker.Broker, prices *pricing.Resolver, folio *portfolio.Reconciler,
	searcher search.Searcher, logger *log.Logger, retryCfg retry.Config) *Dispatcher {
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig
	}
	return &Dispatcher{
		broker:     b,
		prices:     prices,
		folio:      folio,
		searcher:   searcher,
		retryCfg:   retryCfg,
		logger:     logger,
		stats:      NewStats(),
		priceCache: map[string]models.PriceQuote{},
	}
}

// Stats returns a snapshot of the session counters.
func (d *Dispatcher) Stats() Snapshot {
	return d.stats.Snapshot()
}

// Dispatch executes one tool call and returns a human-readable result.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.ToolCall) string {
	d.stats.recordCall(call.Name)
	d.logger.Printf("Dispatching tool %s with args %v", call.Name, call.Args)

	switch call.Name {
	case models.ToolThink:
		return d.think(call)
	case models.ToolGetStockPrice:
		return d.getStockPrice(ctx, call)
	case models.ToolGetPortfolio:
		return d.getPortfolio(ctx)
	case models.ToolGetNetWorth:
		return fmt.Sprintf("Your net worth is $%.2f", d.folio.NetWorth(ctx))
	case models.ToolWebSearch:
		return d.webSearch(ctx, call)
	case models.ToolBuy, models.ToolSell, models.ToolShortSell, models.ToolCoverShort:
		return d.executeTrade(ctx, call)
	default:
		return fmt.Sprintf("Unknown function: %s. Available functions: %s, %s, %s, %s, %s, %s, %s, %s, %s.",
			call.Name, models.ToolThink, models.ToolGetStockPrice, models.ToolGetPortfolio,
			models.ToolGetNetWorth, models.ToolWebSearch, models.ToolBuy, models.ToolSell,
			models.ToolShortSell, models.ToolCoverShort)
	}
}

// think is a pure logging action. The prompt contract asks the model to
// think before acting; the dispatcher records the call either way and does
// not reject out-of-order turns.
func (d *Dispatcher) think(call models.ToolCall) string {
	thought := call.StringArg("thought")
	if thought == "" {
		thought = call.StringArg("thoughts")
	}
	d.logger.Printf("Model thought: %s", thought)
	return "Thought logged."
}

func (d *Dispatcher) getStockPrice(ctx context.Context, call models.ToolCall) string {
	ticker := normalizeTicker(call.StringArg("ticker"))
	if ticker == "" {
		return "Cannot look up a price without a ticker symbol."
	}

	if quote, ok := d.priceCache[ticker]; ok {
		d.stats.recordPriceLookup(true)
		return formatQuote(quote)
	}
	d.stats.recordPriceLookup(false)

	quote := d.prices.Resolve(ctx, ticker)
	d.priceCache[ticker] = quote
	return formatQuote(quote)
}

func (d *Dispatcher) getPortfolio(ctx context.Context) string {
	p := d.folio.GetPortfolio(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "Cash: $%.2f\n", p.Cash)
	if len(p.Holdings) == 0 {
		b.WriteString("Holdings: none\n")
	} else {
		b.WriteString("Holdings:\n")
		for _, ticker := range p.Tickers() {
			qty := p.Holdings[ticker]
			kind := "long"
			if qty < 0 {
				kind = "short"
			}
			fmt.Fprintf(&b, "  %s: %.4g shares (%s)\n", ticker, qty, kind)
		}
	}
	if n := len(p.History); n > 0 {
		recent := p.History
		if n > 5 {
			recent = recent[n-5:]
		}
		b.WriteString("Recent trades:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "  %s %s %.4g %s @ $%.2f\n",
				t.Date.Format("2006-01-02"), t.Side, t.Shares, t.Ticker, t.Price)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) webSearch(ctx context.Context, call models.ToolCall) string {
	query := call.StringArg("query")
	if query == "" {
		return "Cannot search without a query."
	}
	result, err := retry.Do(ctx, d.logger, "web search", d.retryCfg,
		func(ctx context.Context) (string, error) {
			return d.searcher.Search(ctx, query)
		})
	if err != nil {
		return fmt.Sprintf("Search failed for %q: %v", query, err)
	}
	return result
}

// executeTrade validates and submits a market order. It always re-fetches
// account and position state and re-resolves the price before validating;
// any validation failure returns an explanatory string with no order
// submitted, so there are never partial side effects.
func (d *Dispatcher) executeTrade(ctx context.Context, call models.ToolCall) string {
	ticker := normalizeTicker(call.StringArg("ticker"))
	if ticker == "" {
		return fmt.Sprintf("Cannot %s without a ticker symbol.", call.Name)
	}
	shares, ok := call.FloatArg("shares")
	if !ok || shares <= 0 {
		return fmt.Sprintf("Cannot %s %s: shares must be a positive number.", call.Name, ticker)
	}

	account, err := retry.Do(ctx, d.logger, "get account", d.retryCfg, d.broker.GetAccount)
	if err != nil {
		return fmt.Sprintf("Could not fetch account state for %s %s: %v", call.Name, ticker, err)
	}
	positions, err := retry.Do(ctx, d.logger, "get positions", d.retryCfg, d.broker.GetPositions)
	if err != nil {
		return fmt.Sprintf("Could not fetch positions for %s %s: %v", call.Name, ticker, err)
	}
	held := 0.0
	for _, p := range positions {
		if p.Symbol == ticker {
			held = p.Qty
			break
		}
	}

	// Always a fresh resolution for trades; the session price cache is for
	// informational lookups only.
	quote := d.prices.Resolve(ctx, ticker)
	cost := shares * quote.Price

	var side string
	switch call.Name {
	case models.ToolBuy:
		side = broker.OrderSideBuy
		if cost > account.BuyingPower {
			return fmt.Sprintf("Insufficient buying power to buy %.4g %s: need $%.2f, have $%.2f.",
				shares, ticker, cost, account.BuyingPower)
		}
	case models.ToolSell:
		side = broker.OrderSideSell
		if held < shares {
			return fmt.Sprintf("Insufficient shares to sell %.4g %s: holding %.4g.", shares, ticker, held)
		}
	case models.ToolShortSell:
		side = broker.OrderSideSell
		if held > 0 {
			return fmt.Sprintf("Cannot short %s while holding a long position of %.4g shares; sell first.",
				ticker, held)
		}
		if account.Equity < shortMinEquity {
			return fmt.Sprintf("Short selling requires at least $%.0f account equity; current equity is $%.2f.",
				shortMinEquity, account.Equity)
		}
		margin := cost * shortMarginPct
		if margin > account.BuyingPower {
			return fmt.Sprintf("Insufficient margin to short %.4g %s: need $%.2f, have $%.2f buying power.",
				shares, ticker, margin, account.BuyingPower)
		}
	case models.ToolCoverShort:
		side = broker.OrderSideBuy
		if held >= 0 {
			return fmt.Sprintf("No short position in %s to cover.", ticker)
		}
		if -held < shares {
			return fmt.Sprintf("Cannot cover %.4g %s: short position is only %.4g shares.",
				shares, ticker, -held)
		}
		if cost > account.BuyingPower {
			return fmt.Sprintf("Insufficient buying power to cover %.4g %s: need $%.2f, have $%.2f.",
				shares, ticker, cost, account.BuyingPower)
		}
	}

	order, err := d.broker.CreateOrder(ctx, broker.OrderRequest{Symbol: ticker, Qty: shares, Side: side})
	if err != nil {
		return fmt.Sprintf("Order submission failed for %s %.4g %s at ~$%.2f: %v",
			call.Name, shares, ticker, quote.Price, err)
	}
	d.logger.Printf("Submitted %s order %s: %.4g %s at ~$%.2f (%s source)",
		call.Name, order.ID, shares, ticker, quote.Price, quote.Source)
	return fmt.Sprintf("Submitted %s order for %.4g shares of %s at ~$%.2f (order %s, status %s).",
		call.Name, shares, ticker, quote.Price, order.ID, order.Status)
}

func formatQuote(q models.PriceQuote) string {
	note := ""
	if q.Source == models.SourceFallback {
		note = " [synthetic estimate]"
	}
	return fmt.Sprintf("%s is trading at $%.2f%s", q.Ticker, q.Price, note)
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
