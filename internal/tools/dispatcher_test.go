package tools

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/retry"
)

type fakeSearcher struct {
	result string
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (string, error) {
	return f.result, f.err
}

func newTestDispatcher(b *broker.Fake) (*Dispatcher, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	cfg := retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}
	resolver := pricing.NewResolver(b, nil, logger, pricing.Options{Retry: cfg, Seed: 7})
	folio := portfolio.NewReconciler(b, resolver, logger, cfg, 500)
	return NewDispatcher(b, resolver, folio, &fakeSearcher{result: "market news"}, logger, cfg), &buf
}

func call(name string, args map[string]any) models.ToolCall {
	return models.ToolCall{ID: "call-1", Name: name, Args: args}
}

func TestDispatch_BuyWithSufficientBuyingPower(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{Cash: 1000, BuyingPower: 1000, Equity: 1000}
	b.Quotes["AAPL"] = broker.Quote{Symbol: "AAPL", Bid: 199, Ask: 201}

	d, _ := newTestDispatcher(b)
	result := d.Dispatch(context.Background(), call(models.ToolBuy, map[string]any{"ticker": "AAPL", "shares": 5.0}))

	assert.Contains(t, result, "Submitted buy order")
	require.Len(t, b.Created, 1)
	assert.Equal(t, broker.OrderRequest{Symbol: "AAPL", Qty: 5, Side: broker.OrderSideBuy}, b.Created[0])

	// Reconciliation after the fill must show the new holding.
	p := d.folio.GetPortfolio(context.Background())
	assert.Equal(t, 5.0, p.Holdings["AAPL"])
}

func TestDispatch_BuyRejectedOnInsufficientBuyingPower(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{Cash: 100, BuyingPower: 100, Equity: 100}
	b.Quotes["AAPL"] = broker.Quote{Symbol: "AAPL", Bid: 199, Ask: 201}

	d, _ := newTestDispatcher(b)
	result := d.Dispatch(context.Background(), call(models.ToolBuy, map[string]any{"ticker": "AAPL", "shares": 5.0}))

	assert.Contains(t, result, "Insufficient buying power")
	assert.Empty(t, b.Created, "validation failure must not submit an order")
}

func TestDispatch_SellRequiresShares(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{BuyingPower: 5000, Equity: 5000}
	b.Positions = []broker.Position{{Symbol: "AAPL", Qty: 2}}
	b.Quotes["AAPL"] = broker.Quote{Symbol: "AAPL", Bid: 199, Ask: 201}

	d, _ := newTestDispatcher(b)

	rejected := d.Dispatch(context.Background(), call(models.ToolSell, map[string]any{"ticker": "AAPL", "shares": 5.0}))
	assert.Contains(t, rejected, "Insufficient shares")
	assert.Empty(t, b.Created)

	accepted := d.Dispatch(context.Background(), call(models.ToolSell, map[string]any{"ticker": "AAPL", "shares": 2.0}))
	assert.Contains(t, accepted, "Submitted sell order")
	require.Len(t, b.Created, 1)
	assert.Equal(t, broker.OrderSideSell, b.Created[0].Side)
}

func TestDispatch_ShortSellEligibility(t *testing.T) {
	b := broker.NewFake()
	b.Quotes["TSLA"] = broker.Quote{Symbol: "TSLA", Bid: 249, Ask: 251}

	d, _ := newTestDispatcher(b)

	// Below the equity minimum.
	b.Account = broker.Account{BuyingPower: 30000, Equity: 30000}
	result := d.Dispatch(context.Background(), call(models.ToolShortSell, map[string]any{"ticker": "TSLA", "shares": 10.0}))
	assert.Contains(t, result, "requires at least $40000")
	assert.Empty(t, b.Created)

	// Eligible: equity above minimum and margin available.
	b.Account = broker.Account{BuyingPower: 50000, Equity: 50000}
	result = d.Dispatch(context.Background(), call(models.ToolShortSell, map[string]any{"ticker": "TSLA", "shares": 10.0}))
	assert.Contains(t, result, "Submitted short_sell order")
	require.Len(t, b.Created, 1)
	assert.Equal(t, broker.OrderSideSell, b.Created[0].Side)
}

func TestDispatch_CoverShortRequiresShortPosition(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{BuyingPower: 50000, Equity: 50000}
	b.Quotes["TSLA"] = broker.Quote{Symbol: "TSLA", Bid: 249, Ask: 251}

	d, _ := newTestDispatcher(b)

	result := d.Dispatch(context.Background(), call(models.ToolCoverShort, map[string]any{"ticker": "TSLA", "shares": 5.0}))
	assert.Contains(t, result, "No short position")
	assert.Empty(t, b.Created)

	b.Positions = []broker.Position{{Symbol: "TSLA", Qty: -5}}
	result = d.Dispatch(context.Background(), call(models.ToolCoverShort, map[string]any{"ticker": "TSLA", "shares": 5.0}))
	assert.Contains(t, result, "Submitted cover_short order")
	require.Len(t, b.Created, 1)
	assert.Equal(t, broker.OrderSideBuy, b.Created[0].Side)
}

func TestDispatch_CoverShortChecksBuyingPower(t *testing.T) {
	b := broker.NewFake()
	// Covering 5 shares at mid 250 costs 1250, more than the available 1000.
	b.Account = broker.Account{BuyingPower: 1000, Equity: 50000}
	b.Quotes["TSLA"] = broker.Quote{Symbol: "TSLA", Bid: 249, Ask: 251}
	b.Positions = []broker.Position{{Symbol: "TSLA", Qty: -5}}

	d, _ := newTestDispatcher(b)

	result := d.Dispatch(context.Background(), call(models.ToolCoverShort, map[string]any{"ticker": "TSLA", "shares": 5.0}))
	assert.Contains(t, result, "Insufficient buying power to cover")
	assert.Empty(t, b.Created)
}

func TestDispatch_InvalidArgumentsAreDescriptive(t *testing.T) {
	d, _ := newTestDispatcher(broker.NewFake())

	assert.Contains(t,
		d.Dispatch(context.Background(), call(models.ToolBuy, map[string]any{"shares": 5.0})),
		"without a ticker")
	assert.Contains(t,
		d.Dispatch(context.Background(), call(models.ToolBuy, map[string]any{"ticker": "AAPL", "shares": -2.0})),
		"must be a positive number")
	assert.Contains(t,
		d.Dispatch(context.Background(), call(models.ToolGetStockPrice, nil)),
		"without a ticker")
}

func TestDispatch_UnknownToolNeverRaises(t *testing.T) {
	d, _ := newTestDispatcher(broker.NewFake())
	result := d.Dispatch(context.Background(), call("teleport", nil))
	assert.Contains(t, result, "Unknown function: teleport")
}

func TestDispatch_ThinkIsPureLogging(t *testing.T) {
	b := broker.NewFake()
	d, buf := newTestDispatcher(b)

	result := d.Dispatch(context.Background(), call(models.ToolThink, map[string]any{"thought": "market looks calm"}))

	assert.Equal(t, "Thought logged.", result)
	assert.Contains(t, buf.String(), "market looks calm")
	assert.Empty(t, b.Created)
}

func TestDispatch_PriceCacheIsSessionScoped(t *testing.T) {
	b := broker.NewFake()
	b.Quotes["AAPL"] = broker.Quote{Symbol: "AAPL", Bid: 199, Ask: 201}

	d, _ := newTestDispatcher(b)
	ctx := context.Background()

	d.Dispatch(ctx, call(models.ToolGetStockPrice, map[string]any{"ticker": "AAPL"}))
	d.Dispatch(ctx, call(models.ToolGetStockPrice, map[string]any{"ticker": "AAPL"}))

	stats := d.Stats()
	assert.Equal(t, 2, stats.PriceLookups)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1, b.QuoteCalls, "second lookup must hit the session cache")

	// A fresh dispatcher starts from zero.
	d2, _ := newTestDispatcher(b)
	assert.Zero(t, d2.Stats().PriceLookups)
}

func TestDispatch_TradeBypassesPriceCache(t *testing.T) {
	b := broker.NewFake()
	b.Account = broker.Account{BuyingPower: 10000, Equity: 10000}
	b.Quotes["AAPL"] = broker.Quote{Symbol: "AAPL", Bid: 199, Ask: 201}

	d, _ := newTestDispatcher(b)
	ctx := context.Background()

	d.Dispatch(ctx, call(models.ToolGetStockPrice, map[string]any{"ticker": "AAPL"}))
	before := b.QuoteCalls
	d.Dispatch(ctx, call(models.ToolBuy, map[string]any{"ticker": "AAPL", "shares": 1.0}))
	assert.Greater(t, b.QuoteCalls, before, "trades must re-resolve the price")
}

func TestDispatch_WebSearch(t *testing.T) {
	d, _ := newTestDispatcher(broker.NewFake())
	result := d.Dispatch(context.Background(), call(models.ToolWebSearch, map[string]any{"query": "AAPL news"}))
	assert.Equal(t, "market news", result)
}

func TestDispatch_GetPortfolioSurvivesBrokerOutage(t *testing.T) {
	b := broker.NewFake()
	b.AccountErr = &broker.APIError{Status: 500, Body: "down"}
	b.PositionsErr = &broker.APIError{Status: 500, Body: "down"}
	b.OrdersErr = &broker.APIError{Status: 500, Body: "down"}

	d, _ := newTestDispatcher(b)
	result := d.Dispatch(context.Background(), call(models.ToolGetPortfolio, nil))
	assert.Contains(t, result, "Cash: $0.00")
	assert.Contains(t, result, "Holdings: none")
}
