// Package broker provides brokerage API clients for account data, market
// quotes, and order execution. The Alpaca implementation is the production
// client; tests use the scripted Fake.
package broker

import (
	"context"
	"time"
)

// Order sides and statuses as the brokerage reports them.
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderStatusFilled = "filled"
)

// Account is the brokerage account snapshot.
type Account struct {
	Cash           float64
	BuyingPower    float64
	PortfolioValue float64
	Equity         float64
	Status         string
}

// Position is one open position. Qty is signed: negative means short.
type Position struct {
	Symbol      string
	Qty         float64
	MarketValue float64
}

// Order is a brokerage order, possibly partially or fully filled.
type Order struct {
	ID             string
	Symbol         string
	Side           string
	Qty            float64
	FilledQty      float64
	FilledAvgPrice float64
	FilledAt       *time.Time
	CreatedAt      time.Time
	Status         string
}

// Quote is the latest bid/ask for a symbol.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Clock is the exchange clock as reported by the brokerage.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// OrdersFilter bounds an order-history fetch.
type OrdersFilter struct {
	Status string // "open" | "closed" | "all"
	Limit  int
}

// OrderRequest describes a new order. Only market/day orders are submitted;
// an in-flight submission is never cancelled once dispatched.
type OrderRequest struct {
	Symbol string
	Qty    float64
	Side   string
}

// Broker is the interface for interacting with a brokerage.
type Broker interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetOrders(ctx context.Context, filter OrdersFilter) ([]Order, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetClock(ctx context.Context) (*Clock, error)
}
