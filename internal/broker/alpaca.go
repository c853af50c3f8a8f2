package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// defaultOrderPageSize bounds order-history fetches.
const defaultOrderPageSize = 500

// AlpacaBroker implements Broker against the Alpaca trading and market-data
// APIs. Credentials come from the standard APCA_* environment variables,
// which the SDK clients read themselves.
type AlpacaBroker struct {
	trade *alpaca.Client
	md    *marketdata.Client
}

// Ensure AlpacaBroker implements Broker at compile time.
var _ Broker = (*AlpacaBroker)(nil)

// NewAlpacaBroker creates a new Alpaca broker client.
func NewAlpacaBroker() *AlpacaBroker {
	return &AlpacaBroker{
		trade: alpaca.NewClient(alpaca.ClientOpts{}),
		md:    marketdata.NewClient(marketdata.ClientOpts{}),
	}
}

// wrapAPIError converts Alpaca SDK errors into the package's APIError so the
// retry policy can classify them by status.
func wrapAPIError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &APIError{Status: apiErr.StatusCode, Body: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetAccount fetches the account snapshot (cash, buying power, total value).
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*Account, error) {
	acct, err := b.trade.GetAccount()
	if err != nil {
		return nil, wrapAPIError("get account", err)
	}
	return &Account{
		Cash:           acct.Cash.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		PortfolioValue: acct.PortfolioValue.InexactFloat64(),
		Equity:         acct.Equity.InexactFloat64(),
		Status:         string(acct.Status),
	}, nil
}

// GetPositions fetches open positions with signed quantities.
func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]Position, error) {
	alpacaPositions, err := b.trade.GetPositions()
	if err != nil {
		return nil, wrapAPIError("get positions", err)
	}
	positions := make([]Position, 0, len(alpacaPositions))
	for _, p := range alpacaPositions {
		marketValue := 0.0
		if p.MarketValue != nil {
			marketValue = p.MarketValue.InexactFloat64()
		}
		positions = append(positions, Position{
			Symbol:      p.Symbol,
			Qty:         p.Qty.InexactFloat64(),
			MarketValue: marketValue,
		})
	}
	return positions, nil
}

// GetOrders fetches order history bounded by the filter's page size.
func (b *AlpacaBroker) GetOrders(ctx context.Context, filter OrdersFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	status := filter.Status
	if status == "" {
		status = "closed"
	}
	alpacaOrders, err := b.trade.GetOrders(alpaca.GetOrdersRequest{
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		return nil, wrapAPIError("get orders", err)
	}
	orders := make([]Order, 0, len(alpacaOrders))
	for i := range alpacaOrders {
		orders = append(orders, mapOrder(&alpacaOrders[i]))
	}
	return orders, nil
}

// GetLatestQuote fetches the latest bid/ask for a symbol.
func (b *AlpacaBroker) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	q, err := b.md.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, wrapAPIError(fmt.Sprintf("get quote %s", symbol), err)
	}
	if q == nil {
		return nil, fmt.Errorf("get quote %s: %w", symbol, ErrNotFound)
	}
	return &Quote{
		Symbol:    symbol,
		Bid:       q.BidPrice,
		Ask:       q.AskPrice,
		Timestamp: q.Timestamp,
	}, nil
}

// CreateOrder submits a market/day order. Callers validate buying power and
// share counts before calling; this method performs no validation of its own.
func (b *AlpacaBroker) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	qty := decimal.NewFromFloat(req.Qty)
	o, err := b.trade.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return nil, wrapAPIError(fmt.Sprintf("create %s order %s", req.Side, req.Symbol), err)
	}
	order := mapOrder(o)
	return &order, nil
}

// GetClock fetches the exchange clock.
func (b *AlpacaBroker) GetClock(ctx context.Context) (*Clock, error) {
	c, err := b.trade.GetClock()
	if err != nil {
		return nil, wrapAPIError("get clock", err)
	}
	return &Clock{
		Timestamp: c.Timestamp,
		IsOpen:    c.IsOpen,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}, nil
}

func mapOrder(o *alpaca.Order) Order {
	qty := 0.0
	if o.Qty != nil {
		qty = o.Qty.InexactFloat64()
	}
	filledAvgPrice := 0.0
	if o.FilledAvgPrice != nil {
		filledAvgPrice = o.FilledAvgPrice.InexactFloat64()
	}
	var filledAt *time.Time
	if o.FilledAt != nil {
		t := *o.FilledAt
		filledAt = &t
	}
	return Order{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Qty:            qty,
		FilledQty:      o.FilledQty.InexactFloat64(),
		FilledAvgPrice: filledAvgPrice,
		FilledAt:       filledAt,
		CreatedAt:      o.CreatedAt,
		Status:         string(o.Status),
	}
}
