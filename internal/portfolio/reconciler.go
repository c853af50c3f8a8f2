// Package portfolio reconstructs the canonical portfolio view from raw
// brokerage state and derives the reporting numbers: realized P&L against a
// weighted-average cost basis, net worth, and annualized return.
package portfolio

import (
	"context"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/pricing"
	"github.com/jdelaney/brokerbot/internal/retry"
)

// Reconciler converts brokerage account/positions/orders into a Portfolio.
type Reconciler struct {
	broker        broker.Broker
	prices        *pricing.Resolver
	retryCfg      retry.Config
	logger        *log.Logger
	orderPageSize int
}

// NewReconciler creates a portfolio reconciler.
func NewReconciler(b broker.Broker, prices *pricing.Resolver, logger *log.Logger, retryCfg retry.Config, orderPageSize int) *Reconciler {
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig
	}
	if orderPageSize <= 0 {
		orderPageSize = 500
	}
	return &Reconciler{
		broker:        b,
		prices:        prices,
		retryCfg:      retryCfg,
		logger:        logger,
		orderPageSize: orderPageSize,
	}
}

// GetPortfolio fetches account, positions, and order history concurrently and
// reconciles them into the canonical view. On any fetch failure it degrades
// to an empty portfolio rather than failing, because downstream reporting
// must never crash a session.
func (r *Reconciler) GetPortfolio(ctx context.Context) *models.Portfolio {
	var (
		account   *broker.Account
		positions []broker.Position
		orders    []broker.Order
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = retry.Do(gctx, r.logger, "get account", r.retryCfg, r.broker.GetAccount)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = retry.Do(gctx, r.logger, "get positions", r.retryCfg, r.broker.GetPositions)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = retry.Do(gctx, r.logger, "get orders", r.retryCfg,
			func(ctx context.Context) ([]broker.Order, error) {
				return r.broker.GetOrders(ctx, broker.OrdersFilter{Status: "closed", Limit: r.orderPageSize})
			})
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.Printf("Portfolio reconciliation degraded to empty: %v", err)
		return models.EmptyPortfolio()
	}

	portfolio := &models.Portfolio{
		Cash:     account.Cash,
		Holdings: map[string]float64{},
		History:  filledTrades(orders),
	}
	for _, p := range positions {
		if p.Qty != 0 {
			portfolio.Holdings[p.Symbol] = p.Qty
		}
	}
	return portfolio
}

// NetWorth prefers the brokerage-reported total portfolio value. Only when
// that call fails does it fall back to freshly resolved holding prices,
// accepting staleness in exchange for availability. The fallback fetches
// positions on its own rather than through GetPortfolio, whose all-or-nothing
// degrade would discard the positions over the same account outage. Cash is
// unknowable without the account, so the fallback values holdings only.
func (r *Reconciler) NetWorth(ctx context.Context) float64 {
	account, err := retry.Do(ctx, r.logger, "get account", r.retryCfg, r.broker.GetAccount)
	if err == nil {
		return account.PortfolioValue
	}
	r.logger.Printf("Net worth falling back to local valuation: %v", err)

	positions, err := retry.Do(ctx, r.logger, "get positions", r.retryCfg, r.broker.GetPositions)
	if err != nil {
		r.logger.Printf("Net worth unavailable, positions fetch failed: %v", err)
		return 0
	}
	total := 0.0
	for _, p := range positions {
		if p.Qty == 0 {
			continue
		}
		quote := r.prices.Resolve(ctx, p.Symbol)
		total += p.Qty * quote.Price
	}
	return total
}

// filledTrades maps filled orders to trades sorted ascending by fill time.
func filledTrades(orders []broker.Order) []models.Trade {
	trades := make([]models.Trade, 0, len(orders))
	for _, o := range orders {
		if o.Status != broker.OrderStatusFilled || o.FilledAt == nil || o.FilledQty <= 0 {
			continue
		}
		trades = append(trades, models.Trade{
			Date:   *o.FilledAt,
			Side:   models.Side(o.Side),
			Ticker: o.Symbol,
			Shares: o.FilledQty,
			Price:  o.FilledAvgPrice,
			Total:  o.FilledQty * o.FilledAvgPrice,
		})
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Date.Before(trades[j].Date) })
	return trades
}
