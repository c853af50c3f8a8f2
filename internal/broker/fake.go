package broker

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Fake implements Broker for testing. Each call either returns the scripted
// value or the scripted error; submitted orders are recorded and appended to
// the order history as immediately filled.
type Fake struct {
	mu sync.Mutex

	Account   Account
	Positions []Position
	Orders    []Order
	Quotes    map[string]Quote
	Clock     Clock

	AccountErr   error
	PositionsErr error
	OrdersErr    error
	QuoteErr     error
	CreateErr    error
	ClockErr     error

	// QuoteErrs overrides QuoteErr per symbol when set.
	QuoteErrs map[string]error

	Created []OrderRequest

	QuoteCalls   int
	AccountCalls int

	nextOrderID int
}

// Ensure Fake implements Broker at compile time.
var _ Broker = (*Fake)(nil)

// NewFake returns a fake broker with an empty, unblocked account.
func NewFake() *Fake {
	return &Fake{
		Account: Account{Status: "ACTIVE"},
		Quotes:  map[string]Quote{},
	}
}

func (f *Fake) GetAccount(ctx context.Context) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccountCalls++
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	acct := f.Account
	return &acct, nil
}

func (f *Fake) GetPositions(ctx context.Context) ([]Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PositionsErr != nil {
		return nil, f.PositionsErr
	}
	return append([]Position(nil), f.Positions...), nil
}

func (f *Fake) GetOrders(ctx context.Context, filter OrdersFilter) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OrdersErr != nil {
		return nil, f.OrdersErr
	}
	return append([]Order(nil), f.Orders...), nil
}

func (f *Fake) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QuoteCalls++
	if err, ok := f.QuoteErrs[symbol]; ok {
		return nil, err
	}
	if f.QuoteErr != nil {
		return nil, f.QuoteErr
	}
	q, ok := f.Quotes[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (f *Fake) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Created = append(f.Created, req)
	f.nextOrderID++
	now := time.Now()
	price := 0.0
	if q, ok := f.Quotes[req.Symbol]; ok {
		price = (q.Bid + q.Ask) / 2
	}
	order := Order{
		ID:             "fake-" + strconv.Itoa(f.nextOrderID) + "-" + req.Symbol,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Qty:            req.Qty,
		FilledQty:      req.Qty,
		FilledAvgPrice: price,
		FilledAt:       &now,
		CreatedAt:      now,
		Status:         OrderStatusFilled,
	}
	f.Orders = append(f.Orders, order)

	// Keep positions consistent with the fill so reconciliation tests see it.
	signed := req.Qty
	if req.Side == OrderSideSell {
		signed = -req.Qty
	}
	found := false
	for i := range f.Positions {
		if f.Positions[i].Symbol == req.Symbol {
			f.Positions[i].Qty += signed
			found = true
			break
		}
	}
	if !found {
		f.Positions = append(f.Positions, Position{Symbol: req.Symbol, Qty: signed})
	}
	return &order, nil
}

func (f *Fake) GetClock(ctx context.Context) (*Clock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClockErr != nil {
		return nil, f.ClockErr
	}
	clock := f.Clock
	return &clock, nil
}
