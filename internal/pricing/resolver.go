// Package pricing resolves tickers to usable trade prices through an ordered
// chain of sources: the brokerage bid/ask mid, a public last-close source,
// and finally a synthetic price. Resolution never fails for a syntactically
// valid ticker; callers can tell synthetic data apart by the quote source.
package pricing

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jdelaney/brokerbot/internal/broker"
	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/retry"
	"github.com/jdelaney/brokerbot/internal/util"
)

// Synthetic price bounds for tickers the fallback table does not know.
const (
	syntheticFloor   = 50.0
	syntheticCeiling = 250.0
)

// knownRecentPrices anchors the synthetic fallback for common tickers so a
// dead data path still produces plausible numbers.
var knownRecentPrices = map[string]float64{
	"AAPL": 232.50,
	"MSFT": 424.75,
	"GOOG": 178.20,
	"AMZN": 205.40,
	"NVDA": 135.60,
	"META": 562.30,
	"TSLA": 249.80,
	"AMD":  154.90,
	"SPY":  567.10,
	"QQQ":  482.60,
}

// SecondarySource reads a last-known market price for a ticker from a public
// data provider. It returns broker.ErrNotFound for unknown tickers.
type SecondarySource interface {
	LastClose(ctx context.Context, ticker string) (float64, error)
}

// Options tune a Resolver. The zero value is usable.
type Options struct {
	Retry retry.Config
	// Seed makes the synthetic fallback deterministic in tests.
	Seed int64
	Now  func() time.Time
}

// Resolver resolves prices through the primary/secondary/fallback chain.
type Resolver struct {
	broker    broker.Broker
	secondary SecondarySource
	retryCfg  retry.Config
	logger    *log.Logger
	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResolver creates a price resolver over the given primary brokerage and
// secondary source. A flapping primary trips the circuit breaker so the chain
// falls through without burning retry budget on every lookup.
func NewResolver(b broker.Broker, secondary SecondarySource, logger *log.Logger, opts Options) *Resolver {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Resolver{
		broker:    b,
		secondary: secondary,
		retryCfg:  opts.Retry,
		logger:    logger,
		now:       opts.Now,
		rng:       rand.New(rand.NewSource(seed)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "primary-quotes",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Resolve returns a usable price for ticker. On primary failure it falls
// through to the secondary source, and on that failure to a synthetic price
// tagged models.SourceFallback. Prices are rounded to 2 decimal places.
func (r *Resolver) Resolve(ctx context.Context, ticker string) models.PriceQuote {
	if price, err := r.primaryPrice(ctx, ticker); err == nil {
		return r.quote(ticker, price, models.SourcePrimary)
	} else {
		r.logger.Printf("price %s: primary source failed: %v", ticker, err)
	}

	if price, err := r.secondaryPrice(ctx, ticker); err == nil {
		return r.quote(ticker, price, models.SourceSecondary)
	} else {
		r.logger.Printf("price %s: secondary source failed: %v", ticker, err)
	}

	price := r.syntheticPrice(ticker)
	r.logger.Printf("price %s: using synthetic fallback $%.2f", ticker, price)
	return r.quote(ticker, price, models.SourceFallback)
}

func (r *Resolver) quote(ticker string, price float64, source models.QuoteSource) models.PriceQuote {
	return models.PriceQuote{
		Ticker:     ticker,
		Price:      util.RoundPrice(price),
		Source:     source,
		ResolvedAt: r.now(),
	}
}

// primaryPrice returns the mid of the brokerage's latest bid/ask.
func (r *Resolver) primaryPrice(ctx context.Context, ticker string) (float64, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return retry.Do(ctx, r.logger, fmt.Sprintf("primary quote %s", ticker), r.retryCfg,
			func(ctx context.Context) (float64, error) {
				q, err := r.broker.GetLatestQuote(ctx, ticker)
				if err != nil {
					return 0, err
				}
				if q.Bid <= 0 || q.Ask <= 0 {
					return 0, fmt.Errorf("quote %s has no usable bid/ask (%.2f/%.2f): %w",
						ticker, q.Bid, q.Ask, broker.ErrNotFound)
				}
				return (q.Bid + q.Ask) / 2, nil
			})
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

func (r *Resolver) secondaryPrice(ctx context.Context, ticker string) (float64, error) {
	if r.secondary == nil {
		return 0, fmt.Errorf("no secondary source configured")
	}
	return retry.Do(ctx, r.logger, fmt.Sprintf("secondary quote %s", ticker), r.retryCfg,
		func(ctx context.Context) (float64, error) {
			price, err := r.secondary.LastClose(ctx, ticker)
			if err != nil {
				return 0, err
			}
			if price <= 0 {
				return 0, fmt.Errorf("secondary price for %s is %.2f: %w", ticker, price, broker.ErrNotFound)
			}
			return price, nil
		})
}

// syntheticPrice returns a known-recent price for common tickers, otherwise a
// seeded pseudo-random value in the plausible equity range.
func (r *Resolver) syntheticPrice(ticker string) float64 {
	if price, ok := knownRecentPrices[ticker]; ok {
		return price
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return syntheticFloor + r.rng.Float64()*(syntheticCeiling-syntheticFloor)
}
