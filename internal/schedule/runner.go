package schedule

import (
	"context"
	"log"
	"time"
)

// Session is the unit of work the runner drives. A failed session is
// retried after the regular interval rather than immediately.
type Session func(ctx context.Context) error

// Runner loops forever: while the market is open it runs one session per
// interval; while closed it sleeps until the next open. Cancellation is
// honored at every suspension point, never mid-session.
type Runner struct {
	market   *Market
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a continuous-mode runner.
func NewRunner(market *Market, interval time.Duration, logger *log.Logger) *Runner {
	return &Runner{
		market:   market,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run drives sessions until ctx is canceled. It only returns ctx.Err().
func (r *Runner) Run(ctx context.Context, session Session) error {
	for {
		now := r.now()
		if !r.market.IsOpen(now) {
			wait := r.market.NextOpen(now).Sub(now)
			r.logger.Printf("Market closed, sleeping %s until next open", wait.Round(time.Minute))
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if err := session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Printf("Session failed: %v; retrying in %s", err, r.interval)
		}

		// If the market will already be closed when the interval elapses,
		// sleep straight through to the next open instead.
		wait := r.interval
		now = r.now()
		if !r.market.IsOpen(now.Add(r.interval)) {
			wait = r.market.NextOpen(now).Sub(now)
			r.logger.Printf("Market closing, next session at next open in %s", wait.Round(time.Minute))
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx is canceled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
