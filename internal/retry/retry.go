// Package retry wraps fallible remote calls with bounded exponential-backoff
// retry. Rate limits (429) and server errors (5xx) are retried; every other
// failure is fatal and returned immediately without consuming an attempt.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/jdelaney/brokerbot/internal/broker"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxJitter is the upper bound of the uniform jitter added to each delay.
	MaxJitter time.Duration
}

// DefaultConfig matches the backoff the bot uses for all remote calls.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxJitter:   1 * time.Second,
}

// Do invokes op up to cfg.MaxAttempts times. The delay before re-invoking
// after attempt i (0-indexed) is BaseDelay*2^i plus uniform jitter. A fatal
// error is returned as-is; after exhausting attempts the last error is
// returned.
func Do[T any](ctx context.Context, logger *log.Logger, label string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s canceled: %w", label, err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.BaseDelay<<attempt + jitter(cfg.MaxJitter)
		if logger != nil {
			logger.Printf("%s attempt %d/%d failed: %v, retrying in %v",
				label, attempt+1, cfg.MaxAttempts, err, delay)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%s canceled during backoff: %w", label, ctx.Err())
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, cfg.MaxAttempts, lastErr)
}

// IsRetryable classifies an error as transient. An error is retryable if it
// carries an HTTP-like status of 429 or any 5xx (structured or recovered from
// a "NNN status code" message), or if it is a network-class failure. Not-found
// responses and all remaining 4xx/validation errors are fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, broker.ErrNotFound) {
		return false
	}
	if status, ok := broker.StatusOf(err); ok {
		return status == 429 || status >= 500
	}
	return isNetworkError(err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"no such host",
		"dns",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
