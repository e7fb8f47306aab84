// Package retry executes operations with exponential backoff. Only errors
// classified as transient (network failures, rate limiting, server-side
// errors) are retried; everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"
)

// Sentinel error kinds wrapped by HTTP clients so the classifier can see
// through provider-specific messages.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrServerSide  = errors.New("server-side error")
)

// Policy controls backoff timing and the attempt budget.
type Policy struct {
	MaxAttempts int           // total attempts including the first (1 = no retries)
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on the growing delay
}

// DefaultPolicy matches the budget used by all outbound model calls.
var DefaultPolicy = Policy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
}

// IsTransient reports whether err is worth retrying: rate limiting, 5xx-class
// server errors, and network-level failures (timeouts, refused connections).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerSide) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do runs op, retrying transient failures with exponential backoff until the
// attempt budget is exhausted or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, name string, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	// rand.Int63n panics on a non-positive window.
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		// Full jitter: sleep a random fraction of the current delay window.
		sleep := time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
		logger.Warn("transient failure, backing off",
			"op", name, "attempt", attempt, "delay", sleep, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}
