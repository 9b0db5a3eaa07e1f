// Package retry runs an operation up to a bounded number of attempts with
// linear backoff. Unresolved captchas are never retried.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

// Attempt describes a failed attempt just before the backoff sleep.
type Attempt struct {
	Number      int
	MaxAttempts int
	LastError   error
	Backoff     time.Duration
}

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// OnRetry is called after every failed attempt that will be retried.
	OnRetry func(Attempt)
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Backoff is the delay after the given failed attempt number.
func (p Policy) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

// Do calls fn until it succeeds, returns a terminal error, or MaxAttempts
// is reached, in which case the last error is wrapped in RetryExhaustedError.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if terminal(err) {
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		a := Attempt{
			Number:      attempt,
			MaxAttempts: maxAttempts,
			LastError:   err,
			Backoff:     p.Backoff(attempt),
		}
		slog.Default().Warn("attempt failed, retrying",
			"component", "retry",
			"attempt", a.Number,
			"max_attempts", a.MaxAttempts,
			"backoff", a.Backoff,
			"error", err)
		if p.OnRetry != nil {
			p.OnRetry(a)
		}

		if err := sleep(ctx, a.Backoff); err != nil {
			return zero, err
		}
	}

	return zero, &scrapeerr.RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// terminal errors are returned on first occurrence. Captchas are an active
// block, and configuration, launch and cancellation errors cannot change
// between attempts.
func terminal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch scrapeerr.Classify(err) {
	case scrapeerr.KindCaptcha, scrapeerr.KindConfiguration, scrapeerr.KindSessionLaunch:
		return true
	}
	return false
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, fn func() error) error {
	_, err := Do(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
