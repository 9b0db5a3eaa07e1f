package challenge

import (
	"context"
	"log/slog"
	"time"
)

// State is the outcome of a single poll or of a whole wait.
type State int

const (
	Absent State = iota
	Present
	Resolved
	TimedOut
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "absent"
	}
}

// Resolver is invoked once when a wait begins. The default does nothing and
// leaves clearing the challenge to the polling loop.
type Resolver func(ctx context.Context, page Page) error

func NoopResolver(context.Context, Page) error { return nil }

type WaiterOptions struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	Timeout      time.Duration
	Clock        Clock
	Resolver     Resolver
}

func DefaultWaiterOptions() WaiterOptions {
	return WaiterOptions{
		PollInterval: time.Second,
		SettleDelay:  2 * time.Second,
		Timeout:      300 * time.Second,
	}
}

// Outcome is the result of Wait.
type Outcome struct {
	State  State
	Waited time.Duration
}

type Waiter struct {
	detector Detector
	opts     WaiterOptions
	logger   *slog.Logger
}

func NewWaiter(detector Detector, opts WaiterOptions) *Waiter {
	def := DefaultWaiterOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = def.SettleDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Resolver == nil {
		opts.Resolver = NoopResolver
	}

	return &Waiter{
		detector: detector,
		opts:     opts,
		logger:   slog.Default().With("component", "challenge_waiter"),
	}
}

// Wait polls until the challenge is gone or the timeout elapses. After the
// first absent poll it sleeps the settle delay before reporting Resolved.
// It never returns an error; a cancelled context ends the wait as TimedOut.
func (w *Waiter) Wait(ctx context.Context, page Page) Outcome {
	clock := w.opts.Clock
	start := clock.Now()

	if err := w.opts.Resolver(ctx, page); err != nil {
		w.logger.Warn("challenge resolver failed", "error", err)
	}

	w.logger.Info("waiting for challenge to clear", "timeout", w.opts.Timeout)

	for {
		if !w.detector.IsPresent(page) {
			if err := clock.Sleep(ctx, w.opts.SettleDelay); err != nil {
				return Outcome{State: TimedOut, Waited: clock.Now().Sub(start)}
			}
			waited := clock.Now().Sub(start)
			w.logger.Info("challenge cleared", "waited", waited)
			return Outcome{State: Resolved, Waited: waited}
		}

		elapsed := clock.Now().Sub(start)
		if elapsed >= w.opts.Timeout {
			w.logger.Error("challenge did not clear", "waited", elapsed)
			return Outcome{State: TimedOut, Waited: elapsed}
		}

		if err := clock.Sleep(ctx, w.opts.PollInterval); err != nil {
			return Outcome{State: TimedOut, Waited: clock.Now().Sub(start)}
		}
	}
}

// WaitForClearance is Wait reduced to cleared or not.
func (w *Waiter) WaitForClearance(ctx context.Context, page Page) bool {
	return w.Wait(ctx, page).State == Resolved
}
