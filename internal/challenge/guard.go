package challenge

import (
	"context"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

// Guard pairs a detector with the waiter that handles what it detects.
type Guard struct {
	detector Detector
	waiter   *Waiter
}

func NewGuard(detector Detector, waiter *Waiter) *Guard {
	return &Guard{detector: detector, waiter: waiter}
}

// Check returns nil when the page is challenge free, either immediately or
// after the waiter saw the challenge clear.
func (g *Guard) Check(ctx context.Context, page Page, phase string) error {
	if !g.detector.IsPresent(page) {
		return nil
	}

	out := g.waiter.Wait(ctx, page)
	if out.State != Resolved {
		return &scrapeerr.CaptchaUnresolvedError{Phase: phase, Waited: out.Waited}
	}
	return nil
}

// Guarded runs action only on a challenge-free page and keeps its result only
// if the page is still challenge free afterwards. Errors from action are
// returned unchanged.
func Guarded[T any](ctx context.Context, g *Guard, page Page, action func() (T, error)) (T, error) {
	var zero T

	if err := g.Check(ctx, page, "before"); err != nil {
		return zero, err
	}

	result, err := action()
	if err != nil {
		return zero, err
	}

	if err := g.Check(ctx, page, "after"); err != nil {
		return zero, err
	}

	return result, nil
}

// Run is Guarded for actions without a result.
func (g *Guard) Run(ctx context.Context, page Page, action func() error) error {
	_, err := Guarded(ctx, g, page, func() (struct{}, error) {
		return struct{}{}, action()
	})
	return err
}
