package scraper

import (
	"context"
	"time"

	"github.com/maltedev/catalog-scraper/internal/challenge"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/popup"
	"github.com/maltedev/catalog-scraper/internal/retry"
)

// Toolkit is the contract a workflow author needs: guarded actions, retry,
// popup dismissal and a direct challenge probe.
type Toolkit struct {
	Monitor challenge.Detector
	Guard   *challenge.Guard
	Popups  *popup.Dismisser
	Retry   retry.Policy

	// Settle is waited after navigations and pagination clicks.
	Settle time.Duration
	// ElementTimeout bounds waits for content selectors.
	ElementTimeout time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error
}

func NewToolkit(cfg *config.Config, sel *config.Selectors) (*Toolkit, error) {
	monitor, err := challenge.NewMonitor(sel.Challenge, cfg.Challenge.ProbeTimeout)
	if err != nil {
		return nil, err
	}

	waiter := challenge.NewWaiter(monitor, challenge.WaiterOptions{
		PollInterval: cfg.Challenge.PollInterval,
		SettleDelay:  cfg.Challenge.SettleDelay,
		Timeout:      cfg.Challenge.Timeout,
	})

	dismisser, err := popup.New(sel.Popups)
	if err != nil {
		return nil, err
	}

	return &Toolkit{
		Monitor: monitor,
		Guard:   challenge.NewGuard(monitor, waiter),
		Popups:  dismisser,
		Retry: retry.Policy{
			MaxAttempts: cfg.Scraper.MaxAttempts,
			BaseDelay:   cfg.Scraper.RetryBaseDelay,
		},
		Settle:         cfg.Scraper.NavigationSettle,
		ElementTimeout: 10 * time.Second,
		Sleep:          sleep,
	}, nil
}

// Guarded runs action inside the challenge guard, retried by the policy.
func Guarded[T any](ctx context.Context, tk *Toolkit, page Page, action func() (T, error)) (T, error) {
	return retry.Do(ctx, tk.Retry, func() (T, error) {
		return challenge.Guarded(ctx, tk.Guard, page, action)
	})
}

// Navigate opens url and waits the settle delay, guarded and retried.
func (tk *Toolkit) Navigate(ctx context.Context, page Page, url string) error {
	_, err := Guarded(ctx, tk, page, func() (struct{}, error) {
		if err := page.Goto(url); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tk.Sleep(ctx, tk.Settle)
	})
	return err
}

func (tk *Toolkit) DismissPopups(page Page) {
	if tk.Popups != nil {
		tk.Popups.Dismiss(page)
	}
}

func (tk *Toolkit) IsChallengePresent(page Page) bool {
	return tk.Monitor.IsPresent(page)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
