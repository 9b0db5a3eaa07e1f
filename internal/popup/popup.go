// Package popup closes cookie banners, coupon dialogs and similar overlays.
// Dismissal is best effort and never reports failure to the caller.
package popup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

type Page interface {
	IsVisible(selector string, timeout time.Duration) (bool, error)
	Click(selector string, timeout time.Duration) error
	Press(key string) error
}

// Candidate is one selector for one close affordance.
type Candidate struct {
	Target   string
	Selector string
}

// Candidates expands every target through every selector strategy, keeping
// target order and strategy order.
func Candidates(strategies, targets []string) []Candidate {
	out := make([]Candidate, 0, len(strategies)*len(targets))
	for _, target := range targets {
		for _, strategy := range strategies {
			out = append(out, Candidate{Target: target, Selector: fmt.Sprintf(strategy, target)})
		}
	}
	return out
}

type Dismisser struct {
	candidates   []Candidate
	timeout      time.Duration
	couponDialog string
	logger       *slog.Logger
}

func New(sel config.PopupSelectors) (*Dismisser, error) {
	if len(sel.Targets) == 0 || len(sel.Strategies) == 0 {
		return nil, &scrapeerr.ConfigurationError{Field: "popups", Reason: "no popup candidates configured"}
	}

	timeout := sel.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	return &Dismisser{
		candidates:   Candidates(sel.Strategies, sel.Targets),
		timeout:      timeout,
		couponDialog: sel.CouponDialog,
		logger:       slog.Default().With("component", "popup"),
	}, nil
}

// Dismiss tries each candidate in order. Once a target has been clicked its
// remaining strategies are skipped. If the coupon dialog survives the list,
// Escape is pressed.
func (d *Dismisser) Dismiss(page Page) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("popup dismissal aborted", "panic", r)
		}
	}()

	done := make(map[string]bool)
	for _, c := range d.candidates {
		if done[c.Target] {
			continue
		}
		if d.try(page, c) {
			done[c.Target] = true
		}
	}

	if d.couponDialog == "" {
		return
	}
	if visible, err := page.IsVisible(d.couponDialog, d.timeout); err == nil && visible {
		if err := page.Press("Escape"); err != nil {
			d.logger.Debug("escape fallback failed", "error", err)
			return
		}
		d.logger.Debug("coupon dialog closed with escape")
	}
}

func (d *Dismisser) try(page Page, c Candidate) bool {
	visible, err := page.IsVisible(c.Selector, d.timeout)
	if err != nil || !visible {
		return false
	}
	if err := page.Click(c.Selector, d.timeout); err != nil {
		d.logger.Debug("popup click failed", "selector", c.Selector, "error", err)
		return false
	}
	d.logger.Debug("popup dismissed", "selector", c.Selector)
	return true
}
