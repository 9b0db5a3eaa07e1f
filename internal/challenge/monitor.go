// Package challenge detects bot-challenge overlays, waits for them to clear
// and guards page actions with checks before and after they run.
package challenge

import (
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

// Page is the part of a browser page the monitor probes.
type Page interface {
	IsVisible(selector string, timeout time.Duration) (bool, error)
}

// Detector reports whether a challenge overlay is on the page.
type Detector interface {
	IsPresent(page Page) bool
}

const maxProbeTimeout = time.Second

// Monitor probes a fixed ordered list of challenge selectors.
type Monitor struct {
	selectors    []string
	probeTimeout time.Duration
	logger       *slog.Logger
}

func NewMonitor(selectors []string, probeTimeout time.Duration) (*Monitor, error) {
	if len(selectors) == 0 {
		return nil, &scrapeerr.ConfigurationError{Field: "challenge", Reason: "no challenge selectors configured"}
	}
	for _, sel := range selectors {
		if strings.TrimSpace(sel) == "" {
			return nil, &scrapeerr.ConfigurationError{Field: "challenge", Reason: "blank challenge selector"}
		}
	}
	if probeTimeout <= 0 || probeTimeout > maxProbeTimeout {
		probeTimeout = maxProbeTimeout
	}

	return &Monitor{
		selectors:    append([]string(nil), selectors...),
		probeTimeout: probeTimeout,
		logger:       slog.Default().With("component", "challenge_monitor"),
	}, nil
}

// IsPresent returns true on the first selector whose first match is visible.
// The whole sweep shares one probe budget: each selector gets what is left
// of it and the sweep ends as absent once it is spent. A failing probe
// counts as absent for that selector, and anything unexpected counts as
// absent for the whole check, so a broken monitor lets the workflow
// continue rather than block it.
func (m *Monitor) IsPresent(page Page) (present bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("challenge check failed, assuming absent", "panic", r)
			present = false
		}
	}()

	deadline := time.Now().Add(m.probeTimeout)
	for _, sel := range m.selectors {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.logger.Debug("challenge probe budget spent", "next_selector", sel)
			return false
		}
		visible, err := page.IsVisible(sel, remaining)
		if err != nil {
			m.logger.Debug("challenge probe failed", "selector", sel, "error", err)
			continue
		}
		if visible {
			m.logger.Warn("challenge detected", "selector", sel)
			return true
		}
	}
	return false
}
