package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

type DetailExtractor struct {
	tk            *Toolkit
	parser        parser.Parser
	store         Store
	sel           config.ProductSelectors
	limiter       ratelimit.RateLimiter
	reviews       *ReviewCollector
	baseURL       string
	stopOnCaptcha bool
	logger        *slog.Logger
}

func NewDetailExtractor(tk *Toolkit, p parser.Parser, store Store, sel config.ProductSelectors, limiter ratelimit.RateLimiter, cfg config.ScraperConfig) *DetailExtractor {
	return &DetailExtractor{
		tk:            tk,
		parser:        p,
		store:         store,
		sel:           sel,
		limiter:       limiter,
		baseURL:       cfg.BaseURL,
		stopOnCaptcha: cfg.StopOnCaptcha,
		logger:        slog.Default().With("component", "detail_extractor"),
	}
}

// WithReviews makes Run collect reviews of every extracted product while
// the product page is still open.
func (d *DetailExtractor) WithReviews(rc *ReviewCollector) *DetailExtractor {
	d.reviews = rc
	return d
}

// Extract opens url and parses the product on it.
func (d *DetailExtractor) Extract(ctx context.Context, page Page, url string) (*models.Product, error) {
	return Guarded(ctx, d.tk, page, func() (*models.Product, error) {
		if err := page.Goto(url); err != nil {
			return nil, err
		}
		if err := d.tk.Sleep(ctx, d.tk.Settle); err != nil {
			return nil, err
		}
		if d.sel.Ready != "" {
			if err := page.WaitFor(d.sel.Ready, d.tk.ElementTimeout); err != nil {
				return nil, err
			}
		}
		html, err := page.Content()
		if err != nil {
			return nil, fmt.Errorf("failed to read product page: %w", err)
		}
		return d.parser.ParseProduct(html, url)
	})
}

// Run extracts up to limit pending URLs, oldest first. A failed item is
// recorded and skipped. An unresolved captcha stops the run when
// StopOnCaptcha is set. Errors are returned only for store failures and
// cancellation.
func (d *DetailExtractor) Run(ctx context.Context, page Page, limit int) (*RunResult, error) {
	if d.store == nil {
		return nil, ErrNoStore
	}

	reset, err := d.store.ResetProcessing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reset interrupted urls: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("requeued urls left processing by an earlier run", "urls", reset)
	}

	pending, err := d.store.PendingURLs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending urls: %w", err)
	}

	result := &RunResult{}
	if len(pending) == 0 {
		d.logger.Info("no pending urls")
		return result, nil
	}

	if d.baseURL != "" {
		if err := d.tk.Navigate(ctx, page, d.baseURL); err != nil {
			return nil, fmt.Errorf("failed to open home page: %w", err)
		}
		d.tk.DismissPopups(page)
	}

	d.logger.Info("extracting product details", "urls", len(pending))

	for i, item := range pending {
		if i > 0 && d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		if err := d.store.UpdateURLStatus(ctx, item.URL, models.URLStatusProcessing, ""); err != nil {
			return result, fmt.Errorf("failed to mark url processing: %w", err)
		}

		result.Processed++
		product, err := d.Extract(ctx, page, item.URL)
		if err == nil {
			err = d.store.SaveProduct(ctx, product)
		}

		if err == nil && d.reviews != nil {
			n, rerr := d.reviews.Collect(ctx, page, product)
			result.Reviews += n
			switch {
			case rerr == nil:
			case errors.Is(rerr, scrapeerr.ErrCaptchaUnresolved):
				// The product stays stored; the item still fails.
				err = fmt.Errorf("review collection: %w", rerr)
			default:
				d.logger.Warn("review collection failed", "url", item.URL, "error", rerr)
			}
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			if serr := d.fail(ctx, result, item.URL, err); serr != nil || result.Stopped {
				return result, serr
			}
			continue
		}

		if err := d.store.UpdateURLStatus(ctx, item.URL, models.URLStatusCompleted, ""); err != nil {
			return result, fmt.Errorf("failed to mark url completed: %w", err)
		}
		result.Succeeded++
		d.feedback(true)
		d.logger.Info("product extracted", "url", item.URL, "sku", product.SKU, "images", len(product.Images))
	}

	return result, nil
}

// fail records a failed item and marks its URL failed. It sets
// result.Stopped when the failure is an unresolved captcha and the run
// stops on captchas. The returned error is a store failure.
func (d *DetailExtractor) fail(ctx context.Context, result *RunResult, url string, err error) error {
	kind := scrapeerr.Classify(err)
	result.Failed = append(result.Failed, ItemFailure{URL: url, Error: err.Error(), Kind: kind})
	d.feedback(false)
	d.logger.Error("product failed", "url", url, "kind", kind.String(), "error", err)

	if serr := d.store.UpdateURLStatus(ctx, url, models.URLStatusFailed, err.Error()); serr != nil {
		return fmt.Errorf("failed to mark url failed: %w", serr)
	}

	if kind == scrapeerr.KindCaptcha && d.stopOnCaptcha {
		result.Stopped = true
		result.StopReason = "captcha unresolved at " + url
	}
	return nil
}

func (d *DetailExtractor) feedback(ok bool) {
	fb, isFeedback := d.limiter.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}
