package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/retry"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

type ReviewCollector struct {
	tk     *Toolkit
	parser parser.Parser
	store  Store
	sel    config.ReviewSelectors
	logger *slog.Logger
}

func NewReviewCollector(tk *Toolkit, p parser.Parser, store Store, sel config.ReviewSelectors) *ReviewCollector {
	return &ReviewCollector{
		tk:     tk,
		parser: p,
		store:  store,
		sel:    sel,
		logger: slog.Default().With("component", "review_collector"),
	}
}

// CollectURL opens productURL before collecting its reviews.
func (r *ReviewCollector) CollectURL(ctx context.Context, page Page, productURL, productID string) (int, error) {
	if err := r.tk.Navigate(ctx, page, productURL); err != nil {
		return 0, err
	}
	return r.Collect(ctx, page, &models.Product{ID: productID, SKU: productID, URL: productURL})
}

// Collect walks the "with pictures" review tab of the product page the page
// is currently on and stores every review found. It returns how many
// distinct reviews were stored.
func (r *ReviewCollector) Collect(ctx context.Context, page Page, product *models.Product) (int, error) {
	productID := product.ID
	if productID == "" {
		productID = product.SKU
	}

	html, err := page.Content()
	if err != nil {
		return 0, fmt.Errorf("failed to read product page: %w", err)
	}

	count := r.parser.ParseReviewImageCount(html)
	r.logger.Info("reviews with images", "product", productID, "count", count)
	if count == 0 {
		return 0, nil
	}

	// Opening the tab twice lands on the same tab, so the click is retried.
	err = retry.Run(ctx, r.tk.Retry, func() error {
		return r.tk.Guard.Run(ctx, page, func() error {
			return page.Click(r.sel.ImageTab, r.tk.ElementTimeout)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open review tab: %w", err)
	}

	pages := parser.ReviewPages(count, r.sel.PerPage)
	seen := make(map[string]bool)
	var collected []models.Review

	for i := 1; i <= pages; i++ {
		reviews, err := Guarded(ctx, r.tk, page, func() ([]models.Review, error) {
			if err := page.WaitFor(r.sel.Item, r.tk.ElementTimeout); err != nil {
				return nil, err
			}
			html, err := page.Content()
			if err != nil {
				return nil, err
			}
			return r.parser.ParseReviews(html, productID)
		})
		if err != nil {
			if errors.Is(err, scrapeerr.ErrCaptchaUnresolved) {
				return r.save(ctx, collected, err)
			}
			r.logger.Warn("review page failed", "product", productID, "page", i, "error", err)
			break
		}

		for _, rv := range reviews {
			key := rv.ReviewID
			if key == "0" || !seen[key] {
				seen[key] = true
				collected = append(collected, rv)
			}
		}

		if i < pages {
			err := r.tk.Guard.Run(ctx, page, func() error {
				if err := page.Click(r.sel.NextPage, r.tk.ElementTimeout); err != nil {
					return err
				}
				return r.tk.Sleep(ctx, r.tk.Settle)
			})
			if err != nil {
				r.logger.Debug("no further review pages", "product", productID, "page", i, "error", err)
				break
			}
		}
	}

	return r.save(ctx, collected, nil)
}

func (r *ReviewCollector) save(ctx context.Context, reviews []models.Review, cause error) (int, error) {
	if r.store != nil && len(reviews) > 0 {
		if err := r.store.SaveReviews(ctx, reviews); err != nil {
			return 0, fmt.Errorf("failed to store reviews: %w", err)
		}
	}
	return len(reviews), cause
}
