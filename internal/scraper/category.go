package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

type CategoryCollector struct {
	tk            *Toolkit
	parser        parser.Parser
	store         Store
	sel           config.CategorySelectors
	baseURL       string
	maxEmptyPages int
	logger        *slog.Logger
}

func NewCategoryCollector(tk *Toolkit, p parser.Parser, store Store, sel config.CategorySelectors, cfg config.ScraperConfig) *CategoryCollector {
	maxEmpty := cfg.MaxEmptyPages
	if maxEmpty < 1 {
		maxEmpty = 3
	}
	return &CategoryCollector{
		tk:            tk,
		parser:        p,
		store:         store,
		sel:           sel,
		baseURL:       cfg.BaseURL,
		maxEmptyPages: maxEmpty,
		logger:        slog.Default().With("component", "category_collector"),
	}
}

// Collect walks up to maxPages listing pages of categoryURL and stores every
// product URL found as pending. maxPages <= 0 walks all pages. Errors that
// stop the walk after the first page end the run with what was collected so
// far and a StopReason; only failing to reach the category at all is an error.
func (c *CategoryCollector) Collect(ctx context.Context, page Page, categoryURL string, maxPages int) (*CollectResult, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}

	result := &CollectResult{CategoryURL: categoryURL}

	if c.baseURL != "" {
		if err := c.tk.Navigate(ctx, page, c.baseURL); err != nil {
			return nil, fmt.Errorf("failed to open home page: %w", err)
		}
		c.tk.DismissPopups(page)
	}

	if err := c.tk.Navigate(ctx, page, categoryURL); err != nil {
		return nil, fmt.Errorf("failed to open category: %w", err)
	}

	if err := page.Scroll(3000); err != nil {
		c.logger.Debug("scroll failed", "error", err)
	}
	if err := c.tk.Sleep(ctx, c.tk.Settle/3); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read category page: %w", err)
	}
	result.TotalPages = c.parser.ParseTotalPages(html)

	pages := result.TotalPages
	if maxPages > 0 && maxPages < pages {
		pages = maxPages
	}

	c.logger.Info("collecting category", "url", categoryURL, "total_pages", result.TotalPages, "pages", pages)

	seen := make(map[string]bool)
	emptyStreak := 0

	for pageNum := 1; pageNum <= pages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		urls, err := Guarded(ctx, c.tk, page, func() ([]string, error) {
			html, err := page.Content()
			if err != nil {
				return nil, err
			}
			return c.parser.ParseCategoryLinks(html, page.URL())
		})
		result.PagesScraped = pageNum

		switch {
		case errors.Is(err, scrapeerr.ErrCaptchaUnresolved):
			result.StopReason = "captcha unresolved"
			c.logger.Error("stopping collection", "page", pageNum, "error", err)
			return result, nil
		case err != nil:
			c.logger.Warn("page extraction failed", "page", pageNum, "error", err)
			emptyStreak++
		case len(urls) == 0:
			c.logger.Warn("no product links on page", "page", pageNum)
			emptyStreak++
		default:
			emptyStreak = 0
			fresh := make([]string, 0, len(urls))
			for _, u := range urls {
				if !seen[u] {
					seen[u] = true
					fresh = append(fresh, u)
				}
			}
			result.URLs = append(result.URLs, fresh...)

			added, err := c.store.SaveURLs(ctx, categoryURL, fresh)
			if err != nil {
				return result, fmt.Errorf("failed to store urls: %w", err)
			}
			result.Added += added
			c.logger.Info("collected page", "page", pageNum, "urls", len(fresh), "new", added)
		}

		if emptyStreak >= c.maxEmptyPages {
			result.StopReason = "too many empty pages"
			c.logger.Error("stopping collection", "reason", result.StopReason, "page", pageNum)
			return result, nil
		}

		if pageNum < pages {
			if err := c.nextPage(ctx, page); err != nil {
				result.StopReason = "pagination failed: " + err.Error()
				if errors.Is(err, scrapeerr.ErrCaptchaUnresolved) {
					result.StopReason = "captcha unresolved"
				}
				c.logger.Error("stopping collection", "page", pageNum, "error", err)
				return result, nil
			}
		}
	}

	return result, nil
}

// nextPage scrolls to the pager, clicks next and confirms the URL now
// carries a page parameter. It is guarded but never retried, since a second
// click could skip a page.
func (c *CategoryCollector) nextPage(ctx context.Context, page Page) error {
	return c.tk.Guard.Run(ctx, page, func() error {
		if err := page.ScrollToBottom(); err != nil {
			return err
		}
		if err := c.tk.Sleep(ctx, c.tk.Settle); err != nil {
			return err
		}
		if err := page.WaitFor(c.sel.NextPage, c.tk.ElementTimeout); err != nil {
			return err
		}
		if err := page.Click(c.sel.NextPage, c.tk.ElementTimeout); err != nil {
			return err
		}
		if err := c.tk.Sleep(ctx, c.tk.Settle); err != nil {
			return err
		}
		if !strings.Contains(page.URL(), "page=") {
			return ErrNoPagination
		}
		return nil
	})
}
