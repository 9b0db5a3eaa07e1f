// Package scraper holds the catalog workflows: category URL collection,
// product detail extraction and review collection. Each workflow drives one
// page sequentially through the guarded, retried toolkit primitives.
package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

var (
	ErrNoPagination = errors.New("next page control did not change the page")
	ErrNoStore      = errors.New("workflow has no store")
)

// Page is everything the workflows do with a browser page.
type Page interface {
	Goto(url string) error
	IsVisible(selector string, timeout time.Duration) (bool, error)
	Click(selector string, timeout time.Duration) error
	WaitFor(selector string, timeout time.Duration) error
	Press(key string) error
	Scroll(deltaY float64) error
	ScrollToBottom() error
	Content() (string, error)
	URL() string
}

// Store persists collected URLs, products and reviews.
type Store interface {
	SaveURLs(ctx context.Context, categoryURL string, urls []string) (int, error)
	PendingURLs(ctx context.Context, limit int) ([]models.ProductURL, error)
	UpdateURLStatus(ctx context.Context, url string, status models.URLStatus, errMsg string) error
	// ResetProcessing returns URLs left processing by an interrupted run to
	// pending and reports how many it moved.
	ResetProcessing(ctx context.Context) (int, error)
	SaveProduct(ctx context.Context, product *models.Product) error
	SaveReviews(ctx context.Context, reviews []models.Review) error
	Stats(ctx context.Context) (map[string]int, error)
}

// ItemFailure records one URL the run gave up on.
type ItemFailure struct {
	URL   string         `json:"url"`
	Error string         `json:"error"`
	Kind  scrapeerr.Kind `json:"-"`
}

// RunResult summarizes a detail extraction run.
type RunResult struct {
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Reviews    int           `json:"reviews"`
	Failed     []ItemFailure `json:"failed,omitempty"`
	Stopped    bool          `json:"stopped"`
	StopReason string        `json:"stop_reason,omitempty"`
}

// CollectResult summarizes a category collection run.
type CollectResult struct {
	CategoryURL  string   `json:"category_url"`
	TotalPages   int      `json:"total_pages"`
	PagesScraped int      `json:"pages_scraped"`
	URLs         []string `json:"urls"`
	Added        int      `json:"added"`
	StopReason   string   `json:"stop_reason,omitempty"`
}
