package models

import (
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Images      []string  `json:"images"`
	ScrapedAt   time.Time `json:"scraped_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type Review struct {
	ReviewID  string    `json:"review_id"`
	ProductID string    `json:"product_id"`
	Images    []string  `json:"images"`
	Timestamp time.Time `json:"timestamp"`
}

// URLStatus tracks a collected product URL through detail extraction.
type URLStatus string

const (
	URLStatusPending    URLStatus = "pending"
	URLStatusProcessing URLStatus = "processing"
	URLStatusCompleted  URLStatus = "completed"
	URLStatusFailed     URLStatus = "failed"
)

type ProductURL struct {
	URL         string    `json:"url"`
	CategoryURL string    `json:"category_url,omitempty"`
	Status      URLStatus `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ScrapeResult struct {
	Product *Product `json:"product,omitempty"`
	Error   *Error   `json:"error,omitempty"`
	Success bool     `json:"success"`
}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func NewProduct(url string) *Product {
	now := time.Now()
	return &Product{
		URL:         url,
		ScrapedAt:   now,
		LastUpdated: now,
		Images:      make([]string, 0),
	}
}

// Validate lists what is missing for the product to be worth storing.
// A product needs at least a SKU or a title.
func (p *Product) Validate() []string {
	var errors []string

	if p.URL == "" {
		errors = append(errors, "URL is required")
	}

	if p.SKU == "" && p.Title == "" {
		errors = append(errors, "SKU or title is required")
	}

	return errors
}
