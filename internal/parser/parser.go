// Package parser extracts catalog data from rendered page HTML. Selector
// strings come from configuration; this package only knows what to pull.
package parser

import (
	"github.com/maltedev/catalog-scraper/internal/models"
)

type Parser interface {
	ParseTotalPages(html string) int
	ParseCategoryLinks(html string, pageURL string) ([]string, error)
	ParseProduct(html string, url string) (*models.Product, error)
	ParseReviewImageCount(html string) int
	ParseReviews(html string, productID string) ([]models.Review, error)
}
