package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/models"
)

var nonDigits = regexp.MustCompile(`\D`)

type CatalogParser struct {
	sel config.Selectors
	now func() time.Time
}

func NewCatalogParser(sel config.Selectors) *CatalogParser {
	return &CatalogParser{sel: sel, now: time.Now}
}

var _ Parser = (*CatalogParser)(nil)

// ParseTotalPages reads the digits of the pagination total. Pages without
// pagination count as a single page.
func (p *CatalogParser) ParseTotalPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	n := digits(doc.Find(p.sel.Category.TotalPages).First().Text())
	if n < 1 {
		return 1
	}
	return n
}

// ParseCategoryLinks returns the product URLs of one listing page, resolved
// against pageURL's origin, without query strings, blacklisted entries or
// duplicates.
func (p *CatalogParser) ParseCategoryLinks(html string, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid page URL %q", pageURL)
	}
	origin := base.Scheme + "://" + base.Host + "/"

	links := doc.Find(p.sel.Category.ProductLink)
	if p.sel.Category.Container != "" {
		links = doc.Find(p.sel.Category.Container).Find(p.sel.Category.ProductLink)
	}

	seen := make(map[string]bool)
	var urls []string
	links.Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || p.blacklisted(href) {
			return
		}

		full := href
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			full = origin + strings.TrimLeft(href, "/")
		}
		full = stripQuery(full)

		if !seen[full] {
			seen[full] = true
			urls = append(urls, full)
		}
	})

	return urls, nil
}

// ParseProduct reads SKU, title and gallery images. It fails only when
// neither SKU nor title could be found.
func (p *CatalogParser) ParseProduct(html string, pageURL string) (*models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	product := models.NewProduct(pageURL)
	now := p.now()
	product.ScrapedAt = now
	product.LastUpdated = now

	sku := strings.TrimSpace(doc.Find(p.sel.Product.SKU).First().Text())
	product.SKU = strings.TrimSpace(strings.TrimPrefix(sku, "SKU:"))
	product.Title = strings.TrimSpace(doc.Find(p.sel.Product.Title).First().Text())
	product.ID = product.SKU

	if p.sel.Product.Image != "" {
		attr := p.sel.Product.ImageAttr
		if attr == "" {
			attr = "src"
		}
		seen := make(map[string]bool)
		doc.Find(p.sel.Product.Image).Each(func(i int, s *goquery.Selection) {
			src, ok := s.Attr(attr)
			if !ok || src == "" {
				return
			}
			full := ProcessImageURL(src)
			if !seen[full] {
				seen[full] = true
				product.Images = append(product.Images, full)
			}
		})
	}

	if problems := product.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("failed to extract basic product information: %s", strings.Join(problems, ", "))
	}

	return product, nil
}

// ParseReviewImageCount reads the number on the "reviews with pictures" tab.
func (p *CatalogParser) ParseReviewImageCount(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	return digits(doc.Find(p.sel.Reviews.ImageTab).First().Text())
}

func (p *CatalogParser) ParseReviews(html string, productID string) ([]models.Review, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	idAttr := p.sel.Reviews.IDAttr
	if idAttr == "" {
		idAttr = "data-comment-id"
	}

	now := p.now()
	var reviews []models.Review
	doc.Find(p.sel.Reviews.Item).Each(func(i int, s *goquery.Selection) {
		id, ok := s.Attr(idAttr)
		if !ok || id == "" {
			id = "0"
		}

		images := make([]string, 0)
		s.Find(p.sel.Reviews.Image).Each(func(j int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && src != "" {
				images = append(images, ProcessReviewImageURL(src))
			}
		})

		reviews = append(reviews, models.Review{
			ReviewID:  id,
			ProductID: productID,
			Images:    images,
			Timestamp: now,
		})
	})

	return reviews, nil
}

// ReviewPages is the number of review pages to walk for count image reviews.
func ReviewPages(count, perPage int) int {
	if count <= 0 {
		return 0
	}
	if perPage <= 0 {
		perPage = 3
	}
	return count/perPage + 1
}

// ProcessImageURL turns a gallery thumbnail URL into the full size image URL.
func ProcessImageURL(raw string) string {
	base, _, _ := strings.Cut(raw, "_thumbnail_")
	if strings.HasPrefix(base, "//") {
		base = "https:" + base
	}
	if !strings.HasSuffix(base, ".jpg") && !strings.HasSuffix(base, ".png") {
		base += ".jpg"
	}
	return base
}

// ProcessReviewImageURL removes the x460 thumbnail suffix of a review image.
func ProcessReviewImageURL(raw string) string {
	full := strings.Replace(raw, "_thumbnail_x460", "", 1)
	if strings.HasPrefix(full, "//") {
		full = "https:" + full
	}
	return full
}

func (p *CatalogParser) blacklisted(href string) bool {
	for _, fragment := range p.sel.Category.Blacklist {
		if fragment != "" && strings.Contains(href, fragment) {
			return true
		}
	}
	return false
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

func digits(s string) int {
	n, err := strconv.Atoi(nonDigits.ReplaceAllString(s, ""))
	if err != nil {
		return 0
	}
	return n
}
