package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// Selectors is the site-specific part of the scraper. None of it is logic;
// it only names where things live in the DOM.
type Selectors struct {
	Challenge []string          `yaml:"challenge"`
	Popups    PopupSelectors    `yaml:"popups"`
	Category  CategorySelectors `yaml:"category"`
	Product   ProductSelectors  `yaml:"product"`
	Reviews   ReviewSelectors   `yaml:"reviews"`
}

type PopupSelectors struct {
	Timeout      time.Duration `yaml:"timeout"`
	Strategies   []string      `yaml:"strategies"`
	Targets      []string      `yaml:"targets"`
	CouponDialog string        `yaml:"coupon_dialog"`
}

type CategorySelectors struct {
	Container   string   `yaml:"container"`
	ProductLink string   `yaml:"product_link"`
	TotalPages  string   `yaml:"total_pages"`
	NextPage    string   `yaml:"next_page"`
	Blacklist   []string `yaml:"blacklist"`
}

type ProductSelectors struct {
	Ready     string `yaml:"ready"`
	SKU       string `yaml:"sku"`
	Title     string `yaml:"title"`
	Image     string `yaml:"image"`
	ImageAttr string `yaml:"image_attr"`
}

type ReviewSelectors struct {
	ImageTab string `yaml:"image_tab"`
	Item     string `yaml:"item"`
	IDAttr   string `yaml:"id_attr"`
	Image    string `yaml:"image"`
	PerPage  int    `yaml:"per_page"`
	NextPage string `yaml:"next_page"`
}

// LoadSelectors reads the selector document at path, or the embedded
// defaults when path is empty.
func LoadSelectors(path string) (*Selectors, error) {
	data := defaultSelectors
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read selectors file: %w", err)
		}
		data = b
	}

	return ParseSelectors(data)
}

func ParseSelectors(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &scrapeerr.ConfigurationError{Field: "selectors", Reason: err.Error()}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Selectors) Validate() error {
	if len(s.Challenge) == 0 {
		return &scrapeerr.ConfigurationError{Field: "challenge", Reason: "no challenge selectors configured"}
	}
	for _, sel := range s.Challenge {
		if strings.TrimSpace(sel) == "" {
			return &scrapeerr.ConfigurationError{Field: "challenge", Reason: "blank selector"}
		}
	}

	if len(s.Popups.Targets) == 0 || len(s.Popups.Strategies) == 0 {
		return &scrapeerr.ConfigurationError{Field: "popups", Reason: "targets and strategies are required"}
	}
	for _, strategy := range s.Popups.Strategies {
		if strings.Count(strategy, "%s") != 1 {
			return &scrapeerr.ConfigurationError{Field: "popups.strategies", Reason: fmt.Sprintf("%q must contain exactly one %%s", strategy)}
		}
	}
	if s.Popups.Timeout <= 0 {
		s.Popups.Timeout = 100 * time.Millisecond
	}

	if s.Category.ProductLink == "" || s.Product.SKU == "" || s.Product.Title == "" {
		return &scrapeerr.ConfigurationError{Field: "category/product", Reason: "product_link, sku and title selectors are required"}
	}

	if s.Reviews.PerPage <= 0 {
		s.Reviews.PerPage = 3
	}

	return nil
}
