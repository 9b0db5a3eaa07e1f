package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/challenge"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/storage"
)

const (
	testBase     = "https://de.shein.com"
	testCategory = "https://de.shein.com/Women-Dresses-c-1727.html"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// fakeSite is a scripted browser page. Category listing pages advance on
// clicks of the pager, review pages on clicks of the review pager.
type fakeSite struct {
	sel config.Selectors

	docs        map[string]string
	listing     []string
	reviewPages []string
	challengeAt map[string]bool
	// reviewChallengeAt shows a challenge once the review tab of the url is open.
	reviewChallengeAt map[string]bool
	gotoErrs          map[string]int
	clickErrs         map[string]int
	stuckPager        bool
	visible           map[string]bool

	url         string
	listingPage int
	reviewPage  int
	gotos       []string
	clicks      []string
}

func newFakeSite(sel config.Selectors) *fakeSite {
	return &fakeSite{
		sel:               sel,
		docs:              map[string]string{testBase: "<html>home</html>"},
		challengeAt:       map[string]bool{},
		reviewChallengeAt: map[string]bool{},
		gotoErrs:          map[string]int{},
		clickErrs:         map[string]int{},
		visible:           map[string]bool{},
	}
}

func (s *fakeSite) Goto(url string) error {
	s.gotos = append(s.gotos, url)
	if n := s.gotoErrs[url]; n > 0 {
		s.gotoErrs[url] = n - 1
		return fmt.Errorf("navigation timeout: %s", url)
	}
	s.url = url
	s.reviewPage = 0
	s.listingPage = 0
	if url == testCategory {
		s.listingPage = 1
	}
	return nil
}

func (s *fakeSite) isChallengeSelector(selector string) bool {
	for _, c := range s.sel.Challenge {
		if c == selector {
			return true
		}
	}
	return false
}

func (s *fakeSite) IsVisible(selector string, timeout time.Duration) (bool, error) {
	if s.isChallengeSelector(selector) {
		return s.challengeAt[s.url] || (s.reviewPage > 0 && s.reviewChallengeAt[s.url]), nil
	}
	return s.visible[selector], nil
}

func (s *fakeSite) Click(selector string, timeout time.Duration) error {
	s.clicks = append(s.clicks, selector)
	if n := s.clickErrs[selector]; n > 0 {
		s.clickErrs[selector] = n - 1
		return fmt.Errorf("element is detached: %s", selector)
	}
	switch {
	case s.listingPage > 0 && selector == s.sel.Category.NextPage:
		if s.stuckPager {
			return nil
		}
		if s.listingPage >= len(s.listing) {
			return errors.New("pager disabled")
		}
		s.listingPage++
		s.url = fmt.Sprintf("%s?page=%d", testCategory, s.listingPage)
	case selector == s.sel.Reviews.ImageTab:
		s.reviewPage = 1
	case s.reviewPage > 0 && selector == s.sel.Reviews.NextPage:
		if s.reviewPage >= len(s.reviewPages) {
			return errors.New("no more reviews")
		}
		s.reviewPage++
	}
	return nil
}

func (s *fakeSite) WaitFor(selector string, timeout time.Duration) error { return nil }
func (s *fakeSite) Press(key string) error                               { return nil }
func (s *fakeSite) Scroll(deltaY float64) error                          { return nil }
func (s *fakeSite) ScrollToBottom() error                                { return nil }
func (s *fakeSite) URL() string                                          { return s.url }

func (s *fakeSite) Content() (string, error) {
	switch {
	case s.reviewPage > 0:
		return s.reviewPages[s.reviewPage-1], nil
	case s.listingPage > 0:
		return s.listing[s.listingPage-1], nil
	}
	doc, ok := s.docs[s.url]
	if !ok {
		return "<html></html>", nil
	}
	return doc, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Challenge = config.ChallengeConfig{
		ProbeTimeout: time.Second,
		PollInterval: time.Second,
		SettleDelay:  2 * time.Second,
		Timeout:      5 * time.Second,
	}
	cfg.Scraper = config.ScraperConfig{
		BaseURL:          testBase,
		MaxAttempts:      3,
		RetryBaseDelay:   2 * time.Second,
		NavigationSettle: 3 * time.Second,
		MaxEmptyPages:    3,
		StopOnCaptcha:    true,
	}
	return cfg
}

type harness struct {
	cfg    *config.Config
	sel    *config.Selectors
	tk     *Toolkit
	parser *parser.CatalogParser
	store  *storage.FileStore
	site   *fakeSite
	clock  *fakeClock
	slept  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testConfig()
	sel, err := config.LoadSelectors("")
	require.NoError(t, err)

	tk, err := NewToolkit(cfg, sel)
	require.NoError(t, err)

	h := &harness{
		cfg:    cfg,
		sel:    sel,
		tk:     tk,
		parser: parser.NewCatalogParser(*sel),
		site:   newFakeSite(*sel),
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	tk.Guard = challenge.NewGuard(tk.Monitor, challenge.NewWaiter(tk.Monitor, challenge.WaiterOptions{
		PollInterval: cfg.Challenge.PollInterval,
		SettleDelay:  cfg.Challenge.SettleDelay,
		Timeout:      cfg.Challenge.Timeout,
		Clock:        h.clock,
	}))
	tk.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	tk.Retry.Sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}

	h.store, err = storage.NewFileStore(filepath.Join(t.TempDir(), "catalog.json"))
	require.NoError(t, err)

	return h
}

func listingHTML(total int, hrefs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<span class="sui-pagination__total">%d Seiten</span>`, total)
	b.WriteString(`<div class="product-list-v2__container">`)
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a class="goods-title-link" href="%s">x</a>`, h)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func productHTML(sku, title string, images ...string) string {
	var b strings.Builder
	if sku != "" {
		fmt.Fprintf(&b, `<div class="product-intro__head-sku-text">SKU: %s</div>`, sku)
	}
	if title != "" {
		fmt.Fprintf(&b, `<h1 class="product-intro__head-name">%s</h1>`, title)
	}
	for _, img := range images {
		fmt.Fprintf(&b, `<div class="crop-image-container" data-before-crop-src="%s"></div>`, img)
	}
	return b.String()
}
