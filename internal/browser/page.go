package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page adapts a playwright page to the selector-level capabilities the
// challenge, popup and scraper packages need.
type Page struct {
	page    playwright.Page
	timeout time.Duration
}

func newPage(page playwright.Page, timeout time.Duration) *Page {
	return &Page{page: page, timeout: timeout}
}

func (p *Page) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// IsVisible reports whether the first match of selector is visible right
// now. It does not wait for the element to appear, so a missing element
// answers false at once and timeout is never spent.
func (p *Page) IsVisible(selector string, timeout time.Duration) (bool, error) {
	visible, err := p.page.Locator(selector).First().IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility check for %q failed: %w", selector, err)
	}
	return visible, nil
}

func (p *Page) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

// WaitFor blocks until selector is attached to the DOM.
func (p *Page) WaitFor(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("selector %q not found: %w", selector, err)
	}
	return nil
}

func (p *Page) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *Page) Scroll(deltaY float64) error {
	return p.page.Mouse().Wheel(0, deltaY)
}

func (p *Page) ScrollToBottom() error {
	_, err := p.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *Page) Content() (string, error) {
	return p.page.Content()
}

func (p *Page) URL() string {
	return p.page.URL()
}

func (p *Page) Close() error {
	return p.page.Close()
}
