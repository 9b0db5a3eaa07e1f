package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

const (
	productA = "https://de.shein.com/a-p-1.html"
	productB = "https://de.shein.com/b-p-2.html"
	productC = "https://de.shein.com/c-p-3.html"
)

type countingLimiter struct {
	waits, successes, errors int
}

func (l *countingLimiter) Wait(ctx context.Context) error  { l.waits++; return nil }
func (l *countingLimiter) SetDelay(min, max time.Duration) {}
func (l *countingLimiter) RecordSuccess()                  { l.successes++ }
func (l *countingLimiter) RecordError()                    { l.errors++ }

func seedPending(t *testing.T, h *harness) {
	t.Helper()
	_, err := h.store.SaveURLs(context.Background(), testCategory, []string{productA, productB, productC})
	require.NoError(t, err)

	h.site.docs[productA] = productHTML("sku1", "Floral Dress", "//img.ltwebstatic.com/a_thumbnail_405x552.jpg")
	h.site.docs[productB] = productHTML("sku2", "Linen Shirt")
	h.site.docs[productC] = productHTML("sku3", "Knit Top")
}

func TestExtract(t *testing.T) {
	h := newHarness(t)
	seedPending(t, h)

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	p, err := d.Extract(context.Background(), h.site, productA)
	require.NoError(t, err)

	assert.Equal(t, "sku1", p.SKU)
	assert.Equal(t, "Floral Dress", p.Title)
	assert.Equal(t, []string{"https://img.ltwebstatic.com/a.jpg"}, p.Images)
}

func TestRunRecordsFailureAndContinues(t *testing.T) {
	h := newHarness(t)
	seedPending(t, h)
	h.site.docs[productB] = "<div>layout changed</div>"

	limiter := &countingLimiter{}
	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, limiter, h.cfg.Scraper)
	res, err := d.Run(context.Background(), h.site, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Succeeded)
	assert.False(t, res.Stopped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, productB, res.Failed[0].URL)
	assert.Equal(t, scrapeerr.KindRetryExhausted, res.Failed[0].Kind)

	gotosB := 0
	for _, u := range h.site.gotos {
		if u == productB {
			gotosB++
		}
	}
	assert.Equal(t, 3, gotosB)

	assert.Equal(t, 2, limiter.waits)
	assert.Equal(t, 2, limiter.successes)
	assert.Equal(t, 1, limiter.errors)

	stats, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats["completed"])
	assert.Equal(t, 1, stats["failed"])
	assert.Equal(t, 2, stats["products"])

	p, ok := h.store.Product("sku1")
	require.True(t, ok)
	assert.Equal(t, productA, p.URL)
}

func TestRunStopsOnCaptcha(t *testing.T) {
	h := newHarness(t)
	seedPending(t, h)
	h.site.challengeAt[productB] = true

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	res, err := d.Run(context.Background(), h.site, 0)
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, scrapeerr.KindCaptcha, res.Failed[0].Kind)

	pending, err := h.store.PendingURLs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, productC, pending[0].URL)
}

func TestRunContinuesAfterCaptchaWhenConfigured(t *testing.T) {
	h := newHarness(t)
	h.cfg.Scraper.StopOnCaptcha = false
	seedPending(t, h)
	h.site.challengeAt[productB] = true

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	res, err := d.Run(context.Background(), h.site, 0)
	require.NoError(t, err)

	assert.False(t, res.Stopped)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, productB, res.Failed[0].URL)
}

func TestRunRespectsLimit(t *testing.T) {
	h := newHarness(t)
	seedPending(t, h)

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	res, err := d.Run(context.Background(), h.site, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{testBase, productA}, h.site.gotos)
}

func TestRunRequeuesInterruptedURLs(t *testing.T) {
	h := newHarness(t)
	seedPending(t, h)
	ctx := context.Background()
	require.NoError(t, h.store.UpdateURLStatus(ctx, productB, models.URLStatusProcessing, ""))

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	res, err := d.Run(ctx, h.site, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, res.Succeeded)
	assert.Contains(t, h.site.gotos, productB)
}

func TestRunNothingPending(t *testing.T) {
	h := newHarness(t)

	d := NewDetailExtractor(h.tk, h.parser, h.store, h.sel.Product, nil, h.cfg.Scraper)
	res, err := d.Run(context.Background(), h.site, 0)
	require.NoError(t, err)

	assert.Zero(t, res.Processed)
	assert.Empty(t, h.site.gotos)
}
