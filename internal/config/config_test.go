package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Scraper.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scraper.RetryBaseDelay)
	assert.Equal(t, time.Second, cfg.Challenge.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Challenge.SettleDelay)
	assert.Equal(t, 300*time.Second, cfg.Challenge.Timeout)
	assert.True(t, cfg.Browser.Headless)
	assert.NotEmpty(t, cfg.Scraper.UserAgents)
}

func TestLoadUserAgentsFromEnv(t *testing.T) {
	t.Setenv("SCRAPER_USER_AGENTS", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) | Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Scraper.UserAgents, 2)
	assert.Contains(t, cfg.Scraper.UserAgents[0], "KHTML, like Gecko")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero attempts", func(c *Config) { c.Scraper.MaxAttempts = 0 }, true},
		{"delay range inverted", func(c *Config) { c.Scraper.ItemDelayMin = 10 * time.Second }, true},
		{"probe too long", func(c *Config) { c.Challenge.ProbeTimeout = 2 * time.Second }, true},
		{"timeout below poll", func(c *Config) { c.Challenge.Timeout = 500 * time.Millisecond }, true},
		{"redis without db", func(c *Config) { c.Redis.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadSelectorsEmbedded(t *testing.T) {
	s, err := LoadSelectors("")
	require.NoError(t, err)

	assert.Equal(t, []string{
		".geetest_panel_box",
		".captcha_click_wrapper",
		"[captcha-click-image]",
		".captcha_btn_click_wrapper",
	}, s.Challenge)
	assert.Equal(t, 100*time.Millisecond, s.Popups.Timeout)
	assert.Len(t, s.Popups.Strategies, 7)
	assert.Equal(t, 3, s.Reviews.PerPage)
}

func TestLoadSelectorsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	doc := `
challenge: [".challenge-box"]
popups:
  strategies: ["#%s"]
  targets: ["close"]
category:
  product_link: a.product
product:
  sku: .sku
  title: h1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".challenge-box"}, s.Challenge)
	assert.Equal(t, 100*time.Millisecond, s.Popups.Timeout, "timeout defaults when omitted")
	assert.Equal(t, 3, s.Reviews.PerPage)
}

func TestParseSelectorsConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no challenge selectors", `popups: {strategies: ["#%s"], targets: [x]}`},
		{"bad strategy", `{challenge: [.c], popups: {strategies: ["#id"], targets: [x]}, category: {product_link: a}, product: {sku: s, title: t}}`},
		{"missing product selectors", `{challenge: [.c], popups: {strategies: ["#%s"], targets: [x]}}`},
		{"not yaml", "challenge: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelectors([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, scrapeerr.KindConfiguration, scrapeerr.Classify(err))
		})
	}
}
