// Package browser launches fingerprinted playwright sessions and adapts
// playwright pages to the small page interfaces the scraper layers consume.
package browser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/fingerprint"
	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
	"github.com/maltedev/catalog-scraper/pkg/logger"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	ExecutablePath string
	ProxyServer    string
	CookieDomain   string
	SiteName       string
	RiskLogFile    string
}

func DefaultOptions() Options {
	return Options{
		Headless:     true,
		Timeout:      30 * time.Second,
		CookieDomain: ".shein.com",
		SiteName:     "shein",
	}
}

// OptionsFromConfig maps the process configuration onto session options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ExecutablePath = cfg.Browser.ExecutablePath
	opts.ProxyServer = cfg.Browser.ProxyServer
	opts.RiskLogFile = cfg.Browser.RiskLogFile
	if cfg.Scraper.CookieDomain != "" {
		opts.CookieDomain = cfg.Scraper.CookieDomain
		opts.SiteName = siteName(cfg.Scraper.CookieDomain)
	}
	return opts
}

// Session owns one browser process, its isolated context and the
// playwright driver. A session must be used by one workflow at a time.
type Session struct {
	Profile fingerprint.Profile

	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    Options
	riskLog *slog.Logger
	logger  *slog.Logger

	// closers run in reverse order of acquisition.
	closers   []func() error
	closeOnce sync.Once
}

// Open launches a hardened Chromium bound to profile. On any failure the
// partially acquired resources are released before the error is returned.
func Open(profile fingerprint.Profile, opts Options) (*Session, error) {
	if len(profile.Languages) == 0 || profile.UserAgent == "" {
		return nil, &scrapeerr.ConfigurationError{Field: "profile", Reason: "missing user agent or languages"}
	}

	script, err := InitScript(profile)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Profile: profile,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, &scrapeerr.SessionLaunchError{Stage: "driver", Err: err}
	}
	s.pw = pw
	s.closers = append(s.closers, func() error {
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		return nil
	})

	browser, err := pw.Chromium.Launch(LaunchOptions(profile, opts))
	if err != nil {
		s.Close()
		return nil, &scrapeerr.SessionLaunchError{Stage: "browser", Err: err}
	}
	s.browser = browser
	s.closers = append(s.closers, func() error {
		if err := browser.Close(); err != nil {
			return fmt.Errorf("failed to close browser: %w", err)
		}
		return nil
	})

	bctx, err := browser.NewContext(ContextOptions(profile))
	if err != nil {
		s.Close()
		return nil, &scrapeerr.SessionLaunchError{Stage: "context", Err: err}
	}
	s.context = bctx
	s.closers = append(s.closers, func() error {
		if err := bctx.Close(); err != nil {
			return fmt.Errorf("failed to close context: %w", err)
		}
		return nil
	})

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
		s.Close()
		return nil, &scrapeerr.SessionLaunchError{Stage: "init script", Err: err}
	}

	if err := bctx.AddCookies(SeedCookies(opts.CookieDomain, time.Now(), nil)); err != nil {
		s.Close()
		return nil, &scrapeerr.SessionLaunchError{Stage: "cookies", Err: err}
	}

	if opts.RiskLogFile != "" {
		riskLog, closer, err := logger.NewFile(opts.RiskLogFile)
		if err != nil {
			s.Close()
			return nil, &scrapeerr.SessionLaunchError{Stage: "risk log", Err: err}
		}
		s.riskLog = riskLog
		s.closers = append(s.closers, closer.Close)
	}

	s.logger.Info("browser session opened",
		"platform", profile.Platform,
		"viewport", fmt.Sprintf("%dx%d", profile.Viewport.Width, profile.Viewport.Height),
		"timezone", profile.TimezoneID)

	return s, nil
}

// NewPage opens a tab in the session's context with the page hygiene applied.
func (s *Session) NewPage() (*Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(s.opts.Timeout.Milliseconds()))

	if err := s.preparePage(page); err != nil {
		page.Close()
		return nil, err
	}

	return newPage(page, s.opts.Timeout), nil
}

// Close releases the context, the browser and the driver. It is safe to call
// more than once and on a session whose Open failed half way. Only the first
// call reports teardown errors; later calls return nil.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		s.closers = nil
		closeErr = errors.Join(errs...)
		if s.logger != nil {
			s.logger.Debug("browser session closed", "errors", len(errs))
		}
	})
	return closeErr
}

// LaunchOptions builds the hardened Chromium launch flags for profile.
func LaunchOptions(profile fingerprint.Profile, opts Options) playwright.BrowserTypeLaunchOptions {
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     LaunchArgs(profile),
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if opts.ProxyServer != "" {
		launch.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}
	return launch
}

func LaunchArgs(profile fingerprint.Profile) []string {
	return []string{
		"--disable-application-cache",
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-extensions",
		"--disable-sync",
		"--metrics-recording-only",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-popup-blocking",
		"--disable-notifications",
		"--disable-translate",
		"--disable-web-security",
		"--lang=" + profile.Locale(),
		"--disable-blink-features=AutomationControlled",
		"--hardware-concurrency=" + strconv.Itoa(profile.HardwareConcurrency),
		"--device-memory=" + strconv.Itoa(profile.DeviceMemoryGB),
	}
}

// ContextOptions binds the browser context to the profile's identity.
func ContextOptions(profile fingerprint.Profile) playwright.BrowserNewContextOptions {
	size := &playwright.Size{Width: profile.Viewport.Width, Height: profile.Viewport.Height}

	return playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(profile.UserAgent),
		Viewport:          size,
		Screen:            size,
		DeviceScaleFactor: playwright.Float(profile.DeviceScaleFactor),
		Locale:            playwright.String(profile.Locale()),
		TimezoneId:        playwright.String(profile.TimezoneID),
		Geolocation: &playwright.Geolocation{
			Latitude:  profile.Geolocation.Latitude,
			Longitude: profile.Geolocation.Longitude,
		},
		Permissions:       []string{"geolocation", "notifications"},
		ColorScheme:       playwright.ColorSchemeLight,
		IsMobile:          playwright.Bool(false),
		HasTouch:          playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		BypassCSP:         playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
	}
}

// SeedCookies returns a synthetic session id and a first-visit timestamp
// between one and ten days in the past. A nil rng uses the global source.
func SeedCookies(domain string, now time.Time, rng *rand.Rand) []playwright.OptionalCookie {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	sessionID := 1000000 + intN(9000000)
	age := 86400 + intN(864000-86400+1)

	return []playwright.OptionalCookie{
		{
			Name:   "user_session",
			Value:  fmt.Sprintf("session_%d", sessionID),
			Domain: playwright.String(domain),
			Path:   playwright.String("/"),
		},
		{
			Name:   "first_visit",
			Value:  strconv.FormatInt(now.Unix()-int64(age), 10),
			Domain: playwright.String(domain),
			Path:   playwright.String("/"),
		},
	}
}

// Launcher opens sessions with a freshly generated profile each time.
type Launcher struct {
	gen  *fingerprint.Generator
	opts Options
}

func NewLauncher(gen *fingerprint.Generator, opts Options) *Launcher {
	return &Launcher{gen: gen, opts: opts}
}

func (l *Launcher) Launch() (*Session, error) {
	return Open(l.gen.Generate(), l.opts)
}

var _ io.Closer = (*Session)(nil)
