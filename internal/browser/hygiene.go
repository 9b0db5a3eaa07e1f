package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
)

var chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)

// PageHeaders are the navigation headers a desktop Chrome sends for the
// profile's user agent and languages.
func PageHeaders(userAgent string, languages []string) map[string]string {
	major := "122"
	if m := chromeVersion.FindStringSubmatch(userAgent); m != nil {
		major = m[1]
	}

	return map[string]string{
		"accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"accept-language":           AcceptLanguage(languages),
		"sec-ch-ua":                 fmt.Sprintf(`"Chromium";v="%s", "Not(A:Brand";v="24", "Google Chrome";v="%s"`, major, major),
		"sec-ch-ua-mobile":          "?0",
		"sec-fetch-dest":            "document",
		"sec-fetch-mode":            "navigate",
		"sec-fetch-site":            "none",
		"sec-fetch-user":            "?1",
		"upgrade-insecure-requests": "1",
	}
}

// AcceptLanguage renders languages with descending q weights.
func AcceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

func siteName(cookieDomain string) string {
	host := strings.TrimPrefix(cookieDomain, ".")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}

func isRiskURL(url string) bool {
	return strings.Contains(url, "risk")
}

// preparePage sets headers, the empty site session cookie and, when a risk
// log is configured, traffic logging for the site's risk endpoints.
func (s *Session) preparePage(page playwright.Page) error {
	if err := page.SetExtraHTTPHeaders(PageHeaders(s.Profile.UserAgent, s.Profile.Languages)); err != nil {
		return fmt.Errorf("failed to set page headers: %w", err)
	}

	if s.opts.SiteName != "" {
		cookie := playwright.OptionalCookie{
			Name:   "sessionID_" + s.opts.SiteName,
			Value:  "",
			Domain: playwright.String(s.opts.CookieDomain),
			Path:   playwright.String("/"),
		}
		if err := s.context.AddCookies([]playwright.OptionalCookie{cookie}); err != nil {
			s.logger.Warn("failed to seed session cookie", "error", err)
		}
	}

	if s.riskLog == nil {
		return nil
	}

	page.OnRequest(func(req playwright.Request) {
		if !isRiskURL(req.URL()) {
			return
		}
		postData, _ := req.PostData()
		s.riskLog.Info("risk request",
			"method", req.Method(),
			"url", req.URL(),
			"headers", req.Headers(),
			"post_data", postData)
	})

	page.OnResponse(func(resp playwright.Response) {
		if !isRiskURL(resp.URL()) {
			return
		}
		attrs := []any{"status", resp.Status(), "url", resp.URL(), "headers", resp.Headers()}
		if resp.Ok() {
			if body, err := resp.Text(); err == nil {
				attrs = append(attrs, "payload", body)
			} else {
				attrs = append(attrs, "payload", "<unavailable>")
			}
		}
		s.riskLog.Info("risk response", attrs...)
	})

	return nil
}
