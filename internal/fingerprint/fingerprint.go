// Package fingerprint generates randomized, self-consistent browser identities.
package fingerprint

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/scrapeerr"
)

type Viewport struct {
	Width  int
	Height int
}

type Geolocation struct {
	Latitude  float64
	Longitude float64
}

// Profile is a complete browser identity. It is a value type; callers get
// their own copy and nothing in it is shared with the generator.
type Profile struct {
	Family              string
	Platform            string
	OSCPU               string
	Vendor              string
	Renderer            string
	Languages           []string
	HardwareConcurrency int
	DeviceMemoryGB      int
	Viewport            Viewport
	DeviceScaleFactor   float64
	TimezoneID          string
	Geolocation         Geolocation
	UserAgent           string
	ConnectionRTT       int
}

// Locale is the primary language tag, which also selected the timezone set.
func (p Profile) Locale() string {
	if len(p.Languages) == 0 {
		return ""
	}
	return p.Languages[0]
}

type Generator struct {
	userAgents []string
	mu         sync.Mutex
	rng        *rand.Rand
}

// NewGenerator keeps only user agents that map onto a known platform bundle.
// A nil rng seeds one from the clock.
func NewGenerator(userAgents []string, rng *rand.Rand) (*Generator, error) {
	var usable []string
	for _, ua := range userAgents {
		if _, ok := BundleFor(ua); ok {
			usable = append(usable, ua)
		}
	}

	if len(usable) == 0 {
		return nil, &scrapeerr.ConfigurationError{
			Field:  "user_agents",
			Reason: "pool is empty or has no Windows/Macintosh user agent",
		}
	}

	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}

	return &Generator{userAgents: usable, rng: rng}, nil
}

// Generate draws a user agent first and derives the platform bundle from it,
// so the platform, renderer and languages can never disagree with the UA.
func (g *Generator) Generate() Profile {
	g.mu.Lock()
	defer g.mu.Unlock()

	ua := pick(g.rng, g.userAgents)
	bundle, _ := BundleFor(ua)

	languages := append([]string(nil), bundle.Languages...)
	locale := languages[0]

	center, ok := geoCenters[locale]
	if !ok {
		center = geoCenters["de-DE"]
	}

	return Profile{
		Family:              bundle.Family,
		Platform:            bundle.Platform,
		OSCPU:               bundle.OSCPU,
		Vendor:              bundle.Vendor,
		Renderer:            bundle.Renderer,
		Languages:           languages,
		HardwareConcurrency: pick(g.rng, hardwareConcurrency),
		DeviceMemoryGB:      pick(g.rng, deviceMemoryGB),
		Viewport:            pick(g.rng, viewports),
		DeviceScaleFactor:   pick(g.rng, scaleFactors),
		TimezoneID:          pick(g.rng, TimezonesFor(locale)),
		Geolocation: Geolocation{
			Latitude:  center.Latitude + jitter(g.rng, 2),
			Longitude: center.Longitude + jitter(g.rng, 2),
		},
		UserAgent:     ua,
		ConnectionRTT: 50 + g.rng.IntN(201),
	}
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

func jitter(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

func containsToken(s, token string) bool {
	return strings.Contains(s, token)
}
