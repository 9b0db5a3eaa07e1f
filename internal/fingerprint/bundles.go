package fingerprint

// Bundle is one internally consistent platform identity. Profiles take every
// platform-dependent field from a single bundle, never from independent draws.
type Bundle struct {
	Family    string
	Platform  string
	OSCPU     string
	Vendor    string
	Renderer  string
	Languages []string
}

var bundles = []Bundle{
	{
		Family:    "Windows",
		Platform:  "Win32",
		OSCPU:     "Windows NT 10.0",
		Vendor:    "Google Inc.",
		Renderer:  "ANGLE (Intel, Intel(R) UHD Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)",
		Languages: []string{"de-DE", "de", "en-US", "en"},
	},
	{
		Family:    "Macintosh",
		Platform:  "MacIntel",
		OSCPU:     "Intel Mac OS X 10_15_7",
		Vendor:    "Apple Computer, Inc.",
		Renderer:  "Apple GPU",
		Languages: []string{"de-DE", "de", "en-US", "en"},
	},
}

var viewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1280, Height: 800},
	{Width: 1440, Height: 900},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1600, Height: 900},
	{Width: 1680, Height: 1050},
	{Width: 1920, Height: 1200},
}

var (
	scaleFactors        = []float64{1, 1.25, 1.5, 2}
	hardwareConcurrency = []int{2, 4, 6, 8, 12, 16}
	deviceMemoryGB      = []int{4, 8, 16, 32}
)

// timezones is keyed by the primary locale of a bundle.
var timezones = map[string][]string{
	"de-DE": {"Europe/Berlin", "Europe/Vienna", "Europe/Zurich"},
	"en-GB": {"Europe/London", "Europe/Dublin"},
}

var fallbackTimezones = []string{"Europe/Berlin"}

// geoCenters anchor the jittered geolocation for a locale.
var geoCenters = map[string]Geolocation{
	"de-DE": {Latitude: 48.1351, Longitude: 11.5820},
	"en-GB": {Latitude: 51.5074, Longitude: -0.1278},
}

// BundleFor returns the bundle whose family appears in the user agent.
func BundleFor(userAgent string) (Bundle, bool) {
	for _, b := range bundles {
		if containsToken(userAgent, b.Family) {
			return b, true
		}
	}
	return Bundle{}, false
}

// TimezonesFor returns the candidate set a locale draws its timezone from.
func TimezonesFor(locale string) []string {
	if tz, ok := timezones[locale]; ok {
		return tz
	}
	return fallbackTimezones
}
