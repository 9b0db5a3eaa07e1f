package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Browser   BrowserConfig
	Challenge ChallengeConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	JobsPerMinute   int
}

type ScraperConfig struct {
	BaseURL          string
	CookieDomain     string
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	NavigationSettle time.Duration
	ItemDelayMin     time.Duration
	ItemDelayMax     time.Duration
	MaxEmptyPages    int
	StopOnCaptcha    bool
	StorageFile      string
	UserAgents       []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ExecutablePath string
	ProxyServer    string
	RiskLogFile    string
	SelectorsFile  string
}

// ChallengeConfig carries the named delays of the captcha monitor and waiter.
type ChallengeConfig struct {
	ProbeTimeout time.Duration
	PollInterval time.Duration
	SettleDelay  time.Duration
	Timeout      time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			JobsPerMinute:   getIntOrDefault("SERVER_JOBS_PER_MINUTE", 6),
		},
		Scraper: ScraperConfig{
			BaseURL:          getEnvOrDefault("SCRAPER_BASE_URL", "https://shein.com"),
			CookieDomain:     getEnvOrDefault("SCRAPER_COOKIE_DOMAIN", ".shein.com"),
			MaxAttempts:      getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   getDurationOrDefault("SCRAPER_RETRY_BASE_DELAY", 2*time.Second),
			NavigationSettle: getDurationOrDefault("SCRAPER_NAVIGATION_SETTLE", 3*time.Second),
			ItemDelayMin:     getDurationOrDefault("SCRAPER_ITEM_DELAY_MIN", 2*time.Second),
			ItemDelayMax:     getDurationOrDefault("SCRAPER_ITEM_DELAY_MAX", 4*time.Second),
			MaxEmptyPages:    getIntOrDefault("SCRAPER_MAX_EMPTY_PAGES", 3),
			StopOnCaptcha:    getBoolOrDefault("SCRAPER_STOP_ON_CAPTCHA", true),
			StorageFile:      getEnvOrDefault("SCRAPER_STORAGE_FILE", "catalog.json"),
			UserAgents:       getStringSliceOrDefault("SCRAPER_USER_AGENTS", DefaultUserAgents()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ExecutablePath: getEnvOrDefault("BROWSER_EXECUTABLE_PATH", ""),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
			RiskLogFile:    getEnvOrDefault("RISK_LOG_FILE", ""),
			SelectorsFile:  getEnvOrDefault("SELECTORS_FILE", ""),
		},
		Challenge: ChallengeConfig{
			ProbeTimeout: getDurationOrDefault("CHALLENGE_PROBE_TIMEOUT", time.Second),
			PollInterval: getDurationOrDefault("CHALLENGE_POLL_INTERVAL", time.Second),
			SettleDelay:  getDurationOrDefault("CHALLENGE_SETTLE_DELAY", 2*time.Second),
			Timeout:      getDurationOrDefault("CHALLENGE_TIMEOUT", 300*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "catalog_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:      getBoolOrDefault("REDIS_ENABLED", false),
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.ItemDelayMin > c.Scraper.ItemDelayMax {
		return fmt.Errorf("SCRAPER_ITEM_DELAY_MIN cannot be greater than SCRAPER_ITEM_DELAY_MAX")
	}

	if c.Challenge.PollInterval <= 0 {
		return fmt.Errorf("CHALLENGE_POLL_INTERVAL must be positive")
	}

	if c.Challenge.Timeout < c.Challenge.PollInterval {
		return fmt.Errorf("CHALLENGE_TIMEOUT cannot be shorter than CHALLENGE_POLL_INTERVAL")
	}

	if c.Challenge.ProbeTimeout > time.Second {
		return fmt.Errorf("CHALLENGE_PROBE_TIMEOUT must not exceed 1s")
	}

	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED (the relay reads the outbox table)")
	}

	return nil
}

// DSN returns the pgx connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

// DefaultUserAgents are desktop Chrome builds on Windows and macOS only, the
// two platform families the fingerprint bundles cover.
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
