// Package config holds tracker configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the crawler, storage, scheduler, and
// query API.
type Config struct {
	BaseURL     string
	CrawlerName string
	Parallelism int
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	UserAgent   string
	KeepRawHTML bool

	StorageDriver string // postgres or memory
	DatabaseURL   string

	CrawlHour      int
	CrawlMinute    int
	GenerateReport bool
	ReportFormat   string // csv or json
	ReportDir      string

	APIAddr         string
	APIKey          string
	RateLimit       int
	RateLimitWindow time.Duration

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://books.toscrape.com/",
		CrawlerName:     "books_tracker",
		Parallelism:     8,
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		BackoffBase:     2 * time.Second,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		KeepRawHTML:     false,
		StorageDriver:   "postgres",
		DatabaseURL:     "postgres://localhost:5432/bookstore?sslmode=disable",
		CrawlHour:       2,
		CrawlMinute:     0,
		GenerateReport:  false,
		ReportFormat:    "csv",
		ReportDir:       "reports",
		APIAddr:         ":8080",
		APIKey:          "",
		RateLimit:       100,
		RateLimitWindow: time.Hour,
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Load builds a config from defaults overridden by environment
// variables. A .env file in the working directory is honoured when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v, ok := EnvString("TRACKER_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := EnvString("TRACKER_CRAWLER_NAME"); ok {
		cfg.CrawlerName = v
	}
	if v, ok, err := EnvInt("TRACKER_PARALLELISM"); err != nil {
		return nil, err
	} else if ok {
		cfg.Parallelism = v
	}
	if v, ok, err := EnvDuration("TRACKER_TIMEOUT"); err != nil {
		return nil, err
	} else if ok {
		cfg.Timeout = v
	}
	if v, ok, err := EnvInt("TRACKER_MAX_RETRIES"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRetries = v
	}
	if v, ok, err := EnvDuration("TRACKER_BACKOFF_BASE"); err != nil {
		return nil, err
	} else if ok {
		cfg.BackoffBase = v
	}
	if v, ok, err := EnvBool("TRACKER_KEEP_RAW_HTML"); err != nil {
		return nil, err
	} else if ok {
		cfg.KeepRawHTML = v
	}
	if v, ok := EnvString("TRACKER_STORAGE"); ok {
		cfg.StorageDriver = v
	}
	if v, ok := EnvString("TRACKER_DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok, err := EnvInt("SCHEDULER_CRAWL_HOUR"); err != nil {
		return nil, err
	} else if ok {
		cfg.CrawlHour = v
	}
	if v, ok, err := EnvInt("SCHEDULER_CRAWL_MINUTE"); err != nil {
		return nil, err
	} else if ok {
		cfg.CrawlMinute = v
	}
	if v, ok, err := EnvBool("TRACKER_GENERATE_REPORT"); err != nil {
		return nil, err
	} else if ok {
		cfg.GenerateReport = v
	}
	if v, ok := EnvString("TRACKER_REPORT_FORMAT"); ok {
		cfg.ReportFormat = v
	}
	if v, ok := EnvString("TRACKER_REPORT_DIR"); ok {
		cfg.ReportDir = v
	}
	if v, ok := EnvString("API_ADDR"); ok {
		cfg.APIAddr = v
	}
	if v, ok := EnvString("API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok, err := EnvInt("API_RATE_LIMIT"); err != nil {
		return nil, err
	} else if ok {
		cfg.RateLimit = v
	}
	if v, ok, err := EnvDuration("API_RATE_LIMIT_WINDOW"); err != nil {
		return nil, err
	} else if ok {
		cfg.RateLimitWindow = v
	}
	if v, ok := EnvString("TRACKER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.CrawlerName == "" {
		return fmt.Errorf("crawler name cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff base cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.StorageDriver != "postgres" && c.StorageDriver != "memory" {
		return fmt.Errorf("storage driver must be postgres or memory")
	}
	if c.StorageDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("database URL cannot be empty for postgres storage")
	}
	if c.CrawlHour < 0 || c.CrawlHour > 23 {
		return fmt.Errorf("crawl hour must be between 0 and 23")
	}
	if c.CrawlMinute < 0 || c.CrawlMinute > 59 {
		return fmt.Errorf("crawl minute must be between 0 and 59")
	}
	if c.ReportFormat != "csv" && c.ReportFormat != "json" {
		return fmt.Errorf("report format must be csv or json")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

// EnvString reads a string environment variable.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool reads a boolean environment variable ("true", "1", "false", ...).
func EnvBool(key string) (bool, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration reads a duration environment variable ("15s", "2m", ...).
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return parsed, true, nil
}
