package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.BaseURL = "" }},
		{"base url without host", func(c *Config) { c.BaseURL = "/relative/path" }},
		{"empty crawler name", func(c *Config) { c.CrawlerName = "" }},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative backoff", func(c *Config) { c.BackoffBase = -time.Second }},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }},
		{"unknown storage driver", func(c *Config) { c.StorageDriver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.DatabaseURL = "" }},
		{"crawl hour out of range", func(c *Config) { c.CrawlHour = 24 }},
		{"crawl minute out of range", func(c *Config) { c.CrawlMinute = 60 }},
		{"bad report format", func(c *Config) { c.ReportFormat = "xml" }},
		{"zero rate limit", func(c *Config) { c.RateLimit = 0 }},
		{"zero rate limit window", func(c *Config) { c.RateLimitWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TRACKER_TEST_STRING", "hello")
	t.Setenv("TRACKER_TEST_INT", "42")
	t.Setenv("TRACKER_TEST_BAD_INT", "forty-two")
	t.Setenv("TRACKER_TEST_DURATION", "90s")

	if v, ok := EnvString("TRACKER_TEST_STRING"); !ok || v != "hello" {
		t.Fatalf("EnvString = %q/%v, want hello/true", v, ok)
	}
	if _, ok := EnvString("TRACKER_TEST_UNSET"); ok {
		t.Fatal("unset variable should report ok=false")
	}

	if v, ok, err := EnvInt("TRACKER_TEST_INT"); err != nil || !ok || v != 42 {
		t.Fatalf("EnvInt = %d/%v/%v, want 42/true/nil", v, ok, err)
	}
	if _, _, err := EnvInt("TRACKER_TEST_BAD_INT"); err == nil {
		t.Fatal("expected error for non-integer value")
	}

	if v, ok, err := EnvDuration("TRACKER_TEST_DURATION"); err != nil || !ok || v != 90*time.Second {
		t.Fatalf("EnvDuration = %v/%v/%v, want 90s/true/nil", v, ok, err)
	}

	t.Setenv("TRACKER_TEST_BOOL", "true")
	t.Setenv("TRACKER_TEST_BAD_BOOL", "yep")
	if v, ok, err := EnvBool("TRACKER_TEST_BOOL"); err != nil || !ok || !v {
		t.Fatalf("EnvBool = %v/%v/%v, want true/true/nil", v, ok, err)
	}
	if _, _, err := EnvBool("TRACKER_TEST_BAD_BOOL"); err == nil {
		t.Fatal("expected error for non-boolean value")
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	t.Setenv("TRACKER_BASE_URL", "http://example.test/")
	t.Setenv("TRACKER_MAX_RETRIES", "5")
	t.Setenv("TRACKER_BACKOFF_BASE", "250ms")
	t.Setenv("SCHEDULER_CRAWL_HOUR", "11")
	t.Setenv("SCHEDULER_CRAWL_MINUTE", "40")
	t.Setenv("TRACKER_KEEP_RAW_HTML", "true")
	t.Setenv("TRACKER_GENERATE_REPORT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://example.test/" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 250*time.Millisecond {
		t.Fatalf("backoff base = %v, want 250ms", cfg.BackoffBase)
	}
	if cfg.CrawlHour != 11 || cfg.CrawlMinute != 40 {
		t.Fatalf("crawl time = %d:%d, want 11:40", cfg.CrawlHour, cfg.CrawlMinute)
	}
	if !cfg.KeepRawHTML {
		t.Fatal("keep raw html override not applied")
	}
	if !cfg.GenerateReport {
		t.Fatal("generate report override not applied")
	}
}
