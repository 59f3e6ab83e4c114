package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/catalogsync/internal/catalogapi"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// Config holds runtime configuration for the catalog client and the fake server.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"600"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIURL     string        `envconfig:"CATALOG_API_URL" default:"http://localhost:8080"`
	APITimeout time.Duration `envconfig:"CATALOG_API_TIMEOUT" default:"10s"`
	APIRate    float64       `envconfig:"CATALOG_API_RATE" default:"0"`
	APIBurst   int           `envconfig:"CATALOG_API_BURST" default:"1"`

	CacheGCTime    time.Duration `envconfig:"CACHE_GC_TIME" default:"5m"`
	CacheStaleTime time.Duration `envconfig:"CACHE_STALE_TIME" default:"0s"`

	RedisAddr           string `envconfig:"REDIS_ADDR"`
	InvalidationChannel string `envconfig:"INVALIDATION_CHANNEL" default:"catalog.invalidate"`

	FakeSeed    bool          `envconfig:"FAKE_SEED" default:"true"`
	FakeLatency time.Duration `envconfig:"FAKE_LATENCY" default:"0s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CATALOG_API_URL must be an absolute url, got %q", c.APIURL)
	}
	if c.APIRate < 0 {
		return errors.New("CATALOG_API_RATE must not be negative")
	}
	if c.CacheStaleTime < 0 {
		return errors.New("CACHE_STALE_TIME must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "pretty", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json, got %q", c.LogFormat)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// ClientConfig derives the API client settings.
func (c *Config) ClientConfig(userAgent string) catalogapi.Config {
	return catalogapi.Config{
		BaseURL:   c.APIURL,
		Timeout:   c.APITimeout,
		RateLimit: c.APIRate,
		RateBurst: c.APIBurst,
		UserAgent: userAgent,
	}
}

// CacheConfig derives the query cache settings. Logger and metrics are
// filled in by the caller.
func (c *Config) CacheConfig() querycache.Config {
	return querycache.Config{
		GCTime:    c.CacheGCTime,
		StaleTime: c.CacheStaleTime,
	}
}
