package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/igextract/extract"
	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/session"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	Session    session.Config   `yaml:"session"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Cache      CacheConfig      `yaml:"cache"`
	Batch      BatchConfig      `yaml:"batch"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// Proxy is used by the browser and the replay client.
	Proxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// CDPURL connects to a running browser instead of launching one.
	CDPURL string `yaml:"cdp_url"`

	// Stealth injects stealth.JS into every document.
	Stealth bool `yaml:"stealth"` // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockAds fails requests to known tracking domains.
	BlockAds bool `yaml:"block_ads"` // default: true

	// ReplayTimeout bounds each replayed XHR or fetch.
	ReplayTimeout time.Duration `yaml:"replay_timeout"` // default: 30s
}

// ExtractionConfig is the pattern data driving classification and
// reconciliation. It is usually supplied through the YAML file.
type ExtractionConfig struct {
	Markers  intercept.Markers `yaml:"markers"`
	Patterns extract.Patterns  `yaml:"patterns"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 1

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 3
}

// CacheConfig controls the entity cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached entities.
	MaxEntries int `yaml:"max_entries"` // default: 1000

	// TTL is how long an entity stays valid.
	TTL time.Duration `yaml:"ttl"` // default: 1h
}

// BatchConfig bounds batch jobs.
type BatchConfig struct {
	MaxURLs int `yaml:"max_urls"` // default: 100
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Headless:             true,
			Stealth:              true,
			BlockedResourceTypes: []string{"Image", "Font", "Media"},
			BlockAds:             true,
			ReplayTimeout:        30 * time.Second,
		},
		Session: session.DefaultConfig(),
		Extraction: ExtractionConfig{
			Markers:  intercept.DefaultMarkers(),
			Patterns: extract.DefaultPatterns(),
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             3,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL:        time.Hour,
		},
		Batch: BatchConfig{
			MaxURLs: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration in three layers: built-in defaults, the
// YAML file named by IGX_CONFIG_FILE, then IGX_* environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: .env not loaded", "error", err)
	}

	cfg := Default()
	if path := os.Getenv("IGX_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values; lists present in the file replace them.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("IGX_HOST", c.Server.Host)
	c.Server.Port = envIntOr("IGX_PORT", c.Server.Port)
	c.Server.Mode = envOr("IGX_MODE", c.Server.Mode)

	b := &c.Browser
	b.Headless = envBoolOr("IGX_HEADLESS", b.Headless)
	b.Proxy = envOr("IGX_PROXY", b.Proxy)
	b.NoSandbox = envBoolOr("IGX_NO_SANDBOX", b.NoSandbox)
	b.BrowserBin = envOr("IGX_BROWSER_BIN", b.BrowserBin)
	b.CDPURL = envOr("IGX_CDP_URL", b.CDPURL)
	b.Stealth = envBoolOr("IGX_STEALTH", b.Stealth)
	b.BlockedResourceTypes = envSliceOr("IGX_BLOCKED_RESOURCES", b.BlockedResourceTypes)
	b.BlockAds = envBoolOr("IGX_BLOCK_ADS", b.BlockAds)
	b.ReplayTimeout = envDurationOr("IGX_REPLAY_TIMEOUT", b.ReplayTimeout)

	s := &c.Session
	s.AntiDetection = envBoolOr("IGX_ANTI_DETECTION", s.AntiDetection)
	s.Mobile = envBoolOr("IGX_MOBILE", s.Mobile)
	s.URLTimeout = envDurationOr("IGX_URL_TIMEOUT", s.URLTimeout)
	s.SettleDelay = envDurationOr("IGX_SETTLE_DELAY", s.SettleDelay)
	s.ScrollDistance = envIntOr("IGX_SCROLL_DISTANCE", s.ScrollDistance)
	s.Discovery.Enabled = envBoolOr("IGX_DISCOVERY", s.Discovery.Enabled)
	s.Discovery.MaxProfiles = envIntOr("IGX_DISCOVERY_MAX", s.Discovery.MaxProfiles)
	s.Discovery.BaseURL = envOr("IGX_DISCOVERY_BASE_URL", s.Discovery.BaseURL)
	s.Pacing.MinDelay = envDurationOr("IGX_MIN_DELAY", s.Pacing.MinDelay)
	s.Pacing.MaxDelay = envDurationOr("IGX_MAX_DELAY", s.Pacing.MaxDelay)
	s.Pacing.MaxSessionAge = envDurationOr("IGX_MAX_SESSION_AGE", s.Pacing.MaxSessionAge)
	s.Pacing.MaxRequests = envIntOr("IGX_MAX_REQUESTS", s.Pacing.MaxRequests)
	s.Pacing.MaxErrors = envIntOr("IGX_MAX_ERRORS", s.Pacing.MaxErrors)

	c.Auth.Enabled = envBoolOr("IGX_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("IGX_API_KEYS", c.Auth.APIKeys)
	c.RateLimit.RequestsPerSecond = envFloatOr("IGX_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("IGX_RATE_BURST", c.RateLimit.Burst)
	c.Cache.MaxEntries = envIntOr("IGX_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("IGX_CACHE_TTL", c.Cache.TTL)
	c.Batch.MaxURLs = envIntOr("IGX_BATCH_MAX_URLS", c.Batch.MaxURLs)
	c.Log.Level = envOr("IGX_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("IGX_LOG_FORMAT", c.Log.Format)
}

// Validate rejects settings the session cannot run with, including pattern
// rows that do not compile.
func (c *Config) Validate() error {
	p := c.Session.Pacing
	switch {
	case p.MinDelay < 0 || p.MaxDelay < p.MinDelay:
		return fmt.Errorf("config: pacing delays must satisfy 0 <= min (%s) <= max (%s)", p.MinDelay, p.MaxDelay)
	case p.ActionMaxDelay < p.ActionMinDelay:
		return fmt.Errorf("config: action delays must satisfy min (%s) <= max (%s)", p.ActionMinDelay, p.ActionMaxDelay)
	case c.Session.URLTimeout <= 0:
		return fmt.Errorf("config: url timeout must be positive, got %s", c.Session.URLTimeout)
	case c.Session.Discovery.MaxProfiles < 0:
		return fmt.Errorf("config: discovery max profiles must not be negative")
	case c.Cache.MaxEntries <= 0:
		return fmt.Errorf("config: cache max entries must be positive")
	}
	if _, err := extract.NewReconciler(c.Extraction.Patterns); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
