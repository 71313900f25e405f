package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// DefaultUserAgent is the mobile Safari signature sent to the video site.
// The mobile layout exposes a directly playable <video> element.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL used for every request.
	Proxy string

	// ControlURL connects to an already running Chrome (CDP websocket)
	// instead of launching one.
	ControlURL string
}

// FetchConfig controls how each video page is visited.
type FetchConfig struct {
	// SiteURL is the base of the video site; pages live at <SiteURL>/video/<id>.
	SiteURL string // default: "https://www.bilibili.com"

	// UserAgent is applied before the reload.
	UserAgent string // default: DefaultUserAgent

	// VideoSelector locates the video element.
	VideoSelector string // default: "video"

	// NavigationTimeout bounds the navigation and the reload, each.
	NavigationTimeout time.Duration // default: 30s

	// WaitTimeout bounds the wait for the video element and the extraction.
	WaitTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types the session refuses to load.
	// default: ["Image", "Font"]
	BlockedResourceTypes []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// blockableResources are the resource type names accepted in
// BlockedResourceTypes. Media is absent: blocking it keeps the video
// element from ever getting a source.
var blockableResources = map[string]struct{}{
	"Image":      {},
	"Stylesheet": {},
	"Font":       {},
	"Script":     {},
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("VIDURL_HOST", "0.0.0.0"),
			Port: envIntOr("VIDURL_PORT", 8080),
			Mode: envOr("VIDURL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("VIDURL_HEADLESS", true),
			NoSandbox:  envBoolOr("VIDURL_NO_SANDBOX", false),
			BrowserBin: os.Getenv("VIDURL_BROWSER_BIN"),
			Proxy:      os.Getenv("VIDURL_PROXY"),
			ControlURL: os.Getenv("VIDURL_CDP_URL"),
		},
		Fetch: FetchConfig{
			SiteURL:              envOr("VIDURL_SITE_URL", "https://www.bilibili.com"),
			UserAgent:            envOr("VIDURL_USER_AGENT", DefaultUserAgent),
			VideoSelector:        envOr("VIDURL_VIDEO_SELECTOR", "video"),
			NavigationTimeout:    envDurationOr("VIDURL_NAV_TIMEOUT", 30*time.Second),
			WaitTimeout:          envDurationOr("VIDURL_WAIT_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("VIDURL_BLOCKED_RESOURCES", []string{"Image", "Font"}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("VIDURL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("VIDURL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("VIDURL_RATE_RPS", 1.0),
			Burst:             envIntOr("VIDURL_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("VIDURL_LOG_LEVEL", "info"),
			Format: envOr("VIDURL_LOG_FORMAT", "text"),
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	return c.Fetch.Validate()
}

// Validate checks the fetch settings.
func (f FetchConfig) Validate() error {
	u, err := url.Parse(f.SiteURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid site URL %q", f.SiteURL)
	}
	if _, err := cascadia.Parse(f.VideoSelector); err != nil {
		return fmt.Errorf("config: invalid video selector %q: %w", f.VideoSelector, err)
	}
	if f.NavigationTimeout <= 0 {
		return fmt.Errorf("config: navigation timeout must be positive, got %s", f.NavigationTimeout)
	}
	if f.WaitTimeout <= 0 {
		return fmt.Errorf("config: wait timeout must be positive, got %s", f.WaitTimeout)
	}
	for _, name := range f.BlockedResourceTypes {
		if _, ok := blockableResources[name]; !ok {
			return fmt.Errorf("config: resource type %q cannot be blocked", name)
		}
	}
	return nil
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
