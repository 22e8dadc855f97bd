package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// DefaultProxies is the built-in ordered list of public CORS relays. Each
// entry is a template; the percent-encoded target URL is appended to it.
var DefaultProxies = []string{
	"https://api.allorigins.win/raw?url=",
	"https://corsproxy.io/?",
	"https://cors-anywhere.herokuapp.com/",
	"https://thingproxy.freeboard.io/fetch/",
	"https://cors.bridged.cc/",
}

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
	Resolver   ResolverConfig
	Classifier ClassifierConfig
	Render     RenderConfig
	Liveness   LivenessConfig
	Viewer     ViewerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// Origin is the origin the viewer is considered to be hosted at.
	// Same-origin URLs are never probed or proxied.
	Origin string `envconfig:"APP_ORIGIN" default:"http://localhost:8000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ResolverConfig holds source resolution settings.
type ResolverConfig struct {
	Proxies       []string      `envconfig:"RESOLVER_PROXIES"`
	ProxyFile     string        `envconfig:"RESOLVER_PROXY_FILE"`
	DirectTimeout time.Duration `envconfig:"RESOLVER_DIRECT_TIMEOUT" default:"3s"`
	ImageTimeout  time.Duration `envconfig:"RESOLVER_IMAGE_TIMEOUT" default:"3s"`
	ProxyTimeout  time.Duration `envconfig:"RESOLVER_PROXY_TIMEOUT" default:"8s"`
}

// ClassifierConfig holds document classification timeouts.
type ClassifierConfig struct {
	HeaderTimeout    time.Duration `envconfig:"CLASSIFIER_HEADER_TIMEOUT" default:"3s"`
	ProxiedTimeout   time.Duration `envconfig:"CLASSIFIER_PROXIED_TIMEOUT" default:"5s"`
	SignatureTimeout time.Duration `envconfig:"CLASSIFIER_SIGNATURE_TIMEOUT" default:"5s"`
}

// RenderConfig holds render engine settings.
type RenderConfig struct {
	OpenTimeout      time.Duration `envconfig:"RENDER_OPEN_TIMEOUT" default:"30s"`
	DevicePixelRatio float64       `envconfig:"RENDER_DPR" default:"1"`
	MaxDocumentBytes int64         `envconfig:"RENDER_MAX_BYTES" default:"104857600"`
}

// LivenessConfig holds stall detection settings.
type LivenessConfig struct {
	Threshold     time.Duration `envconfig:"LIVENESS_THRESHOLD" default:"60s"`
	CheckInterval time.Duration `envconfig:"LIVENESS_INTERVAL" default:"10s"`
}

// ViewerConfig holds viewer controller defaults.
type ViewerConfig struct {
	InitialZoom int           `envconfig:"VIEWER_INITIAL_ZOOM" default:"100"`
	MinZoom     int           `envconfig:"VIEWER_MIN_ZOOM" default:"50"`
	MaxZoom     int           `envconfig:"VIEWER_MAX_ZOOM" default:"300"`
	ZoomStep    int           `envconfig:"VIEWER_ZOOM_STEP" default:"25"`
	ViewMode    string        `envconfig:"VIEWER_MODE" default:"single"`
	RetryDelay  time.Duration `envconfig:"VIEWER_RETRY_DELAY" default:"2s"`
}

// proxyFile is the layout accepted by RESOLVER_PROXY_FILE, as YAML or
// TOML.
type proxyFile struct {
	Proxies []string `yaml:"proxies" toml:"proxies"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Resolver.ProxyFile != "" {
		proxies, err := LoadProxyFile(cfg.Resolver.ProxyFile)
		if err != nil {
			return nil, err
		}
		cfg.Resolver.Proxies = proxies
	}
	if len(cfg.Resolver.Proxies) == 0 {
		cfg.Resolver.Proxies = append([]string(nil), DefaultProxies...)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadProxyFile reads an ordered proxy template list. Files ending in
// .toml are parsed as TOML, anything else as YAML.
func LoadProxyFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}

	var pf proxyFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &pf)
	} else {
		err = yaml.Unmarshal(data, &pf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy file: %w", err)
	}
	if len(pf.Proxies) == 0 {
		return nil, fmt.Errorf("proxy file %s lists no proxies", path)
	}
	return pf.Proxies, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   "8000",
			Host:   "0.0.0.0",
			Origin: "http://localhost:8000",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Resolver: ResolverConfig{
			Proxies:       append([]string(nil), DefaultProxies...),
			DirectTimeout: 3 * time.Second,
			ImageTimeout:  3 * time.Second,
			ProxyTimeout:  8 * time.Second,
		},
		Classifier: ClassifierConfig{
			HeaderTimeout:    3 * time.Second,
			ProxiedTimeout:   5 * time.Second,
			SignatureTimeout: 5 * time.Second,
		},
		Render: RenderConfig{
			OpenTimeout:      30 * time.Second,
			DevicePixelRatio: 1,
			MaxDocumentBytes: 100 << 20,
		},
		Liveness: LivenessConfig{
			Threshold:     60 * time.Second,
			CheckInterval: 10 * time.Second,
		},
		Viewer: ViewerConfig{
			InitialZoom: 100,
			MinZoom:     50,
			MaxZoom:     300,
			ZoomStep:    25,
			ViewMode:    "single",
			RetryDelay:  2 * time.Second,
		},
	}
}
