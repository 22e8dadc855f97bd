package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "http://localhost:8000", cfg.Server.Origin)

	// Resolver config
	assert.Equal(t, DefaultProxies, cfg.Resolver.Proxies)
	assert.Equal(t, 3*time.Second, cfg.Resolver.DirectTimeout)
	assert.Equal(t, 8*time.Second, cfg.Resolver.ProxyTimeout)

	// Render and liveness config
	assert.Equal(t, 30*time.Second, cfg.Render.OpenTimeout)
	assert.Equal(t, 60*time.Second, cfg.Liveness.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Liveness.CheckInterval)

	// Viewer config
	assert.Equal(t, 50, cfg.Viewer.MinZoom)
	assert.Equal(t, 300, cfg.Viewer.MaxZoom)
	assert.Equal(t, "single", cfg.Viewer.ViewMode)
}

func TestDefaultProxiesAreCopied(t *testing.T) {
	cfg := Default()
	cfg.Resolver.Proxies[0] = "https://mutated/?"

	assert.Equal(t, "https://api.allorigins.win/raw?url=", DefaultProxies[0])
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Len(t, cfg.Resolver.Proxies, len(DefaultProxies))
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"APP_ORIGIN":                "https://viewer.example.com",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"RESOLVER_PROXIES":          "https://a.example/?u=,https://b.example/fetch/",
		"RESOLVER_PROXY_TIMEOUT":    "2s",
		"RENDER_OPEN_TIMEOUT":       "45s",
		"LIVENESS_THRESHOLD":        "90s",
		"VIEWER_MAX_ZOOM":           "400",
		"RATE_LIMIT_ENABLED":        "false",
		"CLASSIFIER_HEADER_TIMEOUT": "1500ms",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "https://viewer.example.com", cfg.Server.Origin)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, []string{"https://a.example/?u=", "https://b.example/fetch/"}, cfg.Resolver.Proxies)
	assert.Equal(t, 2*time.Second, cfg.Resolver.ProxyTimeout)
	assert.Equal(t, 45*time.Second, cfg.Render.OpenTimeout)
	assert.Equal(t, 90*time.Second, cfg.Liveness.Threshold)
	assert.Equal(t, 400, cfg.Viewer.MaxZoom)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.Classifier.HeaderTimeout)
}

func TestLoadProxyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.yaml")
	content := "proxies:\n  - https://relay.internal/fetch?url=\n  - https://corsproxy.io/?\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("RESOLVER_PROXY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://relay.internal/fetch?url=", "https://corsproxy.io/?"}, cfg.Resolver.Proxies)
}

func TestLoadProxyFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.toml")
	content := "proxies = [\"https://relay.internal/fetch?url=\", \"https://corsproxy.io/?\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	proxies, err := LoadProxyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://relay.internal/fetch?url=", "https://corsproxy.io/?"}, proxies)
}

func TestLoadProxyFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		create  bool
		ext     string
	}{
		{name: "missing file", create: false},
		{name: "empty list", content: "proxies: []\n", create: true},
		{name: "malformed yaml", content: "proxies: [unterminated\n", create: true},
		{name: "malformed toml", content: "proxies = [\n", create: true, ext: ".toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := tt.ext
			if ext == "" {
				ext = ".yaml"
			}
			path := filepath.Join(t.TempDir(), "proxies"+ext)
			if tt.create {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}

			_, err := LoadProxyFile(path)
			assert.Error(t, err)
		})
	}
}

func TestViewerConfig(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		delay    string
		wantMode string
		wantWait time.Duration
	}{
		{
			name:     "default values",
			wantMode: "single",
			wantWait: 2 * time.Second,
		},
		{
			name:     "continuous mode",
			mode:     "continuous",
			wantMode: "continuous",
			wantWait: 2 * time.Second,
		},
		{
			name:     "custom retry delay",
			delay:    "500ms",
			wantMode: "single",
			wantWait: 500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mode != "" {
				t.Setenv("VIEWER_MODE", tt.mode)
			}
			if tt.delay != "" {
				t.Setenv("VIEWER_RETRY_DELAY", tt.delay)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantMode, cfg.Viewer.ViewMode)
			assert.Equal(t, tt.wantWait, cfg.Viewer.RetryDelay)
		})
	}
}
