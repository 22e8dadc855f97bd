package viewer

import (
	"errors"
	"strings"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/config"
	"github.com/GriffinCanCode/docviewer/internal/render"
)

var (
	ErrNoSource    = errors.New("no document URL provided")
	ErrInvalidURL  = errors.New("invalid document URL provided")
	ErrUnsupported = errors.New("unsupported document type")
	ErrImageLoad   = errors.New("failed to load image")
	ErrStalled     = errors.New("viewer stalled")
	ErrSuperseded  = errors.New("load superseded by a newer source")
	ErrClosed      = errors.New("viewer closed")
	ErrNoDocument  = errors.New("no document loaded")
	ErrNotFound    = errors.New("viewer not found")
)

// ViewMode selects how PDF pages are laid out
type ViewMode string

const (
	ModeSingle     ViewMode = "single"
	ModeContinuous ViewMode = "continuous"
)

// ParseViewMode maps a string to a ViewMode, defaulting to single
func ParseViewMode(s string) ViewMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeContinuous)) {
		return ModeContinuous
	}
	return ModeSingle
}

// Config holds viewer defaults
type Config struct {
	InitialZoom       int
	MinZoom           int
	MaxZoom           int
	ZoomStep          int
	ViewMode          ViewMode
	RetryDelay        time.Duration
	DevicePixelRatio  float64
	LivenessThreshold time.Duration
	LivenessInterval  time.Duration
}

// DefaultConfig returns the stock viewer settings
func DefaultConfig() Config {
	return Config{
		InitialZoom:       100,
		MinZoom:           50,
		MaxZoom:           300,
		ZoomStep:          25,
		ViewMode:          ModeSingle,
		RetryDelay:        2 * time.Second,
		DevicePixelRatio:  1,
		LivenessThreshold: 60 * time.Second,
		LivenessInterval:  10 * time.Second,
	}
}

// ConfigFrom builds a viewer Config from the application configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		InitialZoom:       cfg.Viewer.InitialZoom,
		MinZoom:           cfg.Viewer.MinZoom,
		MaxZoom:           cfg.Viewer.MaxZoom,
		ZoomStep:          cfg.Viewer.ZoomStep,
		ViewMode:          ParseViewMode(cfg.Viewer.ViewMode),
		RetryDelay:        cfg.Viewer.RetryDelay,
		DevicePixelRatio:  cfg.Render.DevicePixelRatio,
		LivenessThreshold: cfg.Liveness.Threshold,
		LivenessInterval:  cfg.Liveness.CheckInterval,
	}.normalize()
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MinZoom <= 0 {
		c.MinZoom = def.MinZoom
	}
	if c.MaxZoom < c.MinZoom {
		c.MaxZoom = max(def.MaxZoom, c.MinZoom)
	}
	if c.ZoomStep <= 0 {
		c.ZoomStep = def.ZoomStep
	}
	if c.InitialZoom <= 0 {
		c.InitialZoom = def.InitialZoom
	}
	c.InitialZoom = clamp(c.InitialZoom, c.MinZoom, c.MaxZoom)
	if c.ViewMode != ModeContinuous {
		c.ViewMode = ModeSingle
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	c.DevicePixelRatio = render.NormalizeDevicePixelRatio(c.DevicePixelRatio)
	return c
}

// Option overrides a Config for one viewer
type Option func(*Config)

// WithViewMode sets the initial view mode
func WithViewMode(m ViewMode) Option {
	return func(c *Config) { c.ViewMode = m }
}

// WithInitialZoom sets the zoom applied on every load
func WithInitialZoom(zoom int) Option {
	return func(c *Config) { c.InitialZoom = zoom }
}

// WithDevicePixelRatio sets the starting device pixel ratio, capped at
// render.MaxDevicePixelRatio
func WithDevicePixelRatio(dpr float64) Option {
	return func(c *Config) { c.DevicePixelRatio = render.NormalizeDevicePixelRatio(dpr) }
}

// LoadRequest names a source to show. Kind overrides classification when
// it is pdf or image. Title replaces the file name derived from the URL.
type LoadRequest struct {
	URL   string          `json:"url"`
	Proxy string          `json:"proxy,omitempty"`
	Kind  classifier.Kind `json:"kind,omitempty"`
	Title string          `json:"title,omitempty"`
}

// ImageInfo describes a loaded image
type ImageInfo struct {
	Width  int                  `json:"width"`
	Height int                  `json:"height"`
	Type   classifier.ImageType `json:"type"`
	Format string               `json:"format,omitempty"`
}

// State is a snapshot of what the viewer shows
type State struct {
	URL          string          `json:"url"`
	ResolvedURL  string          `json:"resolved_url,omitempty"`
	Kind         classifier.Kind `json:"kind"`
	FileName     string          `json:"file_name"`
	Page         int             `json:"page"`
	TotalPages   int             `json:"total_pages"`
	Zoom         int             `json:"zoom"`
	Rotation     int             `json:"rotation"`
	ViewMode     ViewMode        `json:"view_mode"`
	Loading      bool            `json:"loading"`
	Error        *ErrorInfo      `json:"error,omitempty"`
	Image        *ImageInfo      `json:"image,omitempty"`
	SessionState string          `json:"session_state,omitempty"`
}

// EventType names a viewer event
type EventType string

const (
	EventLoading EventType = "loading"
	EventLoaded  EventType = "loaded"
	EventError   EventType = "error"
	EventChanged EventType = "changed"
	EventSession EventType = "session"
	EventStalled EventType = "stalled"
	EventClosed  EventType = "closed"
)

// Event is published on every state change
type Event struct {
	Type     EventType `json:"type"`
	ViewerID string    `json:"viewer_id"`
	State    State     `json:"state"`
	At       time.Time `json:"at"`
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
