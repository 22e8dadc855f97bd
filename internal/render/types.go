package render

import (
	"context"
	"errors"
	"image/draw"
)

var (
	ErrLoadTimeout      = errors.New("document load timeout")
	ErrLoadFailed       = errors.New("document load failed")
	ErrRenderFailed     = errors.New("page render failed")
	ErrSessionClosed    = errors.New("session closed")
	ErrCancelled        = errors.New("render cancelled")
	ErrPageRange        = errors.New("page out of range")
	ErrRenderInProgress = errors.New("render pass already in progress")
	ErrSurfaceTooLarge  = errors.New("surface too large")
)

// State is the lifecycle state of a Session
type State int

const (
	StateOpening State = iota
	StateReady
	StateRendering
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateRendering:
		return "rendering"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Job describes one page render. Scale is a percentage (100 = natural
// size); Rotation is in degrees, a signed multiple of 90.
type Job struct {
	Page     int     `json:"page"`
	Scale    float64 `json:"scale"`
	Rotation int     `json:"rotation"`
	Surface  string  `json:"surface"`
}

// PageSize is the CSS pixel size of a rendered page
type PageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewport tells a Page how to map page units onto a device buffer.
// Scale already includes the device pixel ratio.
type Viewport struct {
	Scale            float64
	Rotation         int
	DevicePixelRatio float64
}

// Loader fetches the bytes of a source URL
type Loader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Decoder opens document bytes
type Decoder interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is a decoded document handle
type Document interface {
	NumPages() int
	// Page returns page n, 1-based
	Page(n int) (Page, error)
	Close() error
}

// Page is one decodable page
type Page interface {
	// Size returns the page size in page units after applying rotation
	Size(rotation int) (width, height float64)
	// Render draws the page into dst, which is sized by the caller
	Render(ctx context.Context, dst draw.Image, vp Viewport) error
}

// NormalizeRotation maps any multiple of 90 into [0, 360)
func NormalizeRotation(deg int) int {
	r := deg % 360
	if r < 0 {
		r += 360
	}
	return r
}
