package render

import (
	"fmt"
	"image"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
)

const (
	// MaxDevicePixelRatio is the largest ratio a surface accepts
	MaxDevicePixelRatio = 4

	maxSurfaceSide   = 1 << 15
	maxSurfacePixels = 1 << 26
)

// NormalizeDevicePixelRatio maps dpr into (0, MaxDevicePixelRatio].
// Non-positive, NaN and infinite ratios become 1.
func NormalizeDevicePixelRatio(dpr float64) float64 {
	switch {
	case math.IsNaN(dpr), math.IsInf(dpr, 0), dpr <= 0:
		return 1
	case dpr > MaxDevicePixelRatio:
		return MaxDevicePixelRatio
	}
	return dpr
}

// Surface is a drawing target. Its pixel buffer is the CSS size times the
// device pixel ratio.
type Surface struct {
	id string

	mu     sync.RWMutex
	dpr    float64
	css    PageSize
	buf    *image.RGBA
	stale  bool
	frames int
	job    Job
}

// NewSurface creates an empty surface. dpr goes through
// NormalizeDevicePixelRatio.
func NewSurface(id string, dpr float64) *Surface {
	return &Surface{id: id, dpr: NormalizeDevicePixelRatio(dpr), stale: true}
}

// ID returns the surface identifier
func (s *Surface) ID() string { return s.id }

// DevicePixelRatio returns the current device pixel ratio
func (s *Surface) DevicePixelRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dpr
}

// Configure sizes the pixel buffer for a CSS size and clears it
func (s *Surface) Configure(css PageSize) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bounds, err := devicePixels(css, s.dpr)
	if err != nil {
		return err
	}
	s.css = css
	s.buf = image.NewRGBA(bounds)
	return nil
}

// Resize changes the device pixel ratio. It reports whether the ratio
// changed, in which case the surface is stale and must be re-rendered.
func (s *Surface) Resize(dpr float64) bool {
	dpr = NormalizeDevicePixelRatio(dpr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if dpr == s.dpr {
		return false
	}
	s.dpr = dpr
	s.stale = true
	return true
}

// Stale reports whether the surface needs a render
func (s *Surface) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// CSSSize returns the layout size of the last draw
func (s *Surface) CSSSize() PageSize {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.css
}

// Frames returns how many renders have been committed
func (s *Surface) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// LastJob returns the job that produced the current pixels
func (s *Surface) LastJob() Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.job
}

// Image returns a copy of the pixel buffer, or nil before the first draw
func (s *Surface) Image() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buf == nil {
		return nil
	}
	cp := image.NewRGBA(s.buf.Rect)
	copy(cp.Pix, s.buf.Pix)
	return cp
}

// Thumbnail returns the pixels scaled so the longer side is at most
// maxSide, or nil before the first draw
func (s *Surface) Thumbnail(maxSide int) image.Image {
	src := s.Image()
	if src == nil {
		return nil
	}
	if maxSide <= 0 {
		return src
	}
	b := src.Bounds()
	longest := max(b.Dx(), b.Dy())
	if longest <= maxSide {
		return src
	}
	ratio := float64(maxSide) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(b.Dx())*ratio)), max(1, int(float64(b.Dy())*ratio))))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// commit swaps in a finished frame
func (s *Surface) commit(buf *image.RGBA, css PageSize, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = buf
	s.css = css
	s.job = job
	s.stale = false
	s.frames++
}

// devicePixels returns the buffer bounds for css at dpr, or
// ErrSurfaceTooLarge when they exceed the frame limits
func devicePixels(css PageSize, dpr float64) (image.Rectangle, error) {
	w := math.Floor(float64(css.Width) * dpr)
	h := math.Floor(float64(css.Height) * dpr)
	if !fits(w, h) {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d at ratio %g", ErrSurfaceTooLarge, css.Width, css.Height, dpr)
	}
	return image.Rect(0, 0, int(w), int(h)), nil
}

// fits reports whether a w x h frame is within the limits. NaN fails.
func fits(w, h float64) bool {
	return w >= 0 && h >= 0 &&
		w <= maxSurfaceSide && h <= maxSurfaceSide &&
		w*h <= maxSurfacePixels
}
