// Package pdfcpu decodes PDFs for the render engine with pdfcpu.
//
// pdfcpu reads the document structure: page count, page boxes and the
// /Rotate entry, so page geometry and rotation are exact. Pages are
// rasterized as their page box on a white ground with a hairline edge;
// painting content streams is left to a richer Page implementation.
package pdfcpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/GriffinCanCode/docviewer/internal/render"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	xdraw "golang.org/x/image/draw"
)

func init() {
	// Config dir usage is not safe across goroutines
	api.DisableConfigDir()
}

var (
	errClosed    = errors.New("document closed")
	errMalformed = errors.New("malformed pdf")
)

var edge = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}

// Decoder opens PDF bytes with pdfcpu
type Decoder struct{}

// New creates a pdfcpu decoder
func New() *Decoder {
	return &Decoder{}
}

// Open parses data and returns a document handle. pdfcpu panics on some
// malformed input; those panics come back as errors.
func (d *Decoder) Open(ctx context.Context, data []byte) (doc render.Document, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", errMalformed, r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	return &document{ctx: pctx, pages: make(map[int]*page)}, nil
}

type document struct {
	mu    sync.Mutex
	ctx   *model.Context
	pages map[int]*page
}

func (d *document) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

func (d *document) Page(n int) (p render.Page, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: page %d: %v", errMalformed, n, r)
		}
	}()

	if d.ctx == nil {
		return nil, errClosed
	}
	if pg, ok := d.pages[n]; ok {
		return pg, nil
	}
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("%w: %d", render.ErrPageRange, n)
	}

	dict, _, inherited, err := d.ctx.PageDict(n, false)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	if dict == nil || inherited == nil {
		return nil, fmt.Errorf("page %d: missing page dictionary", n)
	}

	box := inherited.CropBox
	if box == nil {
		box = inherited.MediaBox
	}
	if box == nil {
		return nil, fmt.Errorf("page %d: missing media box", n)
	}

	pg := &page{width: box.Width(), height: box.Height(), rotate: inherited.Rotate}
	d.pages[n] = pg
	return pg, nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = nil
	d.pages = nil
	return nil
}

type page struct {
	width  float64
	height float64
	rotate int
}

// Size applies the page's own /Rotate on top of the requested rotation
func (p *page) Size(rotation int) (float64, float64) {
	switch render.NormalizeRotation(p.rotate + rotation) {
	case 90, 270:
		return p.height, p.width
	default:
		return p.width, p.height
	}
}

func (p *page) Render(ctx context.Context, dst draw.Image, _ render.Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := dst.Bounds()
	xdraw.Draw(dst, b, image.White, image.Point{}, xdraw.Src)
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil
	}

	line := image.NewUniform(edge)
	xdraw.Draw(dst, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+1), line, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, image.Rect(b.Min.X, b.Max.Y-1, b.Max.X, b.Max.Y), line, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, image.Rect(b.Min.X, b.Min.Y, b.Min.X+1, b.Max.Y), line, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, image.Rect(b.Max.X-1, b.Min.Y, b.Max.X, b.Max.Y), line, image.Point{}, xdraw.Src)
	return ctx.Err()
}
