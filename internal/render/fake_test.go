package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
)

type fakeLoader struct {
	err error
}

func (l fakeLoader) Fetch(ctx context.Context, _ string) ([]byte, error) {
	if l.err != nil {
		return nil, l.err
	}
	return []byte("%PDF-fake"), ctx.Err()
}

type fakeDecoder struct {
	doc   *fakeDoc
	err   error
	block chan struct{}
	panic string
}

func (d *fakeDecoder) Open(_ context.Context, _ []byte) (Document, error) {
	if d.block != nil {
		<-d.block
	}
	if d.panic != "" {
		panic(d.panic)
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.doc, nil
}

type fakeDoc struct {
	pages    []*fakePage
	closed   atomic.Bool
	closeErr error

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeDoc(n int) *fakeDoc {
	d := &fakeDoc{}
	for i := 0; i < n; i++ {
		d.pages = append(d.pages, &fakePage{doc: d, width: 100, height: 50})
	}
	return d
}

func (d *fakeDoc) NumPages() int { return len(d.pages) }

func (d *fakeDoc) Page(n int) (Page, error) {
	if d.closed.Load() {
		return nil, errors.New("closed")
	}
	return d.pages[n-1], nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return d.closeErr
}

// fakePage fills dst with a colour derived from the viewport scale. A
// page with a gate waits on it; with ignoreCancel it also ignores ctx.
// A page with panicMsg panics instead of drawing.
type fakePage struct {
	doc           *fakeDoc
	width, height float64
	err           error
	panicMsg      string

	mu           sync.Mutex
	gate         chan struct{}
	ignoreCancel bool
	started      chan struct{}
	viewports    []Viewport
}

func (p *fakePage) Size(rotation int) (float64, float64) {
	if NormalizeRotation(rotation)%180 == 90 {
		return p.height, p.width
	}
	return p.width, p.height
}

func (p *fakePage) Render(ctx context.Context, dst draw.Image, vp Viewport) error {
	n := p.doc.active.Add(1)
	defer p.doc.active.Add(-1)
	for {
		m := p.doc.maxActive.Load()
		if n <= m || p.doc.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	p.mu.Lock()
	p.viewports = append(p.viewports, vp)
	gate, started, ignore := p.gate, p.started, p.ignoreCancel
	p.gate, p.started = nil, nil
	p.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if p.err != nil {
		return p.err
	}
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Gray{Y: uint8(vp.Scale * 10)}), image.Point{}, draw.Src)
	return nil
}

// hold makes the next Render block until the returned release is called
func (p *fakePage) hold(ignoreCancel bool) (started <-chan struct{}, release func()) {
	gate := make(chan struct{})
	s := make(chan struct{})
	p.mu.Lock()
	p.gate, p.started, p.ignoreCancel = gate, s, ignoreCancel
	p.mu.Unlock()
	var once sync.Once
	return s, func() { once.Do(func() { close(gate) }) }
}
