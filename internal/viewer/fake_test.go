package viewer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/liveness"
	"github.com/GriffinCanCode/docviewer/internal/render"
	"github.com/GriffinCanCode/docviewer/internal/resolver"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu       sync.Mutex
	released []string
}

func (r *fakeResolver) Describe(_ context.Context, raw, _ string) resolver.SourceDescriptor {
	return resolver.SourceDescriptor{OriginalURL: raw, ResolvedURL: raw, Route: resolver.RouteDirect}
}

func (r *fakeResolver) Release(d resolver.SourceDescriptor) {
	if d.ResolvedURL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, d.ResolvedURL)
}

func (r *fakeResolver) Released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// fakeClassifier maps URLs by suffix: .pdf, .png, .svg and .gif are
// known, everything else is unknown
type fakeClassifier struct {
	calls atomic.Int32
}

func (c *fakeClassifier) Classify(_ context.Context, url string, _ classifier.Options) classifier.Kind {
	c.calls.Add(1)
	return classifier.FromExtension(classifier.Extension(url))
}

// fakeSource serves document bytes by URL. A PDF body is "pages:N".
// Entries in gates block until closed; errs fail the first n fetches.
type fakeSource struct {
	mu     sync.Mutex
	docs   map[string][]byte
	gates  map[string]chan struct{}
	errs   map[string]error
	stalls map[string]int
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs:   make(map[string][]byte),
		gates:  make(map[string]chan struct{}),
		errs:   make(map[string]error),
		stalls: make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (s *fakeSource) addPDF(url string, pages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[url] = []byte("pages:" + strconv.Itoa(pages))
}

func (s *fakeSource) add(url string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[url] = data
}

func (s *fakeSource) gate(url string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[url] = ch
	return ch
}

// stall makes the first n fetches of url hang until cancelled
func (s *fakeSource) stall(url string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalls[url] = n
}

func (s *fakeSource) fail(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[url] = err
}

func (s *fakeSource) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	s.calls[url]++
	gate := s.gates[url]
	stall := s.stalls[url] > 0
	if stall {
		s.stalls[url]--
	}
	err := s.errs[url]
	data, ok := s.docs[url]
	s.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

// fakeDecoder opens "pages:N" bodies. Pages registered with hold block
// in Render until released or cancelled.
type fakeDecoder struct {
	mu    sync.Mutex
	gates map[int]chan struct{}
}

func (d *fakeDecoder) hold(page int) (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gates == nil {
		d.gates = make(map[int]chan struct{})
	}
	gate := make(chan struct{})
	d.gates[page] = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (d *fakeDecoder) gate(page int) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gates[page]
}

func (d *fakeDecoder) Open(_ context.Context, data []byte) (render.Document, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(string(data), "pages:"))
	if err != nil {
		return nil, errors.New("not a pdf")
	}
	return &fakeDoc{pages: n, dec: d}, nil
}

type fakeDoc struct {
	pages  int
	dec    *fakeDecoder
	closed atomic.Bool
}

func (d *fakeDoc) NumPages() int { return d.pages }

func (d *fakeDoc) Page(n int) (render.Page, error) {
	if d.closed.Load() {
		return nil, errors.New("closed")
	}
	return fakePage{gate: d.dec.gate(n)}, nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

// fakePage is 100x200 page units
type fakePage struct {
	gate chan struct{}
}

func (fakePage) Size(rotation int) (float64, float64) {
	if render.NormalizeRotation(rotation)%180 != 0 {
		return 200, 100
	}
	return 100, 200
}

func (p fakePage) Render(ctx context.Context, dst draw.Image, _ render.Viewport) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return ctx.Err()
}

// manualClock drives the liveness monitor by hand
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *manualTicker
}

type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(time.Duration) liveness.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &manualTicker{c: make(chan time.Time)}
	return c.ticker
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick delivers one tick to the running monitor loop
func (c *manualClock) Tick(t *testing.T) {
	c.mu.Lock()
	ticker := c.ticker
	now := c.now
	c.mu.Unlock()
	require.NotNil(t, ticker)
	select {
	case ticker.c <- now:
	case <-time.After(time.Second):
		t.Fatal("monitor loop did not take the tick")
	}
}

type harness struct {
	source     *fakeSource
	resolver   *fakeResolver
	classifier *fakeClassifier
	decoder    *fakeDecoder
	clock      *manualClock
	deps       Deps
}

func newHarness(openTimeout time.Duration) *harness {
	h := &harness{
		source:     newFakeSource(),
		resolver:   &fakeResolver{},
		classifier: &fakeClassifier{},
		decoder:    &fakeDecoder{},
		clock:      newManualClock(),
	}
	engine := render.NewEngine(h.source, h.decoder, render.Config{OpenTimeout: openTimeout}, logging.Nop(), nil)
	h.deps = Deps{
		Resolver:   h.resolver,
		Classifier: h.classifier,
		Engine:     engine,
		Fetcher:    h.source,
		Clock:      h.clock,
		Logger:     logging.Nop(),
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}
