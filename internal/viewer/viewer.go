package viewer

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/liveness"
	"github.com/GriffinCanCode/docviewer/internal/render"
	"github.com/GriffinCanCode/docviewer/internal/resolver"
	"github.com/GriffinCanCode/docviewer/internal/shared/id"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Resolver turns a raw URL into a loadable source
type Resolver interface {
	Describe(ctx context.Context, raw, customProxy string) resolver.SourceDescriptor
	Release(d resolver.SourceDescriptor)
}

// Classifier decides the document kind of a URL
type Classifier interface {
	Classify(ctx context.Context, url string, opts classifier.Options) classifier.Kind
}

// Opener opens PDF sources into render sessions
type Opener interface {
	Open(ctx context.Context, url string, opts ...render.OpenOption) (*render.Session, error)
}

// Fetcher downloads image bytes
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Deps are the pipeline components a viewer drives
type Deps struct {
	Resolver   Resolver
	Classifier Classifier
	Engine     Opener
	Fetcher    Fetcher
	Clock      liveness.Clock
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
}

const (
	maxAutoRetries = 1
	mainSurface    = "main"
)

// Viewer shows one source at a time
type Viewer struct {
	id      id.ViewerID
	cfg     Config
	deps    Deps
	clock   liveness.Clock
	log     *zap.Logger
	metrics *monitoring.Metrics
	monitor *liveness.Monitor
	created time.Time

	mu       sync.Mutex
	seq      uint64
	req      LoadRequest
	desc     resolver.SourceDescriptor
	session  *render.Session
	dpr      float64
	main     *render.Surface
	pages    []*render.Surface
	inflight map[string]*render.Operation
	state    State
	retries  int
	retry    *time.Timer
	pass     *render.Session
	passStop context.CancelFunc
	dirty    bool
	closed   bool

	subMu      sync.Mutex
	subs       map[int]chan Event
	nextSub    int
	subsClosed bool
}

// New creates an empty viewer
func New(deps Deps, cfg Config) *Viewer {
	cfg = cfg.normalize()
	clock := deps.Clock
	if clock == nil {
		clock = liveness.SystemClock
	}

	vid := id.NewViewerID()
	v := &Viewer{
		id:       vid,
		cfg:      cfg,
		deps:     deps,
		clock:    clock,
		log:      deps.Logger.Component("viewer").With(zap.String("viewer", vid.String())),
		metrics:  deps.Metrics,
		created:  clock.Now(),
		dpr:      cfg.DevicePixelRatio,
		inflight: make(map[string]*render.Operation),
		subs:     make(map[int]chan Event),
	}
	v.monitor = liveness.New(v.restart, clock, deps.Logger, deps.Metrics)
	v.state = v.initialState(LoadRequest{})
	return v
}

// ID returns the viewer ID
func (v *Viewer) ID() id.ViewerID { return v.id }

// Created returns when the viewer was created
func (v *Viewer) Created() time.Time { return v.created }

// Config returns the effective configuration
func (v *Viewer) Config() Config { return v.cfg }

// Liveness returns the stall monitor guarding PDF sessions
func (v *Viewer) Liveness() *liveness.Monitor { return v.monitor }

// State returns a snapshot of the viewer state
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Request returns the request of the current source
func (v *Viewer) Request() LoadRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.req
}

// Descriptor returns the descriptor of the current source
func (v *Viewer) Descriptor() resolver.SourceDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.desc
}

// Session returns the live PDF session, if any
func (v *Viewer) Session() *render.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

var namePolicy = bluemonday.StrictPolicy()

// displayName reduces a title or file name to plain text
func displayName(s string) string {
	return strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(s)))
}

func (v *Viewer) initialState(req LoadRequest) State {
	name := displayName(req.Title)
	if name == "" && req.URL != "" {
		name = displayName(classifier.FileName(req.URL))
	}
	return State{
		URL:      req.URL,
		Kind:     classifier.Unknown,
		FileName: name,
		Page:     1,
		Zoom:     v.cfg.InitialZoom,
		ViewMode: v.cfg.ViewMode,
	}
}

// Load shows a new source, tearing down the previous one first. The
// returned error is also recorded on the state. A load that is overtaken
// by a newer one returns ErrSuperseded and leaves no trace.
func (v *Viewer) Load(ctx context.Context, req LoadRequest) error {
	return v.begin(ctx, req, false)
}

// Retry reloads the current source, keeping page, zoom, rotation and view
// mode
func (v *Viewer) Retry(ctx context.Context) error {
	return v.begin(ctx, v.Request(), true)
}

func (v *Viewer) begin(ctx context.Context, req LoadRequest, keepView bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.retries = 0
	v.mu.Unlock()
	return v.load(ctx, req, keepView)
}

func (v *Viewer) load(ctx context.Context, req LoadRequest, keepView bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.seq++
	seq := v.seq
	prev := v.detachLocked()
	v.req = req
	next := v.initialState(req)
	if keepView {
		next.Page = v.state.Page
		next.Zoom = v.state.Zoom
		next.Rotation = v.state.Rotation
		next.ViewMode = v.state.ViewMode
	}
	v.state = next
	v.state.Loading = true
	v.mu.Unlock()

	v.teardown(prev)
	v.publish(EventLoading)

	if strings.TrimSpace(req.URL) == "" {
		return v.fail(seq, ErrNoSource)
	}
	if !resolver.IsValidURL(req.URL) {
		return v.fail(seq, ErrInvalidURL)
	}

	kind := req.Kind
	if !kind.Known() {
		kind = v.deps.Classifier.Classify(ctx, req.URL, classifier.Options{ProxyHint: req.Proxy})
	}
	if !v.update(seq, func(s *State) { s.Kind = kind }) {
		return ErrSuperseded
	}
	if !kind.Known() {
		return v.fail(seq, fmt.Errorf("%w: %s", ErrUnsupported, classifier.FileName(req.URL)))
	}

	desc := v.deps.Resolver.Describe(ctx, req.URL, req.Proxy)
	if !v.update(seq, func(s *State) { s.ResolvedURL = desc.ResolvedURL }) {
		v.deps.Resolver.Release(desc)
		return ErrSuperseded
	}

	v.log.Debug("loading document",
		zap.String("url", req.URL),
		zap.String("resolved", desc.ResolvedURL),
		zap.String("route", string(desc.Route)),
		zap.String("kind", kind.String()))

	if kind == classifier.Pdf {
		return v.openPDF(ctx, seq, desc)
	}
	return v.openImage(ctx, seq, desc)
}

func (v *Viewer) openPDF(ctx context.Context, seq uint64, desc resolver.SourceDescriptor) error {
	sess, err := v.deps.Engine.Open(ctx, desc.ResolvedURL,
		render.WithActivity(v.monitor.RecordActivity),
		render.WithStateHook(func(st render.State) { v.sessionChanged(seq, st) }),
	)
	if err != nil {
		v.deps.Resolver.Release(desc)
		return v.fail(seq, err)
	}
	st := sess.State()

	v.mu.Lock()
	if v.seq != seq || v.closed {
		v.mu.Unlock()
		sess.Close()
		v.deps.Resolver.Release(desc)
		return ErrSuperseded
	}
	v.session = sess
	v.desc = desc
	v.main = render.NewSurface(mainSurface, v.dpr)
	v.state.Loading = false
	v.state.Error = nil
	v.state.TotalPages = sess.TotalPages()
	v.state.Page = clamp(v.state.Page, 1, v.state.TotalPages)
	v.state.SessionState = st.String()
	v.monitor.Start(v.cfg.LivenessThreshold, v.cfg.LivenessInterval)
	v.mu.Unlock()

	v.publish(EventLoaded)
	v.rerender()
	return nil
}

func (v *Viewer) openImage(ctx context.Context, seq uint64, desc resolver.SourceDescriptor) error {
	data, err := v.deps.Fetcher.Fetch(ctx, desc.ResolvedURL)
	if err != nil {
		v.deps.Resolver.Release(desc)
		return v.fail(seq, fmt.Errorf("%w: %w", ErrImageLoad, err))
	}

	info := ImageInfo{Type: imageType(desc.OriginalURL)}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	switch {
	case err == nil:
		info.Width, info.Height, info.Format = cfg.Width, cfg.Height, format
	case info.Type == classifier.Vector:
		info.Format = "svg"
	default:
		v.deps.Resolver.Release(desc)
		return v.fail(seq, fmt.Errorf("%w: %w", ErrImageLoad, err))
	}

	v.mu.Lock()
	if v.seq != seq || v.closed {
		v.mu.Unlock()
		v.deps.Resolver.Release(desc)
		return ErrSuperseded
	}
	v.desc = desc
	v.state.Loading = false
	v.state.Error = nil
	v.state.Image = &info
	v.mu.Unlock()

	v.publish(EventLoaded)
	return nil
}

func imageType(rawURL string) classifier.ImageType {
	if blob.IsDataURL(rawURL) {
		switch blob.MediaType(rawURL) {
		case "image/svg+xml":
			return classifier.Vector
		case "image/gif":
			return classifier.Animated
		default:
			return classifier.Raster
		}
	}
	return classifier.ImageTypeOf(rawURL)
}

// fail records err on the state and schedules the automatic retry when
// the failure qualifies for it
func (v *Viewer) fail(seq uint64, err error) error {
	info := NewErrorInfo(err, v.clock.Now())

	v.mu.Lock()
	if v.seq != seq || v.closed {
		v.mu.Unlock()
		return ErrSuperseded
	}
	v.state.Loading = false
	v.state.Error = &info
	url := v.req.URL
	retry := autoRetryable(err) && v.retries < maxAutoRetries
	if retry {
		v.retries++
		req := v.req
		v.retry = time.AfterFunc(v.cfg.RetryDelay, func() { v.autoRetry(seq, req) })
	}
	v.mu.Unlock()

	v.metrics.RecordViewerError(info.Code)
	v.log.Warn("document load failed",
		zap.String("url", url),
		zap.String("code", info.Code),
		zap.Bool("auto_retry", retry),
		zap.Error(err))
	v.publish(EventError)
	return err
}

func (v *Viewer) autoRetry(seq uint64, req LoadRequest) {
	if !v.current(seq) {
		return
	}
	v.metrics.RecordRestart("auto_retry")
	v.log.Info("retrying document load", zap.String("url", req.URL))
	_ = v.load(context.Background(), req, true)
}

// restart reloads a PDF whose session stopped making progress. The reader
// stays on the same page, zoom and rotation.
func (v *Viewer) restart() {
	v.mu.Lock()
	if v.closed || v.session == nil {
		v.mu.Unlock()
		return
	}
	req := v.req
	v.mu.Unlock()

	v.log.Warn("reloading stalled document", zap.String("url", req.URL), zap.Error(ErrStalled))
	v.publish(EventStalled)
	_ = v.begin(context.Background(), req, true)
}

func (v *Viewer) sessionChanged(seq uint64, st render.State) {
	if !v.update(seq, func(s *State) { s.SessionState = st.String() }) {
		return
	}
	v.publish(EventSession)
}

// current reports whether seq is still the active load
func (v *Viewer) current(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seq == seq && !v.closed
}

// update applies fn to the state if seq is still the active load
func (v *Viewer) update(seq uint64, fn func(*State)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seq != seq || v.closed {
		return false
	}
	fn(&v.state)
	return true
}

type detached struct {
	session *render.Session
	desc    resolver.SourceDescriptor
	stop    context.CancelFunc
	retry   *time.Timer
}

// detachLocked unhooks the current source so no new work can target it.
// Callers hold v.mu and must pass the result to teardown after unlocking.
func (v *Viewer) detachLocked() detached {
	d := detached{session: v.session, desc: v.desc, stop: v.passStop, retry: v.retry}
	if d.session != nil {
		v.state.SessionState = "closing"
	}
	v.session = nil
	v.desc = resolver.SourceDescriptor{}
	v.main = nil
	v.pages = nil
	v.inflight = make(map[string]*render.Operation)
	v.pass = nil
	v.passStop = nil
	v.dirty = false
	v.retry = nil
	v.monitor.Stop()
	return d
}

func (v *Viewer) teardown(d detached) {
	if d.retry != nil {
		d.retry.Stop()
	}
	if d.stop != nil {
		d.stop()
	}
	if d.session != nil {
		d.session.Close()
	}
	v.deps.Resolver.Release(d.desc)
}

// Close releases the current source and ends every subscription. The
// viewer cannot be reused.
func (v *Viewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.seq++
	prev := v.detachLocked()
	v.state.Loading = false
	v.state.SessionState = ""
	v.closed = true
	v.mu.Unlock()

	v.teardown(prev)
	v.publish(EventClosed)

	v.subMu.Lock()
	defer v.subMu.Unlock()
	for k, ch := range v.subs {
		close(ch)
		delete(v.subs, k)
	}
	v.subsClosed = true
}

// Closed reports whether Close has been called
func (v *Viewer) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Subscribe returns a channel of viewer events and a function ending the
// subscription. Events are dropped for subscribers that fall behind.
func (v *Viewer) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	v.subMu.Lock()
	defer v.subMu.Unlock()
	if v.subsClosed {
		close(ch)
		return ch, func() {}
	}
	key := v.nextSub
	v.nextSub++
	v.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.subMu.Lock()
			defer v.subMu.Unlock()
			if _, ok := v.subs[key]; ok {
				delete(v.subs, key)
				close(ch)
			}
		})
	}
}

func (v *Viewer) publish(t EventType) {
	ev := Event{Type: t, ViewerID: v.id.String(), State: v.State(), At: v.clock.Now()}

	v.subMu.Lock()
	defer v.subMu.Unlock()
	for _, ch := range v.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
