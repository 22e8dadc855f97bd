package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/shared/id"
	"go.uber.org/zap"
)

type opKey struct {
	page    int
	surface string
}

// Session owns one decoded document and its in-flight renders
type Session struct {
	id     id.SessionID
	source string
	doc    Document
	total  int

	log      *zap.Logger
	metrics  *monitoring.Metrics
	activity func()
	onState  func(State)

	mu    sync.Mutex
	state State
	ops   map[opKey]*Operation

	// sem serializes page draws against the document handle
	sem       chan struct{}
	renderAll atomic.Bool
	released  chan struct{}
}

// ID returns the session ID
func (s *Session) ID() id.SessionID { return s.id }

// Source returns the URL the document was opened from
func (s *Session) Source() string { return s.source }

// TotalPages returns the page count
func (s *Session) TotalPages() int { return s.total }

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outstanding returns the number of renders still in flight
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Released is closed once the document handle has been released
func (s *Session) Released() <-chan struct{} { return s.released }

// RenderPage starts rendering job.Page onto surface. Any render still
// running for the same page and surface is cancelled first.
func (s *Session) RenderPage(ctx context.Context, job Job, surface *Surface) (*Operation, error) {
	if job.Page < 1 || job.Page > s.total {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, job.Page, s.total)
	}
	if job.Scale <= 0 || math.IsNaN(job.Scale) || math.IsInf(job.Scale, 0) {
		job.Scale = 100
	}
	job.Surface = surface.ID()
	key := opKey{page: job.Page, surface: surface.ID()}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if prev, ok := s.ops[key]; ok {
		prev.Cancel()
	}
	op := newOperation(ctx, job)
	s.ops[key] = op
	changed := s.state != StateRendering
	s.state = StateRendering
	s.mu.Unlock()

	if changed {
		s.notify(StateRendering)
	}
	go s.run(op, key, surface)
	return op, nil
}

func (s *Session) run(op *Operation, key opKey, surface *Surface) {
	start := time.Now()
	buf, size, err := s.draw(op.ctx, op.job, surface)

	s.mu.Lock()
	current := s.ops[key] == op
	if current {
		delete(s.ops, key)
	}
	idle := s.settle()

	outcome := "ok"
	switch {
	case !current || op.Cancelled() || errors.Is(err, context.Canceled):
		outcome = "cancelled"
		err = ErrCancelled
	case err != nil:
		outcome = "failed"
		err = fmt.Errorf("%w: page %d: %w", ErrRenderFailed, op.job.Page, err)
	default:
		// Committed under the session lock so a newer render for this
		// pair cannot be registered between the check and the draw.
		surface.commit(buf, size, op.job)
	}
	s.mu.Unlock()

	if idle {
		s.notify(StateReady)
	}
	s.metrics.RecordRender(outcome, time.Since(start))
	switch outcome {
	case "ok":
		if s.activity != nil {
			s.activity()
		}
	case "failed":
		s.log.Warn("page render failed",
			zap.String("session", s.id.String()),
			zap.Int("page", op.job.Page),
			zap.String("surface", key.surface),
			zap.Error(err))
	default:
		s.log.Debug("page render cancelled",
			zap.String("job", op.id.String()),
			zap.Int("page", op.job.Page),
			zap.String("surface", key.surface))
	}
	op.finish(size, err)
}

func (s *Session) draw(ctx context.Context, job Job, surface *Surface) (buf *image.RGBA, size PageSize, err error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, PageSize{}, ctx.Err()
	}
	defer func() { <-s.sem }()
	defer func() {
		if r := recover(); r != nil {
			buf, size, err = nil, PageSize{}, fmt.Errorf("page %d panicked: %v", job.Page, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, PageSize{}, err
	}

	page, err := s.doc.Page(job.Page)
	if err != nil {
		return nil, PageSize{}, err
	}

	factor := job.Scale / 100
	w, h := page.Size(job.Rotation)
	w, h = math.Round(w*factor), math.Round(h*factor)
	if !fits(w, h) {
		return nil, PageSize{}, fmt.Errorf("%w: %gx%g", ErrSurfaceTooLarge, w, h)
	}
	size = PageSize{Width: int(w), Height: int(h)}

	dpr := surface.DevicePixelRatio()
	bounds, err := devicePixels(size, dpr)
	if err != nil {
		return nil, PageSize{}, err
	}
	buf = image.NewRGBA(bounds)
	vp := Viewport{Scale: factor * dpr, Rotation: job.Rotation, DevicePixelRatio: dpr}

	if err := page.Render(ctx, buf, vp); err != nil {
		return nil, PageSize{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, PageSize{}, err
	}
	return buf, size, nil
}

// RenderAll renders every page in order, one at a time, onto surfaces[i]
// for page i+1. A failed page does not stop the pass; its error is
// returned in the map. Only one pass may run at a time.
func (s *Session) RenderAll(ctx context.Context, scale float64, rotation int, surfaces []*Surface) (map[int]error, error) {
	if !s.renderAll.CompareAndSwap(false, true) {
		return nil, ErrRenderInProgress
	}
	defer s.renderAll.Store(false)

	s.cancelAll()

	failures := make(map[int]error)
	n := min(len(surfaces), s.total)
	for i := 0; i < n; i++ {
		op, err := s.RenderPage(ctx, Job{Page: i + 1, Scale: scale, Rotation: rotation}, surfaces[i])
		if err != nil {
			return failures, err
		}
		if _, err := op.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				op.Cancel()
				return failures, ctx.Err()
			}
			if s.State() == StateClosed {
				return failures, ErrSessionClosed
			}
			failures[i+1] = err
		}
	}
	return failures, nil
}

// Rendering reports whether a RenderAll pass is running
func (s *Session) Rendering() bool { return s.renderAll.Load() }

func (s *Session) cancelAll() {
	s.mu.Lock()
	ops := make([]*Operation, 0, len(s.ops))
	for k, op := range s.ops {
		ops = append(ops, op)
		delete(s.ops, k)
	}
	idle := s.settle()
	s.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
	if idle {
		s.notify(StateReady)
	}
}

// settle moves a rendering session with no work left back to ready.
// Callers hold s.mu.
func (s *Session) settle() bool {
	if len(s.ops) == 0 && s.state == StateRendering {
		s.state = StateReady
		return true
	}
	return false
}

func (s *Session) notify(st State) {
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	s.notify(StateFailed)
	close(s.released)
}

// Close cancels every outstanding render and releases the document.
// The session is marked closed before teardown starts; the handle is
// released once any in-progress draw has stopped. Close never fails.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	ops := make([]*Operation, 0, len(s.ops))
	for k, op := range s.ops {
		ops = append(ops, op)
		delete(s.ops, k)
	}
	s.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
	s.metrics.SessionClosed()
	s.notify(StateClosed)

	go func() {
		defer close(s.released)
		defer func() {
			if r := recover(); r != nil {
				s.log.Warn("panic while releasing document", zap.Any("panic", r))
			}
		}()

		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		if err := s.doc.Close(); err != nil {
			s.log.Warn("error releasing document", zap.String("session", s.id.String()), zap.Error(err))
		}
	}()
}
