package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/render"
	"go.uber.org/zap"
)

// mutate applies fn to the state. When fn reports a change the new state
// is published and the document re-rendered.
func (v *Viewer) mutate(fn func(*State) bool) State {
	v.mu.Lock()
	if v.closed {
		st := v.state
		v.mu.Unlock()
		return st
	}
	changed := fn(&v.state)
	st := v.state
	v.mu.Unlock()

	if changed {
		v.publish(EventChanged)
		v.rerender()
	}
	return st
}

// ZoomIn raises the zoom by one step, up to the maximum
func (v *Viewer) ZoomIn() State {
	return v.mutate(func(s *State) bool {
		return setInt(&s.Zoom, min(s.Zoom+v.cfg.ZoomStep, v.cfg.MaxZoom))
	})
}

// ZoomOut lowers the zoom by one step, down to the minimum
func (v *Viewer) ZoomOut() State {
	return v.mutate(func(s *State) bool {
		return setInt(&s.Zoom, max(s.Zoom-v.cfg.ZoomStep, v.cfg.MinZoom))
	})
}

// ResetZoom restores the initial zoom
func (v *Viewer) ResetZoom() State {
	return v.mutate(func(s *State) bool {
		return setInt(&s.Zoom, v.cfg.InitialZoom)
	})
}

// SetZoom sets the zoom percentage, clamped to the configured bounds
func (v *Viewer) SetZoom(zoom int) State {
	return v.mutate(func(s *State) bool {
		return setInt(&s.Zoom, clamp(zoom, v.cfg.MinZoom, v.cfg.MaxZoom))
	})
}

// RotateRight turns the document 90 degrees clockwise
func (v *Viewer) RotateRight() State {
	return v.mutate(func(s *State) bool {
		s.Rotation += 90
		return true
	})
}

// RotateLeft turns the document 90 degrees counter-clockwise
func (v *Viewer) RotateLeft() State {
	return v.mutate(func(s *State) bool {
		s.Rotation -= 90
		return true
	})
}

// GoToPage moves to page, clamped to the document. Documents without
// pages ignore it.
func (v *Viewer) GoToPage(page int) State {
	return v.mutate(func(s *State) bool {
		if s.TotalPages < 1 {
			return false
		}
		return setInt(&s.Page, clamp(page, 1, s.TotalPages))
	})
}

// NextPage moves forward one page
func (v *Viewer) NextPage() State {
	return v.GoToPage(v.State().Page + 1)
}

// PrevPage moves back one page
func (v *Viewer) PrevPage() State {
	return v.GoToPage(v.State().Page - 1)
}

// SetViewMode switches between single page and continuous layout
func (v *Viewer) SetViewMode(mode ViewMode) State {
	if mode != ModeContinuous {
		mode = ModeSingle
	}
	return v.mutate(func(s *State) bool {
		if s.ViewMode == mode {
			return false
		}
		s.ViewMode = mode
		return true
	})
}

// ToggleViewMode flips the view mode
func (v *Viewer) ToggleViewMode() State {
	return v.mutate(func(s *State) bool {
		if s.ViewMode == ModeContinuous {
			s.ViewMode = ModeSingle
		} else {
			s.ViewMode = ModeContinuous
		}
		return true
	})
}

// Resize applies a new device pixel ratio to every surface and redraws
// the ones it made stale. Ratios above render.MaxDevicePixelRatio are
// capped; non-positive, NaN and infinite ones are ignored.
func (v *Viewer) Resize(dpr float64) State {
	if !validRatio(dpr) {
		return v.State()
	}
	dpr = render.NormalizeDevicePixelRatio(dpr)

	v.mu.Lock()
	if v.closed || v.dpr == dpr {
		st := v.state
		v.mu.Unlock()
		return st
	}
	v.dpr = dpr
	surfaces := make([]*render.Surface, 0, len(v.pages)+1)
	if v.main != nil {
		surfaces = append(surfaces, v.main)
	}
	surfaces = append(surfaces, v.pages...)
	v.mu.Unlock()

	stale := false
	for _, s := range surfaces {
		if s.Resize(dpr) {
			stale = true
		}
	}
	if stale {
		v.publish(EventChanged)
		v.rerender()
	}
	return v.State()
}

// DevicePixelRatio returns the ratio new surfaces are created with
func (v *Viewer) DevicePixelRatio() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dpr
}

// rerender draws what the state asks for: the current page on the main
// surface in single mode, every page in continuous mode
func (v *Viewer) rerender() {
	v.mu.Lock()
	sess := v.session
	if sess == nil || v.closed {
		v.mu.Unlock()
		return
	}
	st := v.state
	if st.ViewMode == ModeContinuous {
		v.startPassLocked(sess)
		v.mu.Unlock()
		return
	}
	stop := v.passStop
	v.pass = nil
	v.passStop = nil
	v.dirty = false
	main := v.main
	v.mu.Unlock()

	if stop != nil {
		stop()
	}
	_, _ = v.renderOn(sess, jobFor(st, st.Page), main)
}

func jobFor(st State, page int) render.Job {
	return render.Job{Page: page, Scale: float64(st.Zoom), Rotation: st.Rotation}
}

// renderOn starts job on surface. A render still running on the surface
// for another page is cancelled first, since its frame is no longer wanted.
func (v *Viewer) renderOn(sess *render.Session, job render.Job, surface *render.Surface) (*render.Operation, error) {
	v.mu.Lock()
	prev := v.inflight[surface.ID()]
	v.mu.Unlock()
	if prev != nil && prev.Job().Page != job.Page {
		prev.Cancel()
	}

	op, err := sess.RenderPage(context.Background(), job, surface)
	if err != nil {
		v.log.Debug("render not started", zap.Int("page", job.Page), zap.String("surface", surface.ID()), zap.Error(err))
		return nil, err
	}
	v.mu.Lock()
	if v.session == sess {
		v.inflight[surface.ID()] = op
	}
	v.mu.Unlock()
	return op, nil
}

// startPassLocked runs a continuous pass for sess. A request arriving
// while a pass runs marks it dirty and the pass repeats once finished.
// Callers hold v.mu.
func (v *Viewer) startPassLocked(sess *render.Session) {
	if v.pass == sess {
		v.dirty = true
		return
	}
	if v.passStop != nil {
		v.passStop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.pass = sess
	v.passStop = cancel
	v.dirty = false
	surfaces := v.pageSurfacesLocked()
	go v.runPass(ctx, cancel, sess, surfaces)
}

func (v *Viewer) runPass(ctx context.Context, cancel context.CancelFunc, sess *render.Session, surfaces []*render.Surface) {
	defer cancel()
	for {
		st := v.State()
		failures, err := sess.RenderAll(ctx, float64(st.Zoom), st.Rotation, surfaces)
		if errors.Is(err, render.ErrRenderInProgress) {
			// An abandoned pass is still winding down
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		for page, ferr := range failures {
			v.log.Warn("page render failed", zap.Int("page", page), zap.Error(ferr))
		}

		v.mu.Lock()
		again := err == nil && v.pass == sess && v.dirty
		if again {
			v.dirty = false
		} else if v.pass == sess {
			v.pass = nil
			v.passStop = nil
		}
		v.mu.Unlock()
		if !again {
			return
		}
	}
}

// pageSurfacesLocked returns one surface per page, creating them on
// first use. Callers hold v.mu.
func (v *Viewer) pageSurfacesLocked() []*render.Surface {
	total := v.state.TotalPages
	for i := len(v.pages); i < total; i++ {
		v.pages = append(v.pages, render.NewSurface(fmt.Sprintf("page-%d", i+1), v.dpr))
	}
	return v.pages[:total]
}

// surfaceForLocked picks the surface page is drawn on. Callers hold v.mu.
func (v *Viewer) surfaceForLocked(page int) *render.Surface {
	if v.state.ViewMode == ModeSingle && page == v.state.Page && v.main != nil {
		return v.main
	}
	return v.pageSurfacesLocked()[page-1]
}

// PageImage returns page drawn at the current zoom and rotation. A frame
// already matching that is returned as is; otherwise the page is rendered
// and the call waits for it.
func (v *Viewer) PageImage(ctx context.Context, page int) (image.Image, error) {
	surface, err := v.pageSurface(ctx, page)
	if err != nil {
		return nil, err
	}
	return surface.Image(), nil
}

// PageThumbnail is PageImage scaled down so its longer side is at most
// maxSide pixels
func (v *Viewer) PageThumbnail(ctx context.Context, page, maxSide int) (image.Image, error) {
	surface, err := v.pageSurface(ctx, page)
	if err != nil {
		return nil, err
	}
	return surface.Thumbnail(maxSide), nil
}

// pageSurface returns the surface holding an up to date frame of page
func (v *Viewer) pageSurface(ctx context.Context, page int) (*render.Surface, error) {
	v.mu.Lock()
	sess := v.session
	if sess == nil {
		v.mu.Unlock()
		return nil, ErrNoDocument
	}
	if page < 1 || page > v.state.TotalPages {
		total := v.state.TotalPages
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d", render.ErrPageRange, page, total)
	}
	job := jobFor(v.state, page)
	surface := v.surfaceForLocked(page)
	op := v.inflight[surface.ID()]
	v.mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		if fresh(surface, job) {
			return surface, nil
		}
		if op == nil || op.Cancelled() || !sameJob(op.Job(), job) {
			var err error
			if op, err = v.renderOn(sess, job, surface); err != nil {
				return nil, err
			}
		}
		_, err := op.Wait(ctx)
		switch {
		case err == nil, errors.Is(err, render.ErrCancelled) && ctx.Err() == nil:
			// Drawn, or superseded by a newer render of the same
			// surface; either way the frame is checked again
			op = nil
		default:
			return nil, err
		}
	}
	if fresh(surface, job) {
		return surface, nil
	}
	return nil, render.ErrCancelled
}

func fresh(s *render.Surface, job render.Job) bool {
	return s.Frames() > 0 && !s.Stale() && sameJob(s.LastJob(), job)
}

func sameJob(a, b render.Job) bool {
	return a.Page == b.Page &&
		a.Scale == b.Scale &&
		render.NormalizeRotation(a.Rotation) == render.NormalizeRotation(b.Rotation)
}

func validRatio(dpr float64) bool {
	return dpr > 0 && !math.IsInf(dpr, 1)
}

func setInt(dst *int, v int) bool {
	if *dst == v {
		return false
	}
	*dst = v
	return true
}
