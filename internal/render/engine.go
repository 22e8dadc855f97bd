package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/shared/id"
	"go.uber.org/zap"
)

// DefaultOpenTimeout bounds fetching and decoding a document
const DefaultOpenTimeout = 30 * time.Second

// Config configures an Engine
type Config struct {
	OpenTimeout time.Duration
}

// Engine opens documents into sessions
type Engine struct {
	loader  Loader
	decoder Decoder
	cfg     Config
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewEngine creates a render engine
func NewEngine(loader Loader, decoder Decoder, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Engine {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &Engine{
		loader:  loader,
		decoder: decoder,
		cfg:     cfg,
		log:     logger.Component("render").Logger,
		metrics: metrics,
	}
}

// OpenOption customizes a session
type OpenOption func(*Session)

// WithStateHook registers a callback for every state transition
func WithStateHook(fn func(State)) OpenOption {
	return func(s *Session) { s.onState = fn }
}

// WithActivity registers a callback run after a successful open and
// after every successful page draw
func WithActivity(fn func()) OpenOption {
	return func(s *Session) { s.activity = fn }
}

type openResult struct {
	doc Document
	err error
}

// Open fetches and decodes sourceURL. If the open timeout passes first
// the call fails with ErrLoadTimeout and the late document, if any, is
// closed and discarded.
func (e *Engine) Open(ctx context.Context, sourceURL string, opts ...OpenOption) (*Session, error) {
	sid := id.NewSessionID()
	log := e.log.With(zap.String("session", sid.String()))

	s := &Session{
		id:       sid,
		source:   sourceURL,
		log:      log,
		metrics:  e.metrics,
		state:    StateOpening,
		ops:      make(map[opKey]*Operation),
		sem:      make(chan struct{}, 1),
		released: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notify(StateOpening)

	openCtx, cancel := context.WithCancel(ctx)
	results := make(chan openResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- openResult{err: fmt.Errorf("decoder panicked: %v", r)}
			}
		}()
		data, err := e.loader.Fetch(openCtx, sourceURL)
		if err != nil {
			results <- openResult{err: err}
			return
		}
		doc, err := e.decoder.Open(openCtx, data)
		results <- openResult{doc: doc, err: err}
	}()

	timer := time.NewTimer(e.cfg.OpenTimeout)
	defer timer.Stop()

	var res openResult
	select {
	case res = <-results:
		cancel()
	case <-timer.C:
		cancel()
		go discard(results, log)
		s.fail()
		e.metrics.RecordDocumentOpen("timeout")
		log.Warn("document open timed out", zap.String("url", sourceURL), zap.Duration("timeout", e.cfg.OpenTimeout))
		return nil, fmt.Errorf("%w after %s", ErrLoadTimeout, e.cfg.OpenTimeout)
	case <-ctx.Done():
		cancel()
		go discard(results, log)
		s.fail()
		e.metrics.RecordDocumentOpen("cancelled")
		return nil, ctx.Err()
	}

	if res.err != nil {
		s.fail()
		e.metrics.RecordDocumentOpen("failed")
		log.Warn("document open failed", zap.String("url", sourceURL), zap.Error(res.err))
		if res.doc != nil {
			_ = res.doc.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, res.err)
	}

	total := res.doc.NumPages()
	if total < 1 {
		_ = res.doc.Close()
		s.fail()
		e.metrics.RecordDocumentOpen("failed")
		return nil, fmt.Errorf("%w: document has no pages", ErrLoadFailed)
	}

	s.mu.Lock()
	s.doc = res.doc
	s.total = total
	s.state = StateReady
	s.mu.Unlock()
	s.notify(StateReady)
	if s.activity != nil {
		s.activity()
	}

	e.metrics.RecordDocumentOpen("ok")
	e.metrics.SessionOpened()
	log.Info("document opened", zap.String("url", sourceURL), zap.Int("pages", total))
	return s, nil
}

// discard waits for an abandoned open and releases whatever it produced
func discard(results <-chan openResult, log *zap.Logger) {
	res := <-results
	if res.doc != nil {
		if err := res.doc.Close(); err != nil {
			log.Debug("error closing discarded document", zap.Error(err))
		}
	}
}

// RenderPage is Session.RenderPage with the engine's arguments spelled out
func (e *Engine) RenderPage(ctx context.Context, s *Session, page int, scale float64, rotation int, surface *Surface) (*Operation, error) {
	if s == nil {
		return nil, ErrSessionClosed
	}
	return s.RenderPage(ctx, Job{Page: page, Scale: scale, Rotation: rotation}, surface)
}

// Close tears down a session. It is safe on nil and closed sessions.
func (e *Engine) Close(s *Session) {
	if s == nil {
		return
	}
	s.Close()
}

// IsTerminal reports whether err means the document cannot be shown
// without a new load
func IsTerminal(err error) bool {
	return errors.Is(err, ErrLoadTimeout) || errors.Is(err, ErrLoadFailed)
}
