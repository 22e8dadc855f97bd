package viewer

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/shared/id"
	"go.uber.org/zap"
)

// Stats summarizes the registered viewers
type Stats struct {
	Total   int `json:"total"`
	Loading int `json:"loading"`
	Failed  int `json:"failed"`
	PDFs    int `json:"pdfs"`
	Images  int `json:"images"`
}

// Manager tracks live viewers
type Manager struct {
	mu      sync.RWMutex
	viewers map[id.ViewerID]*Viewer
	deps    Deps
	cfg     Config
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewManager creates a viewer manager
func NewManager(deps Deps, cfg Config) *Manager {
	return &Manager{
		viewers: make(map[id.ViewerID]*Viewer),
		deps:    deps,
		cfg:     cfg.normalize(),
		metrics: deps.Metrics,
		log:     deps.Logger.Component("viewer").Logger,
	}
}

// WithMetrics adds metrics collection to the manager and its viewers
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	m.deps.Metrics = metrics
	return m
}

// Create registers a new empty viewer
func (m *Manager) Create(opts ...Option) *Viewer {
	cfg := m.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	v := New(m.deps, cfg)

	m.mu.Lock()
	m.viewers[v.ID()] = v
	m.mu.Unlock()

	m.metrics.ViewerCreated()
	m.log.Debug("viewer created", zap.String("viewer", v.ID().String()))
	return v
}

// Get retrieves a viewer by ID
func (m *Manager) Get(viewerID string) (*Viewer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.viewers[id.ViewerID(viewerID)]
	return v, ok
}

// List returns every viewer, oldest first
func (m *Manager) List() []*Viewer {
	m.mu.RLock()
	viewers := make([]*Viewer, 0, len(m.viewers))
	for _, v := range m.viewers {
		viewers = append(viewers, v)
	}
	m.mu.RUnlock()

	sort.Slice(viewers, func(i, j int) bool {
		return viewers[i].ID() < viewers[j].ID()
	})
	return viewers
}

// Close tears down a viewer and forgets it
func (m *Manager) Close(viewerID string) bool {
	m.mu.Lock()
	v, ok := m.viewers[id.ViewerID(viewerID)]
	if ok {
		delete(m.viewers, v.ID())
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	v.Close()
	m.metrics.ViewerClosed()
	m.log.Debug("viewer closed", zap.String("viewer", viewerID))
	return true
}

// CloseAll tears down every viewer
func (m *Manager) CloseAll() {
	m.mu.Lock()
	viewers := m.viewers
	m.viewers = make(map[id.ViewerID]*Viewer)
	m.mu.Unlock()

	for _, v := range viewers {
		v.Close()
		m.metrics.ViewerClosed()
	}
}

// Stats returns manager statistics
func (m *Manager) Stats() Stats {
	var s Stats
	for _, v := range m.List() {
		st := v.State()
		s.Total++
		if st.Loading {
			s.Loading++
		}
		if st.Error != nil {
			s.Failed++
		}
		switch st.Kind {
		case classifier.Pdf:
			s.PDFs++
		case classifier.Image:
			s.Images++
		}
	}
	return s
}
