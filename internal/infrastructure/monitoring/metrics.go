package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	Classifications *prometheus.CounterVec
	Probes          *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	Resolutions     *prometheus.CounterVec
	ProxyAttempts   *prometheus.CounterVec

	// Render metrics
	DocumentOpens  *prometheus.CounterVec
	Renders        *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	SessionsActive prometheus.Gauge

	// Liveness metrics
	Stalls   prometheus.Counter
	Restarts *prometheus.CounterVec

	// Viewer metrics
	ViewersActive prometheus.Gauge
	ViewerErrors  *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Registry *prometheus.Registry

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests  int64
	TotalErrors    int64
	Renders        int64
	RenderFailures int64
	Stalls         int64
	ActiveSessions int64
}

// NewMetrics creates a metrics collector on its own registry so that
// several collectors (one per test, one per server) can coexist.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docviewer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_classifications_total",
				Help: "Document classifications by deciding strategy and kind",
			},
			[]string{"strategy", "kind"},
		),
		Probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_probes_total",
				Help: "Network probes issued by the classifier and resolver",
			},
			[]string{"kind", "outcome"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docviewer_probe_duration_seconds",
				Help:    "Network probe duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5, 8},
			},
			[]string{"kind"},
		),
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_resolutions_total",
				Help: "Source resolutions by the policy step that decided them",
			},
			[]string{"route"},
		),
		ProxyAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_proxy_attempts_total",
				Help: "Built-in proxy attempts by outcome",
			},
			[]string{"proxy", "outcome"},
		),

		DocumentOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_document_opens_total",
				Help: "Document open attempts by outcome",
			},
			[]string{"outcome"},
		),
		Renders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_page_renders_total",
				Help: "Page render operations by outcome",
			},
			[]string{"outcome"},
		),
		RenderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docviewer_page_render_duration_seconds",
				Help:    "Page render duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docviewer_pdf_sessions_active",
				Help: "Number of open PDF sessions",
			},
		),

		Stalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docviewer_stalls_total",
				Help: "Stalls detected by liveness monitors",
			},
		),
		Restarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_restarts_total",
				Help: "Pipeline restarts by trigger",
			},
			[]string{"trigger"},
		),

		ViewersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docviewer_viewers_active",
				Help: "Number of registered viewers",
			},
		),
		ViewerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_viewer_errors_total",
				Help: "Errors surfaced to viewers by code",
			},
			[]string{"code"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docviewer_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docviewer_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordClassification records which strategy decided a document kind
func (m *Metrics) RecordClassification(strategy, kind string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(strategy, kind).Inc()
}

// RecordProbe records a network probe
func (m *Metrics) RecordProbe(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(kind, outcome).Inc()
	m.ProbeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordResolution records the policy step that produced a resolved URL
func (m *Metrics) RecordResolution(route string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(route).Inc()
}

// RecordProxyAttempt records one built-in proxy attempt
func (m *Metrics) RecordProxyAttempt(proxy, outcome string) {
	if m == nil {
		return
	}
	m.ProxyAttempts.WithLabelValues(proxy, outcome).Inc()
}

// RecordDocumentOpen records a document open outcome
func (m *Metrics) RecordDocumentOpen(outcome string) {
	if m == nil {
		return
	}
	m.DocumentOpens.WithLabelValues(outcome).Inc()
}

// RecordRender records a page render outcome
func (m *Metrics) RecordRender(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Renders.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.RenderDuration.Observe(duration.Seconds())
	}

	m.mu.Lock()
	m.snapshot.Renders++
	if outcome == "failed" {
		m.snapshot.RenderFailures++
	}
	m.mu.Unlock()
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// RecordStall records a stall detected by a liveness monitor
func (m *Metrics) RecordStall() {
	if m == nil {
		return
	}
	m.Stalls.Inc()
	m.mu.Lock()
	m.snapshot.Stalls++
	m.mu.Unlock()
}

// RecordRestart records a pipeline restart
func (m *Metrics) RecordRestart(trigger string) {
	if m == nil {
		return
	}
	m.Restarts.WithLabelValues(trigger).Inc()
}

// ViewerCreated increments the active viewer gauge
func (m *Metrics) ViewerCreated() {
	if m == nil {
		return
	}
	m.ViewersActive.Inc()
}

// ViewerClosed decrements the active viewer gauge
func (m *Metrics) ViewerClosed() {
	if m == nil {
		return
	}
	m.ViewersActive.Dec()
}

// RecordViewerError records an error shown to a viewer
func (m *Metrics) RecordViewerError(code string) {
	if m == nil {
		return
	}
	m.ViewerErrors.WithLabelValues(code).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current counters for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
