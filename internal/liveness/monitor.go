// Package liveness detects a stalled viewer pipeline and triggers a
// restart.
//
// A Monitor compares the time since the last recorded activity against a
// threshold on every tick. When the gap is exceeded it invokes the
// restart callback once and then stays silent until activity is recorded
// again or the monitor is restarted. It owns no document or network
// resources.
package liveness

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

const (
	DefaultThreshold = 60 * time.Second
	DefaultInterval  = 10 * time.Second
)

// Ticker is the part of time.Ticker the monitor uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time for tests
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

type systemTicker struct{ *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.Ticker.C }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Monitor watches for a stalled pipeline
type Monitor struct {
	clock   Clock
	restart func()
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	last      time.Time
	threshold time.Duration
	tripped   bool
	stalls    int
	stop      chan struct{}
	done      chan struct{}
}

// New creates a stopped monitor. clock may be nil for the wall clock.
func New(restart func(), clock Clock, logger *logging.Logger, metrics *monitoring.Metrics) *Monitor {
	if clock == nil {
		clock = SystemClock
	}
	return &Monitor{
		clock:   clock,
		restart: restart,
		log:     logger.Component("liveness").Logger,
		metrics: metrics,
	}
}

// Start begins monitoring, replacing any running loop. Activity is
// considered to have just happened.
func (m *Monitor) Start(threshold, interval time.Duration) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.Stop()

	m.mu.Lock()
	m.last = m.clock.Now()
	m.threshold = threshold
	m.tripped = false
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	ticker := m.clock.NewTicker(interval)
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.loop(ticker, stop, done)
}

func (m *Monitor) loop(ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			m.check()
		}
	}
}

// check runs one comparison and reports whether it triggered a restart
func (m *Monitor) check() bool {
	m.mu.Lock()
	idle := m.clock.Now().Sub(m.last)
	if m.tripped || idle <= m.threshold {
		m.mu.Unlock()
		return false
	}
	m.tripped = true
	m.stalls++
	m.mu.Unlock()

	m.metrics.RecordStall()
	m.metrics.RecordRestart("liveness")
	m.log.Warn("pipeline stalled, restarting", zap.Duration("idle", idle))

	if m.restart != nil {
		go m.restart()
	}
	return true
}

// RecordActivity marks the pipeline as alive and re-arms stall detection
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	m.last = m.clock.Now()
	m.tripped = false
	m.mu.Unlock()
}

// Stop halts monitoring and waits for the loop to exit. It is safe to
// call on a stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the monitor loop is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// Stalls returns how many stalls have been detected
func (m *Monitor) Stalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stalls
}

// LastActivity returns when activity was last recorded
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
