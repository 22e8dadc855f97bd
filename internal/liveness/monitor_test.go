package liveness

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Tick delivers one tick to the newest ticker and blocks until the
// monitor loop has received it
func (c *fakeClock) Tick() {
	c.mu.Lock()
	t := c.tickers[len(c.tickers)-1]
	now := c.now
	c.mu.Unlock()
	t.c <- now
}

type restartCounter struct {
	n  atomic.Int32
	ch chan struct{}
}

func newRestartCounter() *restartCounter {
	return &restartCounter{ch: make(chan struct{}, 16)}
}

func (r *restartCounter) restart() {
	r.n.Add(1)
	r.ch <- struct{}{}
}

func (r *restartCounter) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("restart was not triggered")
	}
}

func TestRestartsExactlyOncePerStall(t *testing.T) {
	clock := newFakeClock()
	rc := newRestartCounter()
	m := New(rc.restart, clock, logging.Nop(), nil)

	m.Start(60*time.Second, 10*time.Second)
	defer m.Stop()

	for i := 0; i < 6; i++ {
		clock.Advance(10 * time.Second)
		clock.Tick()
	}
	// 60s idle is not more than the threshold
	assert.Zero(t, m.Stalls())

	clock.Advance(10 * time.Second)
	clock.Tick()
	rc.waitOne(t)

	for i := 0; i < 10; i++ {
		clock.Advance(10 * time.Second)
		clock.Tick()
	}
	// Synchronise with the loop before reading the count
	clock.Tick()
	assert.Equal(t, 1, m.Stalls())
	assert.EqualValues(t, 1, rc.n.Load())
}

func TestActivityRearmsDetection(t *testing.T) {
	clock := newFakeClock()
	rc := newRestartCounter()
	m := New(rc.restart, clock, logging.Nop(), nil)

	m.Start(30*time.Second, 10*time.Second)
	defer m.Stop()

	clock.Advance(31 * time.Second)
	clock.Tick()
	rc.waitOne(t)

	m.RecordActivity()
	clock.Advance(20 * time.Second)
	clock.Tick()
	assert.Equal(t, 1, m.Stalls())

	clock.Advance(11 * time.Second)
	clock.Tick()
	rc.waitOne(t)
	assert.Equal(t, 2, m.Stalls())
}

func TestRegularActivityNeverRestarts(t *testing.T) {
	clock := newFakeClock()
	rc := newRestartCounter()
	m := New(rc.restart, clock, logging.Nop(), nil)

	m.Start(60*time.Second, 10*time.Second)
	defer m.Stop()

	for i := 0; i < 30; i++ {
		clock.Advance(10 * time.Second)
		m.RecordActivity()
		clock.Tick()
	}
	clock.Tick()
	assert.Zero(t, m.Stalls())
	assert.Zero(t, rc.n.Load())
}

func TestStartReplacesLoop(t *testing.T) {
	clock := newFakeClock()
	m := New(nil, clock, logging.Nop(), nil)

	m.Start(time.Minute, time.Second)
	require.True(t, m.Running())
	first := clock.tickers[0]

	m.Start(time.Minute, time.Second)
	assert.True(t, first.stopped.Load())
	assert.Len(t, clock.tickers, 2)

	m.Stop()
	assert.False(t, m.Running())
	assert.True(t, clock.tickers[1].stopped.Load())
	assert.NotPanics(t, m.Stop)
}

func TestStartResetsActivity(t *testing.T) {
	clock := newFakeClock()
	rc := newRestartCounter()
	m := New(rc.restart, clock, logging.Nop(), nil)

	m.Start(30*time.Second, 10*time.Second)
	clock.Advance(31 * time.Second)
	clock.Tick()
	rc.waitOne(t)

	m.Start(30*time.Second, 10*time.Second)
	defer m.Stop()
	assert.Equal(t, clock.Now(), m.LastActivity())

	clock.Advance(10 * time.Second)
	clock.Tick()
	clock.Tick()
	assert.Equal(t, 1, m.Stalls())
}

func TestStallMetrics(t *testing.T) {
	clock := newFakeClock()
	metrics := monitoring.NewMetrics()
	rc := newRestartCounter()
	m := New(rc.restart, clock, logging.Nop(), metrics)

	m.Start(time.Second, time.Second)
	defer m.Stop()

	clock.Advance(2 * time.Second)
	clock.Tick()
	rc.waitOne(t)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Stalls))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Restarts.WithLabelValues("liveness")))
}

func TestWallClockDefaults(t *testing.T) {
	var fired atomic.Bool
	m := New(func() { fired.Store(true) }, nil, logging.Nop(), nil)

	m.Start(10*time.Millisecond, 5*time.Millisecond)
	defer m.Stop()

	assert.Eventually(t, fired.Load, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Stalls())
}
