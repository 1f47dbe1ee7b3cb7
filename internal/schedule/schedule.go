// Package schedule abstracts the periodic tick that drives the tracker so
// tests can fire ticks by hand instead of waiting on wall-clock time.
package schedule

import (
	"sync"
	"time"
)

// Scheduler delivers ticks on C until stopped. Reset restarts the interval
// and rearms a stopped scheduler.
type Scheduler interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// ///////////////////////////////////////////////
// Ticker
// ///////////////////////////////////////////////

// Ticker is a [Scheduler] backed by [time.Ticker].
type Ticker struct {
	t *time.Ticker
}

// NewTicker starts a Ticker firing every d.
func NewTicker(d time.Duration) *Ticker {
	return &Ticker{t: time.NewTicker(d)}
}

func (t *Ticker) C() <-chan time.Time { return t.t.C }

func (t *Ticker) Reset(d time.Duration) { t.t.Reset(d) }

func (t *Ticker) Stop() { t.t.Stop() }

// ///////////////////////////////////////////////
// Manual
// ///////////////////////////////////////////////

// Manual is a [Scheduler] that only ticks when Fire is called. Fire drops
// the tick while stopped, matching a stopped time.Ticker.
type Manual struct {
	ch chan time.Time

	mu       sync.Mutex
	running  bool
	interval time.Duration
}

// NewManual returns a running Manual scheduler. The buffer lets Fire be
// called from the goroutine that also drains C.
func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time, 16), running: true}
}

func (m *Manual) C() <-chan time.Time { return m.ch }

func (m *Manual) Reset(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.interval = d
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Fire queues a tick at now and reports whether it was delivered.
func (m *Manual) Fire(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	select {
	case m.ch <- now:
		return true
	default:
		return false
	}
}

// Running reports whether the scheduler is armed.
func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Interval returns the duration passed to the last Reset.
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}
