package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/yuncengfeihou/usage-tracker2/internal/activity"
	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/schedule"
	"github.com/yuncengfeihou/usage-tracker2/internal/store"
)

// DefaultTickInterval is used when the settings carry no positive interval.
const DefaultTickInterval = 15 * time.Second

// persistenceWarning is shown once per Tracker when the store fails.
const persistenceWarning = "Could not save usage tracking state; reminders may repeat or be missed."

// Notifier delivers reminders and warnings to the user.
type Notifier interface {
	Notify(ctx context.Context, body string) error
	Warn(body string)
}

// Options configures a [Tracker].
type Options struct {
	Store    store.Store
	Settings config.TrackerConfig
	Notifier Notifier
	// Scheduler drives Tick. Nil creates a time.Ticker based scheduler.
	Scheduler schedule.Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Tracker is the running Session Tracker. Callers select on [Tracker.Ticks]
// and call [Tracker.Tick] for each value; every method is safe for
// concurrent use.
type Tracker struct {
	store    store.Store
	notifier Notifier
	sched    schedule.Scheduler
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	settings config.TrackerConfig
	state    State
	running  bool
	warned   bool
}

// New returns a stopped Tracker. Call [Tracker.Initialize] to start it.
func New(opts Options) *Tracker {
	t := &Tracker{
		store:    opts.Store,
		notifier: opts.Notifier,
		sched:    opts.Scheduler,
		now:      opts.Now,
		log:      opts.Logger,
		settings: opts.Settings,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	if t.notifier == nil {
		t.notifier = nopNotifier{}
	}
	if t.sched == nil {
		t.sched = schedule.NewTicker(t.interval())
	}
	t.sched.Stop()
	return t
}

// Ticks delivers scheduler ticks while the tracker is running.
func (t *Tracker) Ticks() <-chan time.Time { return t.sched.C() }

func (t *Tracker) interval() time.Duration {
	if t.settings.TickIntervalSeconds <= 0 {
		return DefaultTickInterval
	}
	return time.Duration(t.settings.TickIntervalSeconds) * time.Second
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

// Initialize runs the session decision and arms the scheduler. With
// tracking disabled it only stops the scheduler. Calling it again is safe:
// a second call at the same moment reaches the same session decision.
func (t *Tracker) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initializeLocked()
}

func (t *Tracker) initializeLocked() error {
	t.sched.Stop()
	t.running = false
	if !t.settings.Enabled {
		t.log.Info("tracker disabled")
		return nil
	}

	st, err := Initialize(t.store, t.settings, t.now())
	t.state = st
	t.sched.Reset(t.interval())
	t.running = true
	t.log.Info("tracker started",
		"session_start", time.UnixMilli(st.Session.Start).Format(time.DateTime),
		"interval", t.interval())
	if err != nil {
		t.persistenceFailed(err)
	}
	return err
}

// Shutdown stops the scheduler. Persisted state is left for the next
// Initialize.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sched.Stop()
	if t.running {
		t.log.Info("tracker stopped")
	}
	t.running = false
}

// UpdateSettings applies new settings. Toggling Enabled re-initializes
// (starting or stopping the tracker); a new tick interval rearms the
// scheduler. Other changes take effect on the next tick.
func (t *Tracker) UpdateSettings(s config.TrackerConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.settings
	t.settings = s

	if prev.Enabled != s.Enabled {
		return t.initializeLocked()
	}
	if t.running && prev.TickIntervalSeconds != s.TickIntervalSeconds {
		t.sched.Reset(t.interval())
	}
	return nil
}

// ///////////////////////////////////////////////
// Tick
// ///////////////////////////////////////////////

// Tick evaluates thresholds and delivers a reminder for each one newly
// crossed. A tick arriving while tracking is disabled stops the scheduler.
func (t *Tracker) Tick(ctx context.Context) ([]Notification, error) {
	t.mu.Lock()
	if !t.settings.Enabled {
		if t.running {
			t.sched.Stop()
			t.running = false
			t.log.Info("tracker disabled, stopping timer")
		}
		t.mu.Unlock()
		return nil, nil
	}
	if !t.running {
		t.mu.Unlock()
		return nil, nil
	}

	st, notes, err := Tick(t.store, t.settings, t.state, t.now())
	t.state = st
	if err != nil {
		t.persistenceFailed(err)
	}
	t.mu.Unlock()

	// Delivery may block on the native endpoint; the lock is not held.
	for _, n := range notes {
		t.log.Info("threshold reached", "kind", string(n.Kind), "threshold", n.Threshold)
		if nerr := t.notifier.Notify(ctx, n.Message); nerr != nil {
			t.log.Warn("notification delivery failed", "threshold", n.Threshold, "error", nerr)
		}
	}
	return notes, err
}

// ///////////////////////////////////////////////
// Activity
// ///////////////////////////////////////////////

// RecordActivity handles a user activity signal. Active and hidden refresh
// last-active; visible re-runs Initialize so a return within the grace
// period continues the session immediately.
func (t *Tracker) RecordActivity(ctx context.Context, kind activity.Kind) error {
	switch kind {
	case activity.KindVisible:
		return t.Initialize(ctx)
	case activity.KindActive, activity.KindHidden:
		t.mu.Lock()
		defer t.mu.Unlock()
		st, err := Touch(t.store, t.state, t.now())
		t.state = st
		if err != nil {
			t.persistenceFailed(err)
		}
		return err
	default:
		return fmt.Errorf("unknown activity kind %q", kind)
	}
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// State returns a copy of the in-memory state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	st.Session.Triggered = slices.Clone(st.Session.Triggered)
	st.Daily.Triggered = slices.Clone(st.Daily.Triggered)
	return st
}

// Settings returns the active settings.
func (t *Tracker) Settings() config.TrackerConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Running reports whether the scheduler is armed.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// persistenceFailed logs err and warns the user the first time.
func (t *Tracker) persistenceFailed(err error) {
	t.log.Error("tracker persistence failed", "error", err)
	if t.warned {
		return
	}
	t.warned = true
	t.notifier.Warn(persistenceWarning)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }
func (nopNotifier) Warn(string)                          {}
