package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/store"
)

// Reminder texts.
const (
	durationMessage  = "You have been using the app continuously for %s hour(s)!"
	fixedTimeMessage = "Reminder time reached: %s"
)

// kv wraps a store, turning failures into PersistenceErrors collected for
// the caller instead of aborting the operation.
type kv struct {
	s    store.Store
	errs []error
}

func (k *kv) get(key string) (string, bool) {
	v, ok, err := k.s.Get(key)
	if err != nil {
		k.errs = append(k.errs, &PersistenceError{Op: "read", Key: key, Err: err})
		return "", false
	}
	return v, ok
}

func (k *kv) set(key, value string) {
	if err := k.s.Set(key, value); err != nil {
		k.errs = append(k.errs, &PersistenceError{Op: "write", Key: key, Err: err})
	}
}

func (k *kv) del(key string) {
	if err := k.s.Delete(key); err != nil {
		k.errs = append(k.errs, &PersistenceError{Op: "delete", Key: key, Err: err})
	}
}

func (k *kv) keys(prefix string) []string {
	keys, err := k.s.Keys(prefix)
	if err != nil {
		k.errs = append(k.errs, &PersistenceError{Op: "list", Key: prefix, Err: err})
		return nil
	}
	return keys
}

func (k *kv) millis(key string) int64 {
	raw, ok := k.get(key)
	if !ok {
		return 0
	}
	return parseMillis(key, raw)
}

func (k *kv) err() error { return errors.Join(k.errs...) }

// ///////////////////////////////////////////////
// Initialize
// ///////////////////////////////////////////////

// Initialize loads the persisted state and decides whether now continues
// the stored session. A new session starts when there is no stored start,
// no stored last-active time, or the gap since last activity is at least
// the grace period. Starting a session removes every older
// triggered-durations entry. The daily state is reset when its date is not
// today. Last-active is set to now.
//
// Store failures do not stop initialization: the returned State is always
// usable and the error joins every [PersistenceError] encountered.
func Initialize(s store.Store, settings config.TrackerConfig, now time.Time) (State, error) {
	k := &kv{s: s}
	nowMs := now.UnixMilli()
	grace := int64(settings.GracePeriodMinutes) * int64(time.Minute/time.Millisecond)

	start := k.millis(KeySessionStart)
	lastActive := k.millis(KeyLastActive)

	var st State
	if start == 0 || lastActive == 0 || nowMs-lastActive >= grace {
		slog.Info("starting new session",
			"offline", offlineString(lastActive, nowMs),
			"grace", time.Duration(grace)*time.Millisecond)
		start = nowMs
		k.set(KeySessionStart, strconv.FormatInt(start, 10))
		for _, key := range k.keys(KeyTriggeredDurationsPrefix) {
			k.del(key)
		}
		k.set(TriggeredDurationsKey(start), "[]")
		st.Session = SessionState{Start: start, Triggered: []float64{}}
	} else {
		slog.Info("continuing session",
			"start", time.UnixMilli(start).Format(time.DateTime),
			"offline", offlineString(lastActive, nowMs))
		triggered := []float64{}
		key := TriggeredDurationsKey(start)
		if raw, ok := k.get(key); ok {
			triggered = parseDurations(key, raw)
		}
		st.Session = SessionState{Start: start, Triggered: triggered}
	}

	st.Daily = loadDaily(k, now)

	st.Session.LastActive = nowMs
	k.set(KeyLastActive, strconv.FormatInt(nowMs, 10))

	return st, k.err()
}

// loadDaily returns today's fixed-time state, resetting the stored state
// when it belongs to another day.
func loadDaily(k *kv, now time.Time) DailyState {
	today := now.Format(dateLayout)
	if date, ok := k.get(KeyFixedTimesDate); ok && date == today {
		triggered := []string{}
		if raw, ok := k.get(KeyFixedTimesList); ok {
			triggered = parseFixedTimes(KeyFixedTimesList, raw)
		}
		return DailyState{Date: today, Triggered: triggered}
	}
	return resetDaily(k, today)
}

func resetDaily(k *kv, today string) DailyState {
	k.set(KeyFixedTimesDate, today)
	k.set(KeyFixedTimesList, "[]")
	return DailyState{Date: today, Triggered: []string{}}
}

func offlineString(lastActive, nowMs int64) string {
	if lastActive == 0 {
		return "n/a"
	}
	return (time.Duration(nowMs-lastActive) * time.Millisecond).String()
}

// ///////////////////////////////////////////////
// Tick
// ///////////////////////////////////////////////

// Tick refreshes last-active and returns a notification for every enabled
// threshold newly crossed at now, updating and persisting the triggered
// sets. Duration thresholds fire in list order once elapsed session time
// reaches them; fixed-time thresholds fire during their local minute. A
// date change resets the daily set before fixed times are checked.
//
// As with [Initialize], store failures are reported in the error while the
// returned State and notifications stay valid.
func Tick(s store.Store, settings config.TrackerConfig, st State, now time.Time) (State, []Notification, error) {
	k := &kv{s: s}
	nowMs := now.UnixMilli()
	var out []Notification

	st.Session.LastActive = nowMs
	k.set(KeyLastActive, strconv.FormatInt(nowMs, 10))

	if settings.EnableDurationTracking && st.Session.Start > 0 {
		elapsedHours := float64(nowMs-st.Session.Start) / float64(time.Hour/time.Millisecond)
		fired := false
		for _, th := range settings.DurationThresholds {
			if !th.Enabled || elapsedHours < th.Value || st.Session.hasTriggered(th.Value) {
				continue
			}
			value := config.FormatHours(th.Value)
			out = append(out, Notification{
				Kind:      KindDuration,
				Threshold: value,
				Message:   fmt.Sprintf(durationMessage, value),
			})
			st.Session.Triggered = append(st.Session.Triggered, th.Value)
			fired = true
		}
		if fired {
			k.set(TriggeredDurationsKey(st.Session.Start), encodeList(st.Session.Triggered))
		}
	}

	if settings.EnableFixedTimeTracking {
		today := now.Format(dateLayout)
		if st.Daily.Date != today {
			slog.Info("date changed, resetting fixed time reminders", "from", st.Daily.Date, "to", today)
			st.Daily = resetDaily(k, today)
		}
		current := now.Format(clockLayout)
		fired := false
		for _, th := range settings.FixedTimeThresholds {
			if !th.Enabled || th.Value != current || st.Daily.hasTriggered(th.Value) {
				continue
			}
			out = append(out, Notification{
				Kind:      KindFixedTime,
				Threshold: th.Value,
				Message:   fmt.Sprintf(fixedTimeMessage, th.Value),
			})
			st.Daily.Triggered = append(st.Daily.Triggered, th.Value)
			fired = true
		}
		if fired {
			k.set(KeyFixedTimesList, encodeList(st.Daily.Triggered))
		}
	}

	return st, out, k.err()
}

// ///////////////////////////////////////////////
// Record Activity
// ///////////////////////////////////////////////

// Touch records activity at now by refreshing last-active.
func Touch(s store.Store, st State, now time.Time) (State, error) {
	k := &kv{s: s}
	st.Session.LastActive = now.UnixMilli()
	k.set(KeyLastActive, strconv.FormatInt(st.Session.LastActive, 10))
	return st, k.err()
}

// Load reads the persisted state without changing it, for status display.
// Missing entries are zero values.
func Load(s store.Store) (State, error) {
	k := &kv{s: s}
	var st State
	st.Session.Start = k.millis(KeySessionStart)
	st.Session.LastActive = k.millis(KeyLastActive)
	st.Session.Triggered = []float64{}
	if st.Session.Start > 0 {
		key := TriggeredDurationsKey(st.Session.Start)
		if raw, ok := k.get(key); ok {
			st.Session.Triggered = parseDurations(key, raw)
		}
	}
	st.Daily.Triggered = []string{}
	if date, ok := k.get(KeyFixedTimesDate); ok {
		st.Daily.Date = date
		if raw, ok := k.get(KeyFixedTimesList); ok {
			st.Daily.Triggered = parseFixedTimes(KeyFixedTimesList, raw)
		}
	}
	return st, k.err()
}
