// Package tracker implements the Session Tracker: it decides whether a
// launch continues the previous usage session, checks duration and
// time-of-day thresholds on every tick, and remembers which reminders have
// already fired so each one fires at most once per session or per day.
//
// The decision logic lives in the pure functions [Initialize] and [Tick],
// which take and return an explicit [State] and do all I/O through a
// [store.Store]. [Tracker] wraps them with a scheduler, a notifier and
// locking for the daemon.
package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// Persisted Keys
// ///////////////////////////////////////////////

// Store keys. Values are decimal epoch milliseconds, JSON arrays, or a
// YYYY-MM-DD date.
const (
	KeySessionStart             = "usageTracker.sessionStart"
	KeyLastActive               = "usageTracker.lastActive"
	KeyTriggeredDurationsPrefix = "usageTracker.triggeredDurations_"
	KeyFixedTimesDate           = "usageTracker.triggeredFixedTimesDate"
	KeyFixedTimesList           = "usageTracker.triggeredFixedTimesList"
)

// TriggeredDurationsKey returns the key holding the triggered duration
// thresholds of the session that started at start.
func TriggeredDurationsKey(start int64) string {
	return KeyTriggeredDurationsPrefix + strconv.FormatInt(start, 10)
}

// dateLayout is the local calendar date format of the daily state.
const dateLayout = "2006-01-02"

// clockLayout matches fixed-time threshold values.
const clockLayout = "15:04"

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// SessionState is the continuous-usage session.
type SessionState struct {
	// Start is the session start in epoch ms; 0 means no session.
	Start int64
	// LastActive is the last activity in epoch ms; 0 means never.
	LastActive int64
	// Triggered lists the duration thresholds (hours) already notified
	// this session, in firing order.
	Triggered []float64
}

// DailyState tracks fixed-time reminders for one calendar day.
type DailyState struct {
	// Date is the local date (YYYY-MM-DD) Triggered belongs to.
	Date string
	// Triggered lists the HH:MM thresholds already notified on Date.
	Triggered []string
}

// State is everything the tracker persists.
type State struct {
	Session SessionState
	Daily   DailyState
}

func (s SessionState) hasTriggered(h float64) bool {
	for _, v := range s.Triggered {
		if v == h {
			return true
		}
	}
	return false
}

func (d DailyState) hasTriggered(hhmm string) bool {
	for _, v := range d.Triggered {
		if v == hhmm {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Notifications
// ///////////////////////////////////////////////

// NotificationKind says which rule produced a [Notification].
type NotificationKind string

const (
	KindDuration  NotificationKind = "duration"
	KindFixedTime NotificationKind = "fixed_time"
)

// Notification is a newly crossed threshold.
type Notification struct {
	Kind NotificationKind
	// Threshold is the threshold value as the user wrote it ("1.5", "22:00").
	Threshold string
	// Message is the user-facing reminder text.
	Message string
}

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// PersistenceError is a failed store operation. Tracking continues with
// in-memory state when one occurs.
type PersistenceError struct {
	Op  string // "read", "write", "delete" or "list"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Value Codecs
// ///////////////////////////////////////////////

// parseMillis reads an epoch-ms value. Unreadable or negative values count
// as unset.
func parseMillis(key, raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		slog.Warn("ignoring unreadable timestamp", "key", key, "value", raw)
		return 0
	}
	return n
}

// parseDurations decodes a triggered-durations array, keeping only numbers.
func parseDurations(key, raw string) []float64 {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("ignoring unreadable triggered durations", "key", key, "error", err)
		return []float64{}
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		v, ok := item.(float64)
		if !ok {
			slog.Warn("dropping malformed triggered duration", "key", key, "index", i, "entry", item)
			continue
		}
		out = append(out, v)
	}
	return out
}

// parseFixedTimes decodes a triggered fixed-times array, keeping only
// strings.
func parseFixedTimes(key, raw string) []string {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("ignoring unreadable triggered fixed times", "key", key, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		v, ok := item.(string)
		if !ok {
			slog.Warn("dropping malformed triggered fixed time", "key", key, "index", i, "entry", item)
			continue
		}
		out = append(out, v)
	}
	return out
}

func encodeList[T any](items []T) string {
	if items == nil {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		// []float64 and []string only fail on NaN/Inf, which never reach here.
		return "[]"
	}
	return string(data)
}
