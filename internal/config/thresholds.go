package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"
)

// Threshold list errors returned by the add/remove/toggle operations.
var (
	ErrInvalidThreshold   = errors.New("invalid threshold")
	ErrDuplicateThreshold = errors.New("threshold already exists")
	ErrThresholdNotFound  = errors.New("threshold not found")
)

// clockLayout is the HH:MM layout used for fixed-time thresholds.
const clockLayout = "15:04"

// ///////////////////////////////////////////////
// Threshold Types
// ///////////////////////////////////////////////

// DurationThreshold fires once per session when continuous usage reaches
// Value hours.
type DurationThreshold struct {
	Value   float64 `toml:"value" json:"value"`
	Enabled bool    `toml:"enabled" json:"enabled"`
}

// FixedTimeThreshold fires once per day during the local minute Value (HH:MM).
type FixedTimeThreshold struct {
	Value   string `toml:"value" json:"value"`
	Enabled bool   `toml:"enabled" json:"enabled"`
}

// DurationThresholds is kept deduplicated and sorted ascending by value.
// Decoding accepts legacy bare numbers and drops entries of the wrong type.
type DurationThresholds []DurationThreshold

// FixedTimeThresholds is kept deduplicated and sorted ascending by value.
// Decoding accepts legacy bare strings and drops entries of the wrong type.
type FixedTimeThresholds []FixedTimeThreshold

// ///////////////////////////////////////////////
// Value Helpers
// ///////////////////////////////////////////////

// FormatHours renders an hour count without trailing zeros: 1, 1.5, 0.25.
func FormatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// ParseClock validates an HH:MM string and returns its canonical
// zero-padded form ("9:05" becomes "09:05").
func ParseClock(s string) (string, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not HH:MM", ErrInvalidThreshold, s)
	}
	return t.Format(clockLayout), nil
}

func validHours(h float64) bool {
	return h > 0 && !math.IsNaN(h) && !math.IsInf(h, 0)
}

// ///////////////////////////////////////////////
// Legacy-Tolerant Decoding
// ///////////////////////////////////////////////

// asList flattens the shapes the TOML and JSON decoders hand us for an array.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// entryEnabled reads the enabled flag of a table entry. A missing flag
// means enabled; a flag of the wrong type rejects the entry.
func entryEnabled(m map[string]any) (bool, bool) {
	raw, ok := m["enabled"]
	if !ok {
		return true, true
	}
	b, ok := raw.(bool)
	return b, ok
}

func decodeDurations(v any) (DurationThresholds, error) {
	items, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("duration thresholds: expected array, got %T", v)
	}
	out := make(DurationThresholds, 0, len(items))
	for i, item := range items {
		var th DurationThreshold
		switch e := item.(type) {
		case map[string]any:
			val, okVal := asFloat(e["value"])
			enabled, okEn := entryEnabled(e)
			if !okVal || !okEn {
				slog.Warn("dropping malformed duration threshold", "index", i, "entry", e)
				continue
			}
			th = DurationThreshold{Value: val, Enabled: enabled}
		default:
			val, okVal := asFloat(e)
			if !okVal {
				slog.Warn("dropping malformed duration threshold", "index", i, "entry", e)
				continue
			}
			th = DurationThreshold{Value: val, Enabled: true}
		}
		if !validHours(th.Value) {
			slog.Warn("dropping non-positive duration threshold", "index", i, "value", th.Value)
			continue
		}
		out = append(out, th)
	}
	return out.Normalize(), nil
}

func decodeFixedTimes(v any) (FixedTimeThresholds, error) {
	items, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("fixed time thresholds: expected array, got %T", v)
	}
	out := make(FixedTimeThresholds, 0, len(items))
	for i, item := range items {
		var th FixedTimeThreshold
		switch e := item.(type) {
		case string:
			th = FixedTimeThreshold{Value: e, Enabled: true}
		case map[string]any:
			val, okVal := e["value"].(string)
			enabled, okEn := entryEnabled(e)
			if !okVal || !okEn {
				slog.Warn("dropping malformed fixed time threshold", "index", i, "entry", e)
				continue
			}
			th = FixedTimeThreshold{Value: val, Enabled: enabled}
		default:
			slog.Warn("dropping malformed fixed time threshold", "index", i, "entry", e)
			continue
		}
		canon, err := ParseClock(th.Value)
		if err != nil {
			slog.Warn("dropping fixed time threshold", "index", i, "error", err)
			continue
		}
		th.Value = canon
		out = append(out, th)
	}
	return out.Normalize(), nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (l *DurationThresholds) UnmarshalTOML(v any) error {
	out, err := decodeDurations(v)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. null yields an empty list.
func (l *DurationThresholds) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out, err := decodeDurations(raw)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (l *FixedTimeThresholds) UnmarshalTOML(v any) error {
	out, err := decodeFixedTimes(v)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. null yields an empty list.
func (l *FixedTimeThresholds) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out, err := decodeFixedTimes(raw)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// ///////////////////////////////////////////////
// Normalization
// ///////////////////////////////////////////////

// Normalize returns the list with duplicates removed (first occurrence
// wins) and sorted ascending.
func (l DurationThresholds) Normalize() DurationThresholds {
	seen := make(map[float64]bool, len(l))
	out := make(DurationThresholds, 0, len(l))
	for _, th := range l {
		if seen[th.Value] {
			continue
		}
		seen[th.Value] = true
		out = append(out, th)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Normalize returns the list with duplicates removed (first occurrence
// wins) and sorted ascending. Canonical HH:MM strings sort chronologically.
func (l FixedTimeThresholds) Normalize() FixedTimeThresholds {
	seen := make(map[string]bool, len(l))
	out := make(FixedTimeThresholds, 0, len(l))
	for _, th := range l {
		if seen[th.Value] {
			continue
		}
		seen[th.Value] = true
		out = append(out, th)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// ///////////////////////////////////////////////
// List Operations
// ///////////////////////////////////////////////

func (l DurationThresholds) index(h float64) int {
	for i, th := range l {
		if th.Value == h {
			return i
		}
	}
	return -1
}

func (l FixedTimeThresholds) index(v string) int {
	for i, th := range l {
		if th.Value == v {
			return i
		}
	}
	return -1
}

// AddDuration inserts an enabled duration threshold of h hours.
func (t *TrackerConfig) AddDuration(h float64) error {
	if !validHours(h) {
		return fmt.Errorf("%w: duration must be a positive number of hours, got %v", ErrInvalidThreshold, h)
	}
	if t.DurationThresholds.index(h) >= 0 {
		return fmt.Errorf("%w: %s hours", ErrDuplicateThreshold, FormatHours(h))
	}
	t.DurationThresholds = append(t.DurationThresholds, DurationThreshold{Value: h, Enabled: true}).Normalize()
	return nil
}

// RemoveDuration deletes the duration threshold of h hours.
func (t *TrackerConfig) RemoveDuration(h float64) error {
	i := t.DurationThresholds.index(h)
	if i < 0 {
		return fmt.Errorf("%w: %s hours", ErrThresholdNotFound, FormatHours(h))
	}
	t.DurationThresholds = append(t.DurationThresholds[:i:i], t.DurationThresholds[i+1:]...)
	return nil
}

// SetDurationEnabled toggles the duration threshold of h hours.
func (t *TrackerConfig) SetDurationEnabled(h float64, enabled bool) error {
	i := t.DurationThresholds.index(h)
	if i < 0 {
		return fmt.Errorf("%w: %s hours", ErrThresholdNotFound, FormatHours(h))
	}
	t.DurationThresholds[i].Enabled = enabled
	return nil
}

// AddFixedTime inserts an enabled fixed-time threshold. The value is
// canonicalized to HH:MM before the duplicate check.
func (t *TrackerConfig) AddFixedTime(hhmm string) error {
	canon, err := ParseClock(hhmm)
	if err != nil {
		return err
	}
	if t.FixedTimeThresholds.index(canon) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateThreshold, canon)
	}
	t.FixedTimeThresholds = append(t.FixedTimeThresholds, FixedTimeThreshold{Value: canon, Enabled: true}).Normalize()
	return nil
}

// RemoveFixedTime deletes the fixed-time threshold hhmm.
func (t *TrackerConfig) RemoveFixedTime(hhmm string) error {
	canon, err := ParseClock(hhmm)
	if err != nil {
		return err
	}
	i := t.FixedTimeThresholds.index(canon)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrThresholdNotFound, canon)
	}
	t.FixedTimeThresholds = append(t.FixedTimeThresholds[:i:i], t.FixedTimeThresholds[i+1:]...)
	return nil
}

// SetFixedTimeEnabled toggles the fixed-time threshold hhmm.
func (t *TrackerConfig) SetFixedTimeEnabled(hhmm string, enabled bool) error {
	canon, err := ParseClock(hhmm)
	if err != nil {
		return err
	}
	i := t.FixedTimeThresholds.index(canon)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrThresholdNotFound, canon)
	}
	t.FixedTimeThresholds[i].Enabled = enabled
	return nil
}
