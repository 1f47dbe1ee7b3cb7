// Package config provides configuration loading and defaults for the
// usage-tracker daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The [tracker] section is the settings object of the original host
// extension (enable flags, notify type, grace period, threshold lists); the
// remaining sections configure notification delivery, activity sources,
// persistence and logging.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuncengfeihou/usage-tracker2/internal/atomicfile"
	"github.com/yuncengfeihou/usage-tracker2/internal/migrate"
	"github.com/yuncengfeihou/usage-tracker2/internal/notify"
	"github.com/yuncengfeihou/usage-tracker2/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Tracker holds the session and threshold settings.
	Tracker TrackerConfig `toml:"tracker"`
	// Notify holds notification delivery settings.
	Notify NotifyConfig `toml:"notify"`
	// Activity holds the sources that count as user activity.
	Activity ActivityConfig `toml:"activity"`
	// Storage selects the key/value persistence backend.
	Storage StorageConfig `toml:"storage"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// TrackerConfig is the tracker settings object. JSON tags follow the host
// application's settings schema so it can be imported verbatim.
type TrackerConfig struct {
	// Enabled turns the whole tracker on or off.
	Enabled bool `toml:"enabled" json:"enabled"`
	// NotifyType is "toast", "browser" or "both".
	NotifyType string `toml:"notify_type" json:"notifyType"`
	// EnableDurationTracking turns continuous-usage thresholds on.
	EnableDurationTracking bool `toml:"enable_duration_tracking" json:"enableDurationTracking"`
	// GracePeriodMinutes is the inactivity gap that still continues a session.
	GracePeriodMinutes int `toml:"grace_period_minutes" json:"gracePeriodMinutes"`
	// DurationThresholds lists continuous-usage reminders in hours.
	DurationThresholds DurationThresholds `toml:"duration_thresholds" json:"durationThresholds"`
	// EnableFixedTimeTracking turns time-of-day thresholds on.
	EnableFixedTimeTracking bool `toml:"enable_fixed_time_tracking" json:"enableFixedTimeTracking"`
	// FixedTimeThresholds lists HH:MM reminders, each fired once per day.
	FixedTimeThresholds FixedTimeThresholds `toml:"fixed_time_thresholds" json:"fixedTimeThresholds"`
	// TickIntervalSeconds is how often thresholds are evaluated.
	TickIntervalSeconds int `toml:"tick_interval_seconds" json:"-"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	// Title is the heading used for native notifications and toasts.
	Title string `toml:"title"`
	// Icon is passed to the native endpoint as the notification icon.
	Icon string `toml:"icon,omitempty"`
	// NativeURL is the native notification endpoint. Empty means native
	// notifications are unsupported and browser mode falls back to toasts.
	NativeURL string `toml:"native_url,omitempty"`
	// NativeSecret is sent in the X-Usage-Tracker-Secret header.
	NativeSecret string `toml:"native_secret,omitempty"`
	// NativeTimeoutSeconds bounds each request to the native endpoint.
	NativeTimeoutSeconds int `toml:"native_timeout_seconds"`
	// NativeRetries is the retry budget for the native endpoint.
	NativeRetries int `toml:"native_retries"`
}

// ActivityConfig lists extra places whose file changes count as activity.
type ActivityConfig struct {
	// Paths are directories watched in addition to the data directory.
	Paths []string `toml:"paths"`
	// Patterns are doublestar globs matched against a changed file relative to
	// its watched directory; empty means any.
	Patterns []string `toml:"patterns"`
	// PollIntervalSeconds is the stat interval when fsnotify is unavailable.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "file" (JSON document) or "sqlite".
	Backend string `toml:"backend"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultTracker returns the tracker settings used when nothing is saved.
func DefaultTracker() TrackerConfig {
	return TrackerConfig{
		Enabled:                true,
		NotifyType:             "toast",
		EnableDurationTracking: true,
		GracePeriodMinutes:     5,
		DurationThresholds: DurationThresholds{
			{Value: 1, Enabled: true},
			{Value: 2, Enabled: true},
		},
		EnableFixedTimeTracking: false,
		FixedTimeThresholds: FixedTimeThresholds{
			{Value: "22:00", Enabled: true},
		},
		TickIntervalSeconds: 15,
	}
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.Current,
		Tracker: DefaultTracker(),
		Notify: NotifyConfig{
			Title:                "Usage reminder",
			NativeTimeoutSeconds: 5,
			NativeRetries:        2,
		},
		Activity: ActivityConfig{
			Paths:               []string{},
			Patterns:            []string{},
			PollIntervalSeconds: 2,
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml. A missing file yields
// DefaultConfig. Older schema versions are backed up to config.toml.bak,
// migrated and re-saved.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parse(path, data)
}

// parse decodes data onto the defaults, migrating it first when needed.
func parse(path string, data []byte) (*Config, error) {
	version := PeekVersion(data)

	migrated := migrate.Config.Outdated(version)
	if migrated {
		if _, bakErr := atomicfile.Backup(path, ".bak", data); bakErr != nil {
			slog.Warn("failed to write config backup", "error", bakErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Upgrade(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	cfg.Version = migrate.Config.Current
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// normalize canonicalizes values that have several accepted spellings.
func (c *Config) normalize() {
	if m, err := notify.ParseMode(c.Tracker.NotifyType); err == nil {
		c.Tracker.NotifyType = m.String()
	}
	c.Tracker.DurationThresholds = c.Tracker.DurationThresholds.Normalize()
	c.Tracker.FixedTimeThresholds = c.Tracker.FixedTimeThresholds.Normalize()
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
}

// ///////////////////////////////////////////////
// Host Settings
// ///////////////////////////////////////////////

// ParseHostSettings merges a host settings object (camelCase JSON) over
// DefaultTracker. Legacy bare threshold values are upgraded and malformed
// entries dropped, exactly as for config.toml.
func ParseHostSettings(data []byte) (TrackerConfig, error) {
	t := DefaultTracker()
	if err := json.Unmarshal(data, &t); err != nil {
		return TrackerConfig{}, fmt.Errorf("parse host settings: %w", err)
	}
	cfg := DefaultConfig()
	cfg.Tracker = t
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return TrackerConfig{}, fmt.Errorf("validate host settings: %w", err)
	}
	return cfg.Tracker, nil
}

// MarshalHostSettings renders the tracker settings in the host schema.
func (t TrackerConfig) MarshalHostSettings() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, err := notify.ParseMode(c.Tracker.NotifyType); err != nil {
		return err
	}

	if c.Tracker.GracePeriodMinutes < 0 {
		return fmt.Errorf("grace_period_minutes must be >= 0, got %d", c.Tracker.GracePeriodMinutes)
	}

	if c.Tracker.TickIntervalSeconds <= 0 {
		return fmt.Errorf("tick_interval_seconds must be > 0, got %d", c.Tracker.TickIntervalSeconds)
	}

	for _, th := range c.Tracker.DurationThresholds {
		if !validHours(th.Value) {
			return fmt.Errorf("duration threshold %v must be a positive number of hours", th.Value)
		}
	}

	for _, th := range c.Tracker.FixedTimeThresholds {
		if _, err := ParseClock(th.Value); err != nil {
			return fmt.Errorf("fixed time threshold: %w", err)
		}
	}

	if c.Notify.NativeURL != "" {
		u, err := url.Parse(c.Notify.NativeURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid native_url %q: must be an http(s) URL", c.Notify.NativeURL)
		}
	}

	if c.Notify.NativeTimeoutSeconds <= 0 {
		return fmt.Errorf("native_timeout_seconds must be > 0, got %d", c.Notify.NativeTimeoutSeconds)
	}

	if c.Notify.NativeRetries < 0 {
		return fmt.Errorf("native_retries must be >= 0, got %d", c.Notify.NativeRetries)
	}

	for _, p := range c.Activity.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid activity pattern %q", p)
		}
	}

	if c.Activity.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be > 0, got %d", c.Activity.PollIntervalSeconds)
	}

	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid storage.backend %q: must be file or sqlite", c.Storage.Backend)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	return nil
}

// ///////////////////////////////////////////////
// Activity Helpers
// ///////////////////////////////////////////////

// IsActivityPath reports whether a change to path counts as user activity.
// With no patterns configured every file under a watched path counts.
func (c *Config) IsActivityPath(path string) bool {
	if len(c.Activity.Patterns) == 0 {
		return true
	}
	slashed := filepath.ToSlash(path)
	for _, pattern := range c.Activity.Patterns {
		matched, err := doublestar.Match(pattern, slashed)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
