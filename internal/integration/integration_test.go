// Package integration holds end-to-end tests that wire config.toml, the
// persistent stores, the tracker and the native notification webhook
// together the way the daemon does.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/notify"
	"github.com/yuncengfeihou/usage-tracker2/internal/paths"
	"github.com/yuncengfeihou/usage-tracker2/internal/schedule"
	"github.com/yuncengfeihou/usage-tracker2/internal/store"
	"github.com/yuncengfeihou/usage-tracker2/internal/tracker"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// nativeEndpoint is a fake tray helper recording every notification.
type nativeEndpoint struct {
	mu         sync.Mutex
	permission string
	bodies     []string
	secrets    []string
}

func (e *nativeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secrets = append(e.secrets, r.Header.Get(notify.SecretHeader))

	if strings.HasSuffix(r.URL.Path, "/permission") {
		if r.Method == http.MethodPost && e.permission == "default" {
			e.permission = "granted"
		}
		json.NewEncoder(w).Encode(map[string]string{"permission": e.permission})
		return
	}
	var payload struct {
		Body string `json:"body"`
	}
	json.NewDecoder(r.Body).Decode(&payload)
	e.bodies = append(e.bodies, payload.Body)
	w.WriteHeader(http.StatusNoContent)
}

func (e *nativeEndpoint) received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

// writeConfig writes a config.toml into dataDir.
func writeConfig(t *testing.T, dataDir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dataDir, paths.ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// stack is one daemon lifetime: config, store, dispatcher and tracker.
type stack struct {
	cfg     *config.Config
	store   store.Store
	tracker *tracker.Tracker
	sched   *schedule.Manual
	toasts  *bytes.Buffer
}

func start(t *testing.T, dataDir string, now func() time.Time) *stack {
	t.Helper()
	cfg, err := config.Load(dataDir)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	st, err := store.Open(cfg.Storage.Backend, dataDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	mode, err := notify.ParseMode(cfg.Tracker.NotifyType)
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}

	s := &stack{cfg: cfg, store: st, sched: schedule.NewManual(), toasts: &bytes.Buffer{}}
	native := notify.NewWebhook(notify.WebhookConfig{
		URL:     cfg.Notify.NativeURL,
		Secret:  cfg.Notify.NativeSecret,
		Timeout: 2 * time.Second,
		Retries: 1,
	})
	dispatcher := notify.NewDispatcher(mode, cfg.Notify.Title, native, notify.NewWriterToaster(s.toasts, nil), nil)
	s.tracker = tracker.New(tracker.Options{
		Store:     st,
		Settings:  cfg.Tracker,
		Notifier:  dispatcher,
		Scheduler: s.sched,
		Now:       now,
	})
	if err := s.tracker.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func (s *stack) stop(t *testing.T) {
	t.Helper()
	s.tracker.Shutdown()
	if err := s.store.Close(); err != nil {
		t.Fatalf("store.Close: %v", err)
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// ///////////////////////////////////////////////
// Tests
// ///////////////////////////////////////////////

// TestRestartAcrossBackends restarts the tracker within and past the grace
// period on both persistent backends and checks reminders never repeat
// within a session.
func TestRestartAcrossBackends(t *testing.T) {
	for _, backend := range []string{store.BackendFile, store.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dataDir := t.TempDir()
			writeConfig(t, dataDir, `version = 2

[tracker]
grace_period_minutes = 5

[[tracker.duration_thresholds]]
value = 1
enabled = true

[storage]
backend = "`+backend+`"
`)
			c := &clock{now: time.Date(2024, time.May, 6, 9, 0, 0, 0, time.Local)}
			ctx := context.Background()

			s := start(t, dataDir, c.Now)
			c.Set(c.Now().Add(time.Hour))
			notes, err := s.tracker.Tick(ctx)
			if err != nil || len(notes) != 1 {
				t.Fatalf("first lifetime Tick = %v, %v; want the 1h reminder", notes, err)
			}
			sessionStart := s.tracker.State().Session.Start
			s.stop(t)

			// Back after four minutes: same session, no repeat.
			c.Set(c.Now().Add(4 * time.Minute))
			s = start(t, dataDir, c.Now)
			if got := s.tracker.State().Session.Start; got != sessionStart {
				t.Errorf("restart within grace: start %d, want %d", got, sessionStart)
			}
			c.Set(c.Now().Add(15 * time.Second))
			if notes, _ := s.tracker.Tick(ctx); len(notes) != 0 {
				t.Errorf("reminder repeated after restart: %+v", notes)
			}
			s.stop(t)

			// Back after an hour: new session.
			c.Set(c.Now().Add(time.Hour))
			s = start(t, dataDir, c.Now)
			defer s.stop(t)
			if got := s.tracker.State().Session.Start; got != c.Now().UnixMilli() {
				t.Errorf("restart past grace: start %d, want now", got)
			}
			keys, err := s.store.Keys(tracker.KeyTriggeredDurationsPrefix)
			if err != nil || len(keys) != 1 {
				t.Errorf("triggered keys = %v, %v; want only the new session's", keys, err)
			}
		})
	}
}

// TestNativeDelivery sends reminders through the webhook with permission
// requested on first use.
func TestNativeDelivery(t *testing.T) {
	endpoint := &nativeEndpoint{permission: "default"}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	dataDir := t.TempDir()
	writeConfig(t, dataDir, `version = 2

[tracker]
notify_type = "browser"
enable_fixed_time_tracking = true

[[tracker.fixed_time_thresholds]]
value = "21:30"
enabled = true

[notify]
title = "Usage"
native_url = "`+srv.URL+`/notify"
native_secret = "s3cret"
`)
	c := &clock{now: time.Date(2024, time.May, 6, 21, 0, 0, 0, time.Local)}
	s := start(t, dataDir, c.Now)
	defer s.stop(t)

	c.Set(time.Date(2024, time.May, 6, 21, 30, 10, 0, time.Local))
	if _, err := s.tracker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got := endpoint.received()
	if len(got) != 1 || got[0] != "Reminder time reached: 21:30" {
		t.Errorf("native notifications = %q", got)
	}
	if s.toasts.Len() != 0 {
		t.Errorf("granted browser mode also toasted: %q", s.toasts.String())
	}
	for _, secret := range endpoint.secrets {
		if secret != "s3cret" {
			t.Errorf("request carried secret %q", secret)
		}
	}
}

// TestLegacyConfigUpgrade loads a v1 config with bare threshold lists and
// checks the upgraded thresholds drive the tracker.
func TestLegacyConfigUpgrade(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir, `[tracker]
notify_type = "toastr"
duration_thresholds = [0.5, 2, 0.5]
fixed_time_thresholds = ["23:00"]
`)
	c := &clock{now: time.Date(2024, time.May, 6, 9, 0, 0, 0, time.Local)}
	s := start(t, dataDir, c.Now)
	defer s.stop(t)

	if s.cfg.Tracker.NotifyType != "toast" {
		t.Errorf("NotifyType = %q, want toast", s.cfg.Tracker.NotifyType)
	}
	if _, err := os.Stat(filepath.Join(dataDir, paths.ConfigFile+".bak")); err != nil {
		t.Errorf("legacy config was not backed up: %v", err)
	}

	c.Set(c.Now().Add(31 * time.Minute))
	notes, _ := s.tracker.Tick(context.Background())
	if len(notes) != 1 || notes[0].Threshold != "0.5" {
		t.Fatalf("notes = %+v, want the 0.5h reminder", notes)
	}
	if !strings.Contains(s.toasts.String(), "continuously for 0.5 hour(s)!") {
		t.Errorf("toast output = %q", s.toasts.String())
	}
}
