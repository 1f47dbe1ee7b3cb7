// Tests for the directory watcher: construction, event delivery, path
// filtering, close semantics, and polling fallback. Exercises [NewWatcher],
// [Watcher.Events], [Watcher.Drain], [Watcher.Close], and [Watcher.Polling].
package activity

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Constructor Tests
// ///////////////////////////////////////////////

func TestNewWatcher(t *testing.T) {
	tests := []struct {
		name    string
		dirs    func(t *testing.T) []string
		wantErr bool
	}{
		{
			name: "existing directory",
			dirs: func(t *testing.T) []string {
				t.Helper()
				return []string{t.TempDir()}
			},
		},
		{
			name: "missing directory falls back",
			dirs: func(t *testing.T) []string {
				t.Helper()
				return []string{filepath.Join(t.TempDir(), "nope")}
			},
		},
		{
			name:    "no directories",
			dirs:    func(t *testing.T) []string { return nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(Options{Dirs: tt.dirs(t)})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWatcher: %v", err)
			}
			if w.Events() == nil {
				t.Error("Events() channel is nil")
			}
			_ = w.Polling()
			if err := w.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestMissingDirectoryPolls(t *testing.T) {
	w, err := NewWatcher(Options{Dirs: []string{filepath.Join(t.TempDir(), "nope")}})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if !w.Polling() {
		t.Error("expected polling mode for a missing directory")
	}
}

// ///////////////////////////////////////////////
// Event Tests
// ///////////////////////////////////////////////

func TestFileChangeTriggerEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	dir := t.TempDir()
	w, err := NewWatcher(Options{Dirs: []string{dir}, PollInterval: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "activity")
	os.WriteFile(path, []byte("active 1\n"), 0o644)

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file change event")
	}

	got := w.Drain()
	if len(got) == 0 || got[0] != path {
		t.Errorf("Drain() = %v, want [%s]", got, path)
	}
	if again := w.Drain(); len(again) != 0 {
		t.Errorf("second Drain() = %v, want empty", again)
	}
}

func TestMatchFiltersEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	dir := t.TempDir()
	w, err := NewWatcher(Options{
		Dirs:         []string{dir},
		Match:        func(p string) bool { return strings.HasSuffix(p, ".jsonl") },
		PollInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)

	select {
	case <-w.Events():
		t.Fatalf("unexpected event for non-matching file: %v", w.Drain())
	case <-time.After(400 * time.Millisecond):
	}

	os.WriteFile(filepath.Join(dir, "chat.jsonl"), []byte("{}"), 0o644)
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for matching file event")
	}
	want := []string{filepath.Join(dir, "chat.jsonl")}
	if got := w.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("Drain() = %v, want %v", got, want)
	}
}

func TestMultipleDirectories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	a, b := t.TempDir(), t.TempDir()
	w, err := NewWatcher(Options{Dirs: []string{a, b}, PollInterval: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(b, "second"), []byte("x"), 0o644)

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event from second directory")
	}
}

// ///////////////////////////////////////////////
// Close Tests
// ///////////////////////////////////////////////

func TestClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	dir := t.TempDir()
	w, err := NewWatcher(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "after"), []byte("x"), 0o644)

	select {
	case <-w.Events():
		t.Error("received event after Close; watcher should be stopped")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := NewWatcher(Options{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Poll Tests
// ///////////////////////////////////////////////

// newPollingWatcher builds a watcher directly in polling mode.
func newPollingWatcher(dirs []string, interval time.Duration) *Watcher {
	w := newWatcher(Options{Dirs: dirs, PollInterval: interval})
	w.fallBack("test", nil)
	return w
}

func TestMtimesAdvanced(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := mtimes{"a": base, "b": base}
	cur := mtimes{"a": base, "b": base.Add(time.Second), "c": base}

	got := prev.advanced(cur)
	slices.Sort(got)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("advanced() = %v, want [b c]", got)
	}
}

func TestPollDetectsModification(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "activity")
	os.WriteFile(path, []byte("active 1\n"), 0o644)

	w := newPollingWatcher([]string{dir}, 100*time.Millisecond)
	defer w.Close()

	time.Sleep(150 * time.Millisecond)
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for poll event")
	}
	if got := w.Drain(); len(got) != 1 || got[0] != path {
		t.Errorf("Drain() = %v, want [%s]", got, path)
	}
}

func TestPollDetectsNewFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}

	dir := t.TempDir()
	w := newPollingWatcher([]string{dir}, 100*time.Millisecond)
	defer w.Close()

	time.Sleep(150 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "new"), []byte("x"), 0o644)

	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for new-file poll event")
	}
}

func TestPollQuietDirectoryNoEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "existing"), []byte("x"), 0o644)
	w := newPollingWatcher([]string{dir, filepath.Join(dir, "missing")}, 100*time.Millisecond)
	defer w.Close()

	select {
	case <-w.Events():
		t.Errorf("unexpected event: %v", w.Drain())
	case <-time.After(350 * time.Millisecond):
	}
}

func TestPollStopsOnClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "activity")
	os.WriteFile(path, []byte("x"), 0o644)

	w := newPollingWatcher([]string{dir}, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	w.Close()
	time.Sleep(100 * time.Millisecond)

	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	select {
	case <-w.Events():
		t.Error("received event after Close; poll should have stopped")
	case <-time.After(300 * time.Millisecond):
	}
}
