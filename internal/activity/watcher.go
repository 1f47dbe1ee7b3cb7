// Package activity turns outside signals into tracker activity: the ping
// file written by `usage-tracker ping`, the config file, and any extra
// directories the user asks to watch.
package activity

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = 2 * time.Second

// Options configures a [Watcher].
type Options struct {
	// Dirs are watched non-recursively. A missing directory forces polling,
	// which picks the directory up once it appears.
	Dirs []string
	// Match filters changed files by full path. Nil matches everything.
	Match func(path string) bool
	// PollInterval applies in polling mode. Zero means 2s.
	PollInterval time.Duration
}

// Watcher reports changed files in a set of directories. It prefers
// fsnotify and drops to mtime polling when fsnotify cannot cover every
// directory or fails later on.
type Watcher struct {
	opts Options

	// signal holds at most one pending wakeup; bursts coalesce into it.
	signal  chan struct{}
	done    chan struct{}
	closing sync.Once
	polling atomic.Bool

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	changed map[string]struct{}
}

func newWatcher(opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Watcher{
		opts:    opts,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		changed: make(map[string]struct{}),
	}
}

// NewWatcher starts watching opts.Dirs.
func NewWatcher(opts Options) (*Watcher, error) {
	if len(opts.Dirs) == 0 {
		return nil, errors.New("activity watcher: no directories")
	}
	w := newWatcher(opts)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.fallBack("fsnotify unavailable", err)
		return w, nil
	}
	for _, dir := range opts.Dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			w.fallBack("cannot watch "+dir, err)
			return w, nil
		}
	}
	w.fsw = fsw
	go w.listen(fsw)
	return w, nil
}

func (w *Watcher) fallBack(reason string, err error) {
	slog.Info("activity watcher polling", "reason", reason, "error", err, "interval", w.opts.PollInterval)
	w.polling.Store(true)
	go w.poll()
}

func (w *Watcher) wants(path string) bool {
	return w.opts.Match == nil || w.opts.Match(path)
}

func (w *Watcher) listen(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.record(ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.fsw = nil
			w.mu.Unlock()
			fsw.Close()
			w.fallBack("fsnotify error", err)
			return
		}
	}
}

// mtimes maps file paths to their last modification time.
type mtimes map[string]time.Time

// advanced lists paths that are new in cur or newer than in prev.
func (prev mtimes) advanced(cur mtimes) []string {
	var out []string
	for path, mod := range cur {
		if old, ok := prev[path]; !ok || mod.After(old) {
			out = append(out, path)
		}
	}
	return out
}

func (w *Watcher) poll() {
	last := w.stat()
	t := time.NewTicker(w.opts.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			cur := w.stat()
			for _, path := range last.advanced(cur) {
				w.record(path)
			}
			last = cur
		}
	}
}

// stat reads the mtimes of files in the watched directories. Unreadable
// directories and files are skipped.
func (w *Watcher) stat() mtimes {
	out := mtimes{}
	for _, dir := range w.opts.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if !w.wants(path) {
				continue
			}
			if info, err := e.Info(); err == nil {
				out[path] = info.ModTime()
			}
		}
	}
	return out
}

func (w *Watcher) record(path string) {
	if !w.wants(path) {
		return
	}
	w.mu.Lock()
	w.changed[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Drain returns the paths that changed since the last call, sorted.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.changed))
	for p := range w.changed {
		out = append(out, p)
	}
	clear(w.changed)
	slices.Sort(out)
	return out
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events receives a value when something changed. Call [Watcher.Drain]
// to learn what.
func (w *Watcher) Events() <-chan struct{} {
	return w.signal
}

// Close stops the watcher. Further calls do nothing.
func (w *Watcher) Close() error {
	var err error
	w.closing.Do(func() {
		close(w.done)
		w.mu.Lock()
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		if fsw != nil {
			err = fsw.Close()
		}
	})
	return err
}
