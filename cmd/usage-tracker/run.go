package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	rootpkg "github.com/yuncengfeihou/usage-tracker2"
	"github.com/yuncengfeihou/usage-tracker2/internal/activity"
	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/logger"
	"github.com/yuncengfeihou/usage-tracker2/internal/notify"
	"github.com/yuncengfeihou/usage-tracker2/internal/paths"
	"github.com/yuncengfeihou/usage-tracker2/internal/schedule"
	"github.com/yuncengfeihou/usage-tracker2/internal/store"
	"github.com/yuncengfeihou/usage-tracker2/internal/tracker"
)

// ///////////////////////////////////////////////
// Run Command
// ///////////////////////////////////////////////

// RunCmd starts the daemon in the foreground of the calling process.
type RunCmd struct {
	Foreground bool `short:"f" help:"Also write log lines to stderr."`
}

// Run takes the PID lock, loads config, opens the store and runs the event
// loop until SIGINT or SIGTERM.
func (c *RunCmd) Run(app *App) error {
	dp := app.Paths
	if err := dp.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if alive, pid := probePID(dp); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if _, err := os.Stat(dp.Config()); os.IsNotExist(err) {
		if writeErr := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", writeErr)
		}
	}

	cfg, err := config.Load(dp.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var tee io.Writer
	if c.Foreground {
		tee = os.Stderr
	}
	log, logCloser, err := logger.NewLogger(logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Tee:       tee,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("usage-tracker starting", "version", app.Version, "data_dir", dp.Root)

	lock, err := acquirePID(dp)
	if err != nil {
		logger.Fail(log, "failed to claim PID file", "error", err)
		return err
	}
	defer lock.Release()

	st, err := store.Open(cfg.Storage.Backend, dp.Root)
	if err != nil {
		logger.Fail(log, "failed to open store", "backend", cfg.Storage.Backend, "error", err)
		return err
	}
	defer st.Close()

	d, err := newDaemon(dp, cfg, st, log, daemonOptions{Toasts: os.Stderr})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()
	return d.run(ctx)
}

// ///////////////////////////////////////////////
// Notifications
// ///////////////////////////////////////////////

// newDispatcher builds the notification dispatcher for cfg. Toasts go to
// toasts; native notifications go to the configured webhook, if any.
func newDispatcher(cfg *config.Config, toasts io.Writer, log *slog.Logger) (*notify.Dispatcher, error) {
	mode, err := notify.ParseMode(cfg.Tracker.NotifyType)
	if err != nil {
		return nil, err
	}
	native := notify.NewWebhook(notify.WebhookConfig{
		URL:     cfg.Notify.NativeURL,
		Secret:  cfg.Notify.NativeSecret,
		Icon:    cfg.Notify.Icon,
		Timeout: time.Duration(cfg.Notify.NativeTimeoutSeconds) * time.Second,
		Retries: cfg.Notify.NativeRetries,
	})
	toaster := notify.NewWriterToaster(toasts, log)
	return notify.NewDispatcher(mode, cfg.Notify.Title, native, toaster, log), nil
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemonOptions carries the dependencies tests replace.
type daemonOptions struct {
	// Toasts receives rendered toasts.
	Toasts io.Writer
	// Scheduler defaults to a time.Ticker scheduler.
	Scheduler schedule.Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
}

// daemon owns the tracker and everything that feeds it. All tracker calls
// happen on the goroutine running [daemon.run].
type daemon struct {
	paths    DataPaths
	cfg      *config.Config
	log      *slog.Logger
	notifier *notify.Dispatcher
	tracker  *tracker.Tracker
	seq      activity.Sequencer

	// data watches the data dir for pings and config edits.
	data *activity.Watcher
	// extra watches [activity] paths; nil when none are configured.
	extra *activity.Watcher
}

func newDaemon(dp DataPaths, cfg *config.Config, st store.Store, log *slog.Logger, opts daemonOptions) (*daemon, error) {
	notifier, err := newDispatcher(cfg, opts.Toasts, log)
	if err != nil {
		return nil, err
	}
	d := &daemon{
		paths:    dp,
		cfg:      cfg,
		log:      log,
		notifier: notifier,
	}
	d.tracker = tracker.New(tracker.Options{
		Store:     st,
		Settings:  cfg.Tracker,
		Notifier:  notifier,
		Scheduler: opts.Scheduler,
		Now:       opts.Now,
		Logger:    log,
	})
	return d, nil
}

// run starts the watchers, initializes the tracker and processes ticks,
// activity and config changes until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	if err := d.startWatchers(); err != nil {
		return err
	}
	defer d.closeWatchers()

	// Pings logged before this start are not new activity.
	if pings, _, err := activity.ReadPings(d.paths.Activity()); err == nil {
		d.seq.Fresh(pings)
	}

	// Persistence failures are logged and surfaced by the tracker.
	_ = d.tracker.Initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("received shutdown signal")
			d.tracker.Shutdown()
			return nil

		case <-d.tracker.Ticks():
			_, _ = d.tracker.Tick(ctx)

		case <-d.data.Events():
			d.handleDataChanges(ctx, d.data.Drain())

		case <-d.extraEvents():
			if changed := d.extra.Drain(); len(changed) > 0 {
				logger.Trace(d.log, "activity files changed", "files", changed)
				d.recordActivity(ctx, activity.KindActive)
			}
		}
	}
}

// ///////////////////////////////////////////////
// Watchers
// ///////////////////////////////////////////////

func (d *daemon) startWatchers() error {
	data, err := activity.NewWatcher(activity.Options{
		Dirs:         []string{d.paths.Root},
		Match:        isDaemonFile,
		PollInterval: d.pollInterval(),
	})
	if err != nil {
		return fmt.Errorf("watch data dir: %w", err)
	}
	d.data = data
	if data.Polling() {
		slog.Info("using polling mode for data dir")
	}
	d.restartExtraWatcher()
	return nil
}

// restartExtraWatcher (re)creates the watcher for [activity] paths from the
// current config. A watcher that cannot start is logged and skipped.
func (d *daemon) restartExtraWatcher() {
	if d.extra != nil {
		d.extra.Close()
		d.extra = nil
	}
	dirs := expandDirs(d.cfg.Activity.Paths)
	if len(dirs) == 0 {
		return
	}
	w, err := activity.NewWatcher(activity.Options{
		Dirs:         dirs,
		Match:        activityMatcher(d.cfg, dirs),
		PollInterval: d.pollInterval(),
	})
	if err != nil {
		slog.Warn("failed to watch activity paths", "paths", dirs, "error", err)
		return
	}
	d.extra = w
	slog.Info("watching activity paths", "paths", dirs, "polling", w.Polling())
}

func (d *daemon) closeWatchers() {
	if d.data != nil {
		d.data.Close()
	}
	if d.extra != nil {
		d.extra.Close()
	}
}

// extraEvents returns nil, which blocks forever in a select, when no
// activity paths are watched.
func (d *daemon) extraEvents() <-chan struct{} {
	if d.extra == nil {
		return nil
	}
	return d.extra.Events()
}

func (d *daemon) pollInterval() time.Duration {
	return time.Duration(d.cfg.Activity.PollIntervalSeconds) * time.Second
}

// isDaemonFile matches the data-dir files the daemon reacts to.
func isDaemonFile(path string) bool {
	switch filepath.Base(path) {
	case paths.ActivityFile, paths.ConfigFile:
		return true
	}
	return false
}

// activityMatcher matches a changed file against the configured patterns
// relative to the watched directory it lives in.
func activityMatcher(cfg *config.Config, dirs []string) func(string) bool {
	return func(path string) bool {
		for _, dir := range dirs {
			rel, err := filepath.Rel(dir, path)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			return cfg.IsActivityPath(rel)
		}
		return false
	}
}

// expandDirs resolves a leading ~ and drops empty entries.
func expandDirs(dirs []string) []string {
	var out []string
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if dir == "~" || strings.HasPrefix(dir, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
			}
		}
		out = append(out, filepath.Clean(dir))
	}
	return out
}

// ///////////////////////////////////////////////
// Event Handling
// ///////////////////////////////////////////////

func (d *daemon) handleDataChanges(ctx context.Context, changed []string) {
	for _, path := range changed {
		switch filepath.Base(path) {
		case paths.ConfigFile:
			d.reload(ctx)
		case paths.ActivityFile:
			d.handlePing(ctx)
		}
	}
}

// handlePing replays every ping logged since the last one handled, in
// order, so a visible followed by quick input still re-evaluates the
// session.
func (d *daemon) handlePing(ctx context.Context) {
	pings, malformed, err := activity.ReadPings(d.paths.Activity())
	if err != nil {
		slog.Warn("ignoring unreadable activity log", "error", err)
		return
	}
	if malformed > 0 {
		slog.Warn("skipping malformed activity pings", "count", malformed)
	}
	fresh := d.seq.Fresh(pings)
	if len(fresh) == 0 {
		logger.Trace(d.log, "no new activity pings")
		return
	}
	for _, p := range fresh {
		d.recordActivity(ctx, p.Kind)
	}
}

func (d *daemon) recordActivity(ctx context.Context, kind activity.Kind) {
	slog.Debug("activity", "kind", string(kind))
	if err := d.tracker.RecordActivity(ctx, kind); err != nil {
		var pe *tracker.PersistenceError
		if !errors.As(err, &pe) {
			slog.Warn("failed to record activity", "kind", string(kind), "error", err)
		}
	}
}

// reload re-reads config.toml and applies the tracker and activity
// sections. An invalid file keeps the previous settings.
func (d *daemon) reload(ctx context.Context) {
	cfg, err := config.Load(d.paths.Root)
	if err != nil {
		slog.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	prev := d.cfg
	d.cfg = cfg

	prevMode := d.notifier.Mode()
	mode, err := notify.ParseMode(cfg.Tracker.NotifyType)
	if err == nil {
		d.notifier.SetMode(mode)
	}
	if err := d.tracker.UpdateSettings(cfg.Tracker); err != nil {
		slog.Warn("applying tracker settings hit a store error", "error", err)
	}
	slog.Info("config reloaded",
		"enabled", cfg.Tracker.Enabled,
		"notify_type", cfg.Tracker.NotifyType,
		"durations", len(cfg.Tracker.DurationThresholds),
		"fixed_times", len(cfg.Tracker.FixedTimeThresholds))

	if mode.WantsNative() && !prevMode.WantsNative() {
		perm, permErr := d.notifier.RequestPermission(ctx)
		slog.Info("requested native notification permission", "permission", perm.String(), "error", permErr)
	}

	if !slices.Equal(prev.Activity.Paths, cfg.Activity.Paths) ||
		!slices.Equal(prev.Activity.Patterns, cfg.Activity.Patterns) ||
		prev.Activity.PollIntervalSeconds != cfg.Activity.PollIntervalSeconds {
		d.restartExtraWatcher()
	}
	var restart []string
	if prev.Storage != cfg.Storage {
		restart = append(restart, "storage")
	}
	if prev.Log != cfg.Log {
		restart = append(restart, "log")
	}
	if prev.Notify != cfg.Notify {
		restart = append(restart, "notify")
	}
	if len(restart) > 0 {
		slog.Info("restart to apply changed sections", "sections", restart)
	}
}
