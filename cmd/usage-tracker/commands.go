package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/yuncengfeihou/usage-tracker2/internal/activity"
	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/logger"
)

// ///////////////////////////////////////////////
// Ping
// ///////////////////////////////////////////////

// PingCmd records user activity for the daemon. Hosts call it on input
// (active), when their window is hidden, and when it becomes visible again.
type PingCmd struct {
	Kind string `arg:"" optional:"" default:"active" enum:"active,hidden,visible" help:"Activity kind (active|hidden|visible)."`
}

func (c *PingCmd) Run(app *App) error {
	kind, err := activity.ParseKind(c.Kind)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(app.Paths.Root, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	_, err = activity.AppendPing(app.Paths.Activity(), activity.NewPing(kind, app.Now()))
	return err
}

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

type SettingsCmd struct {
	Show   SettingsShowCmd   `cmd:"" default:"1" help:"Print the tracker settings."`
	Import SettingsImportCmd `cmd:"" help:"Replace the tracker settings with a host settings JSON object."`
}

type SettingsShowCmd struct {
	JSON bool `help:"Print in the host settings JSON schema."`
}

func (c *SettingsShowCmd) Run(app *App) error {
	cfg, err := config.Load(app.Paths.Root)
	if err != nil {
		return err
	}
	if c.JSON {
		data, err := cfg.Tracker.MarshalHostSettings()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(app.Out, string(data))
		return err
	}
	doc := struct {
		Tracker config.TrackerConfig `toml:"tracker"`
	}{cfg.Tracker}
	return toml.NewEncoder(app.Out).Encode(doc)
}

// SettingsImportCmd reads a settings object exported by the host
// application. Legacy bare threshold lists are upgraded on the way in.
type SettingsImportCmd struct {
	File string `arg:"" help:"JSON file to import, or - for stdin."`
}

func (c *SettingsImportCmd) Run(app *App) error {
	var data []byte
	var err error
	if c.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(c.File)
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	imported, err := config.ParseHostSettings(data)
	if err != nil {
		return err
	}
	err = editConfig(app, func(cfg *config.Config) error {
		// The host schema has no tick interval.
		imported.TickIntervalSeconds = cfg.Tracker.TickIntervalSeconds
		cfg.Tracker = imported
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "imported %d duration and %d fixed-time thresholds\n",
		len(imported.DurationThresholds), len(imported.FixedTimeThresholds))
	return nil
}

// editConfig loads config.toml, applies edit, validates and saves it. A
// running daemon picks the change up through its config watcher.
func editConfig(app *App, edit func(*config.Config) error) error {
	cfg, err := config.Load(app.Paths.Root)
	if err != nil {
		return err
	}
	if err := edit(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(app.Paths.Root, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return cfg.Save(app.Paths.Config())
}

// ///////////////////////////////////////////////
// Thresholds
// ///////////////////////////////////////////////

type ThresholdCmd struct {
	Duration DurationThresholdCmd  `cmd:"" help:"Edit continuous-use reminders (hours)."`
	Time     FixedTimeThresholdCmd `cmd:"" help:"Edit time-of-day reminders (HH:MM)."`
}

type DurationThresholdCmd struct {
	Action string  `arg:"" enum:"add,remove,enable,disable" help:"add|remove|enable|disable"`
	Hours  float64 `arg:"" help:"Threshold in hours, e.g. 1.5."`
}

func (c *DurationThresholdCmd) Run(app *App) error {
	err := editConfig(app, func(cfg *config.Config) error {
		t := &cfg.Tracker
		switch c.Action {
		case "add":
			return t.AddDuration(c.Hours)
		case "remove":
			return t.RemoveDuration(c.Hours)
		case "enable", "disable":
			return t.SetDurationEnabled(c.Hours, c.Action == "enable")
		}
		return fmt.Errorf("unknown action %q", c.Action)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s %sh\n", pastTense(c.Action), config.FormatHours(c.Hours))
	return nil
}

type FixedTimeThresholdCmd struct {
	Action string `arg:"" enum:"add,remove,enable,disable" help:"add|remove|enable|disable"`
	Time   string `arg:"" help:"Local time of day, HH:MM."`
}

func (c *FixedTimeThresholdCmd) Run(app *App) error {
	clock, err := config.ParseClock(c.Time)
	if err != nil {
		return err
	}
	err = editConfig(app, func(cfg *config.Config) error {
		t := &cfg.Tracker
		switch c.Action {
		case "add":
			return t.AddFixedTime(clock)
		case "remove":
			return t.RemoveFixedTime(clock)
		case "enable", "disable":
			return t.SetFixedTimeEnabled(clock, c.Action == "enable")
		}
		return fmt.Errorf("unknown action %q", c.Action)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s %s\n", pastTense(c.Action), clock)
	return nil
}

func pastTense(action string) string {
	if action == "add" {
		return "added"
	}
	return strings.TrimSuffix(action, "e") + "ed"
}

// ///////////////////////////////////////////////
// Permission
// ///////////////////////////////////////////////

type PermissionCmd struct {
	Request PermissionRequestCmd `cmd:"" help:"Ask the native endpoint for notification permission."`
}

type PermissionRequestCmd struct {
	Timeout time.Duration `default:"30s" help:"How long to wait for the user's answer."`
}

func (c *PermissionRequestCmd) Run(app *App) error {
	cfg, err := config.Load(app.Paths.Root)
	if err != nil {
		return err
	}
	d, err := newDispatcher(cfg, app.Out, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	perm, err := d.RequestPermission(ctx)
	fmt.Fprintf(app.Out, "permission: %s\n", perm)
	return err
}

// ///////////////////////////////////////////////
// Logs
// ///////////////////////////////////////////////

type LogsCmd struct {
	Lines int `short:"n" default:"50" help:"Number of lines to print."`
}

func (c *LogsCmd) Run(app *App) error {
	if c.Lines <= 0 {
		return fmt.Errorf("--lines must be positive, got %d", c.Lines)
	}
	tail, err := logger.ReadTail(app.Paths.Log(), c.Lines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no log file at %s; has the daemon run yet?", app.Paths.Log())
		}
		return err
	}
	_, err = fmt.Fprintln(app.Out, tail)
	return err
}
