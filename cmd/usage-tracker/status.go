package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuncengfeihou/usage-tracker2/internal/config"
	"github.com/yuncengfeihou/usage-tracker2/internal/store"
	"github.com/yuncengfeihou/usage-tracker2/internal/tracker"
)

var (
	statusLabelStyle = lipgloss.NewStyle().Bold(true).Width(14)
	statusOnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusOffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// StatusCmd prints the persisted session and reminder state.
type StatusCmd struct{}

func (c *StatusCmd) Run(app *App) error {
	cfg, err := config.Load(app.Paths.Root)
	if err != nil {
		return err
	}
	st, err := store.OpenReadOnly(cfg.Storage.Backend, app.Paths.Root)
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := tracker.Load(st)
	if err != nil {
		return err
	}
	alive, pid := probePID(app.Paths)
	renderStatus(app.Out, statusView{
		Running:  alive,
		PID:      pid,
		Settings: cfg.Tracker,
		State:    state,
		Now:      app.Now(),
	})
	return nil
}

// statusView is everything renderStatus shows.
type statusView struct {
	Running  bool
	PID      int
	Settings config.TrackerConfig
	State    tracker.State
	Now      time.Time
}

func renderStatus(w io.Writer, v statusView) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", statusLabelStyle.Render(label), value)
	}

	if v.Running {
		row("Daemon", statusOnStyle.Render(fmt.Sprintf("running (pid %d)", v.PID)))
	} else {
		row("Daemon", statusOffStyle.Render("stopped"))
	}

	if v.Settings.Enabled {
		row("Tracking", statusOnStyle.Render("enabled")+" notify via "+v.Settings.NotifyType)
	} else {
		row("Tracking", statusOffStyle.Render("disabled"))
	}

	sess := v.State.Session
	if sess.Start == 0 {
		row("Session", statusOffStyle.Render("none"))
	} else {
		start := time.UnixMilli(sess.Start)
		row("Session", fmt.Sprintf("started %s (%s elapsed)",
			start.Format(time.DateTime), v.Now.Sub(start).Truncate(time.Second)))
	}

	if sess.LastActive == 0 {
		row("Last active", statusOffStyle.Render("never"))
	} else {
		last := time.UnixMilli(sess.LastActive)
		idle := v.Now.Sub(last).Truncate(time.Second)
		value := fmt.Sprintf("%s (%s ago)", last.Format(time.DateTime), idle)
		grace := time.Duration(v.Settings.GracePeriodMinutes) * time.Minute
		if idle >= grace {
			value += " " + statusWarnStyle.Render("past grace period, next activity starts a new session")
		}
		row("Last active", value)
	}

	row("Durations", durationSummary(v.Settings, sess))
	row("Fixed times", fixedTimeSummary(v.Settings, v.State.Daily, v.Now))
}

func durationSummary(s config.TrackerConfig, sess tracker.SessionState) string {
	if !s.EnableDurationTracking {
		return statusOffStyle.Render("off")
	}
	if len(s.DurationThresholds) == 0 {
		return statusOffStyle.Render("none")
	}
	parts := make([]string, 0, len(s.DurationThresholds))
	for _, th := range s.DurationThresholds {
		label := config.FormatHours(th.Value) + "h"
		switch {
		case !th.Enabled:
			parts = append(parts, statusOffStyle.Render(label+" (off)"))
		case slices.Contains(sess.Triggered, th.Value):
			parts = append(parts, statusOnStyle.Render(label+" ✓"))
		default:
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, "  ")
}

func fixedTimeSummary(s config.TrackerConfig, daily tracker.DailyState, now time.Time) string {
	if !s.EnableFixedTimeTracking {
		return statusOffStyle.Render("off")
	}
	if len(s.FixedTimeThresholds) == 0 {
		return statusOffStyle.Render("none")
	}
	today := daily.Date == now.Format(time.DateOnly)
	parts := make([]string, 0, len(s.FixedTimeThresholds))
	for _, th := range s.FixedTimeThresholds {
		switch {
		case !th.Enabled:
			parts = append(parts, statusOffStyle.Render(th.Value+" (off)"))
		case today && slices.Contains(daily.Triggered, th.Value):
			parts = append(parts, statusOnStyle.Render(th.Value+" ✓"))
		default:
			parts = append(parts, th.Value)
		}
	}
	return strings.Join(parts, "  ")
}
