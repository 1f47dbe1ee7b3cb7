// Package main implements usage-tracker, a daemon that follows how long the
// user has been continuously active and raises reminders at configured
// durations and times of day, plus the CLI used to feed it activity and
// manage its settings.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/alecthomas/kong"
	"github.com/yuncengfeihou/usage-tracker2/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is overridden with -ldflags "-X main.version=...". A plain
// go build leaves "dev" and resolveVersion fills in the VCS revision.
var version = "dev"

func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	return devVersion(info.Settings)
}

// devVersion renders "dev+<short hash>" with ".dirty" for a modified tree.
func devVersion(settings []debug.BuildSetting) string {
	vcs := map[string]string{}
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	v := "dev+" + rev[:min(7, len(rev))]
	if vcs["vcs.modified"] == "true" {
		v += ".dirty"
	}
	return v
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir is the --data-dir default.
func defaultDataDir() string {
	return paths.Default().Root
}

// ///////////////////////////////////////////////
// CLI
// ///////////////////////////////////////////////

// App is passed to every command's Run method.
type App struct {
	Paths   DataPaths
	Version string
	Out     io.Writer
	Now     func() time.Time
}

// CLI is the kong command tree.
type CLI struct {
	Version kong.VersionFlag `help:"Print the version and exit."`
	DataDir string           `name:"data-dir" help:"Data directory for config, state, and logs." type:"path" default:"${data_dir}"`

	Run        RunCmd        `cmd:"" default:"withargs" help:"Run the tracker daemon (default)."`
	Ping       PingCmd       `cmd:"" help:"Report user activity to the daemon."`
	Status     StatusCmd     `cmd:"" help:"Show the current session and reminder state."`
	Settings   SettingsCmd   `cmd:"" help:"Show or import tracker settings."`
	Threshold  ThresholdCmd  `cmd:"" help:"Edit duration and fixed-time reminders."`
	Permission PermissionCmd `cmd:"" help:"Manage native notification permission."`
	Logs       LogsCmd       `cmd:"" help:"Print the end of the daemon log."`
}

func main() {
	ver := resolveVersion()
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name(paths.BinaryName),
		kong.Description("Continuous-usage and time-of-day reminders."),
		kong.UsageOnError(),
		kong.Vars{
			"version":  ver,
			"data_dir": defaultDataDir(),
		},
	)

	app := &App{
		Paths:   DataPaths{Root: cli.DataDir},
		Version: ver,
		Out:     os.Stdout,
		Now:     time.Now,
	}
	if err := ctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
