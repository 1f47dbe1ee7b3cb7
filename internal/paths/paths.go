// Package paths names the files kept in the usage-tracker data directory.
package paths

import (
	"os"
	"path/filepath"
)

const (
	BinaryName = "usage-tracker"
	// DataDirRel is the data directory relative to $HOME.
	DataDirRel = ".usage-tracker"
)

// File names inside the data directory.
const (
	ConfigFile   = "config.toml"
	ActivityFile = "activity"
	StoreFile    = "store.json"
	StoreDBFile  = "store.db"
	LogFile      = "tracker.log"
	PIDFile      = "tracker.pid"
)

// DataDir is a data directory. An empty Root leaves names relative to the
// working directory.
type DataDir struct {
	Root string
}

// Default is ~/.usage-tracker, or ./.usage-tracker when the home directory
// is unknown.
func Default() DataDir {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}
}

// Ensure creates the directory, private to the current user.
func (d DataDir) Ensure() error {
	return os.MkdirAll(d.Root, 0o700)
}

func (d DataDir) file(name string) string { return filepath.Join(d.Root, name) }

func (d DataDir) Config() string   { return d.file(ConfigFile) }
func (d DataDir) Activity() string { return d.file(ActivityFile) }
func (d DataDir) Store() string    { return d.file(StoreFile) }
func (d DataDir) StoreDB() string  { return d.file(StoreDBFile) }
func (d DataDir) Log() string      { return d.file(LogFile) }
func (d DataDir) PID() string      { return d.file(PIDFile) }
