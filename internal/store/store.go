// Package store persists the tracker's string key/value entries. Three
// backends implement [Store]: an in-memory map, a JSON document written with
// atomic renames, and a SQLite table.
package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuncengfeihou/usage-tracker2/internal/paths"
)

// Store is a flat string key/value store. Get reports ok=false for a
// missing key. Keys returns every key with the given prefix in ascending
// order. Implementations are safe for concurrent use.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the backend named by backend, rooted at dataDir. An empty
// name selects the JSON file backend.
func Open(backend, dataDir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return OpenFile(filepath.Join(dataDir, paths.StoreFile))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, paths.StoreDBFile))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// OpenReadOnly is [Open] for readers that run alongside the daemon. It never
// creates, repairs, or migrates anything on disk, and the file backend
// rejects mutations with [ErrReadOnly].
func OpenReadOnly(backend, dataDir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return OpenFileReadOnly(filepath.Join(dataDir, paths.StoreFile))
	case BackendSQLite:
		return OpenSQLiteReadOnly(filepath.Join(dataDir, paths.StoreDBFile))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
