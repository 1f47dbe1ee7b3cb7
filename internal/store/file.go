package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/yuncengfeihou/usage-tracker2/internal/atomicfile"
	"github.com/yuncengfeihou/usage-tracker2/internal/migrate"
)

// FileStore keeps every entry in one JSON document:
//
//	{"$version": 1, "entries": {"key": "value", ...}}
//
// The whole document is rewritten atomically on each mutation.
type FileStore struct {
	path     string
	readOnly bool

	mu      sync.Mutex
	entries map[string]string
}

type document struct {
	Version int               `json:"$version"`
	Entries map[string]string `json:"entries"`
}

// rawDocument is decoded first so one bad entry does not discard the rest.
type rawDocument struct {
	Version int                        `json:"$version"`
	Entries map[string]json.RawMessage `json:"entries"`
}

// OpenFile loads the store at path, creating its directory if needed. A
// missing file is an empty store. A file that is not valid JSON is copied to
// path.corrupted and replaced with an empty document; entries whose value is
// not a string are dropped.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &FileStore{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	entries, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// ErrReadOnly is returned by mutations on a store opened with
// [OpenFileReadOnly].
var ErrReadOnly = errors.New("store is read-only")

// OpenFileReadOnly loads the store at path without ever writing to disk. A
// corrupted file reads as empty and an outdated or future document is
// decoded in memory only; the file and its directory are left as found.
func OpenFileReadOnly(path string) (*FileStore, error) {
	s := &FileStore{path: path, readOnly: true, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	entries, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// decode parses data, running migrations and corruption recovery as needed.
func (s *FileStore) decode(data []byte) (map[string]string, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		s.recoverCorrupted(data, err)
		return make(map[string]string), nil
	}
	if raw.Version == 0 {
		raw.Version = 1
	}

	if migrate.Store.Outdated(raw.Version) {
		migrated, _, err := migrate.Store.Upgrade(data, raw.Version)
		if err != nil {
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		raw = rawDocument{}
		if err := json.Unmarshal(migrated, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal migrated store: %w", err)
		}
		raw.Version = migrate.Store.Current
		defer s.resave("migrated")
	}

	if raw.Version > migrate.Store.Current && s.readOnly {
		slog.Debug("future store version detected", "version", raw.Version, "current", migrate.Store.Current)
	} else if raw.Version > migrate.Store.Current {
		slog.Warn("future store version detected, normalizing", "version", raw.Version, "current", migrate.Store.Current)
		if _, err := atomicfile.Backup(s.path, fmt.Sprintf(".v%d.bak", raw.Version), data); err != nil {
			slog.Warn("failed to write backup", "path", s.path, "error", err)
		}
		defer s.resave("normalized")
	}

	entries := make(map[string]string, len(raw.Entries))
	for k, v := range raw.Entries {
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			slog.Warn("dropping unreadable store entry", "key", k, "error", err)
			continue
		}
		entries[k] = str
	}
	s.entries = entries
	return entries, nil
}

// recoverCorrupted backs up an unparseable store file and writes a fresh one.
func (s *FileStore) recoverCorrupted(data []byte, parseErr error) {
	if s.readOnly {
		slog.Warn("corrupted store file, reading as empty", "path", s.path, "error", parseErr)
		return
	}
	slog.Warn("corrupted store file, backing up", "path", s.path, "error", parseErr)
	if _, err := atomicfile.Backup(s.path, ".corrupted", data); err != nil {
		slog.Warn("failed to write backup", "path", s.path, "error", err)
	}
	if err := s.save(map[string]string{}); err != nil {
		slog.Warn("failed to save fresh store", "path", s.path, "error", err)
	}
}

func (s *FileStore) resave(reason string) {
	if s.readOnly {
		return
	}
	if err := s.save(s.entries); err != nil {
		slog.Warn("failed to save "+reason+" store", "path", s.path, "error", err)
	}
}

func (s *FileStore) save(entries map[string]string) error {
	doc := document{Version: migrate.Store.Current, Entries: entries}
	if err := atomicfile.WriteJSON(s.path, doc, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Set stores value under key. The in-memory entry is rolled back when the
// write fails.
func (s *FileStore) Set(key, value string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.entries[key]
	s.entries[key] = value
	if err := s.save(s.entries); err != nil {
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.entries[key]
	if !had {
		return nil
	}
	delete(s.entries, key)
	if err := s.save(s.entries); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return matchingKeys(s.entries, prefix), nil
}

func (s *FileStore) Close() error { return nil }
