// Package atomicfile replaces files so readers never see a partial write.
// The key/value store, the config file and the activity ping file all go
// through here.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write replaces path with data, leaving it readable with perm.
func Write(path string, data []byte, perm os.FileMode) error {
	return replace(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteJSON encodes v with two-space indentation and a trailing newline.
// An encoding failure leaves the existing file as it was.
func WriteJSON(path string, v any, perm os.FileMode) error {
	return replace(path, perm, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
		}
		return nil
	})
}

// replace fills a temp file beside path and renames it into place once it
// is synced. The temp file never survives a failure.
func replace(path string, perm os.FileMode, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Backup copies data to path+suffix and returns that path. Callers log a
// failed backup and carry on.
func Backup(path, suffix string, data []byte) (string, error) {
	bak := path + suffix
	if err := os.WriteFile(bak, data, 0o600); err != nil {
		return bak, fmt.Errorf("write backup %s: %w", bak, err)
	}
	return bak, nil
}
