//go:build !windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes a non-blocking exclusive flock on f.
func lockFile(f *os.File) error {
	return flock(f, unix.LOCK_EX|unix.LOCK_NB, "lock")
}

// unlockFile drops the flock. Closing f does the same.
func unlockFile(f *os.File) error {
	return flock(f, unix.LOCK_UN, "unlock")
}

func flock(f *os.File, how int, op string) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, f.Name(), err)
		}
		return nil
	}
}
