package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// pidLock is the running daemon's claim on a data directory. The PID file
// holds "PID:TOKEN" and stays locked until Release.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

// acquirePID locks and stamps the PID file. It fails if another daemon
// holds the lock.
func acquirePID(dp DataPaths) (*pidLock, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	l := &pidLock{path: dp.PID(), token: uuid.NewString(), f: f}
	if err := l.stamp(os.Getpid()); err != nil {
		l.unlock()
		return nil, err
	}
	return l, nil
}

func (l *pidLock) stamp(pid int) error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := l.f.WriteAt([]byte(formatPID(pid, l.token)), 0); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func (l *pidLock) unlock() {
	_ = unlockFile(l.f)
	l.f.Close()
}

// Release drops the lock and removes the file if it still carries our token.
func (l *pidLock) Release() {
	if l == nil {
		return
	}
	l.unlock()
	if _, token, ok := readPID(l.path); ok && token == l.token {
		os.Remove(l.path)
	}
}

func formatPID(pid int, token string) string {
	return strconv.Itoa(pid) + ":" + token
}

func parsePID(s string) (pid int, token string, ok bool) {
	head, token, found := strings.Cut(strings.TrimSpace(s), ":")
	pid, err := strconv.Atoi(head)
	if !found || err != nil {
		return 0, "", false
	}
	return pid, token, true
}

func readPID(path string) (int, string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", false
	}
	return parsePID(string(data))
}

// probePID reports whether a daemon holds the PID file lock. A file nobody
// holds was left by a daemon that died, and is removed.
func probePID(dp DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(dp.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}
	if err := lockFile(f); err != nil {
		f.Close()
		pid, _, _ = readPID(dp.PID())
		return true, pid
	}
	_ = unlockFile(f)
	f.Close()
	os.Remove(dp.PID())
	return false, 0
}
