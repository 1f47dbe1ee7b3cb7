//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop the daemon: Ctrl+C and the SIGTERM sent by systemd,
// launchd and container runtimes.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
