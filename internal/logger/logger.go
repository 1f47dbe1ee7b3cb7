// Package logger is the daemon's slog setup: a single-line text [Handler]
// with two extra levels (trace below debug, fail above error), a
// lumberjack-rotated log file, and [ReadTail] for the logs command.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures [NewLogger].
type Options struct {
	Path      string
	Level     slog.Level
	MaxSizeMB int
	// Tee also receives every line when set (run --foreground).
	Tee io.Writer
}

// NewLogger opens a rotating log file at opts.Path. Close the returned
// io.Closer on shutdown.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("log path is empty")
	}
	size := opts.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    size,
		MaxBackups: 3,
		MaxAge:     28,
	}
	var w io.Writer = file
	if opts.Tee != nil {
		w = io.MultiWriter(file, opts.Tee)
	}
	return slog.New(NewHandler(w, opts.Level)), file, nil
}

// Trace logs at LevelTrace. A nil logger means slog.Default().
func Trace(l *slog.Logger, msg string, args ...any) {
	logAt(l, LevelTrace, msg, args)
}

// Fail logs at LevelFail. A nil logger means slog.Default().
func Fail(l *slog.Logger, msg string, args ...any) {
	logAt(l, LevelFail, msg, args)
}

func logAt(l *slog.Logger, level slog.Level, msg string, args []any) {
	if l == nil {
		l = slog.Default()
	}
	l.Log(context.Background(), level, msg, args...)
}
