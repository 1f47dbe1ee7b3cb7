package logger

import (
	"log/slog"
	"strings"
)

// Levels. Trace and Fail extend the slog set on either side.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelFail  slog.Level = 12
)

var levels = []struct {
	name  string
	level slog.Level
}{
	{"TRACE", LevelTrace},
	{"DEBUG", LevelDebug},
	{"INFO", LevelInfo},
	{"WARN", LevelWarn},
	{"ERROR", LevelError},
	{"FAIL", LevelFail},
}

// levelName rounds l up to the nearest named level.
func levelName(l slog.Level) string {
	for _, lv := range levels {
		if l <= lv.level {
			return lv.name
		}
	}
	return "FAIL"
}

// ParseLevel maps a config level name to its slog.Level, case-insensitively.
// Unknown names give LevelInfo.
func ParseLevel(s string) slog.Level {
	for _, lv := range levels {
		if strings.EqualFold(lv.name, strings.TrimSpace(s)) {
			return lv.level
		}
	}
	return LevelInfo
}
