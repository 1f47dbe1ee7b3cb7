package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

var newline = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// output is shared by a Handler and everything derived from it.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// Handler writes one line per record:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, group.key=value
type Handler struct {
	out   *output
	level slog.Leveler
	// attrs holds WithAttrs output already rendered.
	attrs []byte
	// prefix is the open group path, "" or ending in ".".
	prefix string
}

// NewHandler returns a Handler writing records at or above level to w.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{out: &output{w: w}, level: level}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	line := make([]byte, 0, 160)
	line = r.Time.UTC().AppendFormat(line, timeLayout)
	line = append(line, " ["...)
	line = append(line, levelName(r.Level)...)
	line = append(line, "] "...)
	line = append(line, r.Message...)

	attrs := h.attrs
	if r.NumAttrs() > 0 {
		attrs = append([]byte(nil), h.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			attrs = appendAttr(attrs, h.prefix, a)
			return true
		})
	}
	if len(attrs) > 0 {
		line = append(line, " | "...)
		line = append(line, attrs...)
	}
	line = append(line, newline...)

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := h.out.w.Write(line)
	return err
}

func (h *Handler) WithAttrs(as []slog.Attr) slog.Handler {
	if len(as) == 0 {
		return h
	}
	attrs := append([]byte(nil), h.attrs...)
	for _, a := range as {
		attrs = appendAttr(attrs, h.prefix, a)
	}
	return &Handler{out: h.out, level: h.level, attrs: attrs, prefix: h.prefix}
}

// WithGroup prefixes the keys of later attributes with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{out: h.out, level: h.level, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func appendAttr(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, prefix, ga)
		}
		return dst
	}
	if len(dst) > 0 {
		dst = append(dst, ", "...)
	}
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')
	return appendValue(dst, a.Value)
}

func appendValue(dst []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, "\r\n\t\"") {
			return strconv.AppendQuote(dst, s)
		}
		return append(dst, s...)
	case slog.KindTime:
		return v.Time().AppendFormat(dst, time.RFC3339)
	default:
		return append(dst, v.String()...)
	}
}
