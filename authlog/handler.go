// Package authlog provides slog handlers for the auth core's diagnostics
// surface: a colorized human format for interactive shells and JSON for
// machine consumption, both with automatic redaction of secret-bearing
// attributes.
package authlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// HumanHandler is a slog.Handler that formats records as
// [LEVEL] message key=value ..., colorized and without timestamps.
//
// Handle assembles each line in a local buffer and writes it with a single
// Write call, so no mutex is needed. Fields are immutable after construction.
type HumanHandler struct {
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
}

// NewHumanHandler creates a HumanHandler writing to w.
func NewHumanHandler(w io.Writer, opts *slog.HandlerOptions) *HumanHandler {
	h := &HumanHandler{w: w}
	if opts != nil {
		h.level = opts.Level
	}
	if h.level == nil {
		h.level = slog.LevelInfo
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record. Secret-bearing attributes are
// redacted before they reach the writer.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var buf []byte

	buf = append(buf, colorizeLevel(r.Level)...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = append(buf, ' ')
		buf = appendAttr(buf, redactAttr(attr))
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = append(buf, ' ')
		buf = appendAttr(buf, redactAttr(a))
		return true
	})

	buf = append(buf, '\n')
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &HumanHandler{w: h.w, level: h.level, attrs: newAttrs}
}

// WithGroup returns the handler unchanged; groups are flattened in
// human-readable output.
func (h *HumanHandler) WithGroup(_ string) slog.Handler {
	return h
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func colorizeLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed + "[ERROR]" + colorReset
	case level >= slog.LevelWarn:
		return colorYellow + "[WARN]" + colorReset
	case level >= slog.LevelInfo:
		return colorBlue + "[INFO]" + colorReset
	default:
		return colorGray + "[DEBUG]" + colorReset
	}
}

func appendAttr(buf []byte, attr slog.Attr) []byte {
	if attr.Equal(slog.Attr{}) {
		return buf
	}
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	return appendValue(buf, attr.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			return append(buf, fmt.Sprintf("%q", s)...)
		}
		return append(buf, s...)
	case slog.KindInt64:
		return append(buf, fmt.Sprintf("%d", v.Int64())...)
	case slog.KindUint64:
		return append(buf, fmt.Sprintf("%d", v.Uint64())...)
	case slog.KindFloat64:
		return append(buf, fmt.Sprintf("%g", v.Float64())...)
	case slog.KindBool:
		return append(buf, fmt.Sprintf("%t", v.Bool())...)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return append(buf, v.Time().Format("15:04:05")...)
	case slog.KindLogValuer:
		return appendValue(buf, v.Resolve())
	default:
		return append(buf, fmt.Sprint(v.Any())...)
	}
}

func needsQuoting(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '"' {
			return true
		}
	}
	return false
}
