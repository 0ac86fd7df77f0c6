// Package humanlog provides a slog.Handler that writes one human-readable line
// per record, and a fan-out handler for writing the same records to several sinks.
package humanlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// DefaultTimeFormat is used when Options.TimeFormat is empty.
const DefaultTimeFormat = "2006-01-02 15:04:05"

// Options configures a Handler.
type Options struct {
	Level        slog.Leveler
	TimeFormat   string
	DisableColor bool
}

// Handler implements slog.Handler for human-readable logging output.
type Handler struct {
	w      io.Writer
	opts   Options
	mu     *sync.Mutex
	attrs  []slog.Attr
	prefix string
}

// NewHandler returns a Handler writing to w. A nil opts logs at Info with colour.
func NewHandler(w io.Writer, opts *Options) *Handler {
	h := &Handler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	if h.opts.TimeFormat == "" {
		h.opts.TimeFormat = DefaultTimeFormat
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle writes the record as
// [TIME] LEVEL Message [key=value key2=value2 ...]
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(r.Time.Format(h.opts.TimeFormat))
	sb.WriteString("] ")
	sb.WriteString(formatLevel(r.Level, h.opts.DisableColor))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	attrs := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		attrs = appendAttr(attrs, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		attrs = appendAttr(attrs, h.prefix, attr)
		return true
	})

	if len(attrs) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(attrs, " "))
		sb.WriteString("]")
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs returns a new Handler whose attributes consist of h's attributes followed by attrs.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		h2.attrs = append(h2.attrs, attr)
	}
	return &h2
}

// WithGroup returns a new Handler that prefixes later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// formatLevel returns a fixed-width, uppercase level string with optional color.
func formatLevel(level slog.Level, disableColor bool) string {
	var levelStr, colorCode string

	switch {
	case level >= slog.LevelError:
		levelStr, colorCode = "ERROR", colorRed
	case level >= slog.LevelWarn:
		levelStr, colorCode = "WARN ", colorYellow
	case level >= slog.LevelInfo:
		levelStr, colorCode = "INFO ", colorBlue
	default:
		levelStr, colorCode = "DEBUG", colorGray
	}

	if disableColor {
		return levelStr
	}
	return colorCode + levelStr + colorReset
}

// appendAttr formats attr as "key=value", flattening groups into dotted keys.
func appendAttr(dst []string, prefix string, attr slog.Attr) []string {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}

	key := prefix + attr.Key
	val := attr.Value

	switch val.Kind() {
	case slog.KindGroup:
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = key + "."
		}
		for _, ga := range val.Group() {
			dst = appendAttr(dst, groupPrefix, ga)
		}
		return dst
	case slog.KindString:
		s := val.String()
		if needsQuoting(s) {
			return append(dst, fmt.Sprintf("%s=%q", key, s))
		}
		return append(dst, key+"="+s)
	case slog.KindTime:
		return append(dst, key+"="+val.Time().Format(time.RFC3339))
	case slog.KindDuration:
		return append(dst, key+"="+val.Duration().String())
	case slog.KindAny:
		if err, ok := val.Any().(error); ok {
			return append(dst, fmt.Sprintf("%s=%q", key, err.Error()))
		}
	}
	return append(dst, key+"="+val.String())
}

// needsQuoting returns true if the string contains spaces or special characters.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' || r == '\'' || r == '`' || r == '[' || r == ']' {
			return true
		}
	}
	return false
}
