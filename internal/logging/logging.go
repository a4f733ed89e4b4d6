// Package logging builds the single slog.Logger evocrewd wires into every
// component at construction time (spec §1.1): no package-level logger,
// level/format/output chosen once in main from CLI flag > env var > config
// file > default, adapted from the teacher's pkg/logger (simple/verbose
// text formats, third-party noise filtered at any level above debug).
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/evocrew/evocrew"

// ParseLevel converts a config string into an slog.Level, defaulting to
// info for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to output in the given format ("simple" =
// level+message, "verbose" = time+level+message+attrs, anything else
// falls back to slog's own text format). Below debug, logs from outside
// this module are suppressed, so a noisy dependency does not drown out
// evocrewd's own lifecycle logging at the default level.
func New(level slog.Level, output *os.File, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	base := slog.NewTextHandler(output, opts)

	var handler slog.Handler = base
	switch format {
	case "simple":
		handler = &lineHandler{writer: output, verbose: false}
	case "verbose":
		handler = &lineHandler{writer: output, verbose: true}
	}

	return slog.New(&moduleFilterHandler{handler: handler, minLevel: level})
}

// moduleFilterHandler hides sub-debug-level noise from dependencies: once
// the operator asks for anything less verbose than debug, only log lines
// originating inside this module are emitted.
type moduleFilterHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *moduleFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *moduleFilterHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.fromThisModule(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *moduleFilterHandler) fromThisModule(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return true
	}
	return strings.Contains(fn.Name(), modulePrefix)
}

func (h *moduleFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *moduleFilterHandler) WithGroup(name string) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// lineHandler renders "simple" (level + message) or "verbose" (time +
// level + message), both followed by inline key=value attrs.
type lineHandler struct {
	writer  io.Writer
	verbose bool
}

func (h *lineHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder
	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006-01-02 15:04:05 "))
	}
	buf.WriteString(strings.ToUpper(record.Level.String()))
	buf.WriteString(" ")
	buf.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")
	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *lineHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *lineHandler) WithGroup(string) slog.Handler      { return h }

// OpenLogFile opens path for append, creating it if needed.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
