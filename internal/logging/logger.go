package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"hostmon/internal/config"
)

// New builds the process logger from console and file sink settings.
// Params: cfg validated log section.
// Returns: logger, close callback releasing file handles, or error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closers := make([]io.Closer, 0, 1)

	closeAll := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}

	if cfg.Console.Enabled {
		handler, err := newHandler(os.Stdout, cfg.Console, true)
		if err != nil {
			return nil, nil, fmt.Errorf("log.console: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log.file: create dir: %w", err)
		}
		file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log.file: open %q: %w", cfg.File.Path, err)
		}
		closers = append(closers, file)

		handler, err := newHandler(file, cfg.File, false)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("log.file: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if len(handlers) == 0 {
		return nil, nil, errors.New("no log sinks enabled")
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeAll, nil
	}
	return slog.New(&multiHandler{handlers: handlers}), closeAll, nil
}

// newHandler creates one slog handler for a sink.
// Params: dst output writer; sink level/format settings; colorize enables ANSI coloring of line format.
// Returns: handler or error for unknown level/format.
func newHandler(dst io.Writer, sink config.LogSinkConfig, colorize bool) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	case "line", "":
		if colorize {
			dst = &colorLineWriter{dst: dst}
		}
		return slog.NewTextHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

// parseLevel maps config level names to slog levels.
// Params: raw level name.
// Returns: slog level or error.
func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "panic":
		return slog.LevelError + 4, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

// multiHandler fans records out to every enabled child handler.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any child accepts level.
// Params: ctx request context; level record level.
// Returns: true when at least one child is enabled.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards record to enabled children.
// Params: ctx request context; record log record.
// Returns: combined child errors.
func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		err = multierr.Append(err, handler.Handle(ctx, record.Clone()))
	}
	return err
}

// WithAttrs propagates attrs to children.
// Params: attrs attribute list.
// Returns: derived handler.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		out = append(out, handler.WithAttrs(attrs))
	}
	return &multiHandler{handlers: out}
}

// WithGroup propagates group to children.
// Params: name group name.
// Returns: derived handler.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		out = append(out, handler.WithGroup(name))
	}
	return &multiHandler{handlers: out}
}
