package hexgrid

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/hexgrid/backend/native"
	"github.com/gogpu/hexgrid/internal/capture"
	"github.com/gogpu/hexgrid/internal/frame"
	"github.com/gogpu/hexgrid/internal/registry"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for hexgrid and all its sub-packages.
// By default, hexgrid produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by hexgrid:
//   - [slog.LevelDebug]: per-frame diagnostics (capture transitions, recording errors)
//   - [slog.LevelInfo]: lifecycle events (device opened, resources created, capture saved)
//   - [slog.LevelWarn]: non-fatal frame errors
//   - [slog.LevelError]: failed captures
//
// Example:
//
//	hexgrid.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	registry.SetLogger(l)
	frame.SetLogger(l)
	capture.SetLogger(l)
	native.SetLogger(l)
}

// Logger returns the current logger used by hexgrid.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger {
	return loggerPtr.Load()
}
