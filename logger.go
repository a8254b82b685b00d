package mapview

import (
	"log/slog"

	"github.com/gogpu/mapview/internal/logging"
)

// SetLogger configures the logger for mapview and all its sub-packages.
// By default, mapview produces no log output. Call SetLogger to enable it.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by mapview:
//   - [slog.LevelDebug]: per-tile diagnostics (cache hits, fetch and decode results)
//   - [slog.LevelInfo]: lifecycle events (GPU selected, backend initialized)
//   - [slog.LevelWarn]: non-fatal issues (dropped features, failed tiles)
//
// Example:
//
//	mapview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the current logger used by mapview.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
