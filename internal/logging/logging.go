// Package logging builds the application-wide slog logger, mirroring
// the teacher's workflow.SetupLogger: tint for colorized, structured
// terminal output.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New configures a component-scoped slog.Logger at the given level
// ("debug", "warn", "error"; anything else falls back to "info").
func New(level string, component string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})
	return slog.New(handler).With("component", component)
}
