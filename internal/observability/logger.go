package observability

import (
	"log/slog"
	"os"
	"strings"
)

var levelVar slog.LevelVar

// SetupLogger installs the process-wide slog logger. format is "json" or
// "text"; unknown levels fall back to info.
func SetupLogger(level, format string) *slog.Logger {
	levelVar.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the logger installed by SetupLogger.
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
