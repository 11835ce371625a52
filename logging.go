package chatwatch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// logger is the package-wide structured logger. Event names are snake_case
// with key/value pairs.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// InitLogging replaces the package logger. sink is empty for stderr or
// "file:<path>" to append to a file; if the file cannot be opened logs go to
// stderr.
func InitLogging(level, sink string) {
	var w io.Writer = os.Stderr
	if path, ok := strings.CutPrefix(sink, "file:"); ok {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			w = f
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}
	SetLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

// SetLogger installs l as the package logger. A nil l is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return logger
}
