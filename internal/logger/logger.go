package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lmittmann/tint"
)

// Output formats accepted by NewWithFormat.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New creates a new slog.Logger instance with the specified logging level
// level can be: "debug", "info", "warn", "error"
// Default is "info"
func New(level string) *slog.Logger {
	return NewWithFormat(os.Stdout, FormatText, level)
}

// NewJSON creates a new slog.Logger with JSON output
func NewJSON(level string) *slog.Logger {
	return NewWithFormat(os.Stdout, FormatJSON, level)
}

// NewConsole creates a colored logger for interactive terminals
func NewConsole(level string) *slog.Logger {
	return NewWithFormat(os.Stderr, FormatConsole, level)
}

// NewWithFormat creates a logger writing to w. Unknown formats fall back to text.
func NewWithFormat(w io.Writer, format, level string) *slog.Logger {
	slogLevel := parseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	case FormatConsole:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})
	}
	return slog.New(handler)
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to info
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Truncate shortens s to at most maxLength bytes for logging, keeping
// whole runes. Log payloads can be arbitrarily long.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 || len(s) <= maxLength {
		return s
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... [truncated %d bytes]", s[:cut], len(s)-cut)
}
