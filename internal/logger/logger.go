package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	defaultLogger atomic.Pointer[slog.Logger]
	level         = new(slog.LevelVar)
	once          sync.Once
)

// Init initializes the default logger with a JSON handler writing to os.Stderr.
// It ensures that the logger is initialized only once; stdout is left to
// command output.
func Init() {
	once.Do(func() {
		level.Set(slog.LevelInfo)
		l := newLogger(os.Stderr, "json")
		defaultLogger.Store(l)
		slog.SetDefault(l)
	})
}

// Configure replaces the default logger with one using the given level
// ("debug", "info", "warn", "error") and format ("json" or "text").
// Safe to call while other goroutines are logging.
func Configure(lvl, format string) {
	Init()
	SetLevel(lvl)
	l := newLogger(os.Stderr, format)
	defaultLogger.Store(l)
	slog.SetDefault(l)
}

// SetLevel changes the minimum level of the default logger. Unknown
// names leave the level unchanged.
func SetLevel(lvl string) {
	if parsed, ok := ParseLevel(lvl); ok {
		level.Set(parsed)
	}
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(lvl string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func newLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() *slog.Logger {
	Init()
	return defaultLogger.Load()
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
