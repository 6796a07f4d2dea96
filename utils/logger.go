package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides leveled logging throughout the application. Messages are
// printf-formatted; structured attributes are attached with With.
type Logger struct {
	sl *slog.Logger
}

// NewLogger creates a text Logger at info level writing to stdout.
func NewLogger() *Logger {
	return NewLoggerWith(os.Stdout, "info", "text")
}

// NewLoggerWith creates a Logger writing to w. level is one of debug, info,
// warn, error; format is text or json.
func NewLoggerWith(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{sl: slog.New(handler)}
}

// With returns a child Logger that adds the given key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}

func parseLevel(level string) slog.Level {
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
