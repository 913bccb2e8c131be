// Package logger provides the slog-backed implementation of bot.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harukeys/GrooveBot-Go/bot"
)

// Logger wraps slog.Logger to satisfy bot.Logger.
type Logger struct {
	logger  *slog.Logger
	logFile *os.File // closed on shutdown when file output is enabled
}

// New creates a Logger writing to stdout with the given level and format
// ("text" or "json").
func New(level, format string, addSource bool) *Logger {
	return &Logger{logger: slog.New(newHandler(os.Stdout, level, format, addSource))}
}

// NewWithFile creates a Logger that tees output to stdout and the given
// file path, creating parent directories as needed.
func NewWithFile(level, format string, addSource bool, path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	output := io.MultiWriter(os.Stdout, file)
	return &Logger{
		logger:  slog.New(newHandler(output, level, format, addSource)),
		logFile: file,
	}, nil
}

func newHandler(output io.Writer, level, format string, addSource bool) slog.Handler {
	options := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: addSource,
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(output, options)
	}
	return slog.NewTextHandler(output, options)
}

// With returns a child logger with additional fields.
func (l *Logger) With(args ...any) bot.Logger {
	return &Logger{logger: l.logger.With(args...), logFile: l.logFile}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Close closes the log file handle, if any.
func (l *Logger) Close() error {
	if l == nil || l.logFile == nil {
		return nil
	}
	return l.logFile.Close()
}

func parseLevel(level string) slog.Level {
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
