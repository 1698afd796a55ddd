package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Format selects the slog handler
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures a root logger
type Options struct {
	Level  LogLevel
	Format Format
	Output io.Writer
	// File, if set, receives a copy of every record (appended).
	File string
}

// Logger wraps slog.Logger and tags every record with the emitting component
type Logger struct {
	*slog.Logger
	component string
}

// ParseLevel maps a level name onto slog, defaulting to info.
// "warning" is accepted as an alias of warn.
func ParseLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn, "warning":
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates the root logger. The returned closer releases the log file, if any.
func New(component string, opts Options) (*Logger, io.Closer, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f
	}

	return NewWithWriter(component, opts.Level, opts.Format, out), closer, nil
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(component string, level LogLevel, format Format, w io.Writer) *Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// Discard returns a logger that drops everything. Used where no logger is injected.
func Discard() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		component: "discard",
	}
}

// Component returns the component name attached to records
func (l *Logger) Component() string {
	return l.component
}

// WithComponent creates a logger for a sub-component sharing the same handler
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// WithRun creates a logger with run correlation context
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("run_id", runID),
		component: l.component,
	}
}

// Debug logs a debug message with component context
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs an info message with component context
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Warn logs a warning message with component context
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs an error message with component context
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{"component", l.component}, args...)...)
}

// LogError logs a failed operation with its error text
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := append([]any{"operation", operation, "exception", err.Error()}, context...)
	l.Error("operation failed", args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
