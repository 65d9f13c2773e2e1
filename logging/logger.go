// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. TeamLogger adds run and component attributes on top.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface for teammesh. Arguments
// following msg are alternating key/value pairs as understood by slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// TeamLogger wraps slog.Logger adding contextual cloning helpers. It should
// be cheap to copy via With* methods.
type TeamLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	sessionID string
	runID     string
}

// LoggerConfig configures construction of a TeamLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	SessionID   string
	RunID       string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a TeamLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *TeamLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}
	return &TeamLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component, sessionID: cfg.SessionID, runID: cfg.RunID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *TeamLogger) clone() *TeamLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *TeamLogger) WithContext(key string, value any) *TeamLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (supervisor, worker, coordinator, etc.).
func (l *TeamLogger) WithComponent(c string) *TeamLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRun attaches session and run identifiers.
func (l *TeamLogger) WithRun(sessionID, runID string) *TeamLogger {
	nl := l.clone()
	nl.sessionID = sessionID
	nl.runID = runID
	return nl
}

func (l *TeamLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *TeamLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	all := make([]any, 0, len(attrs)+len(args))
	for _, a := range attrs {
		all = append(all, a)
	}
	all = append(all, args...)
	l.logger.Log(context.Background(), level, msg, all...)
}

// Debug logs at debug level.
func (l *TeamLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *TeamLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *TeamLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *TeamLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ForRun scopes l to one run. A *TeamLogger carries the identifiers as
// attributes; any other Logger gets them prepended to every entry's args.
func ForRun(l Logger, sessionID, runID string) Logger {
	switch tl := l.(type) {
	case *TeamLogger:
		return tl.WithRun(sessionID, runID)
	case NoOpLogger:
		return l
	}
	args := []any{"run_id", runID}
	if sessionID != "" {
		args = append(args, "session_id", sessionID)
	}
	return withArgs{Logger: l, args: args}
}

// ForComponent tags l with a component name.
func ForComponent(l Logger, component string) Logger {
	switch tl := l.(type) {
	case *TeamLogger:
		return tl.WithComponent(component)
	case NoOpLogger:
		return l
	}
	return withArgs{Logger: l, args: []any{"component", component}}
}

type withArgs struct {
	Logger
	args []any
}

func (w withArgs) with(args []any) []any {
	return append(slices.Clip(w.args), args...)
}

func (w withArgs) Debug(msg string, args ...any) { w.Logger.Debug(msg, w.with(args)...) }
func (w withArgs) Info(msg string, args ...any) { w.Logger.Info(msg, w.with(args)...) }
func (w withArgs) Warn(msg string, args ...any) { w.Logger.Warn(msg, w.with(args)...) }
func (w withArgs) Error(msg string, args ...any) { w.Logger.Error(msg, w.with(args)...) }

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new TeamLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *TeamLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// NewWriterLogger creates a TeamLogger writing to w. It is mostly useful in
// tests asserting on log output.
func NewWriterLogger(w io.Writer, level LogLevel, format string) *TeamLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = w
	cfg.AddSource = false
	return NewLogger(cfg)
}
