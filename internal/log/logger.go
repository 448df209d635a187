package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// ContextWithRequestID returns a context whose log records carry id as request_id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RequestID returns the request id stored by ContextWithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// coded is implemented by the storefront's typed errors.
type coded interface {
	ErrorCode() string
}

// suggester is implemented by errors carrying remediation hints.
type suggester interface {
	coded
	SuggestionList() []string
}

// Logger provides structured logging with slog.
// Its Debug/Info/Warn/Error signatures also satisfy retryablehttp.LeveledLogger.
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if config.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if config.ServiceName != "" {
		l = l.With("service", config.ServiceName, "version", config.ServiceVersion)
	}

	return &Logger{slog: l, config: config}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{slog: l.slog.WithGroup(name), config: l.config}
}

// WithError adds error details. Typed errors also contribute error_code.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorAttrs(err)...)
}

// WithContext adds the request id carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := RequestID(ctx); id != "" {
		return l.With("request_id", id)
	}
	return l
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).slog.DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).slog.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).slog.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).slog.ErrorContext(ctx, msg, args...)
}

// LogError logs err at ERROR level with all typed details
func (l *Logger) LogError(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	l.ErrorContext(ctx, msg, errorAttrs(err)...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.slogLevel())
}

// Slog returns the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

func errorAttrs(err error) []any {
	args := []any{"error", err.Error()}

	var c coded
	if errors.As(err, &c) {
		args = append(args, "error_code", c.ErrorCode())
	}
	var s suggester
	if errors.As(err, &s) && len(s.SuggestionList()) > 0 {
		args = append(args, "suggestions", s.SuggestionList())
	}
	return args
}
