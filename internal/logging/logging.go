package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// contextKey is a type for context keys
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// PageIDKey is the context key for the hosted page ID
	PageIDKey contextKey = "page_id"
	// ScopeKey is the context key for the style scope being read or written
	ScopeKey contextKey = "scope"
	// ModelKey is the context key for the generation model
	ModelKey contextKey = "model"
)

// contextKeys lists, in output order, the values copied from a context into records
var contextKeys = []contextKey{RequestIDKey, PageIDKey, ScopeKey, ModelKey}

// Redacted replaces credential values in log output
const Redacted = "[REDACTED]"

// secretAttrs are attribute names whose values are never written
var secretAttrs = map[string]bool{
	"api_key":       true,
	"x-api-key":     true,
	"authorization": true,
}

var apiKeyPattern = regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]+`)

// Config holds logging configuration
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output io.Writer
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// Setup configures the global logger
func Setup(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	logger := slog.New(&ContextHandler{Handler: handler})
	slog.SetDefault(logger)

	return logger
}

// redact hides secret attributes and any model API key embedded in a string
// value, including the message and error text.
func redact(_ []string, a slog.Attr) slog.Attr {
	if secretAttrs[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}

	var text string
	switch a.Value.Kind() {
	case slog.KindString:
		text = a.Value.String()
	case slog.KindAny:
		err, ok := a.Value.Any().(error)
		if !ok {
			return a
		}
		text = err.Error()
	default:
		return a
	}

	if !strings.Contains(text, "sk-ant-") {
		return a
	}
	return slog.String(a.Key, apiKeyPattern.ReplaceAllString(text, Redacted))
}

// ContextHandler adds context values to log records
type ContextHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing to the wrapped handler
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the wrapper so derived loggers still read the context
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the wrapper so derived loggers still read the context
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPageID adds a hosted page ID to the context
func WithPageID(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, PageIDKey, pageID)
}

// WithScope adds a style scope to the context
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// WithModel adds a model identifier to the context
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// Logger returns the default logger with the context values bound as attributes.
// Use it when the logger outlives the context, e.g. in a goroutine.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// Audit logs an audit event for user-initiated data changes
func Audit(ctx context.Context, operation string, attrs ...any) {
	args := append([]any{"audit", true, "operation", operation}, attrs...)
	slog.Default().Log(ctx, slog.LevelInfo, "AUDIT", args...)
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	slog.Default().Log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	slog.Default().Log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	slog.Default().Log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	slog.Default().Log(ctx, slog.LevelError, msg, args...)
}
