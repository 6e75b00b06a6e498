package logger

import (
	"context"
	"log/slog"
	"os"
)

type ContextKey string

const (
	// Business context keys, following OpenTelemetry semantic
	// conventions with a 'rag.' prefix.
	ConversationIDKey ContextKey = "rag.conversation.id"
	QueryTraceIDKey   ContextKey = "rag.query.trace_id"
	VariantKey        ContextKey = "rag.ab.variant"
)

// ContextLogger provides context-aware logging with query-level business context
type ContextLogger struct {
	logger      *slog.Logger
	serviceName string
}

// NewContextLogger creates a new context-aware logger
func NewContextLogger(serviceName string) *ContextLogger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)

	return &ContextLogger{
		logger:      slog.New(handler),
		serviceName: serviceName,
	}
}

// WithContext returns a logger with context values extracted and added as fields
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger.With("service", cl.serviceName)

	var fields []any

	if convID := ctx.Value(ConversationIDKey); convID != nil {
		fields = append(fields, string(ConversationIDKey), convID)
	}
	if traceID := ctx.Value(QueryTraceIDKey); traceID != nil {
		fields = append(fields, string(QueryTraceIDKey), traceID)
	}
	if variant := ctx.Value(VariantKey); variant != nil {
		fields = append(fields, string(VariantKey), variant)
	}

	if len(fields) > 0 {
		logger = logger.With(fields...)
	}

	return logger
}

// Context helper functions

// WithConversationID adds the conversation id to context for observability
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

// WithQueryTraceID adds the pipeline trace id to context for observability
func WithQueryTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, QueryTraceIDKey, traceID)
}

// WithVariant adds the A/B variant name to context for observability
func WithVariant(ctx context.Context, variant string) context.Context {
	return context.WithValue(ctx, VariantKey, variant)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
