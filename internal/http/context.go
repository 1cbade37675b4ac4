package http

import (
	"context"
	"log/slog"

	"github.com/example/community-events/internal/logging"
)

type contextKey string

const eventIDContextKey contextKey = "event_id"

// ContextWithEventID injects the event identifier resolved from the request path.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDContextKey, eventID)
}

// EventIDFromContext extracts an event identifier previously associated with the context.
func EventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
