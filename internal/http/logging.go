package http

import (
	"context"
	"log/slog"

	"github.com/example/community-events/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger tags the request logger with the handler, the operation and
// the event id taken from the path, when there is one.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	if eventID, ok := EventIDFromContext(ctx); ok && eventID != "" {
		attrs = append([]any{"event_id", eventID}, attrs...)
	}
	return logging.Component(ctx, fallback, "handler", handlerName, operation, attrs...)
}
