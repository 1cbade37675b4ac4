// Package logging carries a request scoped slog logger through a context.
package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// ContextWithLogger returns ctx carrying logger. A nil logger leaves ctx as is.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// Resolve picks the request logger from ctx, then fallback, then slog.Default.
func Resolve(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// Component derives a logger tagged with a component kind and name, e.g.
// ("service", "EventService"), plus the operation when set.
func Component(ctx context.Context, fallback *slog.Logger, kind, name, operation string, attrs ...any) *slog.Logger {
	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, kind, name)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return Resolve(ctx, fallback).With(pairs...)
}
