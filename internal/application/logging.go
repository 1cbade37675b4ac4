package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/community-events/internal/logging"
	"github.com/example/community-events/internal/poll"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStorageBusy):
		return "storage_busy"
	case errors.Is(err, ErrExternalEvent):
		return "external_event"
	case errors.Is(err, poll.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, poll.ErrSlotAlreadyChosen), errors.Is(err, poll.ErrTimeAlreadyChosen):
		return "already_chosen"
	case errors.Is(err, poll.ErrUnknownSlot),
		errors.Is(err, poll.ErrTimeOutsideSlot),
		errors.Is(err, poll.ErrSlotRequired),
		errors.Is(err, poll.ErrUnknownAction):
		return "invalid_vote"
	case errors.Is(err, poll.ErrNotInterested), errors.Is(err, poll.ErrNotVoted):
		return "funnel_order"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
