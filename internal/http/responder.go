package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/community-events/internal/application"
	"github.com/example/community-events/internal/poll"
)

var (
	errBadRequestBody    = errors.New("invalid request body")
	errInvalidEventID    = errors.New("invalid event id")
	errMissingSyncSecret = errors.New("sync secret required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr    *application.ValidationError
		rateErr *application.RateLimitError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(rateErr.RetryAfter, 10))
		}
		r.writeJSON(ctx, w, http.StatusTooManyRequests, errorResponse{
			ErrorCode: "RATE_LIMITED",
			Message:   rateErr.Reason,
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "UNAUTHORIZED",
			Message:   statusMessage(http.StatusUnauthorized),
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NOT_FOUND",
			Message:   statusMessage(http.StatusNotFound),
		})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_EXISTS",
			Message:   "resource already exists",
		})
	case errors.Is(err, poll.ErrAlreadyVoted),
		errors.Is(err, poll.ErrSlotAlreadyChosen),
		errors.Is(err, poll.ErrTimeAlreadyChosen):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_VOTED",
			Message:   err.Error(),
		})
	case errors.Is(err, application.ErrExternalEvent):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "EXTERNAL_EVENT",
			Message:   "votes on external events are kept by the client",
		})
	case errors.Is(err, poll.ErrUnknownSlot),
		errors.Is(err, poll.ErrTimeOutsideSlot),
		errors.Is(err, poll.ErrSlotRequired),
		errors.Is(err, poll.ErrUnknownAction),
		errors.Is(err, poll.ErrNotInterested),
		errors.Is(err, poll.ErrNotVoted):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_VOTE",
			Message:   err.Error(),
		})
	case errors.Is(err, application.ErrStorageBusy):
		w.Header().Set("Retry-After", "1")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "STORAGE_BUSY",
			Message:   "storage is busy, please retry",
		})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusConflict:
		return "request conflicts with the current state"
	case http.StatusUnprocessableEntity:
		return "validation failed"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
