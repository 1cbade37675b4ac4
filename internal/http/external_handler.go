package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/community-events/internal/external"
	"github.com/example/community-events/internal/poll"
)

type externalFeed interface {
	Events(ctx context.Context) ([]poll.Event, error)
}

// ExternalHandler serves the merged third-party listings. Counters are
// always baseline zero; clients overlay their own stored counters.
type ExternalHandler struct {
	feed      externalFeed
	responder responder
	logger    *slog.Logger
}

func NewExternalHandler(feed externalFeed, logger *slog.Logger) *ExternalHandler {
	base := defaultLogger(logger)
	return &ExternalHandler{feed: feed, responder: newResponder(base), logger: base}
}

func (h *ExternalHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.feed == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "ExternalHandler", "List")
	events, err := h.feed.Events(r.Context())
	if err != nil {
		if errors.Is(err, external.ErrNoSources) {
			logger.WarnContext(r.Context(), "external sources unavailable", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusBadGateway, errorResponse{
				ErrorCode: "UPSTREAM_UNAVAILABLE",
				Message:   "external event sources are unavailable",
			})
			return
		}
		logger.ErrorContext(r.Context(), "external feed failed", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(events)).InfoContext(r.Context(), "external events listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: nonNil(events)})
}
