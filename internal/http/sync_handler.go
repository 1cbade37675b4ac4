package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/community-events/internal/application"
	"github.com/example/community-events/internal/poll"
)

type syncService interface {
	Run(ctx context.Context, trigger string) (application.SyncResult, error)
	Status() application.SyncStatus
	VerifySecret(token string) error
}

// SyncHandler exposes the monthly external sync. Run must be wrapped with
// RequireSecret; the router does that.
type SyncHandler struct {
	service   syncService
	responder responder
	logger    *slog.Logger
}

func NewSyncHandler(service syncService, logger *slog.Logger) *SyncHandler {
	base := defaultLogger(logger)
	return &SyncHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SyncHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SyncHandler", operation, attrs...)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	status := h.service.Status()
	dto := syncStatusDTO{
		Schedule:  status.Schedule,
		LastAdded: status.LastAdded,
		LastError: status.LastError,
	}
	if status.LastRun != nil {
		ms := status.LastRun.UnixMilli()
		dto.LastRun = &ms
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dto)
}

func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Run")
	result, err := h.service.Run(r.Context(), "http")
	if err != nil {
		logger.ErrorContext(r.Context(), "sync failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("added", result.Added).InfoContext(r.Context(), "sync completed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, syncResultDTO{
		Fetched: result.Fetched,
		Added:   result.Added,
		Events:  nonNil(result.Events),
	})
}

type syncStatusDTO struct {
	Schedule  string `json:"schedule"`
	LastRun   *int64 `json:"lastRun,omitempty"`
	LastAdded int    `json:"lastAdded"`
	LastError string `json:"lastError,omitempty"`
}

type syncResultDTO struct {
	Fetched int          `json:"fetched"`
	Added   int          `json:"added"`
	Events  []poll.Event `json:"events"`
}
