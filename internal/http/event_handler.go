package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/community-events/internal/application"
	"github.com/example/community-events/internal/poll"
)

type eventService interface {
	ListEvents(ctx context.Context) ([]poll.Event, error)
	CategorizeEvents(ctx context.Context) (poll.Board, error)
	GetEvent(ctx context.Context, eventID string) (application.EventDetail, error)
	CreateEvent(ctx context.Context, params application.CreateEventParams) (poll.Event, error)
	ReplaceEvent(ctx context.Context, params application.ReplaceEventParams) (poll.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	CreationStats(ctx context.Context, suggester string) (application.CreationStats, error)
}

type voteService interface {
	ApplyVote(ctx context.Context, params application.VoteParams) (poll.Event, error)
}

type EventHandler struct {
	events    eventService
	votes     voteService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(events eventService, votes voteService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{events: events, votes: votes, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List returns every stored event, newest first, or the categorized board
// when called with ?view=board.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	view := strings.TrimSpace(r.URL.Query().Get("view"))
	logger := h.log(r.Context(), "List", "view", view)

	if view == "board" {
		board, err := h.events.CategorizeEvents(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "event board failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		logger.With("result_count", board.Len()).InfoContext(r.Context(), "event board listed")
		h.responder.writeJSON(r.Context(), w, http.StatusOK, toBoardDTO(board))
		return
	}

	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(events)).InfoContext(r.Context(), "events listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: nonNil(events)})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	logger := h.log(r.Context(), "Get")
	detail, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		logger.ErrorContext(r.Context(), "event fetch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDetailDTO(detail))
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "suggested_by", req.SuggestedBy)
	event, err := h.events.CreateEvent(r.Context(), application.CreateEventParams{Input: req.toInput()})
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: event})
}

// Replace overwrites a stored event with the full aggregate in the body.
func (h *EventHandler) Replace(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var event poll.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.log(r.Context(), "Replace", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event replacement", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Replace", "event_id", event.ID)
	updated, err := h.events.ReplaceEvent(r.Context(), application.ReplaceEventParams{Event: event})
	if err != nil {
		logger.ErrorContext(r.Context(), "event replace failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event replaced")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: updated})
}

// Delete removes an event named by the path or by {"eventId"} in the body.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok {
		var req deleteEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode delete request", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		eventID = req.EventID
		r = r.WithContext(ContextWithEventID(r.Context(), eventID))
	}

	logger := h.log(r.Context(), "Delete")
	if err := h.events.DeleteEvent(r.Context(), eventID); err != nil {
		logger.ErrorContext(r.Context(), "event delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Vote applies one funnel action to the event's shared counters.
func (h *EventHandler) Vote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.votes == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Vote", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode vote request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Vote", "action", req.Action)
	event, err := h.votes.ApplyVote(r.Context(), application.VoteParams{EventID: eventID, Action: req.toAction()})
	if err != nil {
		logger.WarnContext(r.Context(), "vote failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: event})
}

// Stats returns the creation quota of the suggester named in the path.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request, suggester string) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Stats", "suggested_by", suggester)
	stats, err := h.events.CreationStats(r.Context(), suggester)
	if err != nil {
		logger.ErrorContext(r.Context(), "creation stats failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCreationStatsDTO(stats))
}

type eventRequest struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	SuggestedBy       string `json:"suggestedBy"`
	EventDate         *int64 `json:"eventDate"`
	SuggestedTimeSlot string `json:"suggestedTimeSlot"`
	SuggestedTime     string `json:"suggestedTime"`
	ExternalURL       string `json:"externalUrl"`
}

func (r eventRequest) toInput() application.EventInput {
	input := application.EventInput{
		Title:             r.Title,
		Description:       r.Description,
		SuggestedBy:       r.SuggestedBy,
		SuggestedTimeSlot: r.SuggestedTimeSlot,
		SuggestedTime:     r.SuggestedTime,
		ExternalURL:       r.ExternalURL,
	}
	if r.EventDate != nil {
		date := time.UnixMilli(*r.EventDate).UTC()
		input.EventDate = &date
	}
	return input
}

type deleteEventRequest struct {
	EventID string `json:"eventId"`
}

type voteRequest struct {
	Action string `json:"action"`
	Slot   string `json:"slot"`
	Time   string `json:"time"`
}

func (r voteRequest) toAction() poll.Action {
	kind := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(r.Action)), "-", "_")
	return poll.Action{
		Kind: poll.ActionKind(kind),
		Slot: poll.Slot(strings.ToLower(strings.TrimSpace(r.Slot))),
		Time: strings.TrimSpace(r.Time),
	}
}

type eventResponse struct {
	Event poll.Event `json:"event"`
}

type listEventsResponse struct {
	Events []poll.Event `json:"events"`
}

type boardDTO struct {
	HappeningSoon []poll.Event `json:"happeningSoon"`
	Upcoming      []poll.Event `json:"upcoming"`
	NoDate        []poll.Event `json:"noDate"`
	Past          []poll.Event `json:"past"`
}

func toBoardDTO(board poll.Board) boardDTO {
	return boardDTO{
		HappeningSoon: nonNil(board.HappeningSoon),
		Upcoming:      nonNil(board.Upcoming),
		NoDate:        nonNil(board.NoDate),
		Past:          nonNil(board.Past),
	}
}

type eventDetailDTO struct {
	Event              poll.Event                     `json:"event"`
	InterestPercentage int                            `json:"interestPercentage"`
	Leaderboards       map[poll.Slot][]poll.TimeTally `json:"leaderboards"`
}

func toEventDetailDTO(detail application.EventDetail) eventDetailDTO {
	boards := detail.Leaderboards
	if boards == nil {
		boards = map[poll.Slot][]poll.TimeTally{}
	}
	return eventDetailDTO{
		Event:              detail.Event,
		InterestPercentage: detail.InterestPercentage,
		Leaderboards:       boards,
	}
}

func nonNil(events []poll.Event) []poll.Event {
	if events == nil {
		return []poll.Event{}
	}
	return events
}

type creationStatsDTO struct {
	Suggester     string `json:"suggester"`
	MonthCount    int    `json:"monthCount"`
	MonthlyLimit  int    `json:"monthlyLimit"`
	Remaining     int    `json:"remaining"`
	Total         int    `json:"total"`
	LastCreatedAt *int64 `json:"lastCreatedAt"`
	ResetsAt      int64  `json:"resetsAt"`
}

func toCreationStatsDTO(stats application.CreationStats) creationStatsDTO {
	dto := creationStatsDTO{
		Suggester:    stats.Suggester,
		MonthCount:   stats.MonthCount,
		MonthlyLimit: stats.MonthlyLimit,
		Remaining:    stats.Remaining,
		Total:        stats.Total,
		ResetsAt:     stats.ResetsAt.UnixMilli(),
	}
	if stats.LastCreatedAt != nil {
		last := stats.LastCreatedAt.UnixMilli()
		dto.LastCreatedAt = &last
	}
	return dto
}
