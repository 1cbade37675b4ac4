package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/community-events/internal/application"
	"github.com/example/community-events/internal/external"
	"github.com/example/community-events/internal/metrics"
	"github.com/example/community-events/internal/poll"
	"github.com/example/community-events/internal/testfixtures"
)

var testSecretParams = application.Argon2idParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type feedStub struct {
	events []poll.Event
	err    error
}

func (f feedStub) Events(ctx context.Context) ([]poll.Event, error) {
	return f.events, f.err
}

type testServer struct {
	handler http.Handler
	repos   *testfixtures.Repositories
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, feed externalFeed) testServer {
	t.Helper()

	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	repos := testfixtures.NewMemoryRepositories()
	m := metrics.New()

	limiter := application.NewRateLimiter(application.DefaultEventsPerMonth, application.DefaultCreateCooldown, clock.NowFunc())
	events := application.NewEventService(repos.Events, limiter, testfixtures.NewIDGenerator("evt").NextFunc(), clock.NowFunc())
	votes := application.NewVoteService(repos.Events, m)
	users := application.NewUserService(repos.Users, testfixtures.NewIDGenerator("user").NextFunc(), clock.NowFunc())

	hash, err := application.HashSecret("s3cret", testSecretParams)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	source := external.NewCurated("MyHelsinki", []external.CuratedListing{
		{ID: "42", Title: "Harbour concert", Locality: "Turku"},
	})
	sync := application.NewSyncService(application.SyncConfig{
		Events:      repos.Events,
		Source:      source,
		SecretHash:  hash,
		Observer:    m,
		IDGenerator: testfixtures.NewIDGenerator("sync").NextFunc(),
		Now:         clock.NowFunc(),
	})

	router := NewRouter(RouterConfig{
		Events:     NewEventHandler(events, votes, nil),
		Users:      NewUserHandler(users, nil),
		Sync:       NewSyncHandler(sync, nil),
		External:   NewExternalHandler(feed, nil),
		Metrics:    m,
		Middleware: []func(http.Handler) http.Handler{RequestLogger(nil), CORS()},
	})
	return testServer{handler: router, repos: repos, metrics: m}
}

func (s testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestEventHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create then list events", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		rec := srv.do(t, http.MethodPost, "/api/events", `{"title":"Sauna night","description":"Public sauna by the river","suggestedTime":"19:00"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		created := decode[eventResponse](t, rec)
		if created.Event.ID != "evt-1" || created.Event.SuggestedTimeSlot != poll.SlotEvening {
			t.Fatalf("unexpected created event %+v", created.Event)
		}

		rec = srv.do(t, http.MethodGet, "/api/events", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		listed := decode[listEventsResponse](t, rec)
		if len(listed.Events) != 1 || listed.Events[0].Title != "Sauna night" {
			t.Fatalf("unexpected list %+v", listed.Events)
		}
	})

	t.Run("validation errors map to 422 with field details", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		rec := srv.do(t, http.MethodPost, "/api/events", `{"title":"","description":"x"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		body := decode[errorResponse](t, rec)
		if body.ErrorCode != "VALIDATION_FAILED" || body.Errors["title"] == "" {
			t.Fatalf("unexpected error body %+v", body)
		}
	})

	t.Run("malformed bodies map to 400", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		rec := srv.do(t, http.MethodPost, "/api/events", `{"title":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("creation cooldown maps to 429", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		body := `{"title":"Board games","description":"Café night","suggestedBy":"Aino"}`

		if rec := srv.do(t, http.MethodPost, "/api/events", body); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		rec := srv.do(t, http.MethodPost, "/api/events", body)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if got := decode[errorResponse](t, rec); got.ErrorCode != "RATE_LIMITED" || got.Message == "" {
			t.Fatalf("unexpected error body %+v", got)
		}
	})

	t.Run("suggester stats follow creations", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		if rec := srv.do(t, http.MethodPost, "/api/events", `{"title":"Board games","description":"Café night","suggestedBy":"Aino"}`); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		rec := srv.do(t, http.MethodGet, "/api/users/aino/stats", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		stats := decode[creationStatsDTO](t, rec)
		reset := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
		if stats.MonthCount != 1 || stats.Total != 1 || stats.Remaining != application.DefaultEventsPerMonth-1 || stats.ResetsAt != reset {
			t.Fatalf("unexpected stats %+v", stats)
		}
		if stats.LastCreatedAt == nil || *stats.LastCreatedAt != testfixtures.ReferenceTime().UnixMilli() {
			t.Fatalf("expected last creation at the reference time, got %v", stats.LastCreatedAt)
		}

		fresh := decode[creationStatsDTO](t, srv.do(t, http.MethodGet, "/api/users/Pekka/stats", ""))
		if fresh.MonthCount != 0 || fresh.LastCreatedAt != nil || fresh.MonthlyLimit != application.DefaultEventsPerMonth {
			t.Fatalf("unexpected stats for a new suggester %+v", fresh)
		}

		if rec := srv.do(t, http.MethodPost, "/api/users/aino/stats", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
		if rec := srv.do(t, http.MethodGet, "/api/users/aino", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("board view partitions events", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		srv.repos.SeedEvents(t,
			testfixtures.NewEventFixture(testfixtures.WithEventID("evt-a")).Event(),
			testfixtures.NewEventFixture(testfixtures.WithEventID("evt-b"), testfixtures.WithEventDate(testfixtures.ReferenceTime().AddDate(0, 0, 2))).Event(),
		)

		rec := srv.do(t, http.MethodGet, "/api/events?view=board", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		board := decode[boardDTO](t, rec)
		if len(board.NoDate) != 1 || len(board.HappeningSoon) != 1 || board.Past == nil {
			t.Fatalf("unexpected board %+v", board)
		}
	})

	t.Run("detail carries interest percentage and leaderboards", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		srv.repos.SeedEvents(t, testfixtures.NewEventFixture(
			testfixtures.WithEventID("evt-x"),
			testfixtures.WithEventVotes(1, 1),
			testfixtures.WithSlotVotes(poll.SlotMorning, 1),
			testfixtures.WithTimeVotes("08:00", 1),
		).Event())

		rec := srv.do(t, http.MethodGet, "/api/events/evt-x", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		detail := decode[eventDetailDTO](t, rec)
		if detail.InterestPercentage != 50 || len(detail.Leaderboards[poll.SlotMorning]) != 1 {
			t.Fatalf("unexpected detail %+v", detail)
		}

		if rec := srv.do(t, http.MethodGet, "/api/events/missing", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("replace rejects inconsistent counters", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		event := testfixtures.NewEventFixture(testfixtures.WithEventID("evt-r")).Event()
		srv.repos.SeedEvents(t, event)

		event.InterestedCount = 3
		event.TimeSlots[poll.SlotNight] = poll.SlotTally{Votes: 4, SpecificTimes: map[string]int{}}
		payload, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if rec := srv.do(t, http.MethodPut, "/api/events", string(payload)); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}

		event.TimeSlots[poll.SlotNight] = poll.SlotTally{Votes: 2, SpecificTimes: map[string]int{}}
		payload, _ = json.Marshal(event)
		if rec := srv.do(t, http.MethodPut, "/api/events", string(payload)); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("delete by body or path", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		srv.repos.SeedEvents(t,
			testfixtures.NewEventFixture(testfixtures.WithEventID("evt-1")).Event(),
			testfixtures.NewEventFixture(testfixtures.WithEventID("evt-2")).Event(),
		)

		if rec := srv.do(t, http.MethodDelete, "/api/events", `{"eventId":"evt-1"}`); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if rec := srv.do(t, http.MethodDelete, "/api/events/evt-2", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if rec := srv.do(t, http.MethodDelete, "/api/events/evt-2", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for a second delete, got %d", rec.Code)
		}
	})

	t.Run("unsupported methods return 405", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		rec := srv.do(t, http.MethodPatch, "/api/events", "")
		if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") == "" {
			t.Fatalf("expected 405 with Allow header, got %d", rec.Code)
		}
	})
}

func TestVoteHandler(t *testing.T) {
	t.Parallel()

	t.Run("applies each funnel step", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		srv.repos.SeedEvents(t, testfixtures.NewEventFixture(testfixtures.WithEventID("evt-v")).Event())

		var last eventResponse
		for _, body := range []string{
			`{"action":"interested"}`,
			`{"action":"slot","slot":"evening"}`,
			`{"action":"time","slot":"evening","time":"18:30"}`,
		} {
			rec := srv.do(t, http.MethodPost, "/api/events/evt-v/votes", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("vote %s failed with %d: %s", body, rec.Code, rec.Body.String())
			}
			last = decode[eventResponse](t, rec)
		}

		if last.Event.InterestedCount != 1 || last.Event.TimeSlots[poll.SlotEvening].SpecificTimes["18:30"] != 1 {
			t.Fatalf("unexpected counters %+v", last.Event)
		}
	})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "time outside slot", path: "/api/events/evt-v/votes", body: `{"action":"time","slot":"morning","time":"21:00"}`, status: http.StatusUnprocessableEntity, code: "INVALID_VOTE"},
		{name: "unknown slot", path: "/api/events/evt-v/votes", body: `{"action":"slot","slot":"brunch"}`, status: http.StatusUnprocessableEntity, code: "INVALID_VOTE"},
		{name: "unknown action", path: "/api/events/evt-v/votes", body: `{"action":"maybe"}`, status: http.StatusUnprocessableEntity, code: "INVALID_VOTE"},
		{name: "unknown event", path: "/api/events/evt-none/votes", body: `{"action":"interested"}`, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "external event", path: "/api/events/external-MyHelsinki-1/votes", body: `{"action":"interested"}`, status: http.StatusBadRequest, code: "EXTERNAL_EVENT"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, nil)
			srv.repos.SeedEvents(t, testfixtures.NewEventFixture(testfixtures.WithEventID("evt-v")).Event())

			rec := srv.do(t, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if got := decode[errorResponse](t, rec); got.ErrorCode != tc.code {
				t.Fatalf("expected error code %s, got %+v", tc.code, got)
			}
		})
	}
}

func TestUserHandlers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/users", `{"username":"Aino"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if created := decode[userResponse](t, rec); created.User.ID != "user-1" || created.User.Username != "Aino" {
		t.Fatalf("unexpected user %+v", created.User)
	}

	if rec := srv.do(t, http.MethodPost, "/api/users", `{"username":"aino"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/users", "")
	if listed := decode[listUsersResponse](t, rec); len(listed.Users) != 1 {
		t.Fatalf("unexpected users %+v", listed.Users)
	}
}

func TestSyncHandlers(t *testing.T) {
	t.Parallel()

	t.Run("run requires the bearer secret", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		if rec := srv.do(t, http.MethodPost, "/api/sync", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without token, got %d", rec.Code)
		}
		if rec := srv.do(t, http.MethodPost, "/api/sync", "", "Authorization", "Bearer nope"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
		}
	})

	t.Run("run adds listings and updates status", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)

		rec := srv.do(t, http.MethodPost, "/api/sync", "", "Authorization", "Bearer s3cret")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := decode[syncResultDTO](t, rec)
		if result.Added != 1 || result.Events[0].Source != application.SyncSource {
			t.Fatalf("unexpected sync result %+v", result)
		}

		status := decode[syncStatusDTO](t, srv.do(t, http.MethodGet, "/api/sync", ""))
		if status.Schedule != application.DefaultSchedule || status.LastRun == nil || status.LastAdded != 1 {
			t.Fatalf("unexpected status %+v", status)
		}
	})
}

func TestExternalHandler(t *testing.T) {
	t.Parallel()

	t.Run("lists the feed", func(t *testing.T) {
		t.Parallel()
		feed := feedStub{events: []poll.Event{testfixtures.NewEventFixture(testfixtures.WithEventID("1"), testfixtures.WithEventExternal("MyHelsinki")).Event()}}
		srv := newTestServer(t, feed)

		rec := srv.do(t, http.MethodGet, "/api/external-events", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		listed := decode[listEventsResponse](t, rec)
		if len(listed.Events) != 1 || !listed.Events[0].IsExternal {
			t.Fatalf("unexpected external events %+v", listed.Events)
		}
	})

	t.Run("all sources down maps to 502", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, feedStub{err: external.ErrNoSources})

		if rec := srv.do(t, http.MethodGet, "/api/external-events", ""); rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	if rec := srv.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}

	srv.do(t, http.MethodGet, "/api/events", "")
	rec := srv.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `eventpoll_http_requests_total{route="events",status="200"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}
