package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveVote("interested", nil)
	m.ObserveVote("slot", errors.New("already chosen"))
	m.ObserveConflict("data/events.json")
	m.ObserveRetry("data/events.json")
	m.ObserveFetch("MyHelsinki", 20*time.Millisecond, nil)
	m.ObserveSync("cron", 3, nil)
	m.ObserveSync("http", 0, errors.New("unauthorized"))

	if got := testutil.ToFloat64(m.votesTotal.WithLabelValues("interested", "ok")); got != 1 {
		t.Fatalf("expected 1 interested vote, got %v", got)
	}
	if got := testutil.ToFloat64(m.votesTotal.WithLabelValues("slot", "error")); got != 1 {
		t.Fatalf("expected 1 failed slot vote, got %v", got)
	}
	if got := testutil.ToFloat64(m.storageConflicts.WithLabelValues("data/events.json")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.syncAdded); got != 3 {
		t.Fatalf("expected 3 synced events, got %v", got)
	}
}

func TestMetrics_HandlerExposesHTTPCounters(t *testing.T) {
	t.Parallel()

	m := New()
	handler := m.WrapHandler("events", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/events", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `eventpoll_http_requests_total{route="events",status="201"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", body)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveVote("interested", nil)
	m.ObserveConflict("doc")
	m.ObserveSync("cron", 1, nil)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if m.WrapHandler("x", next) == nil {
		t.Fatalf("nil metrics must pass the handler through")
	}
}
