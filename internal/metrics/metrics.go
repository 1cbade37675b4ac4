// Package metrics exposes Prometheus collectors for the event poll service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventpoll"

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	votesTotal        *prometheus.CounterVec
	storageConflicts  *prometheus.CounterVec
	storageRetries    *prometheus.CounterVec
	externalFetches   *prometheus.CounterVec
	externalDuration  *prometheus.HistogramVec
	syncRuns          *prometheus.CounterVec
	syncAdded         prometheus.Counter
}

// New creates the collectors on a private registry, so several instances can
// coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		votesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Funnel actions applied to stored events by action and outcome.",
		}, []string{"action", "outcome"}),
		storageConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_conflicts_total",
			Help:      "Optimistic write conflicts by document.",
		}, []string{"document"}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Read-modify-write retries by document.",
		}, []string{"document"}),
		externalFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_fetches_total",
			Help:      "Third-party source calls by source and outcome.",
		}, []string{"source", "outcome"}),
		externalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_fetch_duration_seconds",
			Help:      "Histogram of third-party source call durations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "External event sync runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		syncAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_added_total",
			Help:      "Events appended by the external sync.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.votesTotal,
		m.storageConflicts,
		m.storageRetries,
		m.externalFetches,
		m.externalDuration,
		m.syncRuns,
		m.syncAdded,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their duration under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveVote records one funnel action against a stored event.
func (m *Metrics) ObserveVote(action string, err error) {
	if m == nil {
		return
	}
	m.votesTotal.WithLabelValues(action, outcome(err)).Inc()
}

// ObserveConflict implements persistence.Observer.
func (m *Metrics) ObserveConflict(document string) {
	if m == nil {
		return
	}
	m.storageConflicts.WithLabelValues(document).Inc()
}

// ObserveRetry implements persistence.Observer.
func (m *Metrics) ObserveRetry(document string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(document).Inc()
}

// ObserveFetch implements external.FetchObserver.
func (m *Metrics) ObserveFetch(source string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.externalFetches.WithLabelValues(source, outcome(err)).Inc()
	m.externalDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveSync records a sync run and the number of events it added.
func (m *Metrics) ObserveSync(trigger string, added int, err error) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(trigger, outcome(err)).Inc()
	if err == nil && added > 0 {
		m.syncAdded.Add(float64(added))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
