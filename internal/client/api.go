// Package client is the browsing side of the event poll: it gates funnel
// actions through the local vote ledger, applies them optimistically and
// keeps its view of the events in step with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/community-events/internal/poll"
)

// API is the part of the server the client talks to.
type API interface {
	ListEvents(ctx context.Context) ([]poll.Event, error)
	ListExternal(ctx context.Context) ([]poll.Event, error)
	ApplyVote(ctx context.Context, eventID string, action poll.Action) (poll.Event, error)
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client: server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPClient implements API against the JSON endpoints of the server.
type HTTPClient struct {
	base *url.URL
	http *http.Client
}

// NewHTTPClient targets the server at baseURL. httpClient may be nil.
func NewHTTPClient(baseURL string, httpClient *http.Client) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid server url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{base: base, http: httpClient}, nil
}

type eventsEnvelope struct {
	Events []poll.Event `json:"events"`
}

type eventEnvelope struct {
	Event poll.Event `json:"event"`
}

type voteBody struct {
	Action string `json:"action"`
	Slot   string `json:"slot,omitempty"`
	Time   string `json:"time,omitempty"`
}

type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func (c *HTTPClient) ListEvents(ctx context.Context) ([]poll.Event, error) {
	var out eventsEnvelope
	if err := c.do(ctx, http.MethodGet, "api/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *HTTPClient) ListExternal(ctx context.Context) ([]poll.Event, error) {
	var out eventsEnvelope
	if err := c.do(ctx, http.MethodGet, "api/external-events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *HTTPClient) ApplyVote(ctx context.Context, eventID string, action poll.Action) (poll.Event, error) {
	body := voteBody{Action: string(action.Kind), Slot: string(action.Slot), Time: action.Time}
	var out eventEnvelope
	path := "api/events/" + url.PathEscape(eventID) + "/votes"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return poll.Event{}, err
	}
	return out.Event, nil
}

// CreationStats is a suggester's event creation quota.
type CreationStats struct {
	Suggester     string
	MonthCount    int
	MonthlyLimit  int
	Remaining     int
	Total         int
	LastCreatedAt *time.Time
	ResetsAt      time.Time
}

type creationStatsBody struct {
	Suggester     string `json:"suggester"`
	MonthCount    int    `json:"monthCount"`
	MonthlyLimit  int    `json:"monthlyLimit"`
	Remaining     int    `json:"remaining"`
	Total         int    `json:"total"`
	LastCreatedAt *int64 `json:"lastCreatedAt"`
	ResetsAt      int64  `json:"resetsAt"`
}

// CreationStats asks how many events suggester has created.
func (c *HTTPClient) CreationStats(ctx context.Context, suggester string) (CreationStats, error) {
	var out creationStatsBody
	path := "api/users/" + url.PathEscape(strings.TrimSpace(suggester)) + "/stats"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return CreationStats{}, err
	}
	stats := CreationStats{
		Suggester:    out.Suggester,
		MonthCount:   out.MonthCount,
		MonthlyLimit: out.MonthlyLimit,
		Remaining:    out.Remaining,
		Total:        out.Total,
		ResetsAt:     time.UnixMilli(out.ResetsAt).UTC(),
	}
	if out.LastCreatedAt != nil {
		last := time.UnixMilli(*out.LastCreatedAt).UTC()
		stats.LastCreatedAt = &last
	}
	return stats, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	target := c.base.JoinPath(path)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var decoded errorBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&decoded); err == nil {
			apiErr.Code = decoded.ErrorCode
			if decoded.Message != "" {
				apiErr.Message = decoded.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// IsTemporary reports whether err is an APIError worth retrying.
func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}
