package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultMyHelsinkiURL is the public events endpoint.
const DefaultMyHelsinkiURL = "https://open-api.myhelsinki.fi/v1/events/"

// MyHelsinki reads the MyHelsinki open events API.
type MyHelsinki struct {
	endpoint string
	limit    int
	client   *http.Client
	breaker  *Breaker
}

// MyHelsinkiOption customises the source.
type MyHelsinkiOption func(*MyHelsinki)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) MyHelsinkiOption {
	return func(m *MyHelsinki) {
		if client != nil {
			m.client = client
		}
	}
}

// WithBreaker guards upstream calls with b.
func WithBreaker(b *Breaker) MyHelsinkiOption {
	return func(m *MyHelsinki) {
		m.breaker = b
	}
}

// WithLimit sets the upstream "limit" query parameter.
func WithLimit(limit int) MyHelsinkiOption {
	return func(m *MyHelsinki) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// NewMyHelsinki returns a source reading endpoint.
func NewMyHelsinki(endpoint string, opts ...MyHelsinkiOption) *MyHelsinki {
	if endpoint == "" {
		endpoint = DefaultMyHelsinkiURL
	}
	m := &MyHelsinki{
		endpoint: endpoint,
		limit:    50,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name identifies the source in event ids.
func (m *MyHelsinki) Name() string {
	return "MyHelsinki"
}

type myHelsinkiResponse struct {
	Data []myHelsinkiEvent `json:"data"`
}

type myHelsinkiEvent struct {
	ID          json.RawMessage   `json:"id"`
	Name        map[string]string `json:"name"`
	Description map[string]string `json:"description"`
	EventDates  struct {
		StartingDay string `json:"starting_day"`
		EndingDay   string `json:"ending_day"`
	} `json:"event_dates"`
	Location struct {
		Address struct {
			StreetAddress string `json:"street_address"`
			Locality      string `json:"locality"`
		} `json:"address"`
	} `json:"location"`
	InfoURL string `json:"info_url"`
	Tags    []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// ListEvents fetches one page and applies filter locally.
func (m *MyHelsinki) ListEvents(ctx context.Context, filter Filter) ([]Descriptor, error) {
	var page myHelsinkiResponse
	fetch := func(ctx context.Context) error {
		var err error
		page, err = m.fetch(ctx)
		return err
	}
	var err error
	if m.breaker != nil {
		err = m.breaker.Execute(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(page.Data))
	for _, raw := range page.Data {
		descriptors = append(descriptors, raw.descriptor())
	}
	return filter.Apply(descriptors), nil
}

func (m *MyHelsinki) fetch(ctx context.Context) (myHelsinkiResponse, error) {
	u, err := url.Parse(m.endpoint)
	if err != nil {
		return myHelsinkiResponse{}, fmt.Errorf("myhelsinki: invalid endpoint: %w", err)
	}
	query := u.Query()
	query.Set("limit", strconv.Itoa(m.limit))
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return myHelsinkiResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return myHelsinkiResponse{}, fmt.Errorf("myhelsinki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return myHelsinkiResponse{}, fmt.Errorf("myhelsinki: unexpected status %d", resp.StatusCode)
	}
	var page myHelsinkiResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return myHelsinkiResponse{}, fmt.Errorf("myhelsinki: decode: %w", err)
	}
	return page, nil
}

func (e myHelsinkiEvent) descriptor() Descriptor {
	d := Descriptor{
		ID:          rawID(e.ID),
		Name:        e.Name,
		Description: e.Description,
		StartsAt:    parseDay(e.EventDates.StartingDay),
		EndsAt:      parseDay(e.EventDates.EndingDay),
		Locality:    e.Location.Address.Locality,
		InfoURL:     e.InfoURL,
	}
	for _, tag := range e.Tags {
		if tag.Name != "" {
			d.Tags = append(d.Tags, tag.Name)
		}
	}
	return d
}

// rawID accepts string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

var dayLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDay(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dayLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t := parsed.UTC()
			return &t
		}
	}
	return nil
}
