// Package external fetches event listings from third-party sources and maps
// them onto zero-count poll events.
package external

import (
	"context"
	"strings"
	"time"
)

// Descriptor is one raw listing as published by a source. Every field is
// optional; ingestion fills in placeholders.
type Descriptor struct {
	ID          string
	Name        map[string]string
	Description map[string]string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Locality    string
	InfoURL     string
	Tags        []string
}

// Title picks the English name, then the Finnish one.
func (d Descriptor) Title() string {
	return firstNonEmpty(d.Name, "en", "fi")
}

// Summary picks the intro, body, English and Finnish description in that order.
func (d Descriptor) Summary() string {
	return firstNonEmpty(d.Description, "intro", "body", "en", "fi")
}

// Mentions reports whether any of the names appears in the listing's title,
// description, locality or tags, ignoring case.
func (d Descriptor) Mentions(names ...string) bool {
	haystack := strings.ToLower(strings.Join([]string{
		firstNonEmpty(d.Name, "fi", "en"),
		d.Summary(),
		d.Locality,
		strings.Join(d.Tags, " "),
	}, "\n"))
	for _, name := range names {
		if name != "" && strings.Contains(haystack, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
	}
	return ""
}

// Filter narrows a source's listings.
type Filter struct {
	// Localities keeps listings mentioning one of the names. Empty keeps all.
	Localities []string
	// From and Until bound the start date of dated listings. Undated
	// listings always pass.
	From  *time.Time
	Until *time.Time
	// Max caps the number of returned listings; zero means no cap.
	Max int
}

// Match reports whether d passes the filter, ignoring Max.
func (f Filter) Match(d Descriptor) bool {
	if len(f.Localities) > 0 && !d.Mentions(f.Localities...) {
		return false
	}
	if d.StartsAt != nil {
		if f.From != nil && d.StartsAt.Before(*f.From) {
			return false
		}
		if f.Until != nil && d.StartsAt.After(*f.Until) {
			return false
		}
	}
	return true
}

// Apply returns the matching listings in order, truncated to Max.
func (f Filter) Apply(in []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(in))
	for _, d := range in {
		if !f.Match(d) {
			continue
		}
		out = append(out, d)
		if f.Max > 0 && len(out) == f.Max {
			break
		}
	}
	return out
}

// Source is a third-party listing provider.
type Source interface {
	Name() string
	ListEvents(ctx context.Context, filter Filter) ([]Descriptor, error)
}
