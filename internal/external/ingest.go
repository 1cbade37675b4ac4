package external

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/community-events/internal/poll"
)

const (
	// MaxTitleLength and MaxDescriptionLength are counted in runes.
	MaxTitleLength       = 100
	MaxDescriptionLength = 300

	PlaceholderTitle       = "Turku Event"
	PlaceholderDescription = "Event happening in Turku"
)

// listingNamespace scopes content derived listing ids.
var listingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("community-events/external-listing"))

// ListingID returns the upstream id of d, or a name derived from its content
// when upstream sent none. The derived id does not depend on fetch time, so a
// listing keeps it across cache refreshes.
func ListingID(source string, d Descriptor) string {
	if id := strings.TrimSpace(d.ID); id != "" {
		return id
	}
	start := ""
	if d.StartsAt != nil {
		start = d.StartsAt.UTC().Format(time.RFC3339)
	}
	name := strings.Join([]string{
		source,
		poll.TitleKey(d.Title()),
		start,
		strings.TrimSpace(d.Locality),
		strings.TrimSpace(d.InfoURL),
	}, "\x00")
	return "anon-" + uuid.NewSHA1(listingNamespace, []byte(name)).String()[:13]
}

// Ingest maps a listing onto a zeroed external event. Missing fields get
// placeholders, so a malformed listing never fails the batch.
func Ingest(source string, d Descriptor, now time.Time) poll.Event {
	event := poll.Event{
		ID:          "external-" + source + "-" + ListingID(source, d),
		Title:       Truncate(orDefault(d.Title(), PlaceholderTitle), MaxTitleLength),
		Description: Truncate(orDefault(d.Summary(), PlaceholderDescription), MaxDescriptionLength),
		SuggestedBy: source,
		CreatedAt:   now,
		Source:      source,
		ExternalURL: strings.TrimSpace(d.InfoURL),
		IsExternal:  true,
	}
	if d.StartsAt != nil {
		date := *d.StartsAt
		event.EventDate = &date
	}
	event.Normalize()
	return event
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
