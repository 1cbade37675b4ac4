package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/community-events/internal/persistence"
	"github.com/example/community-events/internal/poll"
)

var (
	eventCounter uint64
	userCounter  uint64
)

var referenceTime = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic event that can be materialised for
// poll, persistence or HTTP tests.
type EventFixture struct {
	ID                 string
	Title              string
	Description        string
	SuggestedBy        string
	CreatedAt          time.Time
	EventDate          *time.Time
	SuggestedTimeSlot  poll.Slot
	SuggestedTime      string
	Source             string
	IsExternal         bool
	InterestedCount    int
	NotInterestedCount int
	SlotVotes          map[poll.Slot]int
	TimeVotes          map[string]int
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic event fixture with optional overrides.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:          fmt.Sprintf("evt-%03d", idx),
		Title:       fmt.Sprintf("Event %03d", idx),
		Description: fmt.Sprintf("Description of event %03d", idx),
		SuggestedBy: "Anonymous",
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventTitle overrides the generated title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventCreatedAt sets the creation timestamp.
func WithEventCreatedAt(t time.Time) EventOption {
	return func(f *EventFixture) {
		f.CreatedAt = t
	}
}

// WithEventDate sets the date the event takes place.
func WithEventDate(t time.Time) EventOption {
	return func(f *EventFixture) {
		date := t
		f.EventDate = &date
	}
}

// WithEventExternal marks the fixture as coming from a third-party source.
func WithEventExternal(source string) EventOption {
	return func(f *EventFixture) {
		f.IsExternal = true
		f.Source = source
		f.ID = "external-" + source + "-" + f.ID
	}
}

// WithEventVotes sets the initial vote counters.
func WithEventVotes(interested, notInterested int) EventOption {
	return func(f *EventFixture) {
		f.InterestedCount = interested
		f.NotInterestedCount = notInterested
	}
}

// WithSlotVotes sets the votes of one slot.
func WithSlotVotes(slot poll.Slot, votes int) EventOption {
	return func(f *EventFixture) {
		if f.SlotVotes == nil {
			f.SlotVotes = make(map[poll.Slot]int)
		}
		f.SlotVotes[slot] = votes
	}
}

// WithTimeVotes sets the votes of one specific time. The slot is derived
// from the time.
func WithTimeVotes(clock string, votes int) EventOption {
	return func(f *EventFixture) {
		if f.TimeVotes == nil {
			f.TimeVotes = make(map[string]int)
		}
		f.TimeVotes[clock] = votes
	}
}

// Event materialises the fixture as a normalized poll aggregate.
func (f EventFixture) Event() poll.Event {
	event := poll.Event{
		ID:                 f.ID,
		Title:              f.Title,
		Description:        f.Description,
		SuggestedBy:        f.SuggestedBy,
		CreatedAt:          f.CreatedAt,
		SuggestedTimeSlot:  f.SuggestedTimeSlot,
		SuggestedTime:      f.SuggestedTime,
		Source:             f.Source,
		IsExternal:         f.IsExternal,
		InterestedCount:    f.InterestedCount,
		NotInterestedCount: f.NotInterestedCount,
	}
	if f.EventDate != nil {
		date := *f.EventDate
		event.EventDate = &date
	}
	event.Normalize()
	for slot, votes := range f.SlotVotes {
		tally := event.TimeSlots[slot]
		tally.Votes = votes
		event.TimeSlots[slot] = tally
	}
	for clock, votes := range f.TimeVotes {
		slot, ok := poll.SlotOf(clock)
		if !ok {
			continue
		}
		event.TimeSlots[slot].SpecificTimes[clock] = votes
	}
	return event
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic registered user.
type UserFixture struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	fixture := UserFixture{
		ID:        fmt.Sprintf("user-%03d", idx),
		Username:  fmt.Sprintf("user%03d", idx),
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUsername overrides the generated username.
func WithUsername(name string) UserOption {
	return func(f *UserFixture) {
		f.Username = name
	}
}

// Persistence materialises the fixture as the stored user record.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{ID: f.ID, Username: f.Username, CreatedAt: f.CreatedAt}
}
