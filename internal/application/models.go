package application

import (
	"time"

	"github.com/example/community-events/internal/poll"
)

// EventInput captures caller provided fields of a suggested event.
type EventInput struct {
	Title             string
	Description       string
	SuggestedBy       string
	EventDate         *time.Time
	SuggestedTimeSlot string
	SuggestedTime     string
	ExternalURL       string
}

// CreateEventParams wraps the data required to suggest an event.
type CreateEventParams struct {
	Input EventInput
}

// ReplaceEventParams carries a corrective full overwrite of a stored event.
type ReplaceEventParams struct {
	Event poll.Event
}

// VoteParams identifies one funnel step applied to a stored event.
type VoteParams struct {
	EventID string
	Action  poll.Action
}

// EventDetail is a stored event together with its derived read-side values.
type EventDetail struct {
	Event              poll.Event
	InterestPercentage int
	Leaderboards       map[poll.Slot][]poll.TimeTally
}

// UserInput captures caller provided user attributes.
type UserInput struct {
	Username string
}

// SyncResult reports the outcome of one external sync run.
type SyncResult struct {
	Fetched int
	Added   int
	Events  []poll.Event
}

// SyncStatus describes the sync schedule and the latest run.
type SyncStatus struct {
	Schedule  string
	LastRun   *time.Time
	LastAdded int
	LastError string
}
