package poll

import (
	"sort"
	"strings"
	"time"
)

// SoonWindow is how far ahead an event counts as "happening soon".
const SoonWindow = 7 * 24 * time.Hour

// TimeTally is one specific time with its vote count.
type TimeTally struct {
	Time  string `json:"time"`
	Votes int    `json:"votes"`
}

// TopTimes returns up to n specific times of slot ordered by votes, highest
// first. Times without votes are left out; ties are listed chronologically.
func (e Event) TopTimes(slot Slot, n int) []TimeTally {
	tally, ok := e.TimeSlots[slot]
	if !ok || n <= 0 {
		return nil
	}
	ranked := make([]TimeTally, 0, len(tally.SpecificTimes))
	for clock, votes := range tally.SpecificTimes {
		if votes > 0 {
			ranked = append(ranked, TimeTally{Time: clock, Votes: votes})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Votes != ranked[j].Votes {
			return ranked[i].Votes > ranked[j].Votes
		}
		return ranked[i].Time < ranked[j].Time
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// TimeOptions lists all specific times of slot with their current tallies,
// zero for times nobody picked yet.
func (e Event) TimeOptions(slot Slot) []TimeTally {
	times := TimesFor(slot)
	if times == nil {
		return nil
	}
	tally := e.TimeSlots[slot]
	options := make([]TimeTally, 0, len(times))
	for _, clock := range times {
		options = append(options, TimeTally{Time: clock, Votes: tally.SpecificTimes[clock]})
	}
	return options
}

// Board is the read-side partition of events for display. Every event lands
// in exactly one of the four groups.
type Board struct {
	HappeningSoon []Event
	Upcoming      []Event
	NoDate        []Event
	Past          []Event
}

// Len returns the number of events on the board.
func (b Board) Len() int {
	return len(b.HappeningSoon) + len(b.Upcoming) + len(b.NoDate) + len(b.Past)
}

// Categorize partitions events relative to now. Soon and upcoming events are
// sorted soonest first, past events most recent first and undated events
// newest created first.
func Categorize(events []Event, now time.Time) Board {
	var board Board
	horizon := now.Add(SoonWindow)
	for _, event := range events {
		switch {
		case event.EventDate == nil:
			board.NoDate = append(board.NoDate, event)
		case event.EventDate.Before(now):
			board.Past = append(board.Past, event)
		case !event.EventDate.After(horizon):
			board.HappeningSoon = append(board.HappeningSoon, event)
		default:
			board.Upcoming = append(board.Upcoming, event)
		}
	}

	byDate := func(list []Event, ascending bool) {
		sort.SliceStable(list, func(i, j int) bool {
			if ascending {
				return list[i].EventDate.Before(*list[j].EventDate)
			}
			return list[i].EventDate.After(*list[j].EventDate)
		})
	}
	byDate(board.HappeningSoon, true)
	byDate(board.Upcoming, true)
	byDate(board.Past, false)
	sort.SliceStable(board.NoDate, func(i, j int) bool {
		return board.NoDate[i].CreatedAt.After(board.NoDate[j].CreatedAt)
	})
	return board
}

// DedupeByTitle drops events whose trimmed, case-folded title was already
// seen. The first occurrence wins and order is preserved.
func DedupeByTitle(events []Event) []Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, event := range events {
		key := TitleKey(event.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, event)
	}
	return out
}

// TitleKey is the comparison key used for title based deduplication.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Counters is the vote state kept locally for an external event, which has no
// shared server copy.
type Counters struct {
	InterestedCount    int       `json:"interestedCount"`
	NotInterestedCount int       `json:"notInterestedCount"`
	TimeSlots          TimeSlots `json:"timeSlots"`
}

// CountersOf snapshots the counters of an event.
func CountersOf(e Event) Counters {
	slots := e.TimeSlots
	if slots == nil {
		slots = NewTimeSlots()
	}
	return Counters{
		InterestedCount:    e.InterestedCount,
		NotInterestedCount: e.NotInterestedCount,
		TimeSlots:          slots.Clone(),
	}
}

// Overlay replaces the counters of external events with the locally stored
// ones, so a re-fetched zero baseline does not hide the client's own votes.
// Community events and events without stored counters are returned unchanged.
func Overlay(events []Event, stored map[string]Counters) []Event {
	out := make([]Event, len(events))
	for i, event := range events {
		out[i] = event
		counters, ok := stored[event.ID]
		if !event.IsExternal || !ok {
			continue
		}
		out[i] = event.Clone()
		out[i].InterestedCount = counters.InterestedCount
		out[i].NotInterestedCount = counters.NotInterestedCount
		if counters.TimeSlots != nil {
			out[i].TimeSlots = counters.TimeSlots.Clone()
		}
		out[i].Normalize()
	}
	return out
}
