package poll

import (
	"encoding/json"
	"fmt"
	"time"
)

// SlotTally holds the votes recorded for one slot and for each specific time inside it.
type SlotTally struct {
	Votes         int            `json:"votes"`
	SpecificTimes map[string]int `json:"specificTimes"`
}

// TimeSlots maps every slot to its tally.
type TimeSlots map[Slot]SlotTally

// NewTimeSlots returns a zeroed tally for all four slots.
func NewTimeSlots() TimeSlots {
	slots := make(TimeSlots, 4)
	for _, slot := range Slots() {
		slots[slot] = SlotTally{SpecificTimes: map[string]int{}}
	}
	return slots
}

// Clone returns a deep copy.
func (t TimeSlots) Clone() TimeSlots {
	out := make(TimeSlots, len(t))
	for slot, tally := range t {
		times := make(map[string]int, len(tally.SpecificTimes))
		for clock, votes := range tally.SpecificTimes {
			times[clock] = votes
		}
		out[slot] = SlotTally{Votes: tally.Votes, SpecificTimes: times}
	}
	return out
}

// Event is the aggregate whose counters collect the community's votes for one
// suggested or externally sourced event.
//
// Optional descriptive fields keep their zero value when absent: a nil
// EventDate means "no date", an empty SuggestedTimeSlot means no suggestion.
type Event struct {
	ID                 string
	Title              string
	Description        string
	SuggestedBy        string
	CreatedAt          time.Time
	EventDate          *time.Time
	SuggestedTimeSlot  Slot
	SuggestedTime      string
	Source             string
	ExternalURL        string
	IsExternal         bool
	InterestedCount    int
	NotInterestedCount int
	TimeSlots          TimeSlots
}

// Normalize makes sure every slot and specific-time map exists and clamps
// negative counters to zero.
func (e *Event) Normalize() {
	if e.TimeSlots == nil {
		e.TimeSlots = NewTimeSlots()
	}
	for _, slot := range Slots() {
		tally := e.TimeSlots[slot]
		if tally.SpecificTimes == nil {
			tally.SpecificTimes = map[string]int{}
		}
		if tally.Votes < 0 {
			tally.Votes = 0
		}
		e.TimeSlots[slot] = tally
	}
	if e.InterestedCount < 0 {
		e.InterestedCount = 0
	}
	if e.NotInterestedCount < 0 {
		e.NotInterestedCount = 0
	}
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	if e.EventDate != nil {
		date := *e.EventDate
		out.EventDate = &date
	}
	if e.TimeSlots != nil {
		out.TimeSlots = e.TimeSlots.Clone()
	}
	return out
}

// TotalVotes is the number of initial interested/not-interested votes.
func (e Event) TotalVotes() int {
	return e.InterestedCount + e.NotInterestedCount
}

// InterestPercentage is the rounded share of interested votes, 0 without votes.
func (e Event) InterestPercentage() int {
	total := e.TotalVotes()
	if total == 0 {
		return 0
	}
	return (e.InterestedCount*200 + total) / (2 * total)
}

// Apply adds a funnel delta to the counters. The aggregate trusts its caller
// on who voted; it only checks that the delta targets a valid slot and time.
func (e *Event) Apply(d Delta) error {
	if d.Slot != "" && !d.Slot.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, d.Slot)
	}
	if d.Time != "" {
		if d.Slot == "" {
			return ErrSlotRequired
		}
		if !SlotContains(d.Slot, d.Time) {
			return fmt.Errorf("%w: %s not in %s", ErrTimeOutsideSlot, d.Time, d.Slot)
		}
	}

	e.Normalize()
	e.InterestedCount += d.Interested
	e.NotInterestedCount += d.NotInterested
	if d.Slot != "" {
		tally := e.TimeSlots[d.Slot]
		tally.Votes += d.SlotVotes
		if d.Time != "" {
			tally.SpecificTimes[d.Time] += d.TimeVotes
		}
		e.TimeSlots[d.Slot] = tally
	}
	return nil
}

// CheckCounters verifies the conservation rules between the counters:
// specific-time votes never exceed their slot's votes, and slot votes never
// exceed the interested count.
func (e Event) CheckCounters() error {
	slotTotal := 0
	for _, slot := range Slots() {
		tally := e.TimeSlots[slot]
		timeTotal := 0
		for _, votes := range tally.SpecificTimes {
			timeTotal += votes
		}
		if timeTotal > tally.Votes {
			return fmt.Errorf("poll: slot %s has %d specific-time votes for %d slot votes", slot, timeTotal, tally.Votes)
		}
		slotTotal += tally.Votes
	}
	if slotTotal > e.InterestedCount {
		return fmt.Errorf("poll: %d slot votes exceed %d interested votes", slotTotal, e.InterestedCount)
	}
	return nil
}

type eventJSON struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	SuggestedBy        string    `json:"suggestedBy"`
	CreatedAt          int64     `json:"createdAt"`
	EventDate          *int64    `json:"eventDate,omitempty"`
	SuggestedTimeSlot  Slot      `json:"suggestedTimeSlot,omitempty"`
	SuggestedTime      string    `json:"suggestedTime,omitempty"`
	Source             string    `json:"source,omitempty"`
	ExternalURL        string    `json:"externalUrl,omitempty"`
	IsExternal         bool      `json:"isExternal,omitempty"`
	InterestedCount    int       `json:"interestedCount"`
	NotInterestedCount int       `json:"notInterestedCount"`
	TimeSlots          TimeSlots `json:"timeSlots"`
}

// MarshalJSON encodes the event in the shared events.json document layout,
// with timestamps as Unix milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:                 e.ID,
		Title:              e.Title,
		Description:        e.Description,
		SuggestedBy:        e.SuggestedBy,
		SuggestedTimeSlot:  e.SuggestedTimeSlot,
		SuggestedTime:      e.SuggestedTime,
		Source:             e.Source,
		ExternalURL:        e.ExternalURL,
		IsExternal:         e.IsExternal,
		InterestedCount:    e.InterestedCount,
		NotInterestedCount: e.NotInterestedCount,
		TimeSlots:          e.TimeSlots,
	}
	if !e.CreatedAt.IsZero() {
		out.CreatedAt = e.CreatedAt.UnixMilli()
	}
	if e.EventDate != nil {
		ms := e.EventDate.UnixMilli()
		out.EventDate = &ms
	}
	if out.TimeSlots == nil {
		out.TimeSlots = NewTimeSlots()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the events.json layout and normalizes the counters.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{
		ID:                 in.ID,
		Title:              in.Title,
		Description:        in.Description,
		SuggestedBy:        in.SuggestedBy,
		SuggestedTimeSlot:  in.SuggestedTimeSlot,
		SuggestedTime:      in.SuggestedTime,
		Source:             in.Source,
		ExternalURL:        in.ExternalURL,
		IsExternal:         in.IsExternal,
		InterestedCount:    in.InterestedCount,
		NotInterestedCount: in.NotInterestedCount,
		TimeSlots:          in.TimeSlots,
	}
	if in.CreatedAt > 0 {
		e.CreatedAt = time.UnixMilli(in.CreatedAt).UTC()
	}
	if in.EventDate != nil {
		date := time.UnixMilli(*in.EventDate).UTC()
		e.EventDate = &date
	}
	e.Normalize()
	return nil
}
