package poll

import (
	"fmt"
	"strings"
	"time"
)

// Slot is one of the four coarse time-of-day buckets an interested voter can pick.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
	SlotNight     Slot = "night"
)

const (
	stepMinutes  = 30
	timesPerSlot = 12
)

type hourRange struct {
	start int
	end   int
}

var slotRanges = map[Slot]hourRange{
	SlotMorning:   {start: 6, end: 12},
	SlotAfternoon: {start: 12, end: 18},
	SlotEvening:   {start: 18, end: 24},
	SlotNight:     {start: 0, end: 6},
}

// Slots returns the slots in display order.
func Slots() []Slot {
	return []Slot{SlotMorning, SlotAfternoon, SlotEvening, SlotNight}
}

// Valid reports whether s names one of the four known slots.
func (s Slot) Valid() bool {
	_, ok := slotRanges[s]
	return ok
}

// Range renders the slot's clock range, e.g. "18:00 - 00:00".
func (s Slot) Range() string {
	r, ok := slotRanges[s]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%02d:00 - %02d:00", r.start, r.end%24)
}

// ParseSlot normalizes user input into a Slot.
func ParseSlot(value string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(value)))
	if !slot.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, value)
	}
	return slot, nil
}

// TimesFor returns the twelve half-hour "HH:MM" options of a slot in
// chronological order. Unknown slots yield nil.
func TimesFor(slot Slot) []string {
	r, ok := slotRanges[slot]
	if !ok {
		return nil
	}
	times := make([]string, 0, timesPerSlot)
	for hour := r.start; hour < r.end; hour++ {
		for minute := 0; minute < 60; minute += stepMinutes {
			times = append(times, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return times
}

// SlotContains reports whether clock is one of the slot's specific-time options.
func SlotContains(slot Slot, clock string) bool {
	for _, candidate := range TimesFor(slot) {
		if candidate == clock {
			return true
		}
	}
	return false
}

// SlotOf returns the slot whose range covers the "HH:MM" clock value.
func SlotOf(clock string) (Slot, bool) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return "", false
	}
	hour := parsed.Hour()
	for _, slot := range Slots() {
		r := slotRanges[slot]
		if hour >= r.start && hour < r.end {
			return slot, true
		}
	}
	return "", false
}
