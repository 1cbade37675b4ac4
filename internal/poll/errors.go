package poll

import "errors"

var (
	// ErrAlreadyVoted is returned for an initial vote on an event that already has a vote record.
	ErrAlreadyVoted = errors.New("poll: already voted")
	// ErrNotInterested is returned when a refinement is attempted on a "not interested" vote.
	ErrNotInterested = errors.New("poll: vote is not interested")
	// ErrNotVoted is returned when a refinement is attempted before the initial vote.
	ErrNotVoted = errors.New("poll: no initial vote")
	// ErrSlotAlreadyChosen is returned when a voter tries to pick a second slot.
	ErrSlotAlreadyChosen = errors.New("poll: time slot already chosen")
	// ErrSlotRequired is returned when a specific time is chosen before a slot.
	ErrSlotRequired = errors.New("poll: time slot required")
	// ErrTimeAlreadyChosen is returned when a voter tries to pick a second specific time.
	ErrTimeAlreadyChosen = errors.New("poll: specific time already chosen")
	// ErrUnknownSlot is returned for slot keys outside morning/afternoon/evening/night.
	ErrUnknownSlot = errors.New("poll: unknown time slot")
	// ErrTimeOutsideSlot is returned when a specific time does not belong to the chosen slot.
	ErrTimeOutsideSlot = errors.New("poll: specific time outside slot")
	// ErrUnknownAction is returned for unrecognised funnel actions.
	ErrUnknownAction = errors.New("poll: unknown action")
)
