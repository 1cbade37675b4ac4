package poll

import "fmt"

// Stage is the position of one voter in an event's time preference funnel.
type Stage int

const (
	StageNotVoted Stage = iota
	StageNotInterested
	StageInterestedNoSlot
	StageInterestedWithSlot
	StageInterestedWithTime
)

func (s Stage) String() string {
	switch s {
	case StageNotVoted:
		return "not_voted"
	case StageNotInterested:
		return "not_interested"
	case StageInterestedNoSlot:
		return "interested_no_slot"
	case StageInterestedWithSlot:
		return "interested_with_slot"
	case StageInterestedWithTime:
		return "interested_with_time"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether no further action is offered at this stage.
func (s Stage) Terminal() bool {
	return s == StageNotInterested || s == StageInterestedWithTime
}

// ActionKind identifies a voter's interaction with the funnel.
type ActionKind string

const (
	ActionInterested    ActionKind = "interested"
	ActionNotInterested ActionKind = "not_interested"
	ActionChooseSlot    ActionKind = "slot"
	ActionChooseTime    ActionKind = "time"
)

// Action is one voter interaction. Slot is used by ActionChooseSlot and
// ActionChooseTime; Time only by ActionChooseTime.
type Action struct {
	Kind ActionKind
	Slot Slot
	Time string
}

// Interested returns the initial "interested" action.
func Interested() Action { return Action{Kind: ActionInterested} }

// NotInterested returns the initial "not interested" action.
func NotInterested() Action { return Action{Kind: ActionNotInterested} }

// ChooseSlot returns the slot selection action.
func ChooseSlot(slot Slot) Action { return Action{Kind: ActionChooseSlot, Slot: slot} }

// ChooseTime returns the specific time selection action for a slot.
func ChooseTime(slot Slot, clock string) Action {
	return Action{Kind: ActionChooseTime, Slot: slot, Time: clock}
}

// Delta is the counter change produced by a single transition.
type Delta struct {
	Interested    int
	NotInterested int
	Slot          Slot
	SlotVotes     int
	Time          string
	TimeVotes     int
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// State is a voter's funnel position including the choices made so far.
type State struct {
	Stage Stage
	Slot  Slot
	Time  string
}

// StateOf derives the funnel state from a ledger record. A nil record means
// the voter has not voted yet.
func StateOf(record *VoteRecord) State {
	if record == nil {
		return State{Stage: StageNotVoted}
	}
	if !record.Interested {
		return State{Stage: StageNotInterested}
	}
	switch {
	case record.TimeSlot == "":
		return State{Stage: StageInterestedNoSlot}
	case record.SpecificTime == "":
		return State{Stage: StageInterestedWithSlot, Slot: record.TimeSlot}
	default:
		return State{Stage: StageInterestedWithTime, Slot: record.TimeSlot, Time: record.SpecificTime}
	}
}

// Record renders the state as the ledger entry for eventID.
func (s State) Record(eventID string) (VoteRecord, bool) {
	switch s.Stage {
	case StageNotInterested:
		return VoteRecord{EventID: eventID}, true
	case StageInterestedNoSlot:
		return VoteRecord{EventID: eventID, Interested: true}, true
	case StageInterestedWithSlot:
		return VoteRecord{EventID: eventID, Interested: true, TimeSlot: s.Slot}, true
	case StageInterestedWithTime:
		return VoteRecord{EventID: eventID, Interested: true, TimeSlot: s.Slot, SpecificTime: s.Time}, true
	default:
		return VoteRecord{}, false
	}
}

// Transition applies action to state. It is pure: on success it returns the
// next state and the counter delta to apply to the event; on rejection it
// returns the unchanged state, a zero delta and the reason.
func Transition(state State, action Action) (State, Delta, error) {
	switch action.Kind {
	case ActionInterested, ActionNotInterested:
		if state.Stage != StageNotVoted {
			return state, Delta{}, ErrAlreadyVoted
		}
	case ActionChooseSlot:
		if err := requireInterested(state); err != nil {
			return state, Delta{}, err
		}
		if state.Stage != StageInterestedNoSlot {
			return state, Delta{}, ErrSlotAlreadyChosen
		}
	case ActionChooseTime:
		if err := requireInterested(state); err != nil {
			return state, Delta{}, err
		}
		switch state.Stage {
		case StageInterestedNoSlot:
			return state, Delta{}, ErrSlotRequired
		case StageInterestedWithTime:
			return state, Delta{}, ErrTimeAlreadyChosen
		}
		if action.Slot != "" && action.Slot != state.Slot {
			return state, Delta{}, fmt.Errorf("%w: slot %s was chosen, not %s", ErrTimeOutsideSlot, state.Slot, action.Slot)
		}
		// the time is validated against the slot the voter actually picked
		action.Slot = state.Slot
	default:
		return state, Delta{}, fmt.Errorf("%w: %q", ErrUnknownAction, action.Kind)
	}

	delta, err := DeltaFor(action)
	if err != nil {
		return state, Delta{}, err
	}

	next := state
	switch action.Kind {
	case ActionInterested:
		next = State{Stage: StageInterestedNoSlot}
	case ActionNotInterested:
		next = State{Stage: StageNotInterested}
	case ActionChooseSlot:
		next = State{Stage: StageInterestedWithSlot, Slot: action.Slot}
	case ActionChooseTime:
		next = State{Stage: StageInterestedWithTime, Slot: action.Slot, Time: action.Time}
	}
	return next, delta, nil
}

// DeltaFor returns the counter change an action causes, without consulting
// any voter state. The server uses it to apply a client's funnel step.
func DeltaFor(action Action) (Delta, error) {
	switch action.Kind {
	case ActionInterested:
		return Delta{Interested: 1}, nil
	case ActionNotInterested:
		return Delta{NotInterested: 1}, nil
	case ActionChooseSlot:
		if !action.Slot.Valid() {
			return Delta{}, fmt.Errorf("%w: %q", ErrUnknownSlot, action.Slot)
		}
		return Delta{Slot: action.Slot, SlotVotes: 1}, nil
	case ActionChooseTime:
		if !action.Slot.Valid() {
			return Delta{}, fmt.Errorf("%w: %q", ErrUnknownSlot, action.Slot)
		}
		if !SlotContains(action.Slot, action.Time) {
			return Delta{}, fmt.Errorf("%w: %s not in %s", ErrTimeOutsideSlot, action.Time, action.Slot)
		}
		return Delta{Slot: action.Slot, Time: action.Time, TimeVotes: 1}, nil
	default:
		return Delta{}, fmt.Errorf("%w: %q", ErrUnknownAction, action.Kind)
	}
}

func requireInterested(state State) error {
	switch state.Stage {
	case StageNotVoted:
		return ErrNotVoted
	case StageNotInterested:
		return ErrNotInterested
	}
	return nil
}
