package poll

// VoteRecord is one client's choices for one event. It is keyed by EventID
// and only ever extended: Interested is fixed by the first vote, TimeSlot and
// SpecificTime are filled in as the voter progresses.
type VoteRecord struct {
	EventID      string `json:"eventId"`
	Interested   bool   `json:"interested"`
	TimeSlot     Slot   `json:"timeSlot,omitempty"`
	SpecificTime string `json:"specificTime,omitempty"`
}

// Merge overlays the unset fields of r with those of patch. Fields already set
// on r are kept, so a later patch can never drop an earlier slot choice or
// flip the initial interest.
func (r VoteRecord) Merge(patch VoteRecord) VoteRecord {
	if r.EventID == "" {
		return patch
	}
	merged := r
	if merged.TimeSlot == "" {
		merged.TimeSlot = patch.TimeSlot
	}
	if merged.SpecificTime == "" {
		merged.SpecificTime = patch.SpecificTime
	}
	return merged
}

// Stage returns the funnel stage the record corresponds to.
func (r VoteRecord) Stage() Stage {
	return StateOf(&r).Stage
}
