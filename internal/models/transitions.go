package models

// Transitions maps a status to the set of statuses an explicit update may
// move it to. Same-status updates are always allowed.
type Transitions map[string][]string

// DefaultItineraryTransitions is forward-only. draft -> generated is left
// out because only generation may perform it.
func DefaultItineraryTransitions() Transitions {
	return Transitions{
		ItineraryDraft:     {},
		ItineraryGenerated: {ItineraryConfirmed},
		ItineraryConfirmed: {ItineraryCompleted},
		ItineraryCompleted: {},
	}
}

func DefaultBookingTransitions() Transitions {
	return Transitions{
		BookingPending:   {BookingConfirmed, BookingCancelled},
		BookingConfirmed: {BookingCancelled, BookingCompleted},
		BookingCancelled: {},
		BookingCompleted: {},
	}
}

// GenerateAllowedFrom lists the statuses generation may start from when
// transitions are strict.
var GenerateAllowedFrom = []string{ItineraryDraft, ItineraryGenerated}

func (t Transitions) Allows(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WithOverrides returns a copy of t where every status present in
// overrides is replaced by the override targets.
func (t Transitions) WithOverrides(overrides map[string][]string) Transitions {
	out := make(Transitions, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = append([]string(nil), v...)
	}
	return out
}
