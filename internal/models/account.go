package models

import "time"

const (
	TravelStyleBudget     = "budget"
	TravelStyleMidRange   = "mid-range"
	TravelStyleLuxury     = "luxury"
	TravelStyleBackpacker = "backpacker"
)

type TravelPreferences struct {
	Budget                float64  `json:"budget"`
	PreferredDestinations []string `json:"preferredDestinations"`
	TravelStyle           string   `json:"travelStyle"`
}

// DefaultTravelPreferences is used for accounts that never saved a profile.
func DefaultTravelPreferences() TravelPreferences {
	return TravelPreferences{
		PreferredDestinations: []string{},
		TravelStyle:           TravelStyleMidRange,
	}
}

// Account is the profile record for an authenticated identity.
type Account struct {
	ID          string            `json:"id"`
	Email       string            `json:"email,omitempty"`
	Name        string            `json:"name,omitempty"`
	Preferences TravelPreferences `json:"preferences"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func IsValidTravelStyle(s string) bool {
	switch s {
	case TravelStyleBudget, TravelStyleMidRange, TravelStyleLuxury, TravelStyleBackpacker:
		return true
	}
	return false
}
