package models

import "time"

const (
	ItineraryDraft     = "draft"
	ItineraryGenerated = "generated"
	ItineraryConfirmed = "confirmed"
	ItineraryCompleted = "completed"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Name        string       `json:"name"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Activity struct {
	Date        string   `json:"date"`
	Time        string   `json:"time,omitempty"`
	Activity    string   `json:"activity"`
	Description string   `json:"description,omitempty"`
	Location    Location `json:"location"`
	Cost        float64  `json:"cost"`
	Duration    int      `json:"duration"` // minutes
}

type Accommodation struct {
	Name             string   `json:"name"`
	CheckIn          string   `json:"checkIn"`
	CheckOut         string   `json:"checkOut"`
	Location         Location `json:"location"`
	Cost             float64  `json:"cost"`
	BookingReference string   `json:"bookingReference,omitempty"`
}

type FlightLeg struct {
	Airport      string `json:"airport"`
	DateTime     string `json:"dateTime"`
	FlightNumber string `json:"flightNumber,omitempty"`
}

type Flight struct {
	Departure        FlightLeg `json:"departure"`
	Arrival          FlightLeg `json:"arrival"`
	Cost             float64   `json:"cost"`
	BookingReference string    `json:"bookingReference,omitempty"`
}

// Itinerary is a trip plan owned by exactly one account.
type Itinerary struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"accountId"`
	Title          string            `json:"title"`
	Destination    string            `json:"destination"`
	StartDate      time.Time         `json:"startDate"`
	EndDate        time.Time         `json:"endDate"`
	Budget         float64           `json:"budget"`
	Travelers      int               `json:"travelers"`
	Preferences    map[string]string `json:"preferences"`
	Activities     []Activity        `json:"activities"`
	Accommodations []Accommodation   `json:"accommodations"`
	Flights        []Flight          `json:"flights"`
	Status         string            `json:"status"`
	AIGenerated    bool              `json:"aiGenerated"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Normalize replaces nil collections with empty ones so they encode as [] and {}.
func (i *Itinerary) Normalize() {
	if i.Preferences == nil {
		i.Preferences = map[string]string{}
	}
	if i.Activities == nil {
		i.Activities = []Activity{}
	}
	if i.Accommodations == nil {
		i.Accommodations = []Accommodation{}
	}
	if i.Flights == nil {
		i.Flights = []Flight{}
	}
}

type ItineraryFilter struct {
	Status      string
	Destination string
	Limit       int
}

func IsValidItineraryStatus(s string) bool {
	switch s {
	case ItineraryDraft, ItineraryGenerated, ItineraryConfirmed, ItineraryCompleted:
		return true
	}
	return false
}
