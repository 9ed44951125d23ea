package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

const (
	BookingTypeFlight    = "flight"
	BookingTypeHotel     = "hotel"
	BookingTypeActivity  = "activity"
	BookingTypeTransport = "transport"
)

const (
	DefaultCurrency = "USD"

	maxDetailsKeyLen = 64
	maxDetailsSize   = 64 << 10
)

var detailsKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Details holds provider-specific booking data. Keys are namespaced with
// dots (for example "amadeus.offerId"); values keep their original JSON.
type Details map[string]json.RawMessage

// Validate checks key shape and the encoded payload size.
func (d Details) Validate() error {
	size := 0
	for k, v := range d {
		if k == "" || len(k) > maxDetailsKeyLen || !detailsKeyPattern.MatchString(k) {
			return fmt.Errorf("invalid details key %q", k)
		}
		if len(v) > 0 && !json.Valid(v) {
			return fmt.Errorf("details value for %q is not valid JSON", k)
		}
		size += len(k) + len(v)
	}
	if size > maxDetailsSize {
		return fmt.Errorf("details payload exceeds %d bytes", maxDetailsSize)
	}
	return nil
}

// String returns the value under key when it is a JSON string.
func (d Details) String(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

type Booking struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"accountId"`
	ItineraryID        *string    `json:"itineraryId"`
	Type               string     `json:"type"`
	Provider           string     `json:"provider"`
	BookingReference   string     `json:"bookingReference"`
	Status             string     `json:"status"`
	Cost               Cost       `json:"cost"`
	BookingDate        time.Time  `json:"bookingDate"`
	TravelDate         *time.Time `json:"travelDate"`
	CancellationPolicy string     `json:"cancellationPolicy,omitempty"`
	Details            Details    `json:"details"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`

	// ItineraryExists is resolved at read time; nil when not checked.
	ItineraryExists *bool `json:"itineraryExists,omitempty"`
}

type BookingFilter struct {
	Type        string
	Status      string
	ItineraryID string
	Limit       int
}

func IsValidBookingStatus(s string) bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

func IsValidBookingType(s string) bool {
	switch s {
	case BookingTypeFlight, BookingTypeHotel, BookingTypeActivity, BookingTypeTransport:
		return true
	}
	return false
}
