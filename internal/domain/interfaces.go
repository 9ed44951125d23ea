package domain

import (
	"context"
	"time"

	"tripplanner/internal/models"

	"golang.org/x/oauth2"
)

type ItineraryRepository interface {
	CreateItinerary(ctx context.Context, it *models.Itinerary) error
	GetItinerary(ctx context.Context, accountID, id string) (*models.Itinerary, error)
	ListItineraries(ctx context.Context, accountID string, filter models.ItineraryFilter) ([]*models.Itinerary, error)
	UpdateItinerary(ctx context.Context, it *models.Itinerary) error
	DeleteItinerary(ctx context.Context, accountID, id string) error
	ItineraryExists(ctx context.Context, accountID, id string) (bool, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, accountID, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, accountID string, filter models.BookingFilter) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, accountID string, start, end time.Time) ([]*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, accountID, id, status string) error
}

type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpsertAccount(ctx context.Context, account *models.Account) error
}

// TokenCache stores provider access tokens keyed by credential hash.
type TokenCache interface {
	GetToken(ctx context.Context, key string) (*oauth2.Token, error)
	SetToken(ctx context.Context, key string, token *oauth2.Token) error
	DeleteToken(ctx context.Context, key string) error
}

type FlightSearch struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate"`
	ReturnDate    string `json:"returnDate,omitempty"`
	Passengers    int    `json:"passengers,omitempty"`
}

type HotelSearch struct {
	CityCode     string `json:"cityCode"`
	CheckInDate  string `json:"checkInDate"`
	CheckOutDate string `json:"checkOutDate"`
	Guests       int    `json:"guests,omitempty"`
}

// Offer is a provider offer passed through to clients as-is.
type Offer = map[string]any

type InventoryProvider interface {
	Name() string
	SearchFlights(ctx context.Context, q FlightSearch) ([]Offer, error)
	SearchHotels(ctx context.Context, q HotelSearch) ([]Offer, error)
}

type GenerateRequest struct {
	Destination     string                   `json:"destination"`
	StartDate       string                   `json:"startDate"`
	EndDate         string                   `json:"endDate"`
	Budget          float64                  `json:"budget"`
	Travelers       int                      `json:"travelers"`
	Preferences     map[string]string        `json:"preferences"`
	UserPreferences models.TravelPreferences `json:"userPreferences"`
}

type GeneratedPlan struct {
	Activities     []models.Activity      `json:"activities"`
	Accommodations []models.Accommodation `json:"accommodations"`
}

type ItineraryGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedPlan, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}
