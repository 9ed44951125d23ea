package service

import (
	"context"
	"time"

	"tripplanner/internal/domain"
	"tripplanner/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockItineraryRepo struct {
	mock.Mock
}

func (m *mockItineraryRepo) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	return m.Called(ctx, it).Error(0)
}
func (m *mockItineraryRepo) GetItinerary(ctx context.Context, accountID, id string) (*models.Itinerary, error) {
	args := m.Called(ctx, accountID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so the service cannot mutate the fixture
	it := *args.Get(0).(*models.Itinerary)
	return &it, args.Error(1)
}
func (m *mockItineraryRepo) ListItineraries(ctx context.Context, accountID string, f models.ItineraryFilter) ([]*models.Itinerary, error) {
	args := m.Called(ctx, accountID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Itinerary), args.Error(1)
}
func (m *mockItineraryRepo) UpdateItinerary(ctx context.Context, it *models.Itinerary) error {
	return m.Called(ctx, it).Error(0)
}
func (m *mockItineraryRepo) DeleteItinerary(ctx context.Context, accountID, id string) error {
	return m.Called(ctx, accountID, id).Error(0)
}
func (m *mockItineraryRepo) ItineraryExists(ctx context.Context, accountID, id string) (bool, error) {
	args := m.Called(ctx, accountID, id)
	return args.Bool(0), args.Error(1)
}

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockBookingRepo) GetBooking(ctx context.Context, accountID, id string) (*models.Booking, error) {
	args := m.Called(ctx, accountID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	b := *args.Get(0).(*models.Booking)
	return &b, args.Error(1)
}
func (m *mockBookingRepo) ListBookings(ctx context.Context, accountID string, f models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, accountID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) GetBookingsByDateRange(ctx context.Context, accountID string, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, accountID, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) UpdateBookingStatus(ctx context.Context, accountID, id, status string) error {
	return m.Called(ctx, accountID, id, status).Error(0)
}

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	a := *args.Get(0).(*models.Account)
	return &a, args.Error(1)
}
func (m *mockAccountRepo) UpsertAccount(ctx context.Context, a *models.Account) error {
	return m.Called(ctx, a).Error(0)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedPlan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GeneratedPlan), args.Error(1)
}

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) Name() string { return "amadeus" }
func (m *mockInventory) SearchFlights(ctx context.Context, q domain.FlightSearch) ([]domain.Offer, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Offer), args.Error(1)
}
func (m *mockInventory) SearchHotels(ctx context.Context, q domain.HotelSearch) ([]domain.Offer, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Offer), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, b *models.Booking) error {
	return m.Called(ctx, taskType, b).Error(0)
}
