package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tripplanner/internal/database"
	"tripplanner/internal/domain"
	"tripplanner/internal/events"
	"tripplanner/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxReferenceAttempts = 5
	maxReferenceLen      = 64
)

// CreateBookingInput records a reservation that was already confirmed with
// the provider, or a pending one when AwaitConfirmation is set.
type CreateBookingInput struct {
	Type               string         `json:"type"`
	ItineraryID        *string        `json:"itineraryId"`
	Provider           string         `json:"provider"`
	BookingReference   string         `json:"bookingReference"`
	Cost               *models.Cost   `json:"cost"`
	TravelDate         string         `json:"travelDate"`
	CancellationPolicy string         `json:"cancellationPolicy"`
	Details            models.Details `json:"details"`
	AwaitConfirmation  bool           `json:"awaitConfirmation"`
}

type BookingService struct {
	repo         domain.BookingRepository
	itineraries  domain.ItineraryRepository
	inventory    domain.InventoryProvider
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	rules        Rules
	logger       *zerolog.Logger

	newReference func() (string, error)
	now          func() time.Time
}

func NewBookingService(
	repo domain.BookingRepository,
	itineraries domain.ItineraryRepository,
	inventory domain.InventoryProvider,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	rules Rules,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:         repo,
		itineraries:  itineraries,
		inventory:    inventory,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		rules:        rules,
		logger:       logger,
		newReference: NewBookingReference,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookingService) SearchFlights(ctx context.Context, q domain.FlightSearch) ([]domain.Offer, error) {
	q.Origin = strings.ToUpper(strings.TrimSpace(q.Origin))
	q.Destination = strings.ToUpper(strings.TrimSpace(q.Destination))
	if q.Origin == "" || q.Destination == "" {
		return nil, domain.Validation("origin and destination are required")
	}
	if err := validateCalendarDate("departureDate", q.DepartureDate, true); err != nil {
		return nil, err
	}
	if err := validateCalendarDate("returnDate", q.ReturnDate, false); err != nil {
		return nil, err
	}
	if q.Passengers < 0 {
		return nil, domain.Validation("passengers must not be negative")
	}

	offers, err := s.inventory.SearchFlights(ctx, q)
	return offers, s.upstreamError(err)
}

func (s *BookingService) SearchHotels(ctx context.Context, q domain.HotelSearch) ([]domain.Offer, error) {
	q.CityCode = strings.ToUpper(strings.TrimSpace(q.CityCode))
	if q.CityCode == "" {
		return nil, domain.Validation("cityCode is required")
	}
	if err := validateCalendarDate("checkInDate", q.CheckInDate, true); err != nil {
		return nil, err
	}
	if err := validateCalendarDate("checkOutDate", q.CheckOutDate, true); err != nil {
		return nil, err
	}
	if q.CheckOutDate < q.CheckInDate {
		return nil, domain.Validation("checkOutDate must not be before checkInDate")
	}
	if q.Guests < 0 {
		return nil, domain.Validation("guests must not be negative")
	}

	offers, err := s.inventory.SearchHotels(ctx, q)
	return offers, s.upstreamError(err)
}

// Create validates the input and persists the booking. A generated reference
// that collides is replaced and retried; a caller-supplied one is a conflict.
func (s *BookingService) Create(ctx context.Context, accountID string, in CreateBookingInput) (*models.Booking, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	booking, err := s.newBooking(accountID, in)
	if err != nil {
		return nil, err
	}

	supplied := booking.BookingReference != ""
	for attempt := 1; ; attempt++ {
		if !supplied {
			ref, err := s.newReference()
			if err != nil {
				return nil, domain.Internal(err)
			}
			booking.BookingReference = ref
		}

		err = s.repo.CreateBooking(ctx, booking)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrDuplicateReference) || supplied || attempt == maxReferenceAttempts {
			return nil, storeError(err, "booking")
		}
		s.logger.Warn().Str("booking_reference", booking.BookingReference).Int("attempt", attempt).Msg("generated booking reference collided")
	}

	s.publishEvent(events.EventBookingCreated, booking, "")
	s.enqueueSync(ctx, booking)
	return booking, nil
}

func (s *BookingService) newBooking(accountID string, in CreateBookingInput) (*models.Booking, error) {
	typ := strings.ToLower(strings.TrimSpace(in.Type))
	if !models.IsValidBookingType(typ) {
		return nil, domain.Validation("type must be one of flight, hotel, activity, transport")
	}
	if in.Cost == nil {
		return nil, domain.Validation("cost is required")
	}
	cost := *in.Cost
	if cost.Amount < 0 {
		return nil, domain.Validation("cost amount must not be negative")
	}
	cost.Currency = strings.ToUpper(strings.TrimSpace(cost.Currency))
	if cost.Currency == "" {
		cost.Currency = models.DefaultCurrency
	}

	ref := strings.TrimSpace(in.BookingReference)
	if len(ref) > maxReferenceLen {
		return nil, domain.Validation("bookingReference must be at most %d characters", maxReferenceLen)
	}
	if err := in.Details.Validate(); err != nil {
		return nil, domain.Validation("%s", err.Error())
	}

	var itineraryID *string
	if in.ItineraryID != nil && strings.TrimSpace(*in.ItineraryID) != "" {
		id := strings.TrimSpace(*in.ItineraryID)
		itineraryID = &id
	}

	var travelDate *time.Time
	if strings.TrimSpace(in.TravelDate) != "" {
		t, err := parseDate("travelDate", in.TravelDate)
		if err != nil {
			return nil, err
		}
		travelDate = &t
	}

	provider := strings.TrimSpace(in.Provider)
	if provider == "" && s.inventory != nil {
		provider = s.inventory.Name()
	}

	status := models.BookingConfirmed
	if in.AwaitConfirmation {
		status = models.BookingPending
	}

	details := in.Details
	if details == nil {
		details = models.Details{}
	}

	now := s.now()
	return &models.Booking{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		ItineraryID:        itineraryID,
		Type:               typ,
		Provider:           provider,
		BookingReference:   ref,
		Status:             status,
		Cost:               cost,
		BookingDate:        now,
		TravelDate:         travelDate,
		CancellationPolicy: strings.TrimSpace(in.CancellationPolicy),
		Details:            details,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Get returns the booking with ItineraryExists resolved for linked bookings.
func (s *BookingService) Get(ctx context.Context, accountID, id string) (*models.Booking, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	booking, err := s.repo.GetBooking(ctx, accountID, id)
	if err != nil {
		return nil, storeError(err, "booking")
	}

	if booking.ItineraryID != nil && s.itineraries != nil {
		exists, err := s.itineraries.ItineraryExists(ctx, accountID, *booking.ItineraryID)
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", id).Msg("itinerary lookup failed")
		} else {
			booking.ItineraryExists = &exists
		}
	}
	return booking, nil
}

func (s *BookingService) List(ctx context.Context, accountID string, filter models.BookingFilter) ([]*models.Booking, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	if filter.Type != "" && !models.IsValidBookingType(filter.Type) {
		return nil, domain.Validation("unknown booking type %q", filter.Type)
	}
	if filter.Status != "" && !models.IsValidBookingStatus(filter.Status) {
		return nil, domain.Validation("unknown booking status %q", filter.Status)
	}
	filter.Limit = s.rules.limit(filter.Limit)

	list, err := s.repo.ListBookings(ctx, accountID, filter)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if list == nil {
		list = []*models.Booking{}
	}
	return list, nil
}

// InRange returns bookings whose booking date falls in [from, to).
func (s *BookingService) InRange(ctx context.Context, accountID string, from, to time.Time) ([]*models.Booking, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, domain.Validation("from must be before to")
	}
	list, err := s.repo.GetBookingsByDateRange(ctx, accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, storeError(err, "booking")
	}
	return list, nil
}

// UpdateStatus moves the booking to status. Strict rules reject moves the
// booking transition table does not list.
func (s *BookingService) UpdateStatus(ctx context.Context, accountID, id, status string) (*models.Booking, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.IsValidBookingStatus(status) {
		return nil, domain.Validation("unknown booking status %q", status)
	}

	booking, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	previous := booking.Status
	if previous == status {
		return booking, nil
	}
	if s.rules.Strict && !s.rules.Booking.Allows(previous, status) {
		return nil, domain.InvalidTransition("booking", previous, status)
	}

	if err := s.repo.UpdateBookingStatus(ctx, accountID, id, status); err != nil {
		return nil, storeError(err, "booking")
	}
	booking.Status = status
	booking.UpdatedAt = s.now()

	s.publishEvent(events.EventBookingStatusChanged, booking, previous)
	s.enqueueSync(ctx, booking)
	return booking, nil
}

func (s *BookingService) upstreamError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.Upstream(s.inventory.Name(), 0, err)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, previous string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:        booking.ID,
		AccountID:        booking.AccountID,
		BookingReference: booking.BookingReference,
		Type:             booking.Type,
		Provider:         booking.Provider,
		Status:           booking.Status,
		PreviousStatus:   previous,
		At:               s.now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking) {
	if s.sheetsWorker == nil {
		return
	}

	snapshot := *booking
	if err := s.sheetsWorker.EnqueueTask(ctx, models.SyncTaskUpsertBooking, &snapshot); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("sheets enqueue error")
	}
}

func validateCalendarDate(field, value string, required bool) error {
	if value == "" {
		if required {
			return domain.Validation("%s is required", field)
		}
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return domain.Validation("%s must be a date (YYYY-MM-DD)", field)
	}
	return nil
}
