package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"tripplanner/internal/database"
	"tripplanner/internal/domain"
	"tripplanner/internal/events"
	"tripplanner/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var referencePattern = regexp.MustCompile(`^BK\d{13}[0-9A-Z]{9}$`)

type bookingDeps struct {
	repo        *mockBookingRepo
	itineraries *mockItineraryRepo
	inventory   *mockInventory
	bus         *mockPublisher
	worker      *mockWorker
}

func newBookingService(t *testing.T, rules Rules) (*BookingService, *bookingDeps) {
	t.Helper()
	deps := &bookingDeps{
		repo:        new(mockBookingRepo),
		itineraries: new(mockItineraryRepo),
		inventory:   new(mockInventory),
		bus:         new(mockPublisher),
		worker:      new(mockWorker),
	}
	deps.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()
	deps.worker.On("EnqueueTask", mock.Anything, models.SyncTaskUpsertBooking, mock.Anything).Return(nil).Maybe()
	logger := zerolog.Nop()
	return NewBookingService(deps.repo, deps.itineraries, deps.inventory, deps.bus, deps.worker, rules, &logger), deps
}

func hotelInput() CreateBookingInput {
	return CreateBookingInput{Type: "hotel", Cost: &models.Cost{Amount: 450, Currency: "USD"}}
}

func TestNewBookingReference(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		ref, err := NewBookingReference()
		require.NoError(t, err)
		assert.Regexp(t, referencePattern, ref)
		assert.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
}

func TestBookingCreate_GeneratedReference(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	deps.repo.On("CreateBooking", ctx, mock.Anything).Return(nil).Once()

	b, err := svc.Create(ctx, "acc-1", hotelInput())
	require.NoError(t, err)
	assert.Regexp(t, referencePattern, b.BookingReference)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, "acc-1", b.AccountID)
	assert.Equal(t, "amadeus", b.Provider)
	assert.Equal(t, models.Cost{Amount: 450, Currency: "USD"}, b.Cost)
	assert.Nil(t, b.ItineraryID)
	assert.NotNil(t, b.Details)
	assert.False(t, b.BookingDate.IsZero())

	deps.bus.AssertCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)
	deps.worker.AssertCalled(t, "EnqueueTask", ctx, models.SyncTaskUpsertBooking, mock.MatchedBy(func(s *models.Booking) bool {
		return s.BookingReference == b.BookingReference
	}))
}

func TestBookingCreate_Fields(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("CreateBooking", mock.Anything, mock.Anything).Return(nil)

	b, err := svc.Create(context.Background(), "acc-1", CreateBookingInput{
		Type:               "Flight",
		ItineraryID:        ptr(" it-1 "),
		Provider:           "airline-direct",
		BookingReference:   "PNR123",
		Cost:               &models.Cost{Amount: 320.5, Currency: "eur"},
		TravelDate:         "2025-06-01",
		CancellationPolicy: "non-refundable",
		Details:            models.Details{"amadeus.offerId": json.RawMessage(`"42"`)},
		AwaitConfirmation:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingTypeFlight, b.Type)
	assert.Equal(t, "it-1", *b.ItineraryID)
	assert.Equal(t, "airline-direct", b.Provider)
	assert.Equal(t, "PNR123", b.BookingReference)
	assert.Equal(t, "EUR", b.Cost.Currency)
	assert.Equal(t, models.BookingPending, b.Status)
	require.NotNil(t, b.TravelDate)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *b.TravelDate)
	assert.Equal(t, "42", b.Details.String("amadeus.offerId"))
}

func TestBookingCreate_Validation(t *testing.T) {
	cases := map[string]CreateBookingInput{
		"UnknownType":    {Type: "cruise", Cost: &models.Cost{Amount: 1}},
		"MissingCost":    {Type: "hotel"},
		"NegativeCost":   {Type: "hotel", Cost: &models.Cost{Amount: -5}},
		"BadDetailsKey":  {Type: "hotel", Cost: &models.Cost{}, Details: models.Details{"bad key": json.RawMessage(`1`)}},
		"BadTravelDate":  {Type: "hotel", Cost: &models.Cost{}, TravelDate: "tomorrow"},
		"LongReference":  {Type: "hotel", Cost: &models.Cost{}, BookingReference: string(make([]byte, 65))},
		"InvalidDetails": {Type: "hotel", Cost: &models.Cost{}, Details: models.Details{"k": json.RawMessage(`{`)}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			svc, deps := newBookingService(t, DefaultRules())
			_, err := svc.Create(context.Background(), "acc-1", in)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
			deps.repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingCreate_SuppliedReferenceConflict(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("CreateBooking", mock.Anything, mock.Anything).Return(database.ErrDuplicateReference).Once()

	in := hotelInput()
	in.BookingReference = "TAKEN"
	_, err := svc.Create(context.Background(), "acc-1", in)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	deps.repo.AssertNumberOfCalls(t, "CreateBooking", 1)
	deps.bus.AssertNotCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)
}

func TestBookingCreate_GeneratedReferenceCollisionRetries(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	refs := []string{"BKSAME", "BKSAME", "BKFRESH"}
	svc.newReference = func() (string, error) {
		ref := refs[0]
		refs = refs[1:]
		return ref, nil
	}

	deps.repo.On("CreateBooking", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.BookingReference == "BKSAME"
	})).Return(database.ErrDuplicateReference).Twice()
	deps.repo.On("CreateBooking", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.BookingReference == "BKFRESH"
	})).Return(nil).Once()

	b, err := svc.Create(context.Background(), "acc-1", hotelInput())
	require.NoError(t, err)
	assert.Equal(t, "BKFRESH", b.BookingReference)
	deps.repo.AssertExpectations(t)
}

func TestBookingCreate_GeneratedReferenceGivesUp(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	svc.newReference = func() (string, error) { return "BKSAME", nil }
	deps.repo.On("CreateBooking", mock.Anything, mock.Anything).Return(database.ErrDuplicateReference)

	_, err := svc.Create(context.Background(), "acc-1", hotelInput())
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	deps.repo.AssertNumberOfCalls(t, "CreateBooking", maxReferenceAttempts)
}

func TestBookingCreate_StoreAndGeneratorErrors(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("CreateBooking", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	_, err := svc.Create(context.Background(), "acc-1", hotelInput())
	assert.True(t, domain.IsKind(err, domain.KindInternal))
	deps.repo.AssertNumberOfCalls(t, "CreateBooking", 1)

	svc.newReference = func() (string, error) { return "", errors.New("entropy exhausted") }
	_, err = svc.Create(context.Background(), "acc-1", hotelInput())
	assert.True(t, domain.IsKind(err, domain.KindInternal))
}

func TestBookingCreate_EnqueueFailureIsNotFatal(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.worker.ExpectedCalls = nil
	deps.worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue full"))
	deps.repo.On("CreateBooking", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Create(context.Background(), "acc-1", hotelInput())
	assert.NoError(t, err)
}

func TestBookingGet_ResolvesItinerary(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	linked := &models.Booking{ID: "b1", AccountID: "acc-1", ItineraryID: ptr("it-gone"), Status: models.BookingConfirmed}
	standalone := &models.Booking{ID: "b2", AccountID: "acc-1", Status: models.BookingConfirmed}

	deps.repo.On("GetBooking", ctx, "acc-1", "b1").Return(linked, nil)
	deps.repo.On("GetBooking", ctx, "acc-1", "b2").Return(standalone, nil)
	deps.itineraries.On("ItineraryExists", ctx, "acc-1", "it-gone").Return(false, nil)

	b, err := svc.Get(ctx, "acc-1", "b1")
	require.NoError(t, err)
	require.NotNil(t, b.ItineraryExists)
	assert.False(t, *b.ItineraryExists)

	b, err = svc.Get(ctx, "acc-1", "b2")
	require.NoError(t, err)
	assert.Nil(t, b.ItineraryExists)
	deps.itineraries.AssertNumberOfCalls(t, "ItineraryExists", 1)
}

func TestBookingGet_OtherAccount(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("GetBooking", mock.Anything, "acc-2", "b1").Return(nil, database.ErrNotFound)

	_, err := svc.Get(context.Background(), "acc-2", "b1")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestBookingList(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	filter := models.BookingFilter{Type: "hotel", Status: "confirmed", ItineraryID: "it-1", Limit: 20}
	deps.repo.On("ListBookings", ctx, "acc-1", filter).Return(nil, nil).Once()

	list, err := svc.List(ctx, "acc-1", models.BookingFilter{Type: "hotel", Status: "confirmed", ItineraryID: "it-1"})
	require.NoError(t, err)
	assert.NotNil(t, list)

	_, err = svc.List(ctx, "acc-1", models.BookingFilter{Type: "cruise"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	_, err = svc.List(ctx, "acc-1", models.BookingFilter{Status: "lost"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	deps.repo.AssertExpectations(t)
}

func TestBookingUpdateStatus(t *testing.T) {
	cases := []struct {
		name    string
		rules   Rules
		from    string
		to      string
		allowed bool
	}{
		{"PendingToConfirmed", DefaultRules(), models.BookingPending, models.BookingConfirmed, true},
		{"ConfirmedToCancelled", DefaultRules(), models.BookingConfirmed, models.BookingCancelled, true},
		{"ConfirmedToCompleted", DefaultRules(), models.BookingConfirmed, models.BookingCompleted, true},
		{"CancelledToConfirmed", DefaultRules(), models.BookingCancelled, models.BookingConfirmed, false},
		{"CompletedToPending", DefaultRules(), models.BookingCompleted, models.BookingPending, false},
		{"LenientResurrect", Rules{Booking: models.DefaultBookingTransitions()}, models.BookingCancelled, models.BookingConfirmed, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, deps := newBookingService(t, tc.rules)
			ctx := context.Background()
			deps.repo.On("GetBooking", ctx, "acc-1", "b1").
				Return(&models.Booking{ID: "b1", AccountID: "acc-1", Status: tc.from}, nil)
			deps.repo.On("UpdateBookingStatus", ctx, "acc-1", "b1", tc.to).Return(nil).Maybe()

			b, err := svc.UpdateStatus(ctx, "acc-1", "b1", tc.to)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, b.Status)
				deps.bus.AssertCalled(t, "PublishJSON", events.EventBookingStatusChanged, mock.MatchedBy(func(p events.BookingEventPayload) bool {
					return p.PreviousStatus == tc.from && p.Status == tc.to
				}))
				deps.worker.AssertCalled(t, "EnqueueTask", ctx, models.SyncTaskUpsertBooking, mock.Anything)
				return
			}
			assert.True(t, domain.IsKind(err, domain.KindInvalidTransition), "got %v", err)
			deps.repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingUpdateStatus_OtherAccount(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("GetBooking", mock.Anything, "acc-y", "b1").Return(nil, database.ErrNotFound)

	_, err := svc.UpdateStatus(context.Background(), "acc-y", "b1", models.BookingCancelled)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	deps.repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingUpdateStatus_SameStatusAndUnknown(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	deps.repo.On("GetBooking", mock.Anything, "acc-1", "b1").
		Return(&models.Booking{ID: "b1", AccountID: "acc-1", Status: models.BookingConfirmed}, nil)

	b, err := svc.UpdateStatus(context.Background(), "acc-1", "b1", "CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	deps.repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, err = svc.UpdateStatus(context.Background(), "acc-1", "b1", "refunded")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestBookingSearchFlights(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	offers := []domain.Offer{{"id": "1"}}
	deps.inventory.On("SearchFlights", ctx, domain.FlightSearch{Origin: "JFK", Destination: "CDG", DepartureDate: "2025-06-01"}).
		Return(offers, nil).Once()

	got, err := svc.SearchFlights(ctx, domain.FlightSearch{Origin: "jfk", Destination: " cdg", DepartureDate: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, offers, got)

	invalid := []domain.FlightSearch{
		{Destination: "CDG", DepartureDate: "2025-06-01"},
		{Origin: "JFK", Destination: "CDG"},
		{Origin: "JFK", Destination: "CDG", DepartureDate: "2025-06-01", ReturnDate: "06/07/2025"},
		{Origin: "JFK", Destination: "CDG", DepartureDate: "2025-06-01", Passengers: -1},
	}
	for _, q := range invalid {
		_, err := svc.SearchFlights(ctx, q)
		assert.True(t, domain.IsKind(err, domain.KindValidation), "query %+v", q)
	}
	deps.inventory.AssertExpectations(t)
}

func TestBookingSearchHotels(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	q := domain.HotelSearch{CityCode: "PAR", CheckInDate: "2025-06-01", CheckOutDate: "2025-06-07"}

	deps.inventory.On("SearchHotels", ctx, q).Return(nil, domain.Upstream("amadeus", 500, errors.New("boom"))).Once()
	_, err := svc.SearchHotels(ctx, q)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "amadeus", de.Provider)

	deps.inventory.On("SearchHotels", ctx, q).Return(nil, errors.New("raw failure")).Once()
	_, err = svc.SearchHotels(ctx, q)
	assert.True(t, domain.IsKind(err, domain.KindUpstream))

	_, err = svc.SearchHotels(ctx, domain.HotelSearch{CityCode: "PAR", CheckInDate: "2025-06-07", CheckOutDate: "2025-06-01"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	_, err = svc.SearchHotels(ctx, domain.HotelSearch{CheckInDate: "2025-06-01", CheckOutDate: "2025-06-07"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestBookingInRange(t *testing.T) {
	svc, deps := newBookingService(t, DefaultRules())
	ctx := context.Background()
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	deps.repo.On("GetBookingsByDateRange", ctx, "acc-1", from, to).Return([]*models.Booking{{ID: "b1"}}, nil)

	list, err := svc.InRange(ctx, "acc-1", from, to)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.InRange(ctx, "acc-1", to, from)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}
