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

// CreateItineraryInput is the payload for a new draft itinerary.
type CreateItineraryInput struct {
	Title       string            `json:"title"`
	Destination string            `json:"destination"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	Budget      *float64          `json:"budget"`
	Travelers   *int              `json:"travelers"`
	Preferences map[string]string `json:"preferences"`
}

// UpdateItineraryInput is a shallow merge: nil fields are left untouched.
type UpdateItineraryInput struct {
	Title          *string                 `json:"title"`
	Destination    *string                 `json:"destination"`
	StartDate      *string                 `json:"startDate"`
	EndDate        *string                 `json:"endDate"`
	Budget         *float64                `json:"budget"`
	Travelers      *int                    `json:"travelers"`
	Preferences    map[string]string       `json:"preferences"`
	Activities     *[]models.Activity      `json:"activities"`
	Accommodations *[]models.Accommodation `json:"accommodations"`
	Flights        *[]models.Flight        `json:"flights"`
	Status         *string                 `json:"status"`
}

type ItineraryService struct {
	repo      domain.ItineraryRepository
	accounts  domain.AccountRepository
	generator domain.ItineraryGenerator
	eventBus  domain.EventPublisher
	rules     Rules
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewItineraryService(
	repo domain.ItineraryRepository,
	accounts domain.AccountRepository,
	generator domain.ItineraryGenerator,
	eventBus domain.EventPublisher,
	rules Rules,
	logger *zerolog.Logger,
) *ItineraryService {
	return &ItineraryService{
		repo:      repo,
		accounts:  accounts,
		generator: generator,
		eventBus:  eventBus,
		rules:     rules,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ItineraryService) Create(ctx context.Context, accountID string, in CreateItineraryInput) (*models.Itinerary, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	destination := strings.TrimSpace(in.Destination)
	if title == "" {
		return nil, domain.Validation("title is required")
	}
	if destination == "" {
		return nil, domain.Validation("destination is required")
	}
	start, err := parseDate("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", in.EndDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	it := &models.Itinerary{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Title:       title,
		Destination: destination,
		StartDate:   start,
		EndDate:     end,
		Travelers:   1,
		Preferences: in.Preferences,
		Status:      models.ItineraryDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Budget != nil {
		it.Budget = *in.Budget
	}
	if in.Travelers != nil {
		it.Travelers = *in.Travelers
	}
	if err := validateItinerary(it); err != nil {
		return nil, err
	}
	it.Normalize()

	if err := s.repo.CreateItinerary(ctx, it); err != nil {
		return nil, storeError(err, "itinerary")
	}

	s.publishEvent(events.EventItineraryCreated, it)
	return it, nil
}

func (s *ItineraryService) Get(ctx context.Context, accountID, id string) (*models.Itinerary, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	it, err := s.repo.GetItinerary(ctx, accountID, id)
	if err != nil {
		return nil, storeError(err, "itinerary")
	}
	return it, nil
}

// List returns the account's itineraries, newest first.
func (s *ItineraryService) List(ctx context.Context, accountID string, filter models.ItineraryFilter) ([]*models.Itinerary, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !models.IsValidItineraryStatus(filter.Status) {
		return nil, domain.Validation("unknown itinerary status %q", filter.Status)
	}
	filter.Destination = strings.TrimSpace(filter.Destination)
	filter.Limit = s.rules.limit(filter.Limit)

	list, err := s.repo.ListItineraries(ctx, accountID, filter)
	if err != nil {
		return nil, storeError(err, "itinerary")
	}
	if list == nil {
		list = []*models.Itinerary{}
	}
	return list, nil
}

// Update merges the touched fields and re-validates them. Status changes
// follow the itinerary transition table when transitions are strict.
func (s *ItineraryService) Update(ctx context.Context, accountID, id string, in UpdateItineraryInput) (*models.Itinerary, error) {
	it, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		it.Title = strings.TrimSpace(*in.Title)
		if it.Title == "" {
			return nil, domain.Validation("title is required")
		}
	}
	if in.Destination != nil {
		it.Destination = strings.TrimSpace(*in.Destination)
		if it.Destination == "" {
			return nil, domain.Validation("destination is required")
		}
	}
	if in.StartDate != nil {
		if it.StartDate, err = parseDate("startDate", *in.StartDate); err != nil {
			return nil, err
		}
	}
	if in.EndDate != nil {
		if it.EndDate, err = parseDate("endDate", *in.EndDate); err != nil {
			return nil, err
		}
	}
	if in.Budget != nil {
		it.Budget = *in.Budget
	}
	if in.Travelers != nil {
		it.Travelers = *in.Travelers
	}
	if in.Preferences != nil {
		it.Preferences = in.Preferences
	}
	if in.Activities != nil {
		it.Activities = *in.Activities
	}
	if in.Accommodations != nil {
		it.Accommodations = *in.Accommodations
	}
	if in.Flights != nil {
		it.Flights = *in.Flights
	}
	if in.Status != nil && *in.Status != it.Status {
		to := *in.Status
		if !models.IsValidItineraryStatus(to) {
			return nil, domain.Validation("unknown itinerary status %q", to)
		}
		if s.rules.Strict && !s.rules.Itinerary.Allows(it.Status, to) {
			return nil, domain.InvalidTransition("itinerary", it.Status, to)
		}
		it.Status = to
	}
	if err := validateItinerary(it); err != nil {
		return nil, err
	}

	it.AccountID = accountID
	it.UpdatedAt = s.now()
	it.Normalize()
	if err := s.repo.UpdateItinerary(ctx, it); err != nil {
		return nil, storeError(err, "itinerary")
	}

	s.publishEvent(events.EventItineraryUpdated, it)
	return it, nil
}

// Generate asks the generation service for activities and accommodations and
// replaces the itinerary's own with them. Nothing is written unless the
// upstream call succeeds.
func (s *ItineraryService) Generate(ctx context.Context, accountID, id string) (*models.Itinerary, error) {
	it, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if s.rules.Strict && !generateAllowed(it.Status) {
		return nil, domain.InvalidTransition("itinerary", it.Status, models.ItineraryGenerated)
	}

	userPrefs, err := s.travelPreferences(ctx, accountID)
	if err != nil {
		return nil, err
	}

	plan, err := s.generator.Generate(ctx, domain.GenerateRequest{
		Destination:     it.Destination,
		StartDate:       it.StartDate.Format(dateLayout),
		EndDate:         it.EndDate.Format(dateLayout),
		Budget:          it.Budget,
		Travelers:       it.Travelers,
		Preferences:     it.Preferences,
		UserPreferences: userPrefs,
	})
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			de = domain.Upstream("itinerary-generator", 0, err)
		}
		s.logger.Warn().Err(err).Str("itinerary_id", id).Msg("generation failed, itinerary left unchanged")
		return nil, de
	}

	it.Activities = plan.Activities
	it.Accommodations = plan.Accommodations
	it.Status = models.ItineraryGenerated
	it.AIGenerated = true
	it.UpdatedAt = s.now()
	it.Normalize()

	if err := s.repo.UpdateItinerary(ctx, it); err != nil {
		return nil, storeError(err, "itinerary")
	}

	s.publishEvent(events.EventItineraryGenerated, it)
	return it, nil
}

func (s *ItineraryService) Delete(ctx context.Context, accountID, id string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	if err := s.repo.DeleteItinerary(ctx, accountID, id); err != nil {
		return storeError(err, "itinerary")
	}

	s.publishEvent(events.EventItineraryDeleted, &models.Itinerary{ID: id, AccountID: accountID})
	return nil
}

func (s *ItineraryService) travelPreferences(ctx context.Context, accountID string) (models.TravelPreferences, error) {
	if s.accounts == nil {
		return models.DefaultTravelPreferences(), nil
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return models.DefaultTravelPreferences(), nil
	}
	if err != nil {
		return models.TravelPreferences{}, domain.Internal(err)
	}
	return account.Preferences, nil
}

func (s *ItineraryService) publishEvent(eventType string, it *models.Itinerary) {
	if s.eventBus == nil {
		return
	}

	payload := events.ItineraryEventPayload{
		ItineraryID: it.ID,
		AccountID:   it.AccountID,
		Destination: it.Destination,
		Status:      it.Status,
		AIGenerated: it.AIGenerated,
		At:          s.now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("itinerary_id", it.ID).Msg("publish event error")
	}
}

func validateItinerary(it *models.Itinerary) error {
	if it.Budget < 0 {
		return domain.Validation("budget must not be negative")
	}
	if it.Travelers < 1 {
		return domain.Validation("travelers must be at least 1")
	}
	if it.EndDate.Before(it.StartDate) {
		return domain.Validation("endDate must not be before startDate")
	}
	return nil
}

func generateAllowed(status string) bool {
	for _, s := range models.GenerateAllowedFrom {
		if s == status {
			return true
		}
	}
	return false
}
