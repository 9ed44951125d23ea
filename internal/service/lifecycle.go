package service

import (
	"errors"
	"strings"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/database"
	"tripplanner/internal/domain"
	"tripplanner/internal/models"
)

const dateLayout = "2006-01-02"

// Rules holds the status transition tables and list paging limits shared by
// the lifecycle services.
type Rules struct {
	Strict           bool
	Itinerary        models.Transitions
	Booking          models.Transitions
	ListLimitDefault int
	ListLimitMax     int
}

// DefaultRules enforces forward-only transitions.
func DefaultRules() Rules {
	return Rules{
		Strict:           true,
		Itinerary:        models.DefaultItineraryTransitions(),
		Booking:          models.DefaultBookingTransitions(),
		ListLimitDefault: models.DefaultListLimit,
		ListLimitMax:     models.MaxListLimit,
	}
}

func RulesFromConfig(cfg config.LifecycleConfig) Rules {
	r := DefaultRules()
	r.Strict = cfg.Strict()
	r.Itinerary = r.Itinerary.WithOverrides(cfg.ItineraryTransitions)
	r.Booking = r.Booking.WithOverrides(cfg.BookingTransitions)
	if cfg.ListLimitDefault > 0 {
		r.ListLimitDefault = cfg.ListLimitDefault
	}
	if cfg.ListLimitMax > 0 {
		r.ListLimitMax = cfg.ListLimitMax
	}
	return r
}

func (r Rules) limit(requested int) int {
	if requested <= 0 {
		return r.ListLimitDefault
	}
	if requested > r.ListLimitMax {
		return r.ListLimitMax
	}
	return requested
}

// storeError translates repository errors into domain errors.
func storeError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFound(entity)
	case errors.Is(err, database.ErrDuplicateReference):
		return domain.Conflict("booking reference already exists")
	default:
		var de *domain.Error
		if errors.As(err, &de) {
			return de
		}
		return domain.Internal(err)
	}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, domain.Validation("%s is required", field)
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.Validation("%s must be a date (YYYY-MM-DD)", field)
	}
	return t.UTC(), nil
}

func requireAccount(accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.Unauthorized("missing account identity")
	}
	return nil
}
