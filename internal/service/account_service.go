package service

import (
	"context"
	"errors"
	"strings"

	"tripplanner/internal/database"
	"tripplanner/internal/domain"
	"tripplanner/internal/models"

	"github.com/rs/zerolog"
)

// PreferencesInput patches stored travel preferences.
type PreferencesInput struct {
	Budget                *float64 `json:"budget"`
	PreferredDestinations []string `json:"preferredDestinations"`
	TravelStyle           *string  `json:"travelStyle"`
}

type UpdateProfileInput struct {
	Name        *string           `json:"name"`
	Email       *string           `json:"email"`
	Preferences *PreferencesInput `json:"preferences"`
}

type AccountService struct {
	repo   domain.AccountRepository
	logger *zerolog.Logger
}

func NewAccountService(repo domain.AccountRepository, logger *zerolog.Logger) *AccountService {
	return &AccountService{repo: repo, logger: logger}
}

// Profile returns the stored profile, or an unsaved default one for accounts
// that never updated it.
func (s *AccountService) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return &models.Account{ID: accountID, Preferences: models.DefaultTravelPreferences()}, nil
	}
	if err != nil {
		return nil, domain.Internal(err)
	}
	return account, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, in UpdateProfileInput) (*models.Account, error) {
	account, err := s.Profile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		account.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, domain.Validation("email is not valid")
		}
		account.Email = email
	}
	if p := in.Preferences; p != nil {
		if p.Budget != nil {
			if *p.Budget < 0 {
				return nil, domain.Validation("budget must not be negative")
			}
			account.Preferences.Budget = *p.Budget
		}
		if p.PreferredDestinations != nil {
			account.Preferences.PreferredDestinations = trimAll(p.PreferredDestinations)
		}
		if p.TravelStyle != nil {
			if !models.IsValidTravelStyle(*p.TravelStyle) {
				return nil, domain.Validation("travelStyle must be one of budget, mid-range, luxury, backpacker")
			}
			account.Preferences.TravelStyle = *p.TravelStyle
		}
	}

	if err := s.repo.UpsertAccount(ctx, account); err != nil {
		return nil, domain.Internal(err)
	}
	s.logger.Debug().Str("account_id", accountID).Msg("profile updated")
	return account, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
