package service

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// AccountInput is submitted by the profile screen.
type AccountInput struct {
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Profile     domain.Profile `json:"profile"`
}

type AccountService interface {
	// GetAccount returns the account of the signed-in user identified by subject.
	GetAccount(ctx context.Context, subject string) (*domain.Account, error)
	// SaveAccount creates the account on first save and edits it afterwards.
	SaveAccount(ctx context.Context, subject string, input AccountInput) (*domain.Account, error)
}

// accountService implements the AccountService interface.
type accountService struct {
	store repository.Store[*domain.Account]
	notifier
}

// NewAccountService creates a new instance of accountService.
func NewAccountService(store repository.Store[*domain.Account], kicker Kicker, pub events.Publisher) AccountService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &accountService{
		store:    store,
		notifier: notifier{kicker: kicker, events: pub},
	}
}

func (s *accountService) find(ctx context.Context, subject string) (*domain.Account, error) {
	accounts, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Subject == subject {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *accountService) GetAccount(ctx context.Context, subject string) (*domain.Account, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidationFailed)
	}
	return s.find(ctx, subject)
}

func validateAccount(input AccountInput) error {
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrValidationFailed)
		}
	}
	p := input.Profile
	if p.HeightCm < 0 || p.WeightKg < 0 || p.WeeklyGoalMinutes < 0 {
		return fmt.Errorf("%w: profile values must not be negative", ErrValidationFailed)
	}
	return nil
}

func (s *accountService) SaveAccount(ctx context.Context, subject string, input AccountInput) (*domain.Account, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidationFailed)
	}
	if err := validateAccount(input); err != nil {
		return nil, err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	var saved *domain.Account
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.find(ctx, subject)
		if errors.Is(err, ErrAccountNotFound) {
			account := domain.NewAccount(subject, input.Email, input.DisplayName)
			account.Profile = input.Profile
			if err := s.store.Insert(ctx, account); err != nil {
				return err
			}
			saved = account
			return nil
		}
		if err != nil {
			return err
		}
		return s.store.Update(ctx, existing.LocalID, func(a *domain.Account) error {
			a.Email = input.Email
			a.DisplayName = input.DisplayName
			a.Profile = input.Profile
			a.Touch()
			saved = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.changed(domain.FamilyAccount, saved.LocalID)
	return saved, nil
}
