package service

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
)

// GymPlanInput replaces a plan's content, days and exercises included.
type GymPlanInput struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	IsActive    bool            `json:"isActive"`
	Days        []domain.GymDay `json:"days"`
}

type GymPlanService interface {
	CreatePlan(ctx context.Context, input GymPlanInput) (*domain.GymPlan, error)
	GetPlan(ctx context.Context, localID string) (*domain.GymPlan, error)
	ListPlans(ctx context.Context) ([]*domain.GymPlan, error)
	UpdatePlan(ctx context.Context, localID string, input GymPlanInput) (*domain.GymPlan, error)
	DeletePlan(ctx context.Context, localID string) error
}

// gymPlanService implements the GymPlanService interface.
type gymPlanService struct {
	store repository.Store[*domain.GymPlan]
	notifier
}

// NewGymPlanService creates a new instance of gymPlanService.
func NewGymPlanService(store repository.Store[*domain.GymPlan], kicker Kicker, pub events.Publisher) GymPlanService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &gymPlanService{
		store:    store,
		notifier: notifier{kicker: kicker, events: pub},
	}
}

func validatePlan(input GymPlanInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: plan name is required", ErrValidationFailed)
	}
	for i, day := range input.Days {
		if day.DayOfWeek != nil && (*day.DayOfWeek < 1 || *day.DayOfWeek > 7) {
			return fmt.Errorf("%w: day %d: day of week must be 1-7", ErrValidationFailed, i+1)
		}
		for j, ex := range day.Exercises {
			if strings.TrimSpace(ex.Name) == "" || ex.Sets <= 0 || ex.Reps <= 0 {
				return fmt.Errorf("%w: day %d exercise %d needs a name, sets and reps", ErrValidationFailed, i+1, j+1)
			}
		}
	}
	return nil
}

// deactivateOthers keeps at most one active plan. Every plan it switches off is a local edit.
func (s *gymPlanService) deactivateOthers(ctx context.Context, keep string) ([]string, error) {
	plans, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, p := range plans {
		if p.LocalID == keep || !p.IsActive {
			continue
		}
		err := s.store.Update(ctx, p.LocalID, func(p *domain.GymPlan) error {
			p.IsActive = false
			p.Touch()
			return nil
		})
		if err != nil {
			return nil, err
		}
		changed = append(changed, p.LocalID)
	}
	return changed, nil
}

func (s *gymPlanService) CreatePlan(ctx context.Context, input GymPlanInput) (*domain.GymPlan, error) {
	if err := validatePlan(input); err != nil {
		return nil, err
	}
	plan := domain.NewGymPlan(input.Name, input.Description, input.Days)
	plan.IsActive = input.IsActive

	var deactivated []string
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		deactivated = nil
		if err := s.store.Insert(ctx, plan); err != nil {
			return err
		}
		if !plan.IsActive {
			return nil
		}
		var err error
		deactivated, err = s.deactivateOthers(ctx, plan.LocalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, id := range deactivated {
		s.events.Publish(events.Event{Family: domain.FamilyGymPlan, Kind: events.KindLocalMutation, LocalID: id})
	}
	s.changed(domain.FamilyGymPlan, plan.LocalID)
	return plan, nil
}

func (s *gymPlanService) GetPlan(ctx context.Context, localID string) (*domain.GymPlan, error) {
	plan, err := s.store.Get(ctx, localID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGymPlanNotFound
	}
	return plan, err
}

func (s *gymPlanService) ListPlans(ctx context.Context) ([]*domain.GymPlan, error) {
	return s.store.FindAll(ctx)
}

func (s *gymPlanService) UpdatePlan(ctx context.Context, localID string, input GymPlanInput) (*domain.GymPlan, error) {
	if err := validatePlan(input); err != nil {
		return nil, err
	}

	var (
		updated     *domain.GymPlan
		deactivated []string
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		deactivated = nil
		err := s.store.Update(ctx, localID, func(p *domain.GymPlan) error {
			p.Name = input.Name
			p.Description = input.Description
			p.IsActive = input.IsActive
			p.Days = input.Days
			p.Touch()
			updated = p
			return nil
		})
		if err != nil || !input.IsActive {
			return err
		}
		deactivated, err = s.deactivateOthers(ctx, localID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGymPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, id := range deactivated {
		s.events.Publish(events.Event{Family: domain.FamilyGymPlan, Kind: events.KindLocalMutation, LocalID: id})
	}
	s.changed(domain.FamilyGymPlan, localID)
	return updated, nil
}

func (s *gymPlanService) DeletePlan(ctx context.Context, localID string) error {
	err := s.store.Delete(ctx, localID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrGymPlanNotFound
	}
	if err != nil {
		return err
	}
	s.events.Publish(events.Event{Family: domain.FamilyGymPlan, Kind: events.KindLocalMutation, LocalID: localID})
	return nil
}
