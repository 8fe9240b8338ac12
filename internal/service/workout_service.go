package service

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/repository"
	"alcyxob/fitness-sync/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// WorkoutInput is what the workout screen submits when a session is recorded.
type WorkoutInput struct {
	Name         string             `json:"name" binding:"required"`
	Kind         domain.WorkoutKind `json:"kind" binding:"required"`
	StartedAt    time.Time          `json:"startedAt" binding:"required"`
	DurationSec  float64            `json:"durationSeconds"`
	Notes        string             `json:"notes"`
	CaloriesKcal int                `json:"caloriesKcal"`
	Stats        json.RawMessage    `json:"stats"`
}

// WorkoutPatch carries the fields being edited; nil means unchanged.
type WorkoutPatch struct {
	Name         *string             `json:"name"`
	Notes        *string             `json:"notes"`
	CaloriesKcal *int                `json:"caloriesKcal"`
	DurationSec  *float64            `json:"durationSeconds"`
	Kind         *domain.WorkoutKind `json:"kind"`
	Stats        json.RawMessage     `json:"stats"`
}

type WorkoutService interface {
	RecordWorkout(ctx context.Context, input WorkoutInput) (*domain.Workout, error)
	GetWorkout(ctx context.Context, localID string) (*domain.Workout, error)
	ListWorkouts(ctx context.Context) ([]*domain.Workout, error)
	UpdateWorkout(ctx context.Context, localID string, patch WorkoutPatch) (*domain.Workout, error)
	// DeleteWorkout removes the workout from this device only.
	DeleteWorkout(ctx context.Context, localID string) error
	AttachImage(ctx context.Context, localID string, data []byte, contentType string) (*domain.Workout, error)
	// ImageDownloadURL returns a temporary URL for a workout image that has been uploaded.
	ImageDownloadURL(ctx context.Context, localID string) (string, error)
}

// workoutService implements the WorkoutService interface.
type workoutService struct {
	store  repository.Store[*domain.Workout]
	assets storage.AssetStore
	notifier
}

// NewWorkoutService creates a new instance of workoutService. assets may be nil
// when image downloads are not served.
func NewWorkoutService(store repository.Store[*domain.Workout], assets storage.AssetStore, kicker Kicker, pub events.Publisher) WorkoutService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &workoutService{
		store:    store,
		assets:   assets,
		notifier: notifier{kicker: kicker, events: pub},
	}
}

func (s *workoutService) RecordWorkout(ctx context.Context, input WorkoutInput) (*domain.Workout, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if input.DurationSec < 0 || input.CaloriesKcal < 0 {
		return nil, fmt.Errorf("%w: duration and calories must not be negative", ErrValidationFailed)
	}
	stats, err := domain.DecodeStats(input.Kind, input.Stats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	workout, err := domain.NewWorkout(input.Name, input.StartedAt, seconds(input.DurationSec), stats)
	if err != nil {
		return nil, err
	}
	workout.Notes = input.Notes
	workout.CaloriesKcal = input.CaloriesKcal

	if err := s.store.Insert(ctx, workout); err != nil {
		return nil, err
	}
	s.changed(domain.FamilyWorkout, workout.LocalID)
	return workout, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (s *workoutService) GetWorkout(ctx context.Context, localID string) (*domain.Workout, error) {
	workout, err := s.store.Get(ctx, localID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkoutNotFound
	}
	return workout, err
}

func (s *workoutService) ListWorkouts(ctx context.Context) ([]*domain.Workout, error) {
	return s.store.FindAll(ctx)
}

func (s *workoutService) UpdateWorkout(ctx context.Context, localID string, patch WorkoutPatch) (*domain.Workout, error) {
	var updated *domain.Workout
	err := s.store.Update(ctx, localID, func(w *domain.Workout) error {
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return fmt.Errorf("%w: name is required", ErrValidationFailed)
			}
			w.Name = *patch.Name
		}
		if patch.Notes != nil {
			w.Notes = *patch.Notes
		}
		if patch.CaloriesKcal != nil {
			w.CaloriesKcal = *patch.CaloriesKcal
		}
		if patch.DurationSec != nil {
			if *patch.DurationSec < 0 {
				return fmt.Errorf("%w: duration must not be negative", ErrValidationFailed)
			}
			w.Duration = seconds(*patch.DurationSec)
		}
		if patch.Kind != nil || len(patch.Stats) > 0 {
			kind := w.Kind
			if patch.Kind != nil {
				kind = *patch.Kind
			}
			raw := []byte(patch.Stats)
			if len(raw) == 0 {
				raw = w.StatsRaw
			}
			stats, err := domain.DecodeStats(kind, raw)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
			if err := w.SetStats(stats); err != nil {
				return err
			}
		}
		w.Touch()
		updated = w
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkoutNotFound
	}
	if err != nil {
		return nil, err
	}
	s.changed(domain.FamilyWorkout, localID)
	return updated, nil
}

func (s *workoutService) DeleteWorkout(ctx context.Context, localID string) error {
	err := s.store.Delete(ctx, localID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrWorkoutNotFound
	}
	if err != nil {
		return err
	}
	s.events.Publish(events.Event{Family: domain.FamilyWorkout, Kind: events.KindLocalMutation, LocalID: localID})
	return nil
}

// AttachImage stores the image locally. The workout's own fields are not
// changed, so it is not marked dirty; the image follows the record once it has a remote id.
func (s *workoutService) AttachImage(ctx context.Context, localID string, data []byte, contentType string) (*domain.Workout, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrValidationFailed)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, fmt.Errorf("%w: content type %q is not an image", ErrValidationFailed, contentType)
	}

	var updated *domain.Workout
	err := s.store.Update(ctx, localID, func(w *domain.Workout) error {
		w.AttachImage(data, contentType)
		updated = w
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkoutNotFound
	}
	if err != nil {
		return nil, err
	}
	s.changed(domain.FamilyWorkout, localID)
	return updated, nil
}

func (s *workoutService) ImageDownloadURL(ctx context.Context, localID string) (string, error) {
	workout, err := s.GetWorkout(ctx, localID)
	if err != nil {
		return "", err
	}
	if workout.ImageURL == "" || s.assets == nil {
		return "", ErrNoImage
	}
	return s.assets.PresignDownload(ctx, workout.ImageURL, storage.DefaultPresignedURLExpiry)
}
