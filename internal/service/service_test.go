package service

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/repository/memory"
	"alcyxob/fitness-sync/internal/storage"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingKicker struct {
	mu    sync.Mutex
	kicks []domain.Family
}

func (k *recordingKicker) Kick(family domain.Family) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicks = append(k.kicks, family)
	return nil
}

func newWorkoutService() (WorkoutService, *memory.Store[*domain.Workout], *recordingKicker, *storage.MemoryAssetStore) {
	store := memory.NewStore(func() *domain.Workout { return &domain.Workout{} })
	kicker := &recordingKicker{}
	assets := storage.NewMemoryAssetStore()
	return NewWorkoutService(store, assets, kicker, events.Discard{}), store, kicker, assets
}

func runInput() WorkoutInput {
	return WorkoutInput{
		Name:        "Tempo",
		Kind:        domain.KindRun,
		StartedAt:   time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		DurationSec: 1800,
		Stats:       json.RawMessage(`{"distanceMeters":6000}`),
	}
}

func TestRecordWorkoutIsDirtyAndKicks(t *testing.T) {
	svc, store, kicker, _ := newWorkoutService()
	ctx := context.Background()

	w, err := svc.RecordWorkout(ctx, runInput())
	require.NoError(t, err)
	require.True(t, w.IsDirty)
	require.Nil(t, w.RemoteID)
	require.Equal(t, 30*time.Minute, w.Duration)
	require.Equal(t, []domain.Family{domain.FamilyWorkout}, kicker.kicks)

	stored, err := store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	stats, err := stored.WorkoutStats()
	require.NoError(t, err)
	require.Equal(t, domain.RunStats{DistanceMeters: 6000}, stats)
}

func TestRecordWorkoutRejectsUnknownKind(t *testing.T) {
	svc, _, kicker, _ := newWorkoutService()
	input := runInput()
	input.Kind = "rowing"

	_, err := svc.RecordWorkout(context.Background(), input)
	require.ErrorIs(t, err, ErrValidationFailed)
	require.Empty(t, kicker.kicks)
}

func TestUpdateWorkoutMarksSyncedEntityDirty(t *testing.T) {
	svc, store, _, _ := newWorkoutService()
	ctx := context.Background()
	w, err := svc.RecordWorkout(ctx, runInput())
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, w.LocalID, func(w *domain.Workout) error {
		w.SetRemoteID("R1")
		w.IsDirty = false
		return nil
	}))

	notes := "windy"
	kind := domain.KindCycle
	updated, err := svc.UpdateWorkout(ctx, w.LocalID, WorkoutPatch{
		Notes: &notes,
		Kind:  &kind,
		Stats: json.RawMessage(`{"distanceMeters":20000,"avgCadence":85}`),
	})
	require.NoError(t, err)
	require.True(t, updated.IsDirty)
	require.Equal(t, "R1", updated.RemoteIDValue())
	require.Equal(t, w.Revision+1, updated.Revision)
	require.Equal(t, domain.KindCycle, updated.Kind)

	_, err = svc.UpdateWorkout(ctx, "missing", WorkoutPatch{Notes: &notes})
	require.ErrorIs(t, err, ErrWorkoutNotFound)
}

func TestAttachImageMarksAssetPendingOnly(t *testing.T) {
	svc, store, _, _ := newWorkoutService()
	ctx := context.Background()
	w, err := svc.RecordWorkout(ctx, runInput())
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, w.LocalID, func(w *domain.Workout) error {
		w.SetRemoteID("R1")
		w.IsDirty = false
		return nil
	}))

	updated, err := svc.AttachImage(ctx, w.LocalID, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	require.False(t, updated.IsDirty)
	require.True(t, updated.AssetPending)
	require.Equal(t, domain.AssetDigest([]byte("jpeg")), updated.ImageDigest)

	_, err = svc.AttachImage(ctx, w.LocalID, []byte("%PDF"), "application/pdf")
	require.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.AttachImage(ctx, w.LocalID, make([]byte, MaxImageBytes+1), "image/png")
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestImageDownloadURLRequiresUploadedImage(t *testing.T) {
	svc, store, _, assets := newWorkoutService()
	ctx := context.Background()
	w, err := svc.RecordWorkout(ctx, runInput())
	require.NoError(t, err)

	_, err = svc.ImageDownloadURL(ctx, w.LocalID)
	require.ErrorIs(t, err, ErrNoImage)

	url, err := assets.Upload(ctx, domain.FamilyWorkout, "R1", []byte("png"), "image/png")
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, w.LocalID, func(w *domain.Workout) error {
		w.ImageURL = url
		return nil
	}))

	got, err := svc.ImageDownloadURL(ctx, w.LocalID)
	require.NoError(t, err)
	require.Equal(t, url, got)
}

func TestDeleteWorkoutIsLocalOnly(t *testing.T) {
	svc, store, kicker, _ := newWorkoutService()
	ctx := context.Background()
	w, err := svc.RecordWorkout(ctx, runInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorkout(ctx, w.LocalID))
	require.Equal(t, 0, store.Len())
	require.Len(t, kicker.kicks, 1, "deletion does not trigger a sync")
	require.ErrorIs(t, svc.DeleteWorkout(ctx, w.LocalID), ErrWorkoutNotFound)
}

func TestSaveAccountCreatesThenEdits(t *testing.T) {
	store := memory.NewStore(func() *domain.Account { return &domain.Account{} })
	kicker := &recordingKicker{}
	svc := NewAccountService(store, kicker, nil)
	ctx := context.Background()

	_, err := svc.GetAccount(ctx, "user-1")
	require.ErrorIs(t, err, ErrAccountNotFound)

	created, err := svc.SaveAccount(ctx, "user-1", AccountInput{Email: "Ann@Example.com", DisplayName: "Ann"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", created.Email)
	require.True(t, created.IsDirty)

	edited, err := svc.SaveAccount(ctx, "user-1", AccountInput{
		Email:       "ann@example.com",
		DisplayName: "Ann B",
		Profile:     domain.Profile{HeightCm: 170, WeeklyGoalMinutes: 150},
	})
	require.NoError(t, err)
	require.Equal(t, created.LocalID, edited.LocalID)
	require.Equal(t, int64(2), edited.Revision)
	require.Equal(t, 1, store.Len())
	require.Len(t, kicker.kicks, 2)

	_, err = svc.SaveAccount(ctx, "user-1", AccountInput{Email: "not-an-email"})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestActivatingPlanDeactivatesOthers(t *testing.T) {
	store := memory.NewStore(func() *domain.GymPlan { return &domain.GymPlan{} })
	svc := NewGymPlanService(store, &recordingKicker{}, nil)
	ctx := context.Background()

	monday := 1
	first, err := svc.CreatePlan(ctx, GymPlanInput{
		Name:     "Strength",
		IsActive: true,
		Days: []domain.GymDay{{
			Title:     "Lower",
			DayOfWeek: &monday,
			Exercises: []domain.GymExercise{{Name: "Squat", Sets: 5, Reps: 5}},
		}},
	})
	require.NoError(t, err)

	second, err := svc.CreatePlan(ctx, GymPlanInput{Name: "Hypertrophy", IsActive: true})
	require.NoError(t, err)

	reloaded, err := svc.GetPlan(ctx, first.LocalID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)
	require.True(t, reloaded.IsDirty)
	require.Equal(t, int64(2), reloaded.Revision)
	require.Equal(t, "Squat", reloaded.Days[0].Exercises[0].Name)

	plans, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.True(t, plans[1].IsActive)
	require.Equal(t, second.LocalID, plans[1].LocalID)
}

func TestPlanValidation(t *testing.T) {
	store := memory.NewStore(func() *domain.GymPlan { return &domain.GymPlan{} })
	svc := NewGymPlanService(store, nil, nil)
	ctx := context.Background()

	sunday := 8
	_, err := svc.CreatePlan(ctx, GymPlanInput{Name: "Bad", Days: []domain.GymDay{{Title: "X", DayOfWeek: &sunday}}})
	require.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.CreatePlan(ctx, GymPlanInput{Name: "Bad", Days: []domain.GymDay{{Title: "X", Exercises: []domain.GymExercise{{Name: "Row"}}}}})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.UpdatePlan(ctx, "missing", GymPlanInput{Name: "Ok"})
	require.ErrorIs(t, err, ErrGymPlanNotFound)
	require.ErrorIs(t, svc.DeletePlan(ctx, "missing"), ErrGymPlanNotFound)
}
