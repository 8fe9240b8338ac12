package memory

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newWorkoutStore() *Store[*domain.Workout] {
	return NewStore(func() *domain.Workout { return &domain.Workout{} })
}

func seedWorkout(t *testing.T, store *Store[*domain.Workout], localID string, remoteID *string, dirty bool) *domain.Workout {
	t.Helper()
	w, err := domain.NewWorkout("Run "+localID, time.Now(), 20*time.Minute, domain.RunStats{DistanceMeters: 4000})
	require.NoError(t, err)
	w.LocalID = localID
	w.RemoteID = remoteID
	w.IsDirty = dirty
	require.NoError(t, store.Insert(context.Background(), w))
	return w
}

func strPtr(s string) *string { return &s }

func TestFindDirtyOrNewFiltersSyncedEntities(t *testing.T) {
	ctx := context.Background()
	store := newWorkoutStore()
	seedWorkout(t, store, "new", nil, true)
	seedWorkout(t, store, "synced", strPtr("R1"), false)
	seedWorkout(t, store, "edited", strPtr("R2"), true)

	pending, err := store.FindDirtyOrNew(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, w := range pending {
		ids = append(ids, w.LocalID)
	}
	require.ElementsMatch(t, []string{"new", "edited"}, ids)

	unsynced, err := store.HasUnsynced(ctx)
	require.NoError(t, err)
	require.True(t, unsynced)
}

func TestFindByIdentityMatchesLocalOrRemote(t *testing.T) {
	ctx := context.Background()
	store := newWorkoutStore()
	seedWorkout(t, store, "A1", strPtr("R9"), false)

	byLocal, err := store.FindByIdentity(ctx, "A1", "")
	require.NoError(t, err)
	require.Equal(t, "R9", byLocal.RemoteIDValue())

	byRemote, err := store.FindByIdentity(ctx, "other-device-id", "R9")
	require.NoError(t, err)
	require.Equal(t, "A1", byRemote.LocalID)

	_, err = store.FindByIdentity(ctx, "nope", "nope")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInsertRejectsDuplicateLocalID(t *testing.T) {
	store := newWorkoutStore()
	w := seedWorkout(t, store, "A1", nil, true)
	require.ErrorIs(t, store.Insert(context.Background(), w), repository.ErrDuplicate)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newWorkoutStore()
	seedWorkout(t, store, "A1", nil, true)

	w, err := store.Get(ctx, "A1")
	require.NoError(t, err)
	w.Name = "mutated outside the store"

	again, err := store.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "Run A1", again.Name)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newWorkoutStore()
	seedWorkout(t, store, "A1", nil, true)

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Update(ctx, "A1", func(w *domain.Workout) error {
			w.SetRemoteID("R1")
			w.IsDirty = false
			return nil
		}))
		seedWorkoutCtx(t, ctx, store, "A2")
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := store.Get(ctx, "A1")
	require.NoError(t, err)
	require.Nil(t, w.RemoteID)
	require.True(t, w.IsDirty)
	_, err = store.Get(ctx, "A2")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.Equal(t, 1, store.Len())
}

func seedWorkoutCtx(t *testing.T, ctx context.Context, store *Store[*domain.Workout], localID string) {
	t.Helper()
	w, err := domain.NewWorkout("Ride", time.Now(), time.Hour, domain.CycleStats{DistanceMeters: 30000})
	require.NoError(t, err)
	w.LocalID = localID
	require.NoError(t, store.Insert(ctx, w))
}

func TestUpdateRejectsLocalIDChange(t *testing.T) {
	store := newWorkoutStore()
	seedWorkout(t, store, "A1", nil, true)
	err := store.Update(context.Background(), "A1", func(w *domain.Workout) error {
		w.LocalID = "B2"
		return nil
	})
	require.ErrorIs(t, err, repository.ErrUpdateFailed)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := newWorkoutStore()
	seedWorkout(t, store, "A1", nil, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "A1", func(w *domain.Workout) error {
				w.Touch()
				return nil
			})
		}()
	}
	wg.Wait()

	w, err := store.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, int64(51), w.Revision)
}

func TestCheckpointStoreResets(t *testing.T) {
	ctx := context.Background()
	cps := NewCheckpointStore()

	cp, err := cps.Load(ctx, domain.FamilyWorkout)
	require.NoError(t, err)
	require.Nil(t, cp.Since())

	now := time.Now().UTC()
	require.NoError(t, cps.Save(ctx, domain.Checkpoint{Family: domain.FamilyWorkout, LastPulledAt: now, InitialPullDone: true}))
	cp, err = cps.Load(ctx, domain.FamilyWorkout)
	require.NoError(t, err)
	require.True(t, cp.InitialPullDone)
	require.NotNil(t, cp.Since())

	require.NoError(t, cps.Reset(ctx, domain.FamilyWorkout))
	cp, err = cps.Load(ctx, domain.FamilyWorkout)
	require.NoError(t, err)
	require.False(t, cp.InitialPullDone)
}
