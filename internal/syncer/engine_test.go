package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/remote"
	"alcyxob/fitness-sync/internal/repository/memory"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCreateAckSetsRemoteIDAndClearsDirty(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("morning run")
	w.LocalID = "A1"
	require.NoError(t, f.store.Insert(ctx, w))
	f.api.nextID = 8 // next remote id is R9

	res := f.engine.Run(ctx)
	require.False(t, res.Skipped)
	require.Equal(t, 1, res.Created)

	stored, err := f.store.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "R9", stored.RemoteIDValue())
	require.False(t, stored.IsDirty)
	require.Contains(t, f.bus.kinds(), events.KindCreated)

	calls := f.api.callsFor("A1")
	require.Len(t, calls, 1)
	require.Equal(t, "run", calls[0].Req.Kind)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Req.Payload, &payload))
	require.Equal(t, "morning run", payload["name"])
	require.EqualValues(t, 1800, payload["durationSeconds"])
}

func TestCreatedEntityIsNeverCreatedAgain(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("once")
	require.NoError(t, f.store.Insert(ctx, w))

	f.engine.Run(ctx)
	f.engine.Run(ctx)
	f.engine.Run(ctx)

	require.Equal(t, 1, f.api.count("create"))
	require.Equal(t, 0, f.api.count("patch"))
	pending, err := f.store.FindDirtyOrNew(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCreateFailureLeavesEntityUntouched(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("offline")
	require.NoError(t, f.store.Insert(ctx, w))
	f.api.failAll = errOffline

	before := testutil.ToFloat64(uploadsTotal.WithLabelValues("workout", "create", "error"))
	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, before+1, testutil.ToFloat64(uploadsTotal.WithLabelValues("workout", "create", "error")))

	stored, err := f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.Nil(t, stored.RemoteID)
	require.True(t, stored.IsDirty)
	require.Equal(t, w.Revision, stored.Revision)

	unsynced, err := f.engine.HasUnsynced(ctx)
	require.NoError(t, err)
	require.True(t, unsynced)

	// Retried on the next pass.
	f.api.failAll = nil
	f.engine.Run(ctx)
	stored, err = f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.NotNil(t, stored.RemoteID)
	require.False(t, stored.IsDirty)
}

func TestRunWithoutTokenHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	f.tokens.token = ""
	require.NoError(t, f.store.Insert(ctx, newRun("anon")))

	res := f.engine.Run(ctx)
	require.True(t, res.Skipped)
	require.Empty(t, f.api.calls)
	require.Empty(t, f.bus.kinds())

	require.NoError(t, f.engine.Pull(ctx, nil))
	require.Empty(t, f.api.calls)
	done, err := f.engine.IsPullComplete(ctx)
	require.NoError(t, err)
	require.False(t, done)
}

func TestOneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	a, b, c := newRun("a"), newRun("b"), newRun("c")
	for _, w := range []*domain.Workout{a, b, c} {
		require.NoError(t, f.store.Insert(ctx, w))
	}
	f.api.fail[b.LocalID] = &remote.StatusError{Method: http.MethodPost, Code: http.StatusBadGateway}

	res := f.engine.Run(ctx)
	require.Equal(t, 3, res.Attempted)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 1, res.Failed)

	storedB, err := f.store.Get(ctx, b.LocalID)
	require.NoError(t, err)
	require.Nil(t, storedB.RemoteID)
	require.True(t, storedB.IsDirty)
}

func TestEveryFamilyProcessesAllDirtyEntities(t *testing.T) {
	ctx := context.Background()
	api := newStubAPI()
	tokens := &stubTokens{token: "tok"}
	checkpoints := memory.NewCheckpointStore()

	accounts := memory.NewStore(func() *domain.Account { return &domain.Account{} })
	plans := memory.NewStore(func() *domain.GymPlan { return &domain.GymPlan{} })
	for i := 0; i < 3; i++ {
		require.NoError(t, accounts.Insert(ctx, domain.NewAccount("u", "u@example.com", "U")))
		require.NoError(t, plans.Insert(ctx, domain.NewGymPlan("plan", "", []domain.GymDay{{Title: "Push"}})))
	}

	accountEngine := NewEngine[*domain.Account](AccountAdapter{}, accounts, checkpoints, api, tokens, WithLogger(quietLogger()))
	planEngine := NewEngine[*domain.GymPlan](GymPlanAdapter{}, plans, checkpoints, api, tokens, WithLogger(quietLogger()))

	require.Equal(t, 3, accountEngine.Run(ctx).Created)
	require.Equal(t, 3, planEngine.Run(ctx).Created)
	require.Equal(t, 6, api.count("create"))
}

func TestPatchSendsFullPayload(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("edit me")
	require.NoError(t, f.store.Insert(ctx, w))
	f.engine.Run(ctx)

	require.NoError(t, f.store.Update(ctx, w.LocalID, func(w *domain.Workout) error {
		w.Notes = "felt strong"
		w.Touch()
		return nil
	}))

	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Patched)

	calls := f.api.callsFor(w.LocalID)
	require.Len(t, calls, 2)
	require.Equal(t, "patch", calls[1].Op)
	require.Equal(t, "R1", calls[1].RemoteID)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[1].Req.Payload, &payload))
	require.Equal(t, "felt strong", payload["notes"])

	stored, err := f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.False(t, stored.IsDirty)
	require.Equal(t, "R1", stored.RemoteIDValue())
	require.Contains(t, f.bus.kinds(), events.KindPatched)
}

func TestEditDuringUploadStaysDirty(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("racing")
	require.NoError(t, f.store.Insert(ctx, w))

	f.api.beforeAck = func(localID string) {
		_ = f.store.Update(ctx, localID, func(w *domain.Workout) error {
			w.Name = "renamed mid-flight"
			w.Touch()
			return nil
		})
	}
	f.engine.Run(ctx)

	stored, err := f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.Equal(t, "R1", stored.RemoteIDValue())
	require.True(t, stored.IsDirty, "edit made after serialization must not be marked synced")

	f.api.beforeAck = nil
	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Patched)
	require.Equal(t, 0, res.Created)

	stored, err = f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.False(t, stored.IsDirty)
}

func TestAssetFailureKeepsRecordSyncedAndAssetPending(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("with photo")
	w.AttachImage([]byte("jpeg bytes"), "image/jpeg")
	require.NoError(t, f.store.Insert(ctx, w))
	f.assets.down.Store(true)

	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 1, res.AssetsLeft)

	stored, err := f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.False(t, stored.IsDirty)
	require.NotNil(t, stored.RemoteID)
	require.True(t, stored.HasPendingImage())
	require.True(t, stored.AssetPending)
	require.Equal(t, []byte("jpeg bytes"), stored.Image)

	// A later pass retries only the asset.
	f.assets.down.Store(false)
	res = f.engine.Run(ctx)
	require.Equal(t, 0, res.Attempted)
	require.Equal(t, 1, res.AssetsSent)
	require.Equal(t, 1, f.api.count("create"))

	stored, err = f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.False(t, stored.AssetPending)
	require.NotEmpty(t, stored.ImageURL)
	require.Contains(t, stored.ImageURL, "workouts/"+stored.RemoteIDValue()+"/")
	require.Contains(t, f.bus.kinds(), events.KindAssetUploaded)
}

func TestAssetUploadChainsAfterCreate(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("photo")
	w.AttachImage([]byte("png"), "image/png")
	require.NoError(t, f.store.Insert(ctx, w))

	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 1, res.AssetsSent)
	require.EqualValues(t, 1, f.assets.uploads.Load())

	stored, err := f.store.Get(ctx, w.LocalID)
	require.NoError(t, err)
	require.False(t, stored.AssetPending)
	require.False(t, stored.IsDirty)

	data, err := f.assets.Download(ctx, stored.ImageURL)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)

	// Nothing left to do.
	f.engine.Run(ctx)
	require.EqualValues(t, 1, f.assets.uploads.Load())
}

func TestKicksWhileRunningQueueAtMostOnePass(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	require.NoError(t, f.store.Insert(ctx, newRun("slow")))
	f.api.gate = make(chan struct{})
	f.api.entered = make(chan struct{}, 1)

	f.engine.Kick()
	select {
	case <-f.api.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass did not start")
	}

	for i := 0; i < 25; i++ {
		f.engine.Kick()
	}
	close(f.api.gate)

	// One pass for the first kick plus one queued pass.
	require.Eventually(t, func() bool {
		st, err := f.engine.Status(ctx)
		return err == nil && !st.Running
	}, 2*time.Second, 5*time.Millisecond)
	f.engine.Close()
	require.EqualValues(t, 2, f.tokens.calls.Load())
	require.Equal(t, 1, f.api.count("create"))
}

func TestSuspendedEngineIgnoresKicksUntilResumed(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	require.NoError(t, f.store.Insert(ctx, newRun("later")))

	f.engine.Suspend()
	f.engine.Kick()
	res := f.engine.Run(ctx)
	require.True(t, res.Skipped)
	require.NoError(t, f.engine.Pull(ctx, nil))
	require.Empty(t, f.api.calls)

	require.NoError(t, f.engine.Resume(ctx))
	require.Eventually(t, func() bool {
		unsynced, err := f.engine.HasUnsynced(ctx)
		return err == nil && !unsynced
	}, 2*time.Second, 10*time.Millisecond)
	f.engine.Close()
	require.Equal(t, 1, f.api.count("create"))
}

func TestSuspendStopsIssuingRequestsMidPass(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	a, b := newRun("a"), newRun("b")
	require.NoError(t, f.store.Insert(ctx, a))
	require.NoError(t, f.store.Insert(ctx, b))

	f.api.beforeAck = func(string) { f.engine.Suspend() }
	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 1, f.api.count("create"))

	unsynced, err := f.engine.HasUnsynced(ctx)
	require.NoError(t, err)
	require.True(t, unsynced)
}

func TestStatusReportsFamilyState(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	require.NoError(t, f.store.Insert(ctx, newRun("pending")))

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.FamilyWorkout, st.Family)
	require.True(t, st.Unsynced)
	require.False(t, st.PullComplete)
	require.Nil(t, st.LastPulledAt)

	f.engine.Kick()
	f.engine.Close()

	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Unsynced)
	require.NotNil(t, st.LastPass)
	require.Equal(t, 1, st.LastPass.Created)
}

func TestAssetUploadsWhenPatchFails(t *testing.T) {
	ctx := context.Background()
	f := newWorkoutFixture()
	w := newRun("edited with photo")
	w.LocalID = "Q1"
	w.SetRemoteID("R1")
	w.AttachImage([]byte("jpeg"), "image/jpeg")
	require.True(t, w.IsDirty)
	require.NoError(t, f.store.Insert(ctx, w))
	f.api.fail["Q1"] = &remote.StatusError{Method: http.MethodPatch, Path: "/api/v1/sync/workouts/R1", Code: http.StatusUnprocessableEntity}

	res := f.engine.Run(ctx)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 1, res.AssetsSent)
	require.EqualValues(t, 1, f.assets.uploads.Load())

	stored, err := f.store.Get(ctx, "Q1")
	require.NoError(t, err)
	require.True(t, stored.IsDirty)
	require.False(t, stored.AssetPending)
	require.Contains(t, stored.ImageURL, "workouts/R1/")

	// Only the record itself is retried afterwards.
	f.engine.Run(ctx)
	require.EqualValues(t, 1, f.assets.uploads.Load())
	require.Equal(t, 2, f.api.count("patch"))
}

type failingScanStore struct {
	*memory.Store[*domain.Workout]
}

func (failingScanStore) FindDirtyOrNew(ctx context.Context) ([]*domain.Workout, error) {
	return nil, errors.New("store unavailable")
}

func TestRunReportsStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := failingScanStore{Store: memory.NewStore(func() *domain.Workout { return &domain.Workout{} })}
	engine := NewEngine[*domain.Workout](WorkoutAdapter{}, store, memory.NewCheckpointStore(), newStubAPI(),
		&stubTokens{token: "tok"}, WithLogger(quietLogger()))
	errorsBefore := testutil.ToFloat64(passesTotal.WithLabelValues(string(domain.FamilyWorkout), "error"))

	res := engine.Run(ctx)
	require.False(t, res.Skipped)
	require.Contains(t, res.Reason, "store unavailable")
	require.False(t, res.FinishedAt.IsZero())
	require.Equal(t, errorsBefore+1, testutil.ToFloat64(passesTotal.WithLabelValues(string(domain.FamilyWorkout), "error")))
}
