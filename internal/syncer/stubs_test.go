package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/remote"
	"alcyxob/fitness-sync/internal/repository/memory"
	"alcyxob/fitness-sync/internal/storage"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var errOffline = errors.New("dial tcp: connection refused")

type stubTokens struct {
	token string
	calls atomic.Int64
}

func (s *stubTokens) CurrentToken() (string, bool) {
	s.calls.Add(1)
	return s.token, s.token != ""
}

type call struct {
	Op       string
	Family   domain.Family
	RemoteID string
	Req      remote.UploadRequest
}

// stubAPI records every request and answers from a simple in-memory backend.
type stubAPI struct {
	mu      sync.Mutex
	calls   []call
	nextID  int
	fail    map[string]error // keyed by local id
	failAll error
	changes remote.ChangeSet
	listErr error

	// beforeAck runs after the request is "sent" and before the ack returns.
	beforeAck func(localID string)
	// gate, when set, blocks create calls until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newStubAPI() *stubAPI {
	return &stubAPI{fail: make(map[string]error)}
}

func (s *stubAPI) record(c call) (func(string), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if s.failAll != nil {
		return nil, s.failAll
	}
	return s.beforeAck, s.fail[c.Req.LocalID]
}

func (s *stubAPI) Create(ctx context.Context, token string, family domain.Family, req remote.UploadRequest) (domain.Ack, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	hook, err := s.record(call{Op: "create", Family: family, Req: req})
	if err != nil {
		return domain.Ack{}, err
	}
	if hook != nil {
		hook(req.LocalID)
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("R%d", s.nextID)
	s.mu.Unlock()
	return domain.Ack{RemoteID: id, LocalID: req.LocalID}, nil
}

func (s *stubAPI) Patch(ctx context.Context, token string, family domain.Family, remoteID string, req remote.UploadRequest) (domain.Ack, error) {
	hook, err := s.record(call{Op: "patch", Family: family, RemoteID: remoteID, Req: req})
	if err != nil {
		return domain.Ack{}, err
	}
	if hook != nil {
		hook(req.LocalID)
	}
	return domain.Ack{RemoteID: remoteID, LocalID: req.LocalID}, nil
}

func (s *stubAPI) ListChanges(ctx context.Context, token string, family domain.Family, since *time.Time) (remote.ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{Op: "list", Family: family})
	if s.listErr != nil {
		return remote.ChangeSet{}, s.listErr
	}
	return s.changes, nil
}

func (s *stubAPI) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *stubAPI) callsFor(localID string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.Req.LocalID == localID {
			out = append(out, c)
		}
	}
	return out
}

// flakyAssets fails uploads while down is set.
type flakyAssets struct {
	*storage.MemoryAssetStore
	down    atomic.Bool
	uploads atomic.Int64
}

func newFlakyAssets() *flakyAssets {
	return &flakyAssets{MemoryAssetStore: storage.NewMemoryAssetStore()}
}

func (f *flakyAssets) Upload(ctx context.Context, family domain.Family, remoteID string, data []byte, contentType string) (string, error) {
	f.uploads.Add(1)
	if f.down.Load() {
		return "", errOffline
	}
	return f.MemoryAssetStore.Upload(ctx, family, remoteID, data, contentType)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) kinds() []events.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Kind, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Kind)
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type workoutFixture struct {
	store       *memory.Store[*domain.Workout]
	checkpoints *memory.CheckpointStore
	api         *stubAPI
	tokens      *stubTokens
	assets      *flakyAssets
	bus         *recordingBus
	engine      *Engine[*domain.Workout]
}

func newWorkoutFixture() *workoutFixture {
	f := &workoutFixture{
		store:       memory.NewStore(func() *domain.Workout { return &domain.Workout{} }),
		checkpoints: memory.NewCheckpointStore(),
		api:         newStubAPI(),
		tokens:      &stubTokens{token: "tok"},
		assets:      newFlakyAssets(),
		bus:         &recordingBus{},
	}
	f.engine = NewEngine[*domain.Workout](WorkoutAdapter{}, f.store, f.checkpoints, f.api, f.tokens,
		WithLogger(quietLogger()),
		WithEvents(f.bus),
		WithAssetStore(f.assets),
	)
	return f
}

func newRun(name string) *domain.Workout {
	w, err := domain.NewWorkout(name, time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC), 30*time.Minute,
		domain.RunStats{DistanceMeters: 5000, AvgHeartRate: 150})
	if err != nil {
		panic(err)
	}
	return w
}
