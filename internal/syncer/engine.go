// Package syncer pushes local changes to the backend and merges server
// changes back, one engine per entity family.
package syncer

import (
	"alcyxob/fitness-sync/internal/auth"
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/remote"
	"alcyxob/fitness-sync/internal/repository"
	"alcyxob/fitness-sync/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoToken means there is no signed-in user; passes and pulls are skipped.
var ErrNoToken = errors.New("no auth token")

// Result describes one pass.
type Result struct {
	Family     domain.Family `json:"family"`
	Skipped    bool          `json:"skipped"`
	Reason     string        `json:"reason,omitempty"`
	Attempted  int           `json:"attempted"`
	Created    int           `json:"created"`
	Patched    int           `json:"patched"`
	Failed     int           `json:"failed"`
	AssetsSent int           `json:"assetsSent"`
	AssetsLeft int           `json:"assetsLeft"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Status is a point-in-time view of one family for status screens.
type Status struct {
	Family        domain.Family `json:"family"`
	Unsynced      bool          `json:"unsynced"`
	PendingAssets int           `json:"pendingAssets"`
	PullComplete  bool          `json:"pullComplete"`
	LastPulledAt  *time.Time    `json:"lastPulledAt,omitempty"`
	Suspended     bool          `json:"suspended"`
	Running       bool          `json:"running"`
	LastPass      *Result       `json:"lastPass,omitempty"`
}

type options struct {
	logger *log.Logger
	events events.Publisher
	assets storage.AssetStore
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvents sets where state-changed events are published.
func WithEvents(p events.Publisher) Option {
	return func(o *options) { o.events = p }
}

// WithAssetStore enables dependent asset transfer for adapters that implement AssetAdapter.
func WithAssetStore(s storage.AssetStore) Option {
	return func(o *options) { o.assets = s }
}

// Engine drives uploads and pulls for one family.
//
// Passes never overlap: a Kick while a pass runs sets a single pending flag
// and the running loop performs exactly one more pass when it finishes.
type Engine[E domain.Entity] struct {
	family      domain.Family
	adapter     Adapter[E]
	assetAdpt   AssetAdapter[E]
	store       repository.Store[E]
	checkpoints repository.CheckpointStore
	api         remote.API
	tokens      auth.TokenProvider
	assets      storage.AssetStore
	events      events.Publisher
	logger      *log.Logger
	reconciler  *Reconciler[E]

	mu      sync.Mutex
	running bool
	pending bool
	closed  bool
	last    *Result
	wg      sync.WaitGroup

	suspended atomic.Bool
	passMu    sync.Mutex
	pullMu    sync.Mutex
}

// NewEngine wires an engine for adapter's family.
func NewEngine[E domain.Entity](adapter Adapter[E], store repository.Store[E], checkpoints repository.CheckpointStore, api remote.API, tokens auth.TokenProvider, opts ...Option) *Engine[E] {
	o := options{
		logger: log.New(log.Writer(), fmt.Sprintf("[sync %s] ", adapter.Family()), log.LstdFlags),
		events: events.Discard{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine[E]{
		family:      adapter.Family(),
		adapter:     adapter,
		store:       store,
		checkpoints: checkpoints,
		api:         api,
		tokens:      tokens,
		assets:      o.assets,
		events:      o.events,
		logger:      o.logger,
	}
	if aa, ok := any(adapter).(AssetAdapter[E]); ok && o.assets != nil {
		e.assetAdpt = aa
	}
	e.reconciler = newReconciler(adapter, store, o.assets, o.events, o.logger)
	return e
}

func (e *Engine[E]) Family() domain.Family { return e.family }

// Reconciler exposes the merge step for callers that already hold records.
func (e *Engine[E]) Reconciler() *Reconciler[E] { return e.reconciler }

// Kick schedules a pass in the background and returns immediately.
func (e *Engine[E]) Kick() {
	if e.suspended.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.running {
		if !e.pending {
			e.pending = true
		} else {
			kicksCoalesced.WithLabelValues(string(e.family)).Inc()
		}
		return
	}
	e.running = true
	e.wg.Add(1)
	go e.loop()
}

func (e *Engine[E]) loop() {
	defer e.wg.Done()
	for {
		res := e.Run(context.Background())

		e.mu.Lock()
		e.last = &res
		if !e.pending || e.closed || e.suspended.Load() {
			e.running = false
			e.pending = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

// Run performs one pass synchronously: every entity that is new or dirty is
// created or patched, then pending assets are retried. Without a token it
// returns at once and touches nothing.
func (e *Engine[E]) Run(ctx context.Context) Result {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	res := Result{Family: e.family, StartedAt: time.Now().UTC()}
	token, ok := e.tokens.CurrentToken()
	switch {
	case !ok:
		res.Skipped, res.Reason = true, ErrNoToken.Error()
	case e.suspended.Load():
		res.Skipped, res.Reason = true, "suspended"
	}
	if res.Skipped {
		res.FinishedAt = time.Now().UTC()
		recordPass(res)
		return res
	}

	pending, err := e.store.FindDirtyOrNew(ctx)
	if err != nil {
		e.logger.Printf("ERROR: load unsynced %s: %v", e.family, err)
		res.Reason = "load unsynced: " + err.Error()
		res.FinishedAt = time.Now().UTC()
		recordPass(res)
		return res
	}

	tried := make(map[string]bool, len(pending))
	for _, entity := range pending {
		if e.stopped(ctx) {
			break
		}
		tried[entity.Meta().LocalID] = true
		res.Attempted++
		e.upload(ctx, token, entity, &res)
	}

	if e.assetAdpt != nil && !e.stopped(ctx) {
		e.sweepAssets(ctx, tried, &res)
	}

	res.FinishedAt = time.Now().UTC()
	recordPass(res)
	if res.Attempted > 0 || res.AssetsSent > 0 || res.AssetsLeft > 0 {
		e.logger.Printf("INFO: %s pass: %d attempted, %d created, %d patched, %d failed, %d assets sent, %d assets pending",
			e.family, res.Attempted, res.Created, res.Patched, res.Failed, res.AssetsSent, res.AssetsLeft)
	}
	return res
}

// stopped reports whether no new request may be issued in the current pass.
func (e *Engine[E]) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || e.suspended.Load()
}

// Pull fetches server changes after since (nil means full history), merges
// them and advances the checkpoint once the merge has committed.
func (e *Engine[E]) Pull(ctx context.Context, since *time.Time) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	token, ok := e.tokens.CurrentToken()
	if !ok || e.suspended.Load() {
		return nil
	}

	changes, err := e.api.ListChanges(ctx, token, e.family, since)
	if err != nil {
		pullsTotal.WithLabelValues(string(e.family), "error").Inc()
		return fmt.Errorf("list %s changes: %w", e.family, err)
	}

	merged, err := e.reconciler.Merge(ctx, changes.Records)
	if err != nil {
		pullsTotal.WithLabelValues(string(e.family), "error").Inc()
		return err
	}
	recordMerge(e.family, merged)

	checkpoint := domain.Checkpoint{
		Family:          e.family,
		LastPulledAt:    nextCheckpoint(since, changes),
		InitialPullDone: true,
	}
	if err := e.checkpoints.Save(ctx, checkpoint); err != nil {
		pullsTotal.WithLabelValues(string(e.family), "error").Inc()
		return fmt.Errorf("save %s checkpoint: %w", e.family, err)
	}
	recordPullSuccess(e.family, checkpoint.LastPulledAt)

	if n := merged.Updated + merged.Inserted; n > 0 {
		e.events.Publish(events.Event{Family: e.family, Kind: events.KindPulled, Count: n})
	}
	e.reconciler.FetchAssets(ctx, merged)
	return nil
}

// nextCheckpoint prefers the server clock, falling back to the newest record.
func nextCheckpoint(since *time.Time, changes remote.ChangeSet) time.Time {
	if !changes.ServerTime.IsZero() {
		return changes.ServerTime.UTC()
	}
	var latest time.Time
	if since != nil {
		latest = *since
	}
	for _, rec := range changes.Records {
		if rec.UpdatedAt.After(latest) {
			latest = rec.UpdatedAt
		}
	}
	return latest.UTC()
}

// PullSinceCheckpoint pulls from the stored checkpoint.
func (e *Engine[E]) PullSinceCheckpoint(ctx context.Context) error {
	checkpoint, err := e.checkpoints.Load(ctx, e.family)
	if err != nil {
		return fmt.Errorf("load %s checkpoint: %w", e.family, err)
	}
	return e.Pull(ctx, checkpoint.Since())
}

// HasUnsynced reports whether any entity is new or dirty. It has no side effects.
func (e *Engine[E]) HasUnsynced(ctx context.Context) (bool, error) {
	return e.store.HasUnsynced(ctx)
}

func (e *Engine[E]) IsPullComplete(ctx context.Context) (bool, error) {
	checkpoint, err := e.checkpoints.Load(ctx, e.family)
	if err != nil {
		return false, err
	}
	return checkpoint.InitialPullDone, nil
}

// ResetPullState forgets the checkpoint so the next pull fetches full history.
func (e *Engine[E]) ResetPullState(ctx context.Context) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()
	return e.checkpoints.Reset(ctx, e.family)
}

// Suspend stops new passes and new requests. Requests already on the wire complete.
func (e *Engine[E]) Suspend() {
	if !e.suspended.Swap(true) {
		e.logger.Printf("INFO: %s sync suspended", e.family)
	}
}

// Resume lifts a suspension and kicks if anything is waiting.
func (e *Engine[E]) Resume(ctx context.Context) error {
	if e.suspended.Swap(false) {
		e.logger.Printf("INFO: %s sync resumed", e.family)
	}
	waiting, err := e.hasWork(ctx)
	if err != nil {
		return err
	}
	if waiting {
		e.Kick()
	}
	return nil
}

func (e *Engine[E]) hasWork(ctx context.Context) (bool, error) {
	unsynced, err := e.store.HasUnsynced(ctx)
	if err != nil || unsynced {
		return unsynced, err
	}
	if e.assetAdpt == nil {
		return false, nil
	}
	assets, err := e.store.FindPendingAssets(ctx)
	return len(assets) > 0, err
}

func (e *Engine[E]) Suspended() bool { return e.suspended.Load() }

// Status snapshots the family's sync state.
func (e *Engine[E]) Status(ctx context.Context) (Status, error) {
	st := Status{Family: e.family, Suspended: e.suspended.Load()}

	e.mu.Lock()
	st.Running = e.running
	if e.last != nil {
		last := *e.last
		st.LastPass = &last
	}
	e.mu.Unlock()

	var err error
	if st.Unsynced, err = e.store.HasUnsynced(ctx); err != nil {
		return st, err
	}
	assets, err := e.store.FindPendingAssets(ctx)
	if err != nil {
		return st, err
	}
	st.PendingAssets = len(assets)

	checkpoint, err := e.checkpoints.Load(ctx, e.family)
	if err != nil {
		return st, err
	}
	st.PullComplete = checkpoint.InitialPullDone
	st.LastPulledAt = checkpoint.Since()
	return st, nil
}

// Close stops accepting kicks and waits for the running pass, if any.
func (e *Engine[E]) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}
