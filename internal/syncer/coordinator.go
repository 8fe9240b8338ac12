package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// FamilyEngine is the family-agnostic face of an Engine.
type FamilyEngine interface {
	Family() domain.Family
	Kick()
	Run(ctx context.Context) Result
	Pull(ctx context.Context, since *time.Time) error
	PullSinceCheckpoint(ctx context.Context) error
	HasUnsynced(ctx context.Context) (bool, error)
	IsPullComplete(ctx context.Context) (bool, error)
	ResetPullState(ctx context.Context) error
	Suspend()
	Resume(ctx context.Context) error
	Suspended() bool
	Status(ctx context.Context) (Status, error)
	Close()
}

var (
	_ FamilyEngine = (*Engine[*domain.Workout])(nil)
	_ FamilyEngine = (*Engine[*domain.Account])(nil)
	_ FamilyEngine = (*Engine[*domain.GymPlan])(nil)
)

// ConnectivitySource reports regained connectivity.
type ConnectivitySource interface {
	Subscribe(fn func())
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets a custom logger.
func WithCoordinatorLogger(l *log.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithPullOnLaunch controls whether OnLaunch pulls in addition to kicking.
func WithPullOnLaunch(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.pullOnLaunch = enabled }
}

// Coordinator owns the engines of every family and is the single trigger
// point for lifecycle events and connectivity changes. Build one per process.
type Coordinator struct {
	engines      map[domain.Family]FamilyEngine
	order        []domain.Family
	connectivity ConnectivitySource
	logger       *log.Logger
	pullOnLaunch bool

	subscribe sync.Once
}

// NewCoordinator registers engines in the given order. connectivity may be nil.
func NewCoordinator(connectivity ConnectivitySource, engines []FamilyEngine, opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		engines:      make(map[domain.Family]FamilyEngine, len(engines)),
		connectivity: connectivity,
		logger:       log.New(log.Writer(), "[coordinator] ", log.LstdFlags),
		pullOnLaunch: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, engine := range engines {
		family := engine.Family()
		if _, dup := c.engines[family]; dup {
			return nil, fmt.Errorf("duplicate engine for family %s", family)
		}
		c.engines[family] = engine
		c.order = append(c.order, family)
	}
	return c, nil
}

// Start subscribes to connectivity changes. Only the first call has an effect;
// the subscription is never removed.
func (c *Coordinator) Start() {
	c.subscribe.Do(func() {
		if c.connectivity == nil {
			return
		}
		c.connectivity.Subscribe(func() {
			c.logger.Printf("INFO: connectivity regained, kicking all families")
			c.KickAll()
		})
	})
}

// Families lists registered families in registration order.
func (c *Coordinator) Families() []domain.Family {
	return append([]domain.Family(nil), c.order...)
}

func (c *Coordinator) engine(family domain.Family) (FamilyEngine, error) {
	engine, ok := c.engines[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFamily, family)
	}
	return engine, nil
}

func (c *Coordinator) KickAll() {
	for _, family := range c.order {
		c.engines[family].Kick()
	}
}

func (c *Coordinator) Kick(family domain.Family) error {
	engine, err := c.engine(family)
	if err != nil {
		return err
	}
	engine.Kick()
	return nil
}

// PullAll pulls every family from its checkpoint. A failing family does not
// stop the others; errors are logged and returned joined.
func (c *Coordinator) PullAll(ctx context.Context) error {
	var errs []error
	for _, family := range c.order {
		if err := c.engines[family].PullSinceCheckpoint(ctx); err != nil {
			c.logger.Printf("WARN: pull %s: %v", family, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) Pull(ctx context.Context, family domain.Family) error {
	engine, err := c.engine(family)
	if err != nil {
		return err
	}
	return engine.PullSinceCheckpoint(ctx)
}

// OnLaunch wires the connectivity subscription, pushes anything left from the
// previous run and, if configured, pulls.
func (c *Coordinator) OnLaunch(ctx context.Context) error {
	c.Start()
	c.KickAll()
	if !c.pullOnLaunch {
		return nil
	}
	return c.PullAll(ctx)
}

// OnForeground pulls server changes and then pushes local ones.
func (c *Coordinator) OnForeground(ctx context.Context) error {
	err := c.PullAll(ctx)
	c.KickAll()
	return err
}

func (c *Coordinator) HasUnsynced(ctx context.Context, family domain.Family) (bool, error) {
	engine, err := c.engine(family)
	if err != nil {
		return false, err
	}
	return engine.HasUnsynced(ctx)
}

func (c *Coordinator) IsPullComplete(ctx context.Context, family domain.Family) (bool, error) {
	engine, err := c.engine(family)
	if err != nil {
		return false, err
	}
	return engine.IsPullComplete(ctx)
}

// ResetPullState resets one family, or every family when family is empty.
func (c *Coordinator) ResetPullState(ctx context.Context, family domain.Family) error {
	if family != "" {
		engine, err := c.engine(family)
		if err != nil {
			return err
		}
		return engine.ResetPullState(ctx)
	}
	var errs []error
	for _, f := range c.order {
		if err := c.engines[f].ResetPullState(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) Suspend(family domain.Family) error {
	engine, err := c.engine(family)
	if err != nil {
		return err
	}
	engine.Suspend()
	return nil
}

func (c *Coordinator) Resume(ctx context.Context, family domain.Family) error {
	engine, err := c.engine(family)
	if err != nil {
		return err
	}
	return engine.Resume(ctx)
}

// Status returns one entry per family in registration order.
func (c *Coordinator) Status(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(c.order))
	for _, family := range c.order {
		st, err := c.engines[family].Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", family, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Close waits for every in-flight pass.
func (c *Coordinator) Close() {
	for _, family := range c.order {
		c.engines[family].Close()
	}
}
