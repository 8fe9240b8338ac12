// Package reachability watches the backend and reports when it comes back.
package reachability

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// State is the last observed connectivity.
type State int

const (
	StateUnknown State = iota
	StateUnreachable
	StateReachable
)

func (s State) String() string {
	switch s {
	case StateUnreachable:
		return "unreachable"
	case StateReachable:
		return "reachable"
	}
	return "unknown"
}

// Prober performs one connectivity check.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber issues GET {baseURL}/ping and expects a 2xx.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(baseURL string) *HTTPProber {
	return &HTTPProber{
		url:    strings.TrimRight(baseURL, "/") + "/ping",
		client: &http.Client{},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}

// Observer polls a Prober and invokes subscribers when connectivity
// transitions from unreachable to reachable. The first successful probe after
// startup is not a transition.
type Observer struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu    sync.Mutex
	state State
	subs  []func()
}

// Option configures an Observer.
type Option func(*Observer)

func WithInterval(d time.Duration) Option {
	return func(o *Observer) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(o *Observer) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewObserver(prober Prober, opts ...Option) *Observer {
	o := &Observer{
		prober:   prober,
		interval: 10 * time.Second,
		timeout:  3 * time.Second,
		logger:   log.New(log.Writer(), "[reachability] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Subscribe registers fn for regained-connectivity transitions. Subscriptions
// live as long as the Observer.
func (o *Observer) Subscribe(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Observer) Reachable() bool {
	return o.State() == StateReachable
}

// Run probes immediately and then every interval until ctx is done.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Check(ctx)
		}
	}
}

// Check runs one probe, records the result and notifies subscribers on a
// regained transition.
func (o *Observer) Check(ctx context.Context) State {
	probeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err := o.prober.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return o.State()
	}

	next := StateReachable
	if err != nil {
		next = StateUnreachable
	}

	o.mu.Lock()
	prev := o.state
	o.state = next
	var notify []func()
	if prev == StateUnreachable && next == StateReachable {
		notify = append(notify, o.subs...)
	}
	o.mu.Unlock()

	if prev != next {
		if err != nil {
			o.logger.Printf("WARN: backend %s: %v", next, err)
		} else {
			o.logger.Printf("INFO: backend %s", next)
		}
	}
	for _, fn := range notify {
		fn()
	}
	return next
}
