// Package events carries the "sync state changed" signal from the engines to
// whatever is rendering local data.
package events

import (
	"alcyxob/fitness-sync/internal/domain"
	"sync"
	"time"
)

// Kind names what changed.
type Kind string

const (
	KindCreated       Kind = "created"
	KindPatched       Kind = "patched"
	KindPulled        Kind = "pulled"
	KindAssetUploaded Kind = "asset_uploaded"
	KindAssetAttached Kind = "asset_attached"
	KindLocalMutation Kind = "local_mutation"
)

// Event is published after the change it describes has been committed locally.
type Event struct {
	Family  domain.Family `json:"family"`
	Kind    Kind          `json:"kind"`
	LocalID string        `json:"localId,omitempty"`
	Count   int           `json:"count,omitempty"`
	At      time.Time     `json:"at"`
}

// Publisher is what the engines depend on.
type Publisher interface {
	Publish(ev Event)
}

const defaultBuffer = 64

// Bus fans events out to subscribers. Publish never blocks; a subscriber that
// falls behind loses events, not the engine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.Inc()
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
