// Package memory provides in-process implementations of the repository
// interfaces. Entities are held bson-encoded so callers never share pointers
// with the store, the same way they would not with a database.
package memory

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

type txKey struct{}

// Store is a mutex-serialized Store. One writer or transaction runs at a time;
// a failed transaction restores the snapshot taken when it began.
type Store[E domain.Entity] struct {
	newEntity func() E

	mu    sync.Mutex
	docs  map[string][]byte
	order []string
}

// NewStore creates an empty store. newEntity must return a fresh zero entity, e.g. func() *domain.Workout { return &domain.Workout{} }.
func NewStore[E domain.Entity](newEntity func() E) *Store[E] {
	return &Store[E]{
		newEntity: newEntity,
		docs:      make(map[string][]byte),
	}
}

var _ repository.Store[*domain.Workout] = (*Store[*domain.Workout])(nil)

func (s *Store[E]) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store[E])
	return owner == s
}

// enter takes the store lock unless ctx already belongs to this store's open transaction.
func (s *Store[E]) enter(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTransaction implements repository.Store.
func (s *Store[E]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make(map[string][]byte, len(s.docs))
	for k, v := range s.docs {
		docs[k] = v
	}
	order := append([]string(nil), s.order...)

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.docs = docs
		s.order = order
		return err
	}
	return nil
}

func (s *Store[E]) decode(raw []byte) (E, error) {
	entity := s.newEntity()
	if err := bson.Unmarshal(raw, entity); err != nil {
		var zero E
		return zero, fmt.Errorf("decode entity: %w", err)
	}
	return entity, nil
}

func (s *Store[E]) filter(match func(*domain.SyncMeta) bool) ([]E, error) {
	out := make([]E, 0)
	for _, id := range s.order {
		entity, err := s.decode(s.docs[id])
		if err != nil {
			return nil, err
		}
		if match(entity.Meta()) {
			out = append(out, entity)
		}
	}
	return out, nil
}

// FindDirtyOrNew implements repository.Store.
func (s *Store[E]) FindDirtyOrNew(ctx context.Context) ([]E, error) {
	defer s.enter(ctx)()
	return s.filter(func(m *domain.SyncMeta) bool { return m.NeedsUpload() })
}

// FindPendingAssets implements repository.Store.
func (s *Store[E]) FindPendingAssets(ctx context.Context) ([]E, error) {
	defer s.enter(ctx)()
	return s.filter(func(m *domain.SyncMeta) bool { return m.HasRemoteID() && m.AssetPending })
}

// FindByIdentity implements repository.Store.
func (s *Store[E]) FindByIdentity(ctx context.Context, localID, remoteID string) (E, error) {
	defer s.enter(ctx)()
	var zero E
	if localID == "" && remoteID == "" {
		return zero, repository.ErrNotFound
	}
	matches, err := s.filter(func(m *domain.SyncMeta) bool {
		return (localID != "" && m.LocalID == localID) || (remoteID != "" && m.RemoteIDValue() == remoteID)
	})
	if err != nil {
		return zero, err
	}
	if len(matches) == 0 {
		return zero, repository.ErrNotFound
	}
	// Prefer the local id match when both identities point at different rows.
	for _, m := range matches {
		if m.Meta().LocalID == localID {
			return m, nil
		}
	}
	return matches[0], nil
}

// FindAll implements repository.Store. Entities come back in insertion order.
func (s *Store[E]) FindAll(ctx context.Context) ([]E, error) {
	defer s.enter(ctx)()
	return s.filter(func(*domain.SyncMeta) bool { return true })
}

// Get implements repository.Store.
func (s *Store[E]) Get(ctx context.Context, localID string) (E, error) {
	defer s.enter(ctx)()
	raw, ok := s.docs[localID]
	if !ok {
		var zero E
		return zero, repository.ErrNotFound
	}
	return s.decode(raw)
}

// Insert implements repository.Store.
func (s *Store[E]) Insert(ctx context.Context, entity E) error {
	defer s.enter(ctx)()
	id := entity.Meta().LocalID
	if id == "" {
		return fmt.Errorf("insert: empty local id")
	}
	if _, exists := s.docs[id]; exists {
		return repository.ErrDuplicate
	}
	raw, err := bson.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode entity: %w", err)
	}
	s.docs[id] = raw
	s.order = append(s.order, id)
	return nil
}

// Update implements repository.Store.
func (s *Store[E]) Update(ctx context.Context, localID string, mutate func(E) error) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		raw, ok := s.docs[localID]
		if !ok {
			return repository.ErrNotFound
		}
		entity, err := s.decode(raw)
		if err != nil {
			return err
		}
		if err := mutate(entity); err != nil {
			return err
		}
		if entity.Meta().LocalID != localID {
			return fmt.Errorf("%w: local id is immutable", repository.ErrUpdateFailed)
		}
		updated, err := bson.Marshal(entity)
		if err != nil {
			return fmt.Errorf("encode entity: %w", err)
		}
		s.docs[localID] = updated
		return nil
	})
}

// Delete implements repository.Store.
func (s *Store[E]) Delete(ctx context.Context, localID string) error {
	defer s.enter(ctx)()
	if _, ok := s.docs[localID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.docs, localID)
	for i, id := range s.order {
		if id == localID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// HasUnsynced implements repository.Store.
func (s *Store[E]) HasUnsynced(ctx context.Context) (bool, error) {
	pending, err := s.FindDirtyOrNew(ctx)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// Len reports how many entities the store holds.
func (s *Store[E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
