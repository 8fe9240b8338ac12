package repository

import (
	"alcyxob/fitness-sync/internal/domain"
	"context"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate local id")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// Store is the local entity store for one family. E is a pointer type such as *domain.Workout.
//
// Writes made inside WithTransaction are applied all-or-nothing and are not
// visible to readers outside the transaction until it commits. Update opens its
// own transaction when called outside one, so a single entity is never observed
// half-written.
type Store[E domain.Entity] interface {
	// FindDirtyOrNew returns every entity with remote_id == nil OR is_dirty == true.
	FindDirtyOrNew(ctx context.Context) ([]E, error)
	// FindPendingAssets returns entities that have a remote id and still hold an unacknowledged asset.
	FindPendingAssets(ctx context.Context) ([]E, error)
	// FindByIdentity matches local_id OR remote_id. Empty arguments are ignored.
	FindByIdentity(ctx context.Context, localID, remoteID string) (E, error)
	// FindAll returns every entity of the family.
	FindAll(ctx context.Context) ([]E, error)
	Get(ctx context.Context, localID string) (E, error)
	Insert(ctx context.Context, entity E) error
	Update(ctx context.Context, localID string, mutate func(E) error) error
	Delete(ctx context.Context, localID string) error
	HasUnsynced(ctx context.Context) (bool, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CheckpointStore persists per-family pull checkpoints.
type CheckpointStore interface {
	Load(ctx context.Context, family domain.Family) (domain.Checkpoint, error)
	Save(ctx context.Context, checkpoint domain.Checkpoint) error
	Reset(ctx context.Context, family domain.Family) error
}
