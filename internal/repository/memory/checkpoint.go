package memory

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"sync"
)

// CheckpointStore keeps pull checkpoints in a map.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[domain.Family]domain.Checkpoint
}

// NewCheckpointStore creates an empty checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[domain.Family]domain.Checkpoint)}
}

var _ repository.CheckpointStore = (*CheckpointStore)(nil)

// Load returns the stored checkpoint or a zero one for the family.
func (c *CheckpointStore) Load(_ context.Context, family domain.Family) (domain.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cp, ok := c.checkpoints[family]; ok {
		return cp, nil
	}
	return domain.Checkpoint{Family: family}, nil
}

// Save replaces the family's checkpoint.
func (c *CheckpointStore) Save(_ context.Context, checkpoint domain.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints[checkpoint.Family] = checkpoint
	return nil
}

// Reset forgets the family's checkpoint.
func (c *CheckpointStore) Reset(_ context.Context, family domain.Family) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checkpoints, family)
	return nil
}
