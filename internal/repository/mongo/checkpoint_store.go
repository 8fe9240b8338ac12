package mongo

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const checkpointCollectionName = "sync_checkpoints"

// mongoCheckpointStore implements repository.CheckpointStore
type mongoCheckpointStore struct {
	collection *mongo.Collection
}

// NewCheckpointStore creates a checkpoint store backed by MongoDB.
func NewCheckpointStore(db *mongo.Database) repository.CheckpointStore {
	return &mongoCheckpointStore{
		collection: db.Collection(checkpointCollectionName),
	}
}

// Load returns the family's checkpoint, or a zero checkpoint if none was saved.
func (r *mongoCheckpointStore) Load(ctx context.Context, family domain.Family) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := r.collection.FindOne(ctx, bson.M{"_id": family}).Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Checkpoint{Family: family}, nil
		}
		return domain.Checkpoint{}, err
	}
	return cp, nil
}

// Save upserts the checkpoint.
func (r *mongoCheckpointStore) Save(ctx context.Context, checkpoint domain.Checkpoint) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": checkpoint.Family},
		checkpoint,
		options.Replace().SetUpsert(true),
	)
	return err
}

// Reset removes the checkpoint so the next pull starts from full history.
func (r *mongoCheckpointStore) Reset(ctx context.Context, family domain.Family) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": family})
	return err
}
