package mongo

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names of the local entity store, one per family.
var collectionNames = map[domain.Family]string{
	domain.FamilyWorkout: "workouts",
	domain.FamilyAccount: "accounts",
	domain.FamilyGymPlan: "gym_plans",
}

// CollectionName returns the collection that holds a family's entities.
func CollectionName(family domain.Family) string {
	if name, ok := collectionNames[family]; ok {
		return name
	}
	return string(family)
}

var (
	dirtyOrNewFilter = bson.M{"$or": bson.A{
		bson.M{"remoteId": nil}, // matches null and missing
		bson.M{"isDirty": true},
	}}
	pendingAssetFilter = bson.M{
		"remoteId":     bson.M{"$ne": nil},
		"assetPending": true,
	}
)

// mongoEntityStore implements repository.Store on one collection.
// Transactions require the server to run as a replica set (a single-node set is enough).
type mongoEntityStore[E domain.Entity] struct {
	collection *mongo.Collection
	newEntity  func() E
}

// NewEntityStore creates a store for family backed by db.
func NewEntityStore[E domain.Entity](db *mongo.Database, family domain.Family, newEntity func() E) repository.Store[E] {
	return &mongoEntityStore[E]{
		collection: db.Collection(CollectionName(family)),
		newEntity:  newEntity,
	}
}

// WithTransaction runs fn inside a session transaction. When ctx already carries a
// session the call joins it. The driver may retry fn on transient transaction
// errors, so fn must be safe to run more than once.
func (r *mongoEntityStore[E]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (r *mongoEntityStore[E]) find(ctx context.Context, filter bson.M) ([]E, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]E, 0)
	for cursor.Next(ctx) {
		entity := r.newEntity()
		if err := cursor.Decode(entity); err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoEntityStore[E]) findOne(ctx context.Context, filter bson.M) (E, error) {
	entity := r.newEntity()
	err := r.collection.FindOne(ctx, filter).Decode(entity)
	if err != nil {
		var zero E
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, repository.ErrNotFound
		}
		return zero, err
	}
	return entity, nil
}

// FindDirtyOrNew returns entities that were never created remotely or carry local edits.
func (r *mongoEntityStore[E]) FindDirtyOrNew(ctx context.Context) ([]E, error) {
	return r.find(ctx, dirtyOrNewFilter)
}

// FindPendingAssets returns synced entities whose secondary asset is still local only.
func (r *mongoEntityStore[E]) FindPendingAssets(ctx context.Context) ([]E, error) {
	return r.find(ctx, pendingAssetFilter)
}

// identityLookups lists the filters FindByIdentity tries, in order. A local id
// hit wins over a remote id hit on another row.
func identityLookups(localID, remoteID string) []bson.M {
	var lookups []bson.M
	if localID != "" {
		lookups = append(lookups, bson.M{"_id": localID})
	}
	if remoteID != "" {
		lookups = append(lookups, bson.M{"remoteId": remoteID})
	}
	return lookups
}

// FindByIdentity matches on local id or remote id.
func (r *mongoEntityStore[E]) FindByIdentity(ctx context.Context, localID, remoteID string) (E, error) {
	var zero E
	for _, filter := range identityLookups(localID, remoteID) {
		entity, err := r.findOne(ctx, filter)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return zero, err
		}
	}
	return zero, repository.ErrNotFound
}

// FindAll returns the whole collection ordered by updatedAt.
func (r *mongoEntityStore[E]) FindAll(ctx context.Context) ([]E, error) {
	return r.find(ctx, bson.M{})
}

// Get retrieves a single entity by local id.
func (r *mongoEntityStore[E]) Get(ctx context.Context, localID string) (E, error) {
	return r.findOne(ctx, bson.M{"_id": localID})
}

// Insert adds a new entity.
func (r *mongoEntityStore[E]) Insert(ctx context.Context, entity E) error {
	if entity.Meta().LocalID == "" {
		return errors.New("insert: empty local id")
	}
	if _, err := r.collection.InsertOne(ctx, entity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// Update reads, mutates and replaces one entity inside a transaction.
func (r *mongoEntityStore[E]) Update(ctx context.Context, localID string, mutate func(E) error) error {
	return r.WithTransaction(ctx, func(ctx context.Context) error {
		entity, err := r.Get(ctx, localID)
		if err != nil {
			return err
		}
		if err := mutate(entity); err != nil {
			return err
		}
		if entity.Meta().LocalID != localID {
			return fmt.Errorf("%w: local id is immutable", repository.ErrUpdateFailed)
		}
		result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": localID}, entity)
		if err != nil {
			return err
		}
		if result.MatchedCount == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Delete removes an entity locally.
func (r *mongoEntityStore[E]) Delete(ctx context.Context, localID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": localID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// HasUnsynced reports whether any entity still needs an upload.
func (r *mongoEntityStore[E]) HasUnsynced(ctx context.Context) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, dirtyOrNewFilter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureEntityIndexes creates the indexes the sync queries rely on. Call during startup.
func EnsureEntityIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Identity lookups during merge
			Keys:    bson.D{{Key: "remoteId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "isDirty", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "assetPending", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
