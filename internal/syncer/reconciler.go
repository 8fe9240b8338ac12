package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/repository"
	"alcyxob/fitness-sync/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// MergeResult summarises one applied batch.
type MergeResult struct {
	Updated  int
	Inserted int
	Skipped  int
	// LocalIDs of every entity written by the batch, in record order.
	LocalIDs []string

	assets []assetFetch
}

type assetFetch struct {
	localID string
	url     string
}

// Reconciler applies pulled records to one family's store. Server state wins:
// matched entities are overwritten and marked clean.
type Reconciler[E domain.Entity] struct {
	adapter Adapter[E]
	store   repository.Store[E]
	assets  storage.AssetStore
	events  events.Publisher
	logger  *log.Logger
}

func newReconciler[E domain.Entity](adapter Adapter[E], store repository.Store[E], assets storage.AssetStore, pub events.Publisher, logger *log.Logger) *Reconciler[E] {
	return &Reconciler[E]{
		adapter: adapter,
		store:   store,
		assets:  assets,
		events:  pub,
		logger:  logger,
	}
}

// Merge applies the batch in one transaction. Records of another family or
// with an unrecognised discriminator are skipped; the rest still apply. A
// store failure rolls back the whole batch.
func (r *Reconciler[E]) Merge(ctx context.Context, records []domain.RemoteRecord) (MergeResult, error) {
	var result MergeResult
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		// The transaction body may be retried; start from an empty result each time.
		result = MergeResult{}
		for _, rec := range records {
			if err := r.apply(ctx, rec, &result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge %s batch: %w", r.adapter.Family(), err)
	}
	return result, nil
}

// recordError marks a problem with one record rather than with the store.
type recordError struct{ err error }

func (e recordError) Error() string { return e.err.Error() }
func (e recordError) Unwrap() error { return e.err }

func (r *Reconciler[E]) apply(ctx context.Context, rec domain.RemoteRecord, result *MergeResult) error {
	family := r.adapter.Family()
	if rec.Family != "" && rec.Family != family {
		r.logger.Printf("WARN: skipping %s record %s in %s pull", rec.Family, rec.RemoteID, family)
		result.Skipped++
		return nil
	}
	if rec.RemoteID == "" {
		r.logger.Printf("WARN: skipping %s record without remote id (local %s)", family, rec.LocalID)
		result.Skipped++
		return nil
	}

	overwrite := func(entity E) error {
		if err := r.adapter.MergeFields(entity, rec); err != nil {
			return recordError{err}
		}
		meta := entity.Meta()
		meta.SetRemoteID(rec.RemoteID)
		meta.IsDirty = false
		if rec.UpdatedAt.IsZero() {
			meta.UpdatedAt = time.Now().UTC()
		} else {
			meta.UpdatedAt = rec.UpdatedAt.UTC()
		}
		return nil
	}

	existing, err := r.store.FindByIdentity(ctx, rec.LocalID, rec.RemoteID)
	switch {
	case err == nil:
		localID := existing.Meta().LocalID
		err = r.store.Update(ctx, localID, overwrite)
		if err == nil {
			result.Updated++
			result.LocalIDs = append(result.LocalIDs, localID)
			r.queueAsset(existing, rec, result)
		}
	case errors.Is(err, repository.ErrNotFound):
		entity := r.adapter.New()
		meta := entity.Meta()
		meta.LocalID = rec.LocalID
		if meta.LocalID == "" {
			meta.LocalID = uuid.NewString()
		}
		meta.Revision = 1
		err = overwrite(entity)
		if err == nil {
			err = r.store.Insert(ctx, entity)
		}
		if err == nil {
			result.Inserted++
			result.LocalIDs = append(result.LocalIDs, meta.LocalID)
			r.queueAsset(entity, rec, result)
		}
	}

	var skip recordError
	if errors.As(err, &skip) {
		r.logger.Printf("WARN: skipping %s record %s: %v", family, rec.RemoteID, skip.err)
		result.Skipped++
		return nil
	}
	return err
}

func (r *Reconciler[E]) queueAsset(entity E, rec domain.RemoteRecord, result *MergeResult) {
	aa, ok := any(r.adapter).(AssetAdapter[E])
	if !ok || r.assets == nil || rec.AssetURL == "" {
		return
	}
	if aa.AssetURL(entity) == rec.AssetURL {
		return
	}
	// A local asset that has not been uploaded yet is kept over the server's.
	if _, _, pending := aa.PendingAsset(entity); pending {
		return
	}
	result.assets = append(result.assets, assetFetch{localID: entity.Meta().LocalID, url: rec.AssetURL})
}

// FetchAssets downloads the assets a committed batch referenced. Each attach
// runs in its own transaction; failures are logged and leave the entity as merged.
func (r *Reconciler[E]) FetchAssets(ctx context.Context, result MergeResult) int {
	aa, ok := any(r.adapter).(AssetAdapter[E])
	if !ok || r.assets == nil {
		return 0
	}
	family := r.adapter.Family()
	attached := 0
	for _, fetch := range result.assets {
		if ctx.Err() != nil {
			return attached
		}
		data, err := r.assets.Download(ctx, fetch.url)
		if err != nil {
			assetTransfers.WithLabelValues(string(family), "download", "error").Inc()
			r.logger.Printf("WARN: download asset for %s %s: %v", family, fetch.localID, err)
			continue
		}
		assetTransfers.WithLabelValues(string(family), "download", "ok").Inc()

		kept := false
		err = r.store.Update(ctx, fetch.localID, func(entity E) error {
			if _, _, pending := aa.PendingAsset(entity); pending {
				kept = true
				return nil
			}
			aa.AttachDownloaded(entity, fetch.url, data)
			return nil
		})
		if err != nil {
			r.logger.Printf("ERROR: attach asset to %s %s: %v", family, fetch.localID, err)
			continue
		}
		if kept {
			continue
		}
		attached++
		r.events.Publish(events.Event{Family: family, Kind: events.KindAssetAttached, LocalID: fetch.localID})
	}
	return attached
}
