package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/remote"
	"alcyxob/fitness-sync/internal/repository"
	"context"
	"errors"
	"fmt"
)

// upload creates or patches one entity. Failures are logged and leave the
// entity untouched so the next pass retries it.
func (e *Engine[E]) upload(ctx context.Context, token string, entity E, res *Result) {
	meta := entity.Meta()
	op := "patch"
	if !meta.HasRemoteID() {
		op = "create"
	}

	acked, err := e.push(ctx, token, entity)
	uploadsTotal.WithLabelValues(string(e.family), op, resultLabel(err)).Inc()
	if err != nil {
		res.Failed++
		level := "WARN"
		if !remote.IsTransient(err) {
			level = "ERROR"
		}
		e.logger.Printf("%s: %s %s %s: %v", level, op, e.family, meta.LocalID, err)
		// The asset only needs the remote id, not a clean record.
		if meta.HasRemoteID() && e.assetAdpt != nil && !e.stopped(ctx) {
			e.uploadAsset(ctx, entity, res)
		}
		return
	}

	kind := events.KindPatched
	if op == "create" {
		res.Created++
		kind = events.KindCreated
	} else {
		res.Patched++
	}
	e.events.Publish(events.Event{Family: e.family, Kind: kind, LocalID: acked.Meta().LocalID})

	// The asset continuation needs the remote id and is not part of the ack's transaction.
	if e.assetAdpt != nil && !e.stopped(ctx) {
		e.uploadAsset(ctx, acked, res)
	}
}

// push sends the serialized entity and applies the acknowledgment. The
// returned entity is the stored state after the ack.
func (e *Engine[E]) push(ctx context.Context, token string, entity E) (E, error) {
	var zero E
	meta := entity.Meta()

	payload, err := e.adapter.Serialize(entity)
	if err != nil {
		return zero, fmt.Errorf("serialize: %w", err)
	}
	req := remote.UploadRequest{
		LocalID: meta.LocalID,
		Kind:    e.adapter.Kind(entity),
		Payload: payload,
	}

	var ack domain.Ack
	if meta.HasRemoteID() {
		ack, err = e.api.Patch(ctx, token, e.family, meta.RemoteIDValue(), req)
	} else {
		ack, err = e.api.Create(ctx, token, e.family, req)
	}
	if err != nil {
		return zero, err
	}
	if ack.LocalID == "" {
		ack.LocalID = meta.LocalID
	}
	return e.applyAck(ctx, ack, meta.Revision)
}

// applyAck re-locates the entity by the echoed local id, records the remote
// id and clears the dirty flag if no local edit happened since revision was sent.
func (e *Engine[E]) applyAck(ctx context.Context, ack domain.Ack, revision int64) (E, error) {
	var acked E
	err := e.store.Update(ctx, ack.LocalID, func(entity E) error {
		meta := entity.Meta()
		if !meta.HasRemoteID() {
			meta.SetRemoteID(ack.RemoteID)
		}
		if meta.Revision == revision {
			meta.IsDirty = false
		}
		acked = entity
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return acked, fmt.Errorf("apply ack %s: entity deleted locally while in flight: %w", ack.RemoteID, err)
	}
	if err != nil {
		return acked, fmt.Errorf("apply ack %s: %w", ack.RemoteID, err)
	}
	return acked, nil
}

// uploadAsset sends the entity's pending asset. On failure the asset stays
// pending; the entity's own sync state is not touched either way.
func (e *Engine[E]) uploadAsset(ctx context.Context, entity E, res *Result) {
	data, contentType, ok := e.assetAdpt.PendingAsset(entity)
	if !ok {
		return
	}
	meta := entity.Meta()
	if !meta.HasRemoteID() {
		return
	}

	url, err := e.assets.Upload(ctx, e.family, meta.RemoteIDValue(), data, contentType)
	if err != nil {
		assetTransfers.WithLabelValues(string(e.family), "upload", "error").Inc()
		res.AssetsLeft++
		e.logger.Printf("WARN: upload asset for %s %s: %v", e.family, meta.LocalID, err)
		return
	}
	assetTransfers.WithLabelValues(string(e.family), "upload", "ok").Inc()

	digest := domain.AssetDigest(data)
	attached := false
	err = e.store.Update(ctx, meta.LocalID, func(stored E) error {
		attached = e.assetAdpt.AttachUploaded(stored, url, digest)
		return nil
	})
	if err != nil {
		res.AssetsLeft++
		e.logger.Printf("ERROR: record asset url for %s %s: %v", e.family, meta.LocalID, err)
		return
	}
	if !attached {
		// Replaced locally during the upload; the new asset goes next pass.
		res.AssetsLeft++
		return
	}
	res.AssetsSent++
	e.events.Publish(events.Event{Family: e.family, Kind: events.KindAssetUploaded, LocalID: meta.LocalID})
}

// sweepAssets retries assets of already-synced entities that this pass did not touch.
func (e *Engine[E]) sweepAssets(ctx context.Context, tried map[string]bool, res *Result) {
	waiting, err := e.store.FindPendingAssets(ctx)
	if err != nil {
		e.logger.Printf("ERROR: load pending %s assets: %v", e.family, err)
		return
	}
	for _, entity := range waiting {
		if e.stopped(ctx) {
			return
		}
		if tried[entity.Meta().LocalID] {
			continue
		}
		e.uploadAsset(ctx, entity, res)
	}
}
