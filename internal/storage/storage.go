package storage

import (
	"alcyxob/fitness-sync/internal/domain"
	"context"
	"errors"
	"fmt"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// AssetStore holds the secondary binary assets of synced entities (workout images).
type AssetStore interface {
	// Upload stores data for the entity identified by remoteID and returns the
	// durable URL recorded on the entity. Uploading identical bytes twice
	// yields the same URL.
	Upload(ctx context.Context, family domain.Family, remoteID string, data []byte, contentType string) (string, error)

	// Download fetches the bytes behind a URL previously returned by Upload or
	// received from the server.
	Download(ctx context.Context, url string) ([]byte, error)

	// PresignDownload returns a temporary URL the app shell can display directly.
	PresignDownload(ctx context.Context, url string, expires time.Duration) (string, error)
}

// Error constants for storage layer
var (
	ErrObjectNotFound = errors.New("object not found in storage")
	ErrForeignURL     = errors.New("url does not belong to this asset store")
	ErrEmptyAsset     = errors.New("asset is empty")
)

// ObjectKey is the key an asset is stored under: <family>/<remoteID>/<digest>.
func ObjectKey(family domain.Family, remoteID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAsset
	}
	if remoteID == "" {
		return "", fmt.Errorf("object key for %s: missing remote id", family)
	}
	return fmt.Sprintf("%s/%s/%s", family.PathSegment(), remoteID, domain.AssetDigest(data)), nil
}
