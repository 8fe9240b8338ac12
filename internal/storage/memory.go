package storage

import (
	"alcyxob/fitness-sync/internal/domain"
	"context"
	"strings"
	"sync"
	"time"
)

const memoryScheme = "mem://"

// MemoryAssetStore keeps assets in process. Used in embedded mode and tests.
type MemoryAssetStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{objects: make(map[string][]byte)}
}

func (m *MemoryAssetStore) Upload(ctx context.Context, family domain.Family, remoteID string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := ObjectKey(family, remoteID, data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return memoryScheme + key, nil
}

// Put stores bytes under an arbitrary url, standing in for assets uploaded by another device.
func (m *MemoryAssetStore) Put(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[strings.TrimPrefix(url, memoryScheme)] = append([]byte(nil), data...)
}

func (m *MemoryAssetStore) Download(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[strings.TrimPrefix(url, memoryScheme)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryAssetStore) PresignDownload(ctx context.Context, url string, expires time.Duration) (string, error) {
	if _, err := m.Download(ctx, url); err != nil {
		return "", err
	}
	return url, nil
}

// Len reports how many objects are stored.
func (m *MemoryAssetStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
