package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/cvwizard/backend/internal/model"
)

// MemoryStore is an in-process Store used by tests; the CLI always builds
// the S3-backed Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func memKey(container, blobName string) string { return container + "/" + blobName }

func (m *MemoryStore) Put(_ context.Context, container string, data []byte, contentType string) (model.BlobRef, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(container, digest)] = append([]byte(nil), data...)

	return model.BlobRef{
		Container:   container,
		BlobName:    digest,
		SHA256:      digest,
		ContentType: contentType,
	}, nil
}

func (m *MemoryStore) Get(_ context.Context, ref model.BlobRef) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[memKey(ref.Container, ref.BlobName)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Exists(_ context.Context, ref model.BlobRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[memKey(ref.Container, ref.BlobName)]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, ref model.BlobRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(ref.Container, ref.BlobName))
	return nil
}
