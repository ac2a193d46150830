package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/model"
)

// memoryRow pairs a stored session with the offload pointers for any
// sub-objects that were moved to blobstore, mirroring the separate
// offload_ptrs_json column PostgresStore keeps alongside the row.
type memoryRow struct {
	session model.Session
	ptrs    offloadPointers
}

// MemoryStore is an in-process Store for tests and local runs, offloading
// through the same blobstore.Store interface as PostgresStore so offload
// behavior is exercised identically in both.
type MemoryStore struct {
	mu               sync.Mutex
	rows             map[string]memoryRow
	blobs            blobstore.Store
	ttl              time.Duration
	offloadThreshold int
}

// NewMemoryStore builds a MemoryStore. blobs may be blobstore.NewMemoryStore()
// for fully in-process tests.
func NewMemoryStore(blobs blobstore.Store, ttl time.Duration, offloadThreshold int) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &MemoryStore{
		rows:             map[string]memoryRow{},
		blobs:            blobs,
		ttl:              ttl,
		offloadThreshold: offloadThreshold,
	}
}

func (m *MemoryStore) Create(ctx context.Context, cv model.CVRecord, meta model.Metadata) (model.Session, error) {
	now := time.Now()
	sess := model.Session{
		ID:        uuid.NewString(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		CVData:    cv,
		Metadata:  meta,
	}

	trimmed, ptrs, err := offloadIfOversized(ctx, m.blobs, m.offloadThreshold, sess.Metadata)
	if err != nil {
		return model.Session{}, err
	}
	stored := sess
	stored.Metadata = trimmed

	m.mu.Lock()
	m.rows[sess.ID] = memoryRow{session: stored, ptrs: ptrs}
	m.mu.Unlock()

	return sess, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	row, ok := m.rows[id]
	m.mu.Unlock()
	if !ok {
		return model.Session{}, ErrNotFound
	}

	sess := row.session
	if len(row.ptrs) == 0 {
		return sess, nil
	}
	meta, err := rehydrate(ctx, m.blobs, sess.Metadata, row.ptrs)
	if err != nil {
		return model.Session{}, err
	}
	sess.Metadata = meta
	return sess, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, expectedVersion int64, cv model.CVRecord, meta model.Metadata) (model.Session, error) {
	now := time.Now()

	trimmed, ptrs, err := offloadIfOversized(ctx, m.blobs, m.offloadThreshold, meta)
	if err != nil {
		return model.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rows[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	if existing.session.Version != expectedVersion {
		return model.Session{}, ErrConflict
	}

	next := model.Session{
		ID:        id,
		Version:   expectedVersion + 1,
		CreatedAt: existing.session.CreatedAt,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		CVData:    cv,
		Metadata:  trimmed,
	}
	m.rows[id] = memoryRow{session: next, ptrs: ptrs}

	result := next
	result.Metadata = meta
	return result, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, id string, expectedVersion int64, entry model.EventLogEntry) (model.Session, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if current.Version != expectedVersion {
		return model.Session{}, ErrConflict
	}
	current.Metadata.EventLog = model.AppendEvent(current.Metadata.EventLog, entry)
	return m.Update(ctx, id, expectedVersion, current.CVData, current.Metadata)
}

func (m *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, row := range m.rows {
		if row.session.ExpiresAt.Before(now) {
			delete(m.rows, id)
			count++
		}
	}
	return count, nil
}
