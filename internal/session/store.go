// Package session implements the session store: the single mutable
// aggregate of the CV wizard, serialized by optimistic concurrency on
// version and transparently offloaded to blob storage when oversized.
package session

import (
	"context"
	"errors"

	"github.com/cvwizard/backend/internal/model"
)

// ErrNotFound is returned when a session id has no matching row.
var ErrNotFound = errors.New("session: not found")

// ErrConflict is returned by Update when the caller's version is stale.
// Retryable: the caller must reload and re-apply.
var ErrConflict = errors.New("session: version conflict")

// Store is the session aggregate's persistence contract (§4.1).
type Store interface {
	// Create generates an id, sets version=1, and persists the initial
	// cv/metadata.
	Create(ctx context.Context, cv model.CVRecord, meta model.Metadata) (model.Session, error)

	// Get returns the full aggregate, rehydrating offloaded metadata
	// sub-objects from blob storage. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (model.Session, error)

	// Update compare-and-swaps on version; on mismatch returns ErrConflict.
	Update(ctx context.Context, id string, expectedVersion int64, cv model.CVRecord, meta model.Metadata) (model.Session, error)

	// AppendEvent appends to the bounded metadata.event_log ring buffer,
	// compare-and-swapping on version like Update.
	AppendEvent(ctx context.Context, id string, expectedVersion int64, entry model.EventLogEntry) (model.Session, error)

	// CleanupExpired deletes rows past expires_at. Idempotent.
	CleanupExpired(ctx context.Context) (int, error)
}
