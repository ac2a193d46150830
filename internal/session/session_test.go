package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/model"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(blobstore.NewMemoryStore(), time.Hour, offloadThresholdBytes)
}

func TestMemoryStore_CreateThenGetRoundTrip(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	cv := model.CVRecord{Profile: "Backend engineer."}
	meta := model.Metadata{WizardStage: model.StageIngest}

	created, err := s.Create(ctx, cv, meta)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("Version = %d, want 1", created.Version)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CVData.Profile != "Backend engineer." {
		t.Errorf("Profile = %q", got.CVData.Profile)
	}
}

func TestMemoryStore_GetMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore()
	if _, err := s.Get(context.Background(), "does-not-exist"); err != ErrNotFound {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_UpdateBumpsVersion(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, _ := s.Create(ctx, model.CVRecord{}, model.Metadata{})
	updated, err := s.Update(ctx, created.ID, created.Version, model.CVRecord{Profile: "v2"}, model.Metadata{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
}

func TestMemoryStore_UpdateStaleVersionReturnsConflict(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, _ := s.Create(ctx, model.CVRecord{}, model.Metadata{})
	if _, err := s.Update(ctx, created.ID, created.Version, model.CVRecord{}, model.Metadata{}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	if _, err := s.Update(ctx, created.ID, created.Version, model.CVRecord{}, model.Metadata{}); err != ErrConflict {
		t.Errorf("second update with stale version = %v, want ErrConflict", err)
	}
}

func TestMemoryStore_AppendEventBoundsLog(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, _ := s.Create(ctx, model.CVRecord{}, model.Metadata{})
	version := created.Version

	var last model.Session
	for i := 0; i < model.MaxEventLog+10; i++ {
		updated, err := s.AppendEvent(ctx, created.ID, version, model.EventLogEntry{Kind: "turn"})
		if err != nil {
			t.Fatalf("AppendEvent #%d: %v", i, err)
		}
		version = updated.Version
		last = updated
	}

	if len(last.Metadata.EventLog) != model.MaxEventLog {
		t.Errorf("EventLog len = %d, want %d", len(last.Metadata.EventLog), model.MaxEventLog)
	}
}

func TestMemoryStore_CleanupExpiredRemovesPastTTL(t *testing.T) {
	s := NewMemoryStore(blobstore.NewMemoryStore(), -time.Minute, offloadThresholdBytes)
	ctx := context.Background()

	if _, err := s.Create(ctx, model.CVRecord{}, model.Metadata{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	count, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if count != 1 {
		t.Errorf("CleanupExpired count = %d, want 1", count)
	}
}

func TestOffloadIfOversized_MovesEventLogToBlobstore(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	meta := model.Metadata{}
	for i := 0; i < 2000; i++ {
		meta.EventLog = append(meta.EventLog, model.EventLogEntry{
			Kind: "turn", Detail: map[string]any{"note": strings.Repeat("x", 50)},
		})
	}

	trimmed, ptrs, err := offloadIfOversized(context.Background(), blobs, 4096, meta)
	if err != nil {
		t.Fatalf("offloadIfOversized: %v", err)
	}
	if trimmed.EventLog != nil {
		t.Error("expected event_log to be cleared after offload")
	}
	if _, ok := ptrs["event_log"]; !ok {
		t.Error("expected an event_log offload pointer")
	}
}

func TestOffloadIfOversized_LeavesSmallMetadataUntouched(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	meta := model.Metadata{WizardStage: model.StageReview}

	trimmed, ptrs, err := offloadIfOversized(context.Background(), blobs, offloadThresholdBytes, meta)
	if err != nil {
		t.Fatalf("offloadIfOversized: %v", err)
	}
	if ptrs != nil {
		t.Error("expected no offload pointers for small metadata")
	}
	if trimmed.WizardStage != model.StageReview {
		t.Error("metadata should be unchanged when under threshold")
	}
}

func TestMemoryStore_OffloadRoundTripsThroughGet(t *testing.T) {
	s := NewMemoryStore(blobstore.NewMemoryStore(), time.Hour, 2048)
	ctx := context.Background()

	meta := model.Metadata{}
	for i := 0; i < 500; i++ {
		meta.EventLog = append(meta.EventLog, model.EventLogEntry{Kind: "turn"})
	}

	created, err := s.Create(ctx, model.CVRecord{}, meta)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Metadata.EventLog) != 500 {
		t.Errorf("EventLog len after round trip = %d, want 500", len(got.Metadata.EventLog))
	}
}
