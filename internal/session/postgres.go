package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/model"
)

// PostgresStore implements Store on top of a Postgres-compatible database,
// serializing concurrent writers with compare-and-swap on the version
// column (mirrors the teacher's prepared-statement CockroachStore).
type PostgresStore struct {
	db    *sql.DB
	blobs blobstore.Store
	ttl   time.Duration

	offloadThreshold int

	stmtCreate *sql.Stmt
	stmtGet    *sql.Stmt
	stmtUpdate *sql.Stmt
	stmtDelete *sql.Stmt
}

// Schema is the table DDL this store expects to already exist (migrations
// are applied out of band, matching the teacher's deploy conventions).
const Schema = `
CREATE TABLE IF NOT EXISTS cv_sessions (
	id               TEXT PRIMARY KEY,
	version          BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	cv_data_json     JSONB NOT NULL,
	metadata_json    JSONB NOT NULL,
	offload_ptrs_json JSONB NOT NULL DEFAULT '{}'
)`

// NewPostgresStore opens dsn, verifies connectivity, and prepares statements.
func NewPostgresStore(ctx context.Context, dsn string, blobs blobstore.Store, ttl time.Duration, offloadThreshold int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}

	s := &PostgresStore{db: db, blobs: blobs, ttl: ttl, offloadThreshold: offloadThreshold}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtCreate, err = s.db.Prepare(`
		INSERT INTO cv_sessions (id, version, created_at, updated_at, expires_at, cv_data_json, metadata_json, offload_ptrs_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("session: prepare create: %w", err)
	}

	s.stmtGet, err = s.db.Prepare(`
		SELECT version, created_at, updated_at, expires_at, cv_data_json, metadata_json, offload_ptrs_json
		FROM cv_sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("session: prepare get: %w", err)
	}

	s.stmtUpdate, err = s.db.Prepare(`
		UPDATE cv_sessions
		SET version = $1, updated_at = $2, expires_at = $3, cv_data_json = $4, metadata_json = $5, offload_ptrs_json = $6
		WHERE id = $7 AND version = $8
	`)
	if err != nil {
		return fmt.Errorf("session: prepare update: %w", err)
	}

	s.stmtDelete, err = s.db.Prepare(`DELETE FROM cv_sessions WHERE expires_at < $1`)
	if err != nil {
		return fmt.Errorf("session: prepare delete: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, cv model.CVRecord, meta model.Metadata) (model.Session, error) {
	now := time.Now()
	sess := model.Session{
		ID:        uuid.NewString(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		CVData:    cv,
		Metadata:  meta,
	}

	trimmedMeta, ptrs, err := offloadIfOversized(ctx, s.blobs, s.offloadThreshold, sess.Metadata)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: offload on create: %w", err)
	}

	cvJSON, err := json.Marshal(sess.CVData)
	if err != nil {
		return model.Session{}, err
	}
	metaJSON, err := json.Marshal(trimmedMeta)
	if err != nil {
		return model.Session{}, err
	}
	ptrsJSON, err := json.Marshal(ptrs)
	if err != nil {
		return model.Session{}, err
	}

	_, err = s.stmtCreate.ExecContext(ctx, sess.ID, sess.Version, sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt, cvJSON, metaJSON, ptrsJSON)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: create: %w", err)
	}

	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	sess.ID = id
	var cvJSON, metaJSON, ptrsJSON []byte

	err := s.stmtGet.QueryRowContext(ctx, id).Scan(
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt, &cvJSON, &metaJSON, &ptrsJSON,
	)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("session: get: %w", err)
	}

	if err := json.Unmarshal(cvJSON, &sess.CVData); err != nil {
		return model.Session{}, fmt.Errorf("session: unmarshal cv_data: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &sess.Metadata); err != nil {
		return model.Session{}, fmt.Errorf("session: unmarshal metadata: %w", err)
	}

	var ptrs offloadPointers
	if len(ptrsJSON) > 0 && string(ptrsJSON) != "null" {
		if err := json.Unmarshal(ptrsJSON, &ptrs); err != nil {
			return model.Session{}, fmt.Errorf("session: unmarshal offload pointers: %w", err)
		}
	}
	if len(ptrs) > 0 {
		sess.Metadata, err = rehydrate(ctx, s.blobs, sess.Metadata, ptrs)
		if err != nil {
			return model.Session{}, fmt.Errorf("session: rehydrate: %w", err)
		}
	}

	return sess, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, expectedVersion int64, cv model.CVRecord, meta model.Metadata) (model.Session, error) {
	now := time.Now()
	nextVersion := expectedVersion + 1

	trimmedMeta, ptrs, err := offloadIfOversized(ctx, s.blobs, s.offloadThreshold, meta)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: offload on update: %w", err)
	}

	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return model.Session{}, err
	}
	metaJSON, err := json.Marshal(trimmedMeta)
	if err != nil {
		return model.Session{}, err
	}
	ptrsJSON, err := json.Marshal(ptrs)
	if err != nil {
		return model.Session{}, err
	}
	expiresAt := now.Add(s.ttl)

	result, err := s.stmtUpdate.ExecContext(ctx, nextVersion, now, expiresAt, cvJSON, metaJSON, ptrsJSON, id, expectedVersion)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return model.Session{}, err
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, id); getErr == ErrNotFound {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, ErrConflict
	}

	return model.Session{
		ID: id, Version: nextVersion, UpdatedAt: now, ExpiresAt: expiresAt,
		CVData: cv, Metadata: meta,
	}, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, id string, expectedVersion int64, entry model.EventLogEntry) (model.Session, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if current.Version != expectedVersion {
		return model.Session{}, ErrConflict
	}
	current.Metadata.EventLog = model.AppendEvent(current.Metadata.EventLog, entry)
	return s.Update(ctx, id, expectedVersion, current.CVData, current.Metadata)
}

func (s *PostgresStore) CleanupExpired(ctx context.Context) (int, error) {
	result, err := s.stmtDelete.ExecContext(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("session: cleanup_expired: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
