// Package registry tracks document metadata in PostgreSQL. The registry is
// the system of record for what has been submitted and where it sits in the
// indexing pipeline; the searchable content itself lives only in the Redis
// index, so rows carry a content hash and size rather than the text.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kersley/resound/pkg/errors"
	"github.com/kersley/resound/pkg/postgres"
)

// Status is the lifecycle phase of a registered document.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusIndexed Status = "INDEXED"
	StatusFailed  Status = "FAILED"
	StatusRemoved Status = "REMOVED"
)

// Document is one registry row. LastError is empty unless Status is FAILED.
type Document struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"contentHash"`
	ContentSize int64     `json:"contentSize"`
	Strategy    string    `json:"strategy"`
	Status      Status    `json:"status"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Registry is the surface the HTTP handlers and the ingest consumer depend
// on. Store implements it directly; Guarded wraps any implementation with a
// circuit breaker.
type Registry interface {
	Upsert(ctx context.Context, doc Document) error
	MarkIndexed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause string) error
	MarkRemoved(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Document, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// Store persists document metadata in PostgreSQL.
//
// It owns a `documents` table:
//
//	CREATE TABLE documents (
//	    id           TEXT PRIMARY KEY,
//	    content_hash TEXT NOT NULL,
//	    content_size BIGINT NOT NULL,
//	    strategy     TEXT NOT NULL,
//	    status       TEXT NOT NULL,
//	    last_error   TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

var _ Registry = (*Store)(nil)

// NewStore creates a registry store on an open Postgres client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "registry"),
	}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
		    id           TEXT PRIMARY KEY,
		    content_hash TEXT NOT NULL,
		    content_size BIGINT NOT NULL,
		    strategy     TEXT NOT NULL,
		    status       TEXT NOT NULL,
		    last_error   TEXT NOT NULL DEFAULT '',
		    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`)
	if err != nil {
		return fmt.Errorf("creating status index: %w", err)
	}
	return nil
}

// Upsert inserts a document row or, when the id already exists, refreshes
// its hash, size, strategy, and status. Resubmitting a document restarts its
// lifecycle, so last_error is cleared.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO documents (id, content_hash, content_size, strategy, status, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', NOW())
		ON CONFLICT (id) DO UPDATE SET
		    content_hash = EXCLUDED.content_hash,
		    content_size = EXCLUDED.content_size,
		    strategy     = EXCLUDED.strategy,
		    status       = EXCLUDED.status,
		    last_error   = '',
		    updated_at   = NOW()`,
		doc.ID, doc.ContentHash, doc.ContentSize, doc.Strategy, string(doc.Status),
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// MarkIndexed records that a document's terms are live in the index.
func (s *Store) MarkIndexed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusIndexed, "")
}

// MarkFailed records a terminal indexing failure and its cause.
func (s *Store) MarkFailed(ctx context.Context, id string, cause string) error {
	return s.setStatus(ctx, id, StatusFailed, cause)
}

// MarkRemoved tombstones a document whose terms were deleted from the index.
// The row is kept so that the id's history remains queryable.
func (s *Store) MarkRemoved(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusRemoved, "")
}

func (s *Store) setStatus(ctx context.Context, id string, status Status, lastError string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), lastError,
	)
	if err != nil {
		return fmt.Errorf("updating document %s to %s: %w", id, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected for %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
	}
	return nil
}

// Get loads one document row by id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var (
		doc    Document
		status string
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT id, content_hash, content_size, strategy, status, last_error, created_at, updated_at
		FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.ContentHash, &doc.ContentSize, &doc.Strategy, &status, &doc.LastError, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	doc.Status = Status(status)
	return &doc, nil
}

// CountByStatus returns how many documents sit in each lifecycle phase.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting documents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
