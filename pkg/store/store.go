package store

import (
	"context"
	"database/sql"

	"podcast-transcriber/pkg/domain"
)

// Store is the durable mapping from episode identity to transcript record.
// Implementations must support safe concurrent upsert-by-identity;
// last-writer-wins is acceptable.
type Store interface {
	// SaveTranscript upserts the record by its identity.
	SaveTranscript(ctx context.Context, rec *domain.TranscriptRecord) error

	// GetTranscript returns the stored record for the identity, or nil when
	// none exists.
	GetTranscript(ctx context.Context, identity string) (*domain.TranscriptRecord, error)

	// HasTranscript reports whether a record exists for the identity.
	HasTranscript(ctx context.Context, identity string) (bool, error)

	// Clear removes every stored record. Used by the CLI reset flag; the
	// orchestrator never calls it.
	Clear(ctx context.Context) error
}

// DBProvider is an interface for database clients that provide access to a
// sql.DB handle. This allows both PostgresClient and SupabaseClient to back
// the Postgres store interchangeably.
type DBProvider interface {
	DB() *sql.DB
}
