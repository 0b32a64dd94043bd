package search

import (
	"context"
	"fmt"

	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/store"
)

// PostgresPublisher maintains a full-text searchable copy of transcript
// records in a Postgres table. Any store.DBProvider can back it, including
// the Supabase client, which makes episodes searchable from a Supabase
// project without Algolia.
type PostgresPublisher struct {
	pg store.DBProvider
}

// NewPostgresPublisher creates the publisher and ensures the search table and
// its full-text index exist.
func NewPostgresPublisher(ctx context.Context, pg store.DBProvider) (*PostgresPublisher, error) {
	if pg == nil || pg.DB() == nil {
		return nil, fmt.Errorf("postgres DB not connected")
	}

	p := &PostgresPublisher{pg: pg}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Name identifies the backend in status messages.
func (p *PostgresPublisher) Name() string { return "Postgres full-text" }

func (p *PostgresPublisher) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS episode_search (
  identity TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  transcription TEXT NOT NULL DEFAULT '',
  document tsvector GENERATED ALWAYS AS (to_tsvector('english', title || ' ' || transcription)) STORED
);
CREATE INDEX IF NOT EXISTS episode_search_document_idx ON episode_search USING GIN (document);`

	if _, err := p.pg.DB().ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create episode_search table: %w", err)
	}
	return nil
}

// Publish upserts the record into the search table.
func (p *PostgresPublisher) Publish(ctx context.Context, rec *domain.TranscriptRecord) error {
	const query = `
INSERT INTO episode_search (identity, title, transcription)
VALUES ($1, $2, $3)
ON CONFLICT (identity) DO UPDATE
SET title = EXCLUDED.title, transcription = EXCLUDED.transcription`

	if _, err := p.pg.DB().ExecContext(ctx, query, rec.Identity, rec.Title, rec.FullTranscription); err != nil {
		return fmt.Errorf("publish episode identity=%q: %w", rec.Identity, err)
	}
	return nil
}
