package search

import (
	"context"

	"podcast-transcriber/pkg/domain"
)

// Publisher makes a stored transcript record searchable externally.
type Publisher interface {
	// Publish upserts the record into the search backend. Publishing the
	// same identity twice replaces the previous document.
	Publish(ctx context.Context, rec *domain.TranscriptRecord) error

	// Name identifies the backend in status messages.
	Name() string
}
