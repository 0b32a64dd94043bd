package domain

import "time"

// TranscriptRecord is the unit persisted to the episode store and published
// to the search index. Immutable once transcription succeeds.
type TranscriptRecord struct {
	Identity             string    `bson:"identity" json:"-"`
	Title                string    `bson:"title" json:"title"`
	TranscriptionPreview string    `bson:"-" json:"transcription_preview,omitempty"`
	FullTranscription    string    `bson:"transcript" json:"full_transcription"`
	ProcessedAt          time.Time `bson:"processed_at" json:"-"`
}

// Preview returns the first 200 characters of the transcription, with an
// ellipsis when truncated.
func Preview(transcription string) string {
	const max = 200
	runes := []rune(transcription)
	if len(runes) <= max {
		return transcription
	}
	return string(runes[:max]) + "..."
}

// StatusEvent is one entry in the append-only progress log the orchestrator
// produces as the pipeline advances. Ordering matches real progress order.
type StatusEvent struct {
	At      time.Time
	Message string
}

// String renders the event the way it is serialized to callers.
func (s StatusEvent) String() string {
	return s.At.Format("15:04:05") + " - " + s.Message
}

// WorkflowResult is the consolidated outcome of one workflow invocation.
// The orchestrator always returns one, even in total-failure cases.
type WorkflowResult struct {
	StatusUpdates       []string           `json:"status_updates"`
	TranscribedEpisodes []TranscriptRecord `json:"transcribed_episodes"`
	Message             string             `json:"message"`
	Error               *string            `json:"error"`
}

// Credentials carries the per-request secrets the pipeline needs. They are
// request-scoped: the orchestrator never stores them beyond one invocation.
type Credentials struct {
	TranscriptionKey string
	IndexAppID       string
	IndexWriteKey    string
}
