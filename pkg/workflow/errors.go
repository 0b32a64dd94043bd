package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure classes for pipeline stages. Stage errors are wrapped with one of
// these markers so callers and the orchestrator can classify them with
// errors.Is without knowing collaborator internals.
var (
	// ErrValidation marks bad input; fatal, detected before any network call.
	ErrValidation = errors.New("validation error")

	// ErrFeedFetch marks feed resolution failures; fatal for the run.
	ErrFeedFetch = errors.New("feed fetch error")

	// ErrAudioAcquisition marks download/sampling failures; the episode is
	// skipped, the run continues.
	ErrAudioAcquisition = errors.New("audio acquisition error")

	// ErrTranscription marks speech-to-text failures; per-episode unless the
	// credential itself was rejected, which fails the run.
	ErrTranscription = errors.New("transcription error")

	// ErrIndexing marks publish failures; the transcript is still kept and
	// reported.
	ErrIndexing = errors.New("indexing error")

	// ErrTimeout marks deadline expiry at any stage.
	ErrTimeout = errors.New("timeout")
)

// classify wraps a stage error with its class marker, substituting ErrTimeout
// when the underlying cause is a deadline expiry.
func classify(marker error, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		marker = ErrTimeout
	}
	return fmt.Errorf("%w: %s: %w", marker, stage, err)
}

// validationError builds a ValidationError-classed error from a message.
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// errorString renders a classified error for the WorkflowResult error field.
func errorString(err error) *string {
	if err == nil {
		return nil
	}
	s := strings.TrimSpace(err.Error())
	return &s
}
