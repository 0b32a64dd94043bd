package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"podcast-transcriber/pkg/audio"
	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/retry"
	"podcast-transcriber/pkg/search"
	"podcast-transcriber/pkg/store"
	"podcast-transcriber/pkg/transcribe"
)

// FeedReader resolves a feed URL to an ordered list of episode descriptors.
type FeedReader interface {
	Fetch(ctx context.Context, feedURL string, max int) ([]domain.Episode, error)
}

// Sampler resolves an audio URL to a bounded-duration local clip.
type Sampler interface {
	Sample(ctx context.Context, audioURL string, duration time.Duration) (*audio.Clip, error)
}

// Transcriber resolves an audio clip and a credential to transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, clipPath, apiKey string) (string, error)
}

// ShowNotesExtractor resolves an episode page URL to readable text. Optional.
type ShowNotesExtractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// PublisherFactory builds an index publisher from request-scoped credentials.
// The orchestrator constructs a fresh publisher per run so credentials never
// outlive the invocation.
type PublisherFactory func(creds domain.Credentials) (search.Publisher, error)

// Config controls orchestrator policy.
type Config struct {
	// SkipExistingTranscripts reuses stored transcripts instead of invoking
	// the transcriber for episodes already in the store.
	SkipExistingTranscripts bool

	// ReindexExisting publishes reused transcripts to the search index again.
	ReindexExisting bool

	// EnrichShowNotes fetches the episode page and logs its readable text
	// availability; failures are noted, never fatal.
	EnrichShowNotes bool

	// PerStageTimeout bounds each external call. Zero disables the bound.
	PerStageTimeout time.Duration

	// RetryCount and RetryBackoff shape bounded retries for transient
	// network stages (feed fetch, audio download, index publish).
	RetryCount   int
	RetryBackoff time.Duration

	// DefaultSampleDuration applies when a request omits the duration.
	DefaultSampleDuration time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		SkipExistingTranscripts: true,
		ReindexExisting:         true,
		PerStageTimeout:         5 * time.Minute,
		RetryCount:              3,
		RetryBackoff:            500 * time.Millisecond,
		DefaultSampleDuration:   60 * time.Second,
	}
}

// MinSampleDuration is the shortest sample worth transcribing.
const MinSampleDuration = 10 * time.Second

// Request is one workflow invocation's parameters.
type Request struct {
	FeedURL        string
	EpisodeCount   int
	SampleDuration time.Duration
	Credentials    domain.Credentials
}

// Orchestrator drives the transcription pipeline: feed parsing, audio
// sampling, transcription, persistence, and index publishing, sequentially
// per episode, while accumulating a status log and partial results. It never
// returns an error past its own boundary; every outcome is a WorkflowResult.
type Orchestrator struct {
	feed         FeedReader
	sampler      Sampler
	transcriber  Transcriber
	store        store.Store
	newPublisher PublisherFactory
	notes        ShowNotesExtractor
	cfg          Config

	now func() time.Time
}

// NewOrchestrator wires the pipeline collaborators. notes may be nil.
func NewOrchestrator(feed FeedReader, sampler Sampler, transcriber Transcriber, st store.Store, newPublisher PublisherFactory, notes ShowNotesExtractor, cfg Config) *Orchestrator {
	return &Orchestrator{
		feed:         feed,
		sampler:      sampler,
		transcriber:  transcriber,
		store:        st,
		newPublisher: newPublisher,
		notes:        notes,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Run executes the workflow for one feed. Episodes are processed strictly
// sequentially; per-episode failures skip the episode, feed and credential
// failures end the run. The returned result always carries the status log
// accumulated so far.
func (o *Orchestrator) Run(ctx context.Context, req Request) *domain.WorkflowResult {
	result := &domain.WorkflowResult{
		StatusUpdates:       []string{},
		TranscribedEpisodes: []domain.TranscriptRecord{},
	}

	req, err := o.validate(req)
	if err != nil {
		result.Error = errorString(err)
		result.Message = "Request validation failed."
		return result
	}

	publisher, err := o.newPublisher(req.Credentials)
	if err != nil {
		result.Error = errorString(validationError("initialize index publisher: %v", err))
		result.Message = "Request validation failed."
		return result
	}

	rec := newStatusRecorder(o.now)
	defer func() { result.StatusUpdates = rec.Rendered() }()

	rec.Log("Starting podcast transcription workflow...")
	rec.Log("Fetching %d episodes from RSS feed: %s...", req.EpisodeCount, req.FeedURL)

	episodes, err := o.fetchFeed(ctx, req)
	if err != nil {
		classified := classify(ErrFeedFetch, "fetch feed", err)
		rec.Log("Failed to fetch RSS feed: %v", err)
		result.Error = errorString(classified)
		result.Message = "Feed fetch failed; nothing to process."
		return result
	}

	rec.Log("Found %d episodes with audio URLs.", len(episodes))
	if len(episodes) == 0 {
		result.Message = "No episodes with audio found in the feed."
		return result
	}

	if len(episodes) > req.EpisodeCount {
		episodes = episodes[:req.EpisodeCount]
	}

	var counts struct {
		attempted     int
		transcribed   int
		reused        int
		failed        int
		indexFailures int
	}
	seen := make(map[string]bool, len(episodes))

	for i, ep := range episodes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			rec.Log("Run deadline reached; stopping before episode %d/%d.", i+1, len(episodes))
			result.Error = errorString(fmt.Errorf("%w: run cancelled: %v", ErrTimeout, ctxErr))
			break
		}

		identity := ep.Identity()
		if seen[identity] {
			rec.Log("Skipping duplicate episode '%s' within this run.", ep.Title)
			continue
		}
		seen[identity] = true
		counts.attempted++

		rec.Log("--- Processing episode %d/%d: %s ---", i+1, len(episodes), ep.Title)

		record, reused, err := o.processEpisode(ctx, rec, ep, identity, req)
		if err != nil {
			if errors.Is(err, transcribe.ErrInvalidCredential) {
				rec.Log("Transcription credential rejected; aborting remaining episodes.")
				result.Error = errorString(classify(ErrTranscription, "transcribe", err))
				result.Message = "Transcription credential invalid; run aborted."
				return result
			}
			counts.failed++
			continue
		}
		if reused {
			counts.reused++
		} else {
			counts.transcribed++
		}

		if !reused || o.cfg.ReindexExisting {
			if err := o.publish(ctx, publisher, record); err != nil {
				rec.Log("Failed to publish '%s' to %s: %v", record.Title, publisher.Name(), err)
				counts.indexFailures++
			} else {
				rec.Log("Uploaded '%s' to %s.", record.Title, publisher.Name())
			}
		}

		// A transcript that failed to index is still a successful outcome.
		result.TranscribedEpisodes = append(result.TranscribedEpisodes, *record)
	}

	summary := fmt.Sprintf("Workflow complete: attempted %d, transcribed %d, reused %d, failed %d, index failures %d.",
		counts.attempted, counts.transcribed, counts.reused, counts.failed, counts.indexFailures)
	rec.Log("%s", summary)
	result.Message = summary

	return result
}

// validate applies defaults and checks the request before any network call.
func (o *Orchestrator) validate(req Request) (Request, error) {
	req.FeedURL = strings.TrimSpace(req.FeedURL)
	if req.FeedURL == "" {
		return req, validationError("feed URL is required")
	}
	parsed, err := url.Parse(req.FeedURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return req, validationError("feed URL %q is not a valid absolute URL", req.FeedURL)
	}

	if req.EpisodeCount < 1 {
		return req, validationError("episode count must be at least 1, got %d", req.EpisodeCount)
	}

	if req.SampleDuration == 0 {
		req.SampleDuration = o.cfg.DefaultSampleDuration
	}
	if req.SampleDuration < MinSampleDuration {
		return req, validationError("sample duration must be at least %s, got %s", MinSampleDuration, req.SampleDuration)
	}

	if strings.TrimSpace(req.Credentials.TranscriptionKey) == "" {
		return req, validationError("transcription API key is required")
	}
	if strings.TrimSpace(req.Credentials.IndexAppID) == "" || strings.TrimSpace(req.Credentials.IndexWriteKey) == "" {
		return req, validationError("index application ID and write key are required")
	}

	return req, nil
}

// processEpisode runs stages b-d of the per-episode loop: store lookup,
// sampling, transcription, persistence. It returns the record to index and
// whether it was reused from the store. Credential rejection is the only
// error the caller treats as fatal.
func (o *Orchestrator) processEpisode(ctx context.Context, rec *statusRecorder, ep domain.Episode, identity string, req Request) (*domain.TranscriptRecord, bool, error) {
	if o.cfg.SkipExistingTranscripts {
		existing, err := o.lookupExisting(ctx, identity)
		if err != nil {
			rec.Log("Store lookup failed for '%s' (continuing with fresh transcription): %v", ep.Title, err)
		} else if existing != nil {
			rec.Log("Transcript for '%s' already stored; reusing without re-transcription.", ep.Title)
			existing.TranscriptionPreview = domain.Preview(existing.FullTranscription)
			return existing, true, nil
		}
	}

	rec.Log("Downloading %ds audio sample for '%s'...", int(req.SampleDuration.Seconds()), ep.Title)
	clip, err := o.sampleAudio(ctx, ep.AudioURL, req.SampleDuration)
	if err != nil {
		rec.Log("Audio sample failed for '%s' (skipping episode): %v", ep.Title, err)
		return nil, false, classify(ErrAudioAcquisition, "sample audio", err)
	}
	rec.Log("Sample saved to: %s", clip.Path)

	rec.Log("Transcribing audio sample for '%s'...", ep.Title)
	text, err := o.transcribeClip(ctx, clip, req.Credentials.TranscriptionKey)
	if err != nil {
		if errors.Is(err, transcribe.ErrInvalidCredential) {
			return nil, false, err
		}
		rec.Log("Transcription failed for '%s' (skipping episode): %v", ep.Title, err)
		return nil, false, classify(ErrTranscription, "transcribe", err)
	}
	rec.Log("Transcription complete for '%s'.", ep.Title)

	if o.cfg.EnrichShowNotes && o.notes != nil && ep.PageURL != "" {
		o.enrichShowNotes(ctx, rec, &ep)
	}

	record := &domain.TranscriptRecord{
		Identity:             identity,
		Title:                ep.Title,
		TranscriptionPreview: domain.Preview(text),
		FullTranscription:    text,
		ProcessedAt:          o.now(),
	}

	rec.Log("Saving '%s' to the episode store...", ep.Title)
	if err := o.saveRecord(ctx, record); err != nil {
		// The transcript exists and will still be reported; the store miss
		// only costs dedup on the next run.
		rec.Log("Failed to save '%s' to the episode store: %v", ep.Title, err)
	} else {
		rec.Log("Saved '%s' to the episode store.", ep.Title)
	}

	return record, false, nil
}

// transcribeClip invokes the transcriber and guarantees the clip is released
// on every exit path.
func (o *Orchestrator) transcribeClip(ctx context.Context, clip *audio.Clip, apiKey string) (string, error) {
	defer clip.Close()

	sctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.transcriber.Transcribe(sctx, clip.Path, apiKey)
}

// enrichShowNotes appends the episode's readable page text to its summary.
// Best-effort: failures become status notes.
func (o *Orchestrator) enrichShowNotes(ctx context.Context, rec *statusRecorder, ep *domain.Episode) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	text, err := o.notes.Extract(sctx, ep.PageURL)
	if err != nil {
		rec.Log("Show notes unavailable for '%s': %v", ep.Title, err)
		return
	}
	ep.Summary = text
	rec.Log("Extracted show notes for '%s' (%d characters).", ep.Title, len(text))
}

func (o *Orchestrator) fetchFeed(ctx context.Context, req Request) ([]domain.Episode, error) {
	var episodes []domain.Episode
	err := retry.Do(ctx, o.retryConfig(), retry.IsRetryableNetwork, func() error {
		sctx, cancel := o.stageContext(ctx)
		defer cancel()

		var err error
		episodes, err = o.feed.Fetch(sctx, req.FeedURL, req.EpisodeCount)
		return err
	})
	return episodes, err
}

func (o *Orchestrator) sampleAudio(ctx context.Context, audioURL string, duration time.Duration) (*audio.Clip, error) {
	var clip *audio.Clip
	err := retry.Do(ctx, o.retryConfig(), retry.IsRetryableNetwork, func() error {
		sctx, cancel := o.stageContext(ctx)
		defer cancel()

		var err error
		clip, err = o.sampler.Sample(sctx, audioURL, duration)
		return err
	})
	return clip, err
}

func (o *Orchestrator) lookupExisting(ctx context.Context, identity string) (*domain.TranscriptRecord, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.store.GetTranscript(sctx, identity)
}

func (o *Orchestrator) saveRecord(ctx context.Context, record *domain.TranscriptRecord) error {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.store.SaveTranscript(sctx, record)
}

func (o *Orchestrator) publish(ctx context.Context, publisher search.Publisher, record *domain.TranscriptRecord) error {
	return retry.Do(ctx, o.retryConfig(), retry.IsRetryableNetwork, func() error {
		sctx, cancel := o.stageContext(ctx)
		defer cancel()
		return publisher.Publish(sctx, record)
	})
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.PerStageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.PerStageTimeout)
}

func (o *Orchestrator) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	if o.cfg.RetryCount > 0 {
		cfg.MaxAttempts = o.cfg.RetryCount
	}
	if o.cfg.RetryBackoff > 0 {
		cfg.InitialBackoff = o.cfg.RetryBackoff
	}
	return cfg
}
