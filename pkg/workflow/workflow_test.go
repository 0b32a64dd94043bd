package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"podcast-transcriber/pkg/audio"
	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/search"
	"podcast-transcriber/pkg/transcribe"
)

type fakeFeed struct {
	episodes []domain.Episode
	err      error
	calls    int
}

func (f *fakeFeed) Fetch(ctx context.Context, feedURL string, max int) ([]domain.Episode, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.episodes, nil
}

type fakeSampler struct {
	calls    int
	failures map[string]int // remaining failures per audio URL; -1 fails forever
	failErr  error
}

func (f *fakeSampler) Sample(ctx context.Context, audioURL string, duration time.Duration) (*audio.Clip, error) {
	f.calls++
	if n, ok := f.failures[audioURL]; ok && n != 0 {
		if n > 0 {
			f.failures[audioURL] = n - 1
		}
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("download failed")
	}
	return &audio.Clip{Duration: duration}, nil
}

type fakeTranscriber struct {
	calls int
	text  string
	err   error
	after func()
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, clipPath, apiKey string) (string, error) {
	f.calls++
	defer func() {
		if f.after != nil {
			f.after()
		}
	}()
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return fmt.Sprintf("transcript %d", f.calls), nil
}

type memStore struct {
	records   map[string]domain.TranscriptRecord
	saveCalls int
	getErr    error
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.TranscriptRecord)}
}

func (m *memStore) SaveTranscript(ctx context.Context, rec *domain.TranscriptRecord) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.Identity] = *rec
	return nil
}

func (m *memStore) GetTranscript(ctx context.Context, identity string) (*domain.TranscriptRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) HasTranscript(ctx context.Context, identity string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	_, ok := m.records[identity]
	return ok, nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.records = make(map[string]domain.TranscriptRecord)
	return nil
}

type fakePublisher struct {
	calls     int
	err       error
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, rec *domain.TranscriptRecord) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, rec.Identity)
	return nil
}

func (f *fakePublisher) Name() string { return "fake-index" }

type pipeline struct {
	feed        *fakeFeed
	sampler     *fakeSampler
	transcriber *fakeTranscriber
	store       *memStore
	publisher   *fakePublisher
}

func newPipeline(episodes ...domain.Episode) *pipeline {
	return &pipeline{
		feed:        &fakeFeed{episodes: episodes},
		sampler:     &fakeSampler{failures: map[string]int{}},
		transcriber: &fakeTranscriber{},
		store:       newMemStore(),
		publisher:   &fakePublisher{},
	}
}

func (p *pipeline) orchestrator(cfg Config) *Orchestrator {
	factory := func(creds domain.Credentials) (search.Publisher, error) {
		return p.publisher, nil
	}
	return NewOrchestrator(p.feed, p.sampler, p.transcriber, p.store, factory, nil, cfg)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PerStageTimeout = time.Minute
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func testEpisode(n int) domain.Episode {
	return domain.Episode{
		Title:    fmt.Sprintf("Episode %d", n),
		AudioURL: fmt.Sprintf("https://cdn.example.com/ep%d.mp3", n),
		FeedID:   "https://example.com/podcast",
	}
}

func testRequest(count int) Request {
	return Request{
		FeedURL:        "https://example.com/feed.xml",
		EpisodeCount:   count,
		SampleDuration: 30 * time.Second,
		Credentials: domain.Credentials{
			TranscriptionKey: "sk-test",
			IndexAppID:       "APP123",
			IndexWriteKey:    "writekey",
		},
	}
}

func hasUpdate(updates []string, substr string) bool {
	for _, u := range updates {
		if strings.Contains(u, substr) {
			return true
		}
	}
	return false
}

func TestRunValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty feed URL", func(r *Request) { r.FeedURL = "  " }},
		{"relative feed URL", func(r *Request) { r.FeedURL = "feed.xml" }},
		{"zero episode count", func(r *Request) { r.EpisodeCount = 0 }},
		{"negative episode count", func(r *Request) { r.EpisodeCount = -3 }},
		{"sample too short", func(r *Request) { r.SampleDuration = 2 * time.Second }},
		{"missing transcription key", func(r *Request) { r.Credentials.TranscriptionKey = "" }},
		{"missing index app id", func(r *Request) { r.Credentials.IndexAppID = "" }},
		{"missing index write key", func(r *Request) { r.Credentials.IndexWriteKey = " " }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPipeline(testEpisode(1))
			req := testRequest(1)
			tc.mutate(&req)

			result := p.orchestrator(testConfig()).Run(context.Background(), req)

			if result.Error == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(*result.Error, ErrValidation.Error()) {
				t.Errorf("error %q not classified as validation", *result.Error)
			}
			if len(result.StatusUpdates) != 0 {
				t.Errorf("expected no status updates, got %v", result.StatusUpdates)
			}
			if len(result.TranscribedEpisodes) != 0 {
				t.Errorf("expected no episodes, got %d", len(result.TranscribedEpisodes))
			}
			if p.feed.calls != 0 || p.sampler.calls != 0 || p.transcriber.calls != 0 || p.publisher.calls != 0 {
				t.Error("collaborators were invoked before validation passed")
			}
		})
	}
}

func TestRunPublisherFactoryFailure(t *testing.T) {
	p := newPipeline(testEpisode(1))
	factory := func(creds domain.Credentials) (search.Publisher, error) {
		return nil, errors.New("missing credentials")
	}
	o := NewOrchestrator(p.feed, p.sampler, p.transcriber, p.store, factory, nil, testConfig())

	result := o.Run(context.Background(), testRequest(1))

	if result.Error == nil || !strings.Contains(*result.Error, ErrValidation.Error()) {
		t.Fatalf("expected validation-classed error, got %v", result.Error)
	}
	if p.feed.calls != 0 {
		t.Error("feed was fetched despite publisher setup failure")
	}
}

func TestRunHappyPath(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2))
	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(2))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 2 {
		t.Fatalf("expected 2 transcribed episodes, got %d", got)
	}
	if p.transcriber.calls != 2 {
		t.Errorf("expected 2 transcriber calls, got %d", p.transcriber.calls)
	}
	if len(p.publisher.published) != 2 {
		t.Errorf("expected 2 published records, got %d", len(p.publisher.published))
	}
	if p.store.saveCalls != 2 {
		t.Errorf("expected 2 store saves, got %d", p.store.saveCalls)
	}
	for _, rec := range result.TranscribedEpisodes {
		if rec.FullTranscription == "" {
			t.Errorf("episode %q has empty transcription", rec.Title)
		}
		if rec.TranscriptionPreview == "" {
			t.Errorf("episode %q has empty preview", rec.Title)
		}
	}
	if !strings.Contains(result.Message, "transcribed 2") {
		t.Errorf("summary %q does not report 2 transcriptions", result.Message)
	}
}

func TestRunCountExceedsFeed(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2))
	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(10))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 2 {
		t.Errorf("expected all 2 feed episodes, got %d", got)
	}
}

func TestRunTruncatesToRequestedCount(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2), testEpisode(3))
	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(2))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 2 {
		t.Fatalf("expected 2 episodes, got %d", got)
	}
	if p.transcriber.calls != 2 {
		t.Errorf("expected 2 transcriber calls, got %d", p.transcriber.calls)
	}
	if result.TranscribedEpisodes[0].Title != "Episode 1" || result.TranscribedEpisodes[1].Title != "Episode 2" {
		t.Errorf("expected first two feed episodes in order, got %q and %q",
			result.TranscribedEpisodes[0].Title, result.TranscribedEpisodes[1].Title)
	}
}

func TestRunSkipsExistingTranscripts(t *testing.T) {
	ep := testEpisode(1)
	p := newPipeline(ep)
	p.store.records[ep.Identity()] = domain.TranscriptRecord{
		Identity:          ep.Identity(),
		Title:             ep.Title,
		FullTranscription: "previously stored transcript",
	}

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if p.transcriber.calls != 0 {
		t.Errorf("transcriber invoked %d times for a stored episode", p.transcriber.calls)
	}
	if p.sampler.calls != 0 {
		t.Errorf("sampler invoked %d times for a stored episode", p.sampler.calls)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Fatalf("expected the reused episode in results, got %d episodes", got)
	}
	rec := result.TranscribedEpisodes[0]
	if rec.FullTranscription != "previously stored transcript" {
		t.Errorf("expected stored transcript, got %q", rec.FullTranscription)
	}
	if rec.TranscriptionPreview == "" {
		t.Error("reused record has no preview")
	}
	if p.publisher.calls != 1 {
		t.Errorf("expected reused record republished once, got %d publish calls", p.publisher.calls)
	}
	if !strings.Contains(result.Message, "reused 1") {
		t.Errorf("summary %q does not report the reuse", result.Message)
	}
}

func TestRunReindexExistingDisabled(t *testing.T) {
	ep := testEpisode(1)
	p := newPipeline(ep)
	p.store.records[ep.Identity()] = domain.TranscriptRecord{
		Identity:          ep.Identity(),
		Title:             ep.Title,
		FullTranscription: "stored",
	}

	cfg := testConfig()
	cfg.ReindexExisting = false
	result := p.orchestrator(cfg).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if p.publisher.calls != 0 {
		t.Errorf("reused record was republished %d times with reindexing off", p.publisher.calls)
	}
	if len(result.TranscribedEpisodes) != 1 {
		t.Errorf("reused episode missing from results")
	}
}

func TestRunIdempotentSecondRun(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2))
	o := p.orchestrator(testConfig())

	first := o.Run(context.Background(), testRequest(2))
	if first.Error != nil {
		t.Fatalf("first run failed: %s", *first.Error)
	}
	callsAfterFirst := p.transcriber.calls

	second := o.Run(context.Background(), testRequest(2))
	if second.Error != nil {
		t.Fatalf("second run failed: %s", *second.Error)
	}
	if p.transcriber.calls != callsAfterFirst {
		t.Errorf("second run invoked the transcriber %d more times", p.transcriber.calls-callsAfterFirst)
	}
	if got := len(second.TranscribedEpisodes); got != 2 {
		t.Errorf("second run returned %d episodes, want 2", got)
	}
}

func TestRunDuplicateEpisodesWithinFeed(t *testing.T) {
	ep := testEpisode(1)
	p := newPipeline(ep, ep)
	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(2))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if p.transcriber.calls != 1 {
		t.Errorf("duplicate episode transcribed %d times", p.transcriber.calls)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Errorf("expected 1 unique episode, got %d", got)
	}
	if !hasUpdate(result.StatusUpdates, "duplicate") {
		t.Error("status log does not mention the skipped duplicate")
	}
}

func TestRunSamplerRetriesThenSucceeds(t *testing.T) {
	ep := testEpisode(1)
	p := newPipeline(ep)
	p.sampler.failures[ep.AudioURL] = 1
	p.sampler.failErr = errors.New("read tcp: connection reset by peer")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if p.sampler.calls != 2 {
		t.Errorf("expected 2 sampler attempts, got %d", p.sampler.calls)
	}
	if len(result.TranscribedEpisodes) != 1 {
		t.Errorf("episode missing from results after retry succeeded")
	}
}

func TestRunSamplerFailureSkipsEpisode(t *testing.T) {
	bad, good := testEpisode(1), testEpisode(2)
	p := newPipeline(bad, good)
	p.sampler.failures[bad.AudioURL] = -1
	p.sampler.failErr = errors.New("unsupported media type")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(2))

	if result.Error != nil {
		t.Fatalf("per-episode failure must not fail the run: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Fatalf("expected 1 surviving episode, got %d", got)
	}
	if result.TranscribedEpisodes[0].Title != good.Title {
		t.Errorf("wrong surviving episode: %q", result.TranscribedEpisodes[0].Title)
	}
	if !hasUpdate(result.StatusUpdates, "Audio sample failed for 'Episode 1'") {
		t.Errorf("status log missing the sample failure entry: %v", result.StatusUpdates)
	}
	if !strings.Contains(result.Message, "failed 1") {
		t.Errorf("summary %q does not count the failed episode", result.Message)
	}
}

func TestRunTranscriptionFailureSkipsEpisode(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2))
	p.transcriber.err = errors.New("model overloaded")
	p.transcriber.after = func() {
		// Only the first episode fails.
		p.transcriber.err = nil
	}

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(2))

	if result.Error != nil {
		t.Fatalf("per-episode failure must not fail the run: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Fatalf("expected 1 surviving episode, got %d", got)
	}
	if !hasUpdate(result.StatusUpdates, "Transcription failed for 'Episode 1'") {
		t.Error("status log missing the transcription failure entry")
	}
}

func TestRunInvalidCredentialAbortsRun(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2), testEpisode(3))
	p.transcriber.err = fmt.Errorf("%w: request rejected", transcribe.ErrInvalidCredential)

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(3))

	if result.Error == nil {
		t.Fatal("expected a run-level error for a rejected credential")
	}
	if !strings.Contains(*result.Error, ErrTranscription.Error()) {
		t.Errorf("error %q not classified as transcription failure", *result.Error)
	}
	if p.transcriber.calls != 1 {
		t.Errorf("expected the run to abort after the first rejection, transcriber called %d times", p.transcriber.calls)
	}
	if len(result.TranscribedEpisodes) != 0 {
		t.Errorf("no episode should survive a credential rejection, got %d", len(result.TranscribedEpisodes))
	}
}

func TestRunIndexFailureKeepsTranscript(t *testing.T) {
	p := newPipeline(testEpisode(1))
	p.publisher.err = errors.New("index quota exceeded")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("index failure must not fail the run: %s", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Fatalf("transcript dropped after index failure, got %d episodes", got)
	}
	if !hasUpdate(result.StatusUpdates, "Failed to publish") {
		t.Error("status log missing the publish failure entry")
	}
	if !strings.Contains(result.Message, "index failures 1") {
		t.Errorf("summary %q does not count the index failure", result.Message)
	}
}

func TestRunFeedFetchFailure(t *testing.T) {
	p := newPipeline()
	p.feed.err = errors.New("status code: 404")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error == nil {
		t.Fatal("expected a run-level error for a failed feed fetch")
	}
	if !strings.Contains(*result.Error, ErrFeedFetch.Error()) {
		t.Errorf("error %q not classified as feed fetch failure", *result.Error)
	}
	if len(result.TranscribedEpisodes) != 0 {
		t.Errorf("expected no episodes, got %d", len(result.TranscribedEpisodes))
	}
	if !hasUpdate(result.StatusUpdates, "Failed to fetch RSS feed") {
		t.Error("status log missing the feed failure entry")
	}
}

func TestRunEmptyFeed(t *testing.T) {
	p := newPipeline()
	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(3))

	if result.Error != nil {
		t.Fatalf("an empty feed is not an error: %s", *result.Error)
	}
	if result.Message != "No episodes with audio found in the feed." {
		t.Errorf("unexpected message: %q", result.Message)
	}
	if len(result.TranscribedEpisodes) != 0 {
		t.Errorf("expected no episodes, got %d", len(result.TranscribedEpisodes))
	}
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	p := newPipeline(testEpisode(1), testEpisode(2), testEpisode(3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.transcriber.after = cancel

	result := p.orchestrator(testConfig()).Run(ctx, testRequest(3))

	if result.Error == nil {
		t.Fatal("expected a timeout-classed error after cancellation")
	}
	if !strings.Contains(*result.Error, ErrTimeout.Error()) {
		t.Errorf("error %q not classified as timeout", *result.Error)
	}
	if got := len(result.TranscribedEpisodes); got != 1 {
		t.Fatalf("expected the completed episode to survive, got %d", got)
	}
	if result.TranscribedEpisodes[0].Title != "Episode 1" {
		t.Errorf("wrong surviving episode: %q", result.TranscribedEpisodes[0].Title)
	}
	if !hasUpdate(result.StatusUpdates, "deadline reached") {
		t.Error("status log missing the deadline entry")
	}
}

func TestRunStoreLookupFailureFallsBackToTranscription(t *testing.T) {
	p := newPipeline(testEpisode(1))
	p.store.getErr = errors.New("no reachable servers")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("a store lookup failure must not fail the run: %s", *result.Error)
	}
	if p.transcriber.calls != 1 {
		t.Errorf("expected fresh transcription after lookup failure, got %d calls", p.transcriber.calls)
	}
	if !hasUpdate(result.StatusUpdates, "Store lookup failed") {
		t.Error("status log missing the lookup failure entry")
	}
}

func TestRunSaveFailureIsNonFatal(t *testing.T) {
	p := newPipeline(testEpisode(1))
	p.store.saveErr = errors.New("write concern error")

	result := p.orchestrator(testConfig()).Run(context.Background(), testRequest(1))

	if result.Error != nil {
		t.Fatalf("a save failure must not fail the run: %s", *result.Error)
	}
	if len(result.TranscribedEpisodes) != 1 {
		t.Fatal("transcript dropped after save failure")
	}
	if p.publisher.calls != 1 {
		t.Errorf("expected the record to still be published, got %d publish calls", p.publisher.calls)
	}
	if !hasUpdate(result.StatusUpdates, "Failed to save") {
		t.Error("status log missing the save failure entry")
	}
}

func TestRunStatusUpdatesOrderedAndTimestamped(t *testing.T) {
	p := newPipeline(testEpisode(1))
	o := p.orchestrator(testConfig())
	o.now = func() time.Time {
		return time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	}

	result := o.Run(context.Background(), testRequest(1))

	if len(result.StatusUpdates) == 0 {
		t.Fatal("expected status updates")
	}
	if !strings.HasSuffix(result.StatusUpdates[0], "Starting podcast transcription workflow...") {
		t.Errorf("first update is %q", result.StatusUpdates[0])
	}
	for i, u := range result.StatusUpdates {
		if !strings.HasPrefix(u, "12:30:45 - ") {
			t.Errorf("update %d is not timestamped: %q", i, u)
		}
	}

	// Progress entries appear in pipeline order.
	order := []string{
		"Starting podcast transcription workflow",
		"Fetching 1 episodes",
		"Processing episode 1/1",
		"Transcribing audio sample",
		"Workflow complete",
	}
	last := -1
	for _, want := range order {
		idx := -1
		for i, u := range result.StatusUpdates {
			if strings.Contains(u, want) {
				idx = i
				break
			}
		}
		if idx < 0 {
			t.Fatalf("status log missing %q: %v", want, result.StatusUpdates)
		}
		if idx <= last {
			t.Errorf("entry %q out of order at index %d", want, idx)
		}
		last = idx
	}
}

func TestRunDefaultsSampleDuration(t *testing.T) {
	p := newPipeline(testEpisode(1))
	req := testRequest(1)
	req.SampleDuration = 0

	result := p.orchestrator(testConfig()).Run(context.Background(), req)

	if result.Error != nil {
		t.Fatalf("unexpected error: %s", *result.Error)
	}
	if !hasUpdate(result.StatusUpdates, "Downloading 60s audio sample") {
		t.Errorf("default sample duration not applied: %v", result.StatusUpdates)
	}
}
