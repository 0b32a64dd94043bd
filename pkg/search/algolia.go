package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"podcast-transcriber/pkg/domain"
)

// DefaultAlgoliaIndex is the index episodes are published to unless
// configured otherwise.
const DefaultAlgoliaIndex = "podcast_episodes"

var ErrMissingAlgoliaCredentials = errors.New("algolia app ID and write key are required")

// AlgoliaPublisher publishes transcript records to an Algolia index over the
// REST API. It is constructed per run from request-scoped credentials.
type AlgoliaPublisher struct {
	appID      string
	apiKey     string
	index      string
	httpClient *http.Client

	// BaseURL overrides the API endpoint, mainly for tests. When empty the
	// standard per-application host is used.
	BaseURL string

	// WaitForTask polls the indexing task until Algolia reports it
	// published. Off by default: the workflow treats acceptance as success.
	WaitForTask bool
}

// NewAlgoliaPublisher creates a publisher for the given application and index.
// An empty index selects DefaultAlgoliaIndex.
func NewAlgoliaPublisher(appID, apiKey, index string) (*AlgoliaPublisher, error) {
	if appID == "" || apiKey == "" {
		return nil, ErrMissingAlgoliaCredentials
	}
	if index == "" {
		index = DefaultAlgoliaIndex
	}
	return &AlgoliaPublisher{
		appID:      appID,
		apiKey:     apiKey,
		index:      index,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name identifies the backend in status messages.
func (p *AlgoliaPublisher) Name() string { return "Algolia" }

type algoliaObject struct {
	ObjectID      string `json:"objectID"`
	Title         string `json:"title"`
	Transcription string `json:"transcription"`
}

type algoliaSaveResponse struct {
	TaskID   int64  `json:"taskID"`
	ObjectID string `json:"objectID"`
}

// Publish upserts the record as an Algolia object whose objectID is the
// episode identity.
func (p *AlgoliaPublisher) Publish(ctx context.Context, rec *domain.TranscriptRecord) error {
	obj := algoliaObject{
		ObjectID:      rec.Identity,
		Title:         rec.Title,
		Transcription: rec.FullTranscription,
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/1/indexes/%s/%s", p.baseURL(), p.index, obj.ObjectID)
	var saved algoliaSaveResponse
	if err := p.do(ctx, http.MethodPut, endpoint, payload, &saved); err != nil {
		return fmt.Errorf("save object: %w", err)
	}

	if p.WaitForTask {
		if err := p.waitTask(ctx, saved.TaskID); err != nil {
			return fmt.Errorf("wait for indexing task %d: %w", saved.TaskID, err)
		}
	}

	return nil
}

// waitTask polls the task status until Algolia reports it published.
func (p *AlgoliaPublisher) waitTask(ctx context.Context, taskID int64) error {
	endpoint := fmt.Sprintf("%s/1/indexes/%s/task/%d", p.baseURL(), p.index, taskID)

	for {
		var status struct {
			Status string `json:"status"`
		}
		if err := p.do(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
			return err
		}
		if status.Status == "published" {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (p *AlgoliaPublisher) do(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Algolia-Application-Id", p.appID)
	req.Header.Set("X-Algolia-API-Key", p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("algolia http %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *AlgoliaPublisher) baseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return fmt.Sprintf("https://%s.algolia.net", p.appID)
}
