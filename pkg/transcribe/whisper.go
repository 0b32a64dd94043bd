package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrInvalidCredential marks transcription failures caused by a rejected API
// key. The orchestrator treats these as fatal for the whole run, not just the
// current episode.
var ErrInvalidCredential = errors.New("transcription credential rejected")

const defaultBaseURL = "https://api.openai.com/v1"

// Client transcribes audio clips through the OpenAI speech-to-text API.
type Client struct {
	httpClient *http.Client

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Model selects the transcription model. Defaults to whisper-1.
	Model string
}

// NewClient creates a new transcription client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		Model:      "whisper-1",
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file at clipPath and returns the transcript
// text. The API key is passed per call: credentials are request-scoped and
// never stored on the client.
func (c *Client) Transcribe(ctx context.Context, clipPath, apiKey string) (string, error) {
	if clipPath == "" {
		return "", errors.New("no audio path provided")
	}
	if apiKey == "" {
		return "", fmt.Errorf("%w: empty API key", ErrInvalidCredential)
	}

	f, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("open audio sample: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model()); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(clipPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("read audio sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: http %d: %s", ErrInvalidCredential, resp.StatusCode, bytes.TrimSpace(b))
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription http %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	return tr.Text, nil
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Client) model() string {
	if c.Model != "" {
		return c.Model
	}
	return "whisper-1"
}
