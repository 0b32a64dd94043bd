package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/workflow"
)

// Runner is the workflow entry point the server drives.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) *domain.WorkflowResult
}

// Server is the thin HTTP boundary: it maps requests onto workflow
// invocations and serializes WorkflowResults back out. All sequencing and
// failure policy lives in the workflow package.
type Server struct {
	runner Runner
	mux    *http.ServeMux
}

// New creates the HTTP server around a workflow runner.
func New(runner Runner) *Server {
	s := &Server{
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// transcribeRequest mirrors the JSON payload the frontend sends.
type transcribeRequest struct {
	RSSURL             string `json:"rss_url"`
	NumEpisodes        int    `json:"numEpisodes"`
	SampleDuration     int    `json:"sampleDuration"`
	OpenAIAPIKey       string `json:"openaiApiKey"`
	AlgoliaAppID       string `json:"algoliaAppId"`
	AlgoliaWriteAPIKey string `json:"algoliaWriteApiKey"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if strings.TrimSpace(req.RSSURL) == "" {
		writeError(w, http.StatusBadRequest, "Missing 'rss_url' in request")
		return
	}
	if req.OpenAIAPIKey == "" || req.AlgoliaAppID == "" || req.AlgoliaWriteAPIKey == "" {
		writeError(w, http.StatusBadRequest, "Missing one or more API keys in request payload.")
		return
	}

	if req.NumEpisodes == 0 {
		req.NumEpisodes = 1
	}

	log.Printf("server: transcription request for feed %s (episodes=%d, sample=%ds)", req.RSSURL, req.NumEpisodes, req.SampleDuration)

	result := s.runner.Run(r.Context(), workflow.Request{
		FeedURL:        req.RSSURL,
		EpisodeCount:   req.NumEpisodes,
		SampleDuration: time.Duration(req.SampleDuration) * time.Second,
		Credentials: domain.Credentials{
			TranscriptionKey: req.OpenAIAPIKey,
			IndexAppID:       req.AlgoliaAppID,
			IndexWriteKey:    req.AlgoliaWriteAPIKey,
		},
	})

	writeJSON(w, statusCodeFor(result), result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusCodeFor maps a workflow outcome onto an HTTP status: validation
// failures are the caller's fault, any other run-fatal error is ours, and
// partial per-episode failures are still a success.
func statusCodeFor(result *domain.WorkflowResult) int {
	if result.Error == nil {
		return http.StatusOK
	}
	if strings.HasPrefix(*result.Error, workflow.ErrValidation.Error()) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, &domain.WorkflowResult{
		StatusUpdates:       []string{},
		TranscribedEpisodes: []domain.TranscriptRecord{},
		Error:               &message,
	})
}
