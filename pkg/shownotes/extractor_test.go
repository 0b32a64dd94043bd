package shownotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const episodePage = `<!DOCTYPE html>
<html>
<head><title>Episode 12: Interview</title></head>
<body>
  <nav>Home | Episodes | About</nav>
  <article>
    <h1>Episode 12: Interview</h1>
    <p>In this episode we talk      about building search
    indexes for audio content.</p>
    <p>Links mentioned in the show are listed below.</p>
  </article>
</body>
</html>`

func TestExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(episodePage))
	}))
	defer server.Close()

	text, err := NewExtractor().Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(text, "building search indexes for audio content") {
		t.Errorf("extracted text missing article body: %q", text)
	}
	if strings.Contains(text, "  ") {
		t.Errorf("whitespace not normalized: %q", text)
	}
}

func TestExtractEmptyURL(t *testing.T) {
	if _, err := NewExtractor().Extract(context.Background(), "  "); err == nil {
		t.Fatal("expected an error for an empty URL")
	}
}

func TestExtractErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := NewExtractor().Extract(context.Background(), server.URL); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestExtractTextFallsBackToBody(t *testing.T) {
	// A page too sparse for readability still yields its body text.
	sparse := `<html><body><div>Short note about the episode.</div></body></html>`
	text, err := ExtractText(sparse)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if !strings.Contains(text, "Short note about the episode.") {
		t.Errorf("text = %q", text)
	}
}

func TestExtractTextEmptyPage(t *testing.T) {
	if _, err := ExtractText(`<html><body></body></html>`); err == nil {
		t.Fatal("expected an error for an empty page")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a\n\tb   c ")
	if got != "a b c" {
		t.Errorf("normalizeWhitespace = %q", got)
	}
}
