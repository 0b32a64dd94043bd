package shownotes

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"podcast-transcriber/pkg/httpclient"
)

// Extractor fetches a podcast episode's web page and extracts its readable
// show-notes text, used to enrich indexed records.
type Extractor struct {
	client *httpclient.HTTPClient
}

// NewExtractor creates a new show-notes extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		client: httpclient.NewClient(httpclient.BrowserClient, 30*time.Second),
	}
}

// Extract fetches pageURL and returns the readable text of the page.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", fmt.Errorf("page URL is empty")
	}

	resp, err := e.client.Get(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch episode page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("fetch episode page: unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read episode page: %w", err)
	}

	return ExtractText(string(body))
}

// ExtractText extracts the main readable text from episode page HTML.
func ExtractText(htmlContent string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(htmlContent), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text != "" {
		return normalizeWhitespace(text), nil
	}

	// Fallback: whole body text via goquery. Readability returns empty
	// content for some sparse episode pages.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	if text := strings.TrimSpace(doc.Find("body").First().Text()); text != "" {
		return normalizeWhitespace(text), nil
	}

	return "", fmt.Errorf("page content not found")
}

// normalizeWhitespace collapses runs of whitespace into single spaces for a
// compact searchable string.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
