package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/httpclient"
)

// Reader parses podcast RSS/Atom feeds and extracts episode descriptors.
type Reader struct {
	client     *httpclient.HTTPClient
	feedParser *gofeed.Parser
}

// NewReader creates a new feed reader.
func NewReader() *Reader {
	return &Reader{
		client:     httpclient.NewClient(httpclient.BrowserClient, 30*time.Second),
		feedParser: gofeed.NewParser(),
	}
}

// Fetch downloads and parses the feed at feedURL and returns up to max
// episodes that carry an audio enclosure, preserving feed order. Items
// without audio are skipped, not errors. max <= 0 means no limit.
func (r *Reader) Fetch(ctx context.Context, feedURL string, max int) ([]domain.Episode, error) {
	resp, err := r.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("fetch feed: unexpected status code: %d", resp.StatusCode)
	}

	parsed, err := r.feedParser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	if parsed == nil || len(parsed.Items) == 0 {
		return nil, fmt.Errorf("feed contains no items")
	}

	feedID := strings.TrimSpace(parsed.Link)
	if feedID == "" {
		feedID = feedURL
	}

	episodes := make([]domain.Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		audioURL := audioURLFromItem(item)
		if audioURL == "" {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Untitled Episode"
		}

		episodes = append(episodes, domain.Episode{
			Title:       title,
			AudioURL:    audioURL,
			PublishedAt: item.PublishedParsed,
			FeedID:      feedID,
			PageURL:     strings.TrimSpace(item.Link),
			Summary:     plainTextSummary(item.Description),
		})

		if max > 0 && len(episodes) == max {
			break
		}
	}

	return episodes, nil
}

// audioURLFromItem picks the episode's audio URL, preferring enclosures with
// an audio media type and falling back to any enclosure with an audio-looking
// URL extension.
func audioURLFromItem(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "audio") && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		u := strings.TrimSpace(enc.URL)
		if hasAudioExt(u) {
			return u
		}
	}

	return ""
}

func hasAudioExt(u string) bool {
	lower := strings.ToLower(u)
	// Strip query string before checking the extension.
	if i := strings.IndexByte(lower, '?'); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".mp3", ".m4a", ".ogg", ".wav", ".aac", ".flac"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// plainTextSummary strips HTML from a feed item description. Podcast feeds
// routinely embed markup in show descriptions.
func plainTextSummary(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return description
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
