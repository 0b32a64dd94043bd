package domain

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"
)

// Episode describes one podcast episode discovered in an RSS feed.
type Episode struct {
	// Title is the episode title from the feed item ("Untitled Episode" when absent).
	Title string `json:"title"`

	// AudioURL is the direct URL of the episode's audio enclosure.
	AudioURL string `json:"audio_url"`

	// PublishedAt is the feed item publish date, when the feed provides one.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// FeedID identifies the feed the episode came from (feed link, or the
	// feed URL when the feed declares no link).
	FeedID string `json:"feed_id"`

	// PageURL is the episode's web page, when the feed item links one.
	PageURL string `json:"page_url,omitempty"`

	// Summary is the plain-text episode description, when available.
	Summary string `json:"summary,omitempty"`
}

// Identity returns the canonical identity of the episode, used as the store
// key and as the dedup key within a run. It is deterministic, independent of
// transcription content, and scoped to the feed so identical titles in
// different feeds never merge. The audio URL is the per-feed discriminator:
// enclosure URLs are unique per item while titles can repeat.
func (e Episode) Identity() string {
	feed := strings.TrimSpace(e.FeedID)
	audio := strings.TrimSpace(e.AudioURL)
	sum := md5.Sum([]byte(feed + "\n" + audio))
	return fmt.Sprintf("%x", sum)
}
