package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"podcast-transcriber/pkg/audio"
	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/feed"
	"podcast-transcriber/pkg/search"
	"podcast-transcriber/pkg/store"
	"podcast-transcriber/pkg/transcribe"
	"podcast-transcriber/pkg/workflow"
)

// One-shot workflow runner: transcribes and indexes a bounded number of
// episodes from a single feed, printing the status log as it goes.
func main() {
	_ = godotenv.Load()

	var (
		feedURL  = flag.String("feed", "", "Podcast RSS feed URL (required)")
		episodes = flag.Int("episodes", 1, "Number of episodes to transcribe")
		sample   = flag.Duration("sample", 60*time.Second, "Audio sample duration per episode")

		mongoURI   = flag.String("mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection string")
		dbName     = flag.String("db", "podcasts", "MongoDB database name")
		collection = flag.String("collection", "episodes", "MongoDB collection for transcripts")

		algoliaIndex = flag.String("algolia-index", search.DefaultAlgoliaIndex, "Algolia index name")
		reset        = flag.Bool("reset", false, "Clear all stored transcripts before running")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Overall run deadline")
	)
	flag.Parse()

	if *feedURL == "" {
		log.Fatal("-feed is required")
	}

	creds := domain.Credentials{
		TranscriptionKey: os.Getenv("OPENAI_API_KEY"),
		IndexAppID:       os.Getenv("ALGOLIA_APP_ID"),
		IndexWriteKey:    os.Getenv("ALGOLIA_WRITE_API_KEY"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st := store.NewMongoStore(*mongoURI, *dbName, *collection)
	if err := st.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to episode store: %v", err)
	}
	defer st.Close(context.Background())

	if *reset {
		if err := st.Clear(ctx); err != nil {
			log.Fatalf("Failed to clear episode store: %v", err)
		}
		log.Printf("Cleared all stored transcripts.")
	}

	factory := func(creds domain.Credentials) (search.Publisher, error) {
		return search.NewAlgoliaPublisher(creds.IndexAppID, creds.IndexWriteKey, *algoliaIndex)
	}

	orchestrator := workflow.NewOrchestrator(
		feed.NewReader(),
		audio.NewDownloader(),
		transcribe.NewClient(),
		st,
		factory,
		nil,
		workflow.DefaultConfig(),
	)

	start := time.Now()
	result := orchestrator.Run(ctx, workflow.Request{
		FeedURL:        *feedURL,
		EpisodeCount:   *episodes,
		SampleDuration: *sample,
		Credentials:    creds,
	})

	for _, update := range result.StatusUpdates {
		fmt.Println(update)
	}
	fmt.Println()
	fmt.Println(result.Message)
	for _, rec := range result.TranscribedEpisodes {
		fmt.Printf("\n=== %s ===\n%s\n", rec.Title, rec.TranscriptionPreview)
	}

	if result.Error != nil {
		log.Fatalf("Workflow failed after %s: %s", time.Since(start).Round(time.Second), *result.Error)
	}
	log.Printf("Done. Duration: %s", time.Since(start).Round(time.Second))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
