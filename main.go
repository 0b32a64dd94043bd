package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"podcast-transcriber/pkg/audio"
	"podcast-transcriber/pkg/domain"
	"podcast-transcriber/pkg/feed"
	"podcast-transcriber/pkg/search"
	"podcast-transcriber/pkg/server"
	"podcast-transcriber/pkg/shownotes"
	"podcast-transcriber/pkg/store"
	"podcast-transcriber/pkg/transcribe"
	"podcast-transcriber/pkg/workflow"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var (
		addr = flag.String("addr", defaultAddr(), "HTTP listen address")

		storeBackend = flag.String("store", "mongo", "Episode store backend: mongo, postgres or supabase")
		mongoURI     = flag.String("mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection string")
		dbName       = flag.String("db", "podcasts", "MongoDB database name")
		collection   = flag.String("collection", "episodes", "MongoDB collection for transcripts")
		postgresDSN  = flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for the postgres store backend")
		supabaseURL  = flag.String("supabase-url", os.Getenv("SUPABASE_URL"), "Supabase project URL for the supabase store backend")
		supabaseKey  = flag.String("supabase-key", os.Getenv("SUPABASE_KEY"), "Supabase API key")
		supabasePass = flag.String("supabase-password", os.Getenv("SUPABASE_DB_PASSWORD"), "Supabase database password")

		publisherBackend = flag.String("publisher", "algolia", "Index publisher backend: algolia or postgres")
		algoliaIndex     = flag.String("algolia-index", search.DefaultAlgoliaIndex, "Algolia index name")

		skipExisting   = flag.Bool("skip-existing", true, "Reuse stored transcripts instead of re-transcribing")
		reindex        = flag.Bool("reindex-existing", true, "Re-publish reused transcripts to the search index")
		enrichNotes    = flag.Bool("enrich-shownotes", false, "Fetch episode pages and extract show notes text")
		stageTimeout   = flag.Duration("stage-timeout", 5*time.Minute, "Timeout per external call (feed, audio, transcription, store, index)")
		retryCount     = flag.Int("retry-count", 3, "Attempts for transient network calls")
		retryBackoff   = flag.Duration("retry-backoff", 500*time.Millisecond, "Initial backoff between retries")
		sampleDuration = flag.Duration("sample-duration", 60*time.Second, "Default audio sample duration when a request omits one")
	)
	flag.Parse()

	ctx := context.Background()

	st, closeStore, err := buildStore(ctx, *storeBackend, storeOptions{
		mongoURI:     *mongoURI,
		dbName:       *dbName,
		collection:   *collection,
		postgresDSN:  *postgresDSN,
		supabaseURL:  *supabaseURL,
		supabaseKey:  *supabaseKey,
		supabasePass: *supabasePass,
	})
	if err != nil {
		log.Fatalf("Failed to initialize episode store: %v", err)
	}
	defer closeStore()

	factory, err := buildPublisherFactory(ctx, *publisherBackend, *algoliaIndex, *postgresDSN)
	if err != nil {
		log.Fatalf("Failed to initialize index publisher: %v", err)
	}

	cfg := workflow.DefaultConfig()
	cfg.SkipExistingTranscripts = *skipExisting
	cfg.ReindexExisting = *reindex
	cfg.EnrichShowNotes = *enrichNotes
	cfg.PerStageTimeout = *stageTimeout
	cfg.RetryCount = *retryCount
	cfg.RetryBackoff = *retryBackoff
	cfg.DefaultSampleDuration = *sampleDuration

	orchestrator := workflow.NewOrchestrator(
		feed.NewReader(),
		audio.NewDownloader(),
		transcribe.NewClient(),
		st,
		factory,
		shownotes.NewExtractor(),
		cfg,
	)

	log.Printf("Listening on %s (store=%s, publisher=%s)", *addr, *storeBackend, *publisherBackend)
	log.Fatal(http.ListenAndServe(*addr, server.New(orchestrator)))
}

type storeOptions struct {
	mongoURI     string
	dbName       string
	collection   string
	postgresDSN  string
	supabaseURL  string
	supabaseKey  string
	supabasePass string
}

// buildStore connects the selected episode store backend and returns it with
// a cleanup func.
func buildStore(ctx context.Context, backend string, opts storeOptions) (store.Store, func(), error) {
	switch backend {
	case "mongo":
		ms := store.NewMongoStore(opts.mongoURI, opts.dbName, opts.collection)
		if err := ms.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return ms, func() { _ = ms.Close(context.Background()) }, nil

	case "postgres":
		pg := store.NewPostgresClient(store.PostgresConfig{DSN: opts.postgresDSN})
		if err := pg.Connect(ctx); err != nil {
			return nil, nil, err
		}
		ps, err := store.NewPostgresStore(ctx, pg)
		if err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		return ps, func() { _ = pg.Close() }, nil

	case "supabase":
		sb := store.NewSupabaseClient(store.SupabaseConfig{
			SupabaseURL: opts.supabaseURL,
			SupabaseKey: opts.supabaseKey,
			Password:    opts.supabasePass,
		})
		if err := sb.Connect(ctx); err != nil {
			return nil, nil, err
		}
		ps, err := store.NewPostgresStore(ctx, sb)
		if err != nil {
			_ = sb.Close()
			return nil, nil, err
		}
		return ps, func() { _ = sb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// buildPublisherFactory returns the per-request publisher constructor. The
// Algolia publisher is built per run from request credentials; the Postgres
// publisher shares one connection but still requires credentials to pass
// request validation.
func buildPublisherFactory(ctx context.Context, backend, algoliaIndex, postgresDSN string) (workflow.PublisherFactory, error) {
	switch backend {
	case "algolia":
		return func(creds domain.Credentials) (search.Publisher, error) {
			return search.NewAlgoliaPublisher(creds.IndexAppID, creds.IndexWriteKey, algoliaIndex)
		}, nil

	case "postgres":
		pg := store.NewPostgresClient(store.PostgresConfig{DSN: postgresDSN})
		if err := pg.Connect(ctx); err != nil {
			return nil, err
		}
		publisher, err := search.NewPostgresPublisher(ctx, pg)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		return func(domain.Credentials) (search.Publisher, error) {
			return publisher, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown publisher backend %q", backend)
	}
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5001"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
