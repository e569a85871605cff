// Package main runs the Reddit ETL pipeline: extract posts and comment
// forests from configured subreddits, normalize them, and load them into
// MongoDB, checkpointing progress between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"

	"reddit-etl/checkpoint"
	"reddit-etl/config"
	"reddit-etl/extract"
	"reddit-etl/load"
	"reddit-etl/ratelimit"
	"reddit-etl/reddit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "run":
		err = runPipeline(ctx, logger)
	case "test":
		err = runTest(ctx, logger)
	case "clear":
		err = runClear(ctx, logger)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Interrupted, shutting down")
			return
		}
		logger.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHelp() {
	fmt.Println(`reddit-etl - extract Reddit posts and comments into MongoDB

Usage:
  reddit-etl [command]

Commands:
  run     Run the full pipeline (default)
  test    Fetch a few posts and print them without touching the database
  clear   Remove the checkpoint so the next run starts from scratch
  help    Show this help

Configuration comes from config.yaml in the working directory plus the
environment (REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, MONGO_URI,
CHECKPOINT_BUCKET).`)
}

// newCheckpointStore picks the durable backend: a GCS object when a bucket is
// configured, a local JSON file otherwise.
func newCheckpointStore(ctx context.Context, cfg config.Checkpoint, logger *slog.Logger) (*checkpoint.Store, func(), error) {
	if cfg.Bucket == "" {
		return checkpoint.NewFile(cfg.Path, logger), func() {}, nil
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	closer := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return checkpoint.NewBucket(ctx, client, cfg.Bucket, cfg.Object, logger), closer, nil
}

func extractorConfig(cfg *config.Config) extract.Config {
	return extract.Config{
		Subreddits:             cfg.ETL.Subreddits,
		Sort:                   cfg.ETL.Sort,
		PostLimit:              cfg.ETL.PostLimit,
		FetchComments:          cfg.ETL.FetchComments,
		ReplaceMoreLimit:       cfg.ETL.ReplaceMoreLimit,
		MaxCommentDepth:        cfg.ETL.MaxCommentDepth,
		DelayBetweenSubreddits: cfg.ETL.DelayBetweenSubreddits,
		DelayBetweenPosts:      cfg.ETL.DelayBetweenPosts,
		MaxAttempts:            cfg.ETL.MaxAttempts,
	}
}

func runPipeline(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	start := time.Now()
	logger.Info("Starting pipeline",
		"subreddits", cfg.ETL.Subreddits,
		"sort", cfg.ETL.Sort,
		"post_limit", cfg.ETL.PostLimit)

	loader, err := load.Connect(ctx, load.Config{
		URI:                cfg.Mongo.URI,
		Database:           cfg.Mongo.Database,
		PostsCollection:    cfg.Mongo.PostsCollection,
		CommentsCollection: cfg.Mongo.CommentsCollection,
		BatchSize:          cfg.Mongo.BatchSize,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := loader.Close(context.Background()); err != nil {
			logger.Warn("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	store, closeStore, err := newCheckpointStore(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if last := store.LastRun(); last != nil {
		logger.Info("Resuming from checkpoint", "last_run", last.Format(time.RFC3339))
	}

	client := reddit.New(reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
	}, nil, logger)
	defer client.Close()

	governor := ratelimit.New(cfg.ETL.RequestsPerMinute, logger)
	extractor := extract.New(client, governor, store, extractorConfig(cfg), logger)

	posts, comments, err := extractor.ExtractAll(ctx)
	if err != nil {
		// Load whatever was extracted before the interrupt, then stop.
		logger.Warn("Extraction interrupted, loading partial results",
			"posts", len(posts), "comments", len(comments))
	}

	loadCtx := context.WithoutCancel(ctx)
	if _, _, loadErr := loader.LoadPosts(loadCtx, posts); loadErr != nil {
		return loadErr
	}
	if _, _, loadErr := loader.LoadComments(loadCtx, comments); loadErr != nil {
		return loadErr
	}

	printSummary(loadCtx, loader, extractor.Stats(), governor.Total(), time.Since(start), logger)
	return err
}

func printSummary(ctx context.Context, loader *load.Loader, es extract.Stats, apiCalls int64, elapsed time.Duration, logger *slog.Logger) {
	ls := loader.Stats()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("PIPELINE SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Duration:             %s\n", elapsed.Round(time.Second))
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Throughput:           %.2f posts/sec\n", float64(es.PostsProcessed)/secs)
	}
	fmt.Printf("API calls:            %d\n", apiCalls)
	fmt.Println()
	fmt.Println("Extraction")
	fmt.Printf("  Posts fetched:      %d\n", es.PostsFetched)
	fmt.Printf("  Posts processed:    %d\n", es.PostsProcessed)
	fmt.Printf("  Comments fetched:   %d\n", es.CommentsFetched)
	fmt.Printf("  Skipped (seen):     %d\n", es.SkippedCheckpoints)
	fmt.Printf("  Rate limit waits:   %d\n", es.RateLimitWaits)
	fmt.Printf("  Errors:             %d\n", es.Errors)
	fmt.Println()
	fmt.Println("Load")
	fmt.Printf("  Posts inserted:     %d\n", ls.PostsInserted)
	fmt.Printf("  Posts updated:      %d\n", ls.PostsUpdated)
	fmt.Printf("  Comments inserted:  %d\n", ls.CommentsInserted)
	fmt.Printf("  Comments updated:   %d\n", ls.CommentsUpdated)
	fmt.Printf("  Errors:             %d\n", ls.Errors)

	postTotal, bySubreddit, err := loader.PostSummary(ctx)
	if err != nil {
		logger.Warn("Could not summarize stored posts", "error", err)
	} else {
		fmt.Println()
		fmt.Printf("Stored posts:         %d\n", postTotal)
		for _, row := range bySubreddit {
			fmt.Printf("  r/%-18s %d (avg score %.1f)\n", row.Subreddit, row.Count, row.AvgScore)
		}
	}

	commentTotal, byDepth, err := loader.CommentSummary(ctx)
	if err != nil {
		logger.Warn("Could not summarize stored comments", "error", err)
	} else {
		fmt.Printf("Stored comments:      %d\n", commentTotal)
		for _, row := range byDepth {
			fmt.Printf("  depth %-2d            %d\n", row.Depth, row.Count)
		}
	}

	if recent, err := loader.RecentPosts(ctx, 5); err != nil {
		logger.Warn("Could not list recent posts", "error", err)
	} else if len(recent) > 0 {
		fmt.Println()
		fmt.Println("Most recent posts")
		for _, p := range recent {
			fmt.Printf("  [%s] r/%s: %s\n", p.Created.Format("2006-01-02 15:04"), p.Subreddit, truncate(p.Title, 60))
		}
	}

	if busiest, err := loader.MostCommentedPosts(ctx, 5); err != nil {
		logger.Warn("Could not list most commented posts", "error", err)
	} else if len(busiest) > 0 {
		fmt.Println()
		fmt.Println("Most commented posts")
		for _, p := range busiest {
			fmt.Printf("  %4d comments  r/%s: %s\n", p.NumComments, p.Subreddit, truncate(p.Title, 60))
		}
	}

	if top, err := loader.TopComments(ctx, 5); err != nil {
		logger.Warn("Could not list top comments", "error", err)
	} else if len(top) > 0 {
		fmt.Println()
		fmt.Println("Top comments by score")
		for _, c := range top {
			fmt.Printf("  %4d  %s: %s\n", c.Score, c.Author, truncate(c.Body, 60))
		}
	}
	fmt.Println(strings.Repeat("=", 60))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// runTest fetches a handful of posts and prints them, exercising the API
// credentials and the extraction path without MongoDB or checkpoints.
func runTest(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := reddit.New(reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
	}, nil, logger)
	defer client.Close()

	ecfg := extractorConfig(cfg)
	ecfg.PostLimit = 3
	ecfg.DelayBetweenSubreddits = 0
	ecfg.DelayBetweenPosts = 0

	governor := ratelimit.New(cfg.ETL.RequestsPerMinute, logger)
	extractor := extract.New(client, governor, nil, ecfg, logger)

	subs := extractor.FetchPosts(ctx)
	if len(subs) == 0 {
		return errors.New("no posts fetched; check credentials and subreddit names")
	}

	for i, sub := range subs {
		rec, err := extractor.PostRecord(sub)
		if err != nil {
			logger.Warn("Skipping post", "post_id", sub.ID, "error", err)
			continue
		}
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("Post %d/%d\n", i+1, len(subs))
		fmt.Printf("  id:          %s\n", rec.RedditID)
		fmt.Printf("  subreddit:   r/%s\n", rec.Subreddit)
		fmt.Printf("  title:       %s\n", rec.Title)
		fmt.Printf("  author:      %s\n", rec.Author)
		fmt.Printf("  score:       %d (ratio %.2f)\n", rec.Score, rec.UpvoteRatio)
		fmt.Printf("  comments:    %d\n", rec.NumComments)
		fmt.Printf("  created:     %s\n", rec.Created.Format(time.RFC3339))
		fmt.Printf("  permalink:   %s\n", rec.Permalink)

		if i == 0 && ecfg.FetchComments {
			comments := extractor.Comments(ctx, sub)
			depths := map[int]int{}
			for _, c := range comments {
				depths[c.Depth]++
			}
			fmt.Printf("  comment depth distribution: %v\n", depths)
			if len(comments) > 0 {
				c := comments[0]
				body := c.Body
				if len(body) > 120 {
					body = body[:120] + "..."
				}
				fmt.Printf("  sample comment (%s, depth %d): %s\n", c.Author, c.Depth, body)
			}
		}
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Println("Test fetch complete. Run without arguments to load into MongoDB.")
	return nil
}

// runClear removes the checkpoint so the next run reprocesses everything.
func runClear(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, closeStore, err := newCheckpointStore(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Clear(ctx); err != nil {
		return err
	}
	logger.Info("Checkpoint cleared")
	fmt.Println("Checkpoint cleared. The next run will reprocess all posts.")
	return nil
}
