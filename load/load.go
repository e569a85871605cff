// Package load writes extracted documents into MongoDB with idempotent
// batched upserts keyed on reddit_id, so re-running a load never duplicates
// documents.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"reddit-etl/record"
)

const (
	defaultBatchSize       = 100
	serverSelectionTimeout = 5 * time.Second
	connectTimeout         = 10 * time.Second
)

// collection is the slice of *mongo.Collection the loader uses. Tests swap in
// an in-memory implementation.
type collection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// Config locates the target database and collections.
type Config struct {
	URI                string
	Database           string
	PostsCollection    string
	CommentsCollection string
	BatchSize          int
}

// Stats counts load outcomes. Upserts that matched an existing document count
// as updates, fresh inserts as inserted.
type Stats struct {
	PostsInserted    int64
	PostsUpdated     int64
	CommentsInserted int64
	CommentsUpdated  int64
	Errors           int64
}

// LogValue implements slog.LogValuer for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("posts_inserted", s.PostsInserted),
		slog.Int64("posts_updated", s.PostsUpdated),
		slog.Int64("comments_inserted", s.CommentsInserted),
		slog.Int64("comments_updated", s.CommentsUpdated),
		slog.Int64("errors", s.Errors),
	)
}

// Loader persists posts and comments. It is not safe for concurrent use; the
// pipeline drives it from a single goroutine.
type Loader struct {
	client    *mongo.Client
	posts     collection
	comments  collection
	batchSize int
	logger    *slog.Logger

	stats Stats
}

// Connect dials MongoDB, verifies the connection with a ping, and ensures the
// lookup indexes. A failing ping is fatal; failing index builds only warn,
// since upserts still work without them.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Loader, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	logger.Info("Connected to MongoDB", "database", cfg.Database)

	db := client.Database(cfg.Database)
	posts := db.Collection(cfg.PostsCollection)
	comments := db.Collection(cfg.CommentsCollection)

	ensureIndexes(ctx, posts, postIndexes(), logger)
	ensureIndexes(ctx, comments, commentIndexes(), logger)

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Loader{
		client:    client,
		posts:     posts,
		comments:  comments,
		batchSize: batch,
		logger:    logger,
	}, nil
}

// Close disconnects from the database.
func (l *Loader) Close(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Disconnect(ctx)
}

// Stats returns a snapshot of the load counters.
func (l *Loader) Stats() Stats { return l.stats }

func postIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "reddit_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "subreddit", Value: 1}}},
		{Keys: bson.D{{Key: "created_utc", Value: 1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "created_utc", Value: -1}}},
	}
}

func commentIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "reddit_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "submission_id", Value: 1}}},
		{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		{Keys: bson.D{{Key: "depth", Value: 1}}},
		{Keys: bson.D{{Key: "submission_id", Value: 1}, {Key: "depth", Value: 1}}},
		{Keys: bson.D{{Key: "submission_id", Value: 1}, {Key: "score", Value: -1}}},
	}
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *slog.Logger) {
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		logger.Warn("Could not create indexes", "collection", coll.Name(), "error", err)
	}
}

// LoadPosts upserts posts keyed on reddit_id. Returns how many were newly
// inserted and how many updated an existing document.
func (l *Loader) LoadPosts(ctx context.Context, posts []*record.Post) (inserted, updated int64, err error) {
	models := make([]mongo.WriteModel, 0, len(posts))
	for _, p := range posts {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"reddit_id": p.RedditID}).
			SetUpdate(bson.M{"$set": p}).
			SetUpsert(true))
	}
	inserted, updated, err = l.upsertAll(ctx, l.posts, models, "posts")
	l.stats.PostsInserted += inserted
	l.stats.PostsUpdated += updated
	return inserted, updated, err
}

// LoadComments upserts comments keyed on reddit_id.
func (l *Loader) LoadComments(ctx context.Context, comments []*record.Comment) (inserted, updated int64, err error) {
	models := make([]mongo.WriteModel, 0, len(comments))
	for _, c := range comments {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"reddit_id": c.RedditID}).
			SetUpdate(bson.M{"$set": c}).
			SetUpsert(true))
	}
	inserted, updated, err = l.upsertAll(ctx, l.comments, models, "comments")
	l.stats.CommentsInserted += inserted
	l.stats.CommentsUpdated += updated
	return inserted, updated, err
}

// upsertAll executes the models in unordered batches. A batch with individual
// write failures is counted and the load continues; any other error aborts
// the remaining batches.
func (l *Loader) upsertAll(ctx context.Context, coll collection, models []mongo.WriteModel, label string) (inserted, updated int64, err error) {
	if len(models) == 0 {
		l.logger.Info("Nothing to load", "collection", label)
		return 0, 0, nil
	}

	opts := options.BulkWrite().SetOrdered(false)
	for start := 0; start < len(models); start += l.batchSize {
		end := start + l.batchSize
		if end > len(models) {
			end = len(models)
		}

		res, err := coll.BulkWrite(ctx, models[start:end], opts)

		var bwe mongo.BulkWriteException
		switch {
		case err == nil:
		case errors.As(err, &bwe):
			// Unordered writes keep going past individual failures, so the
			// result still covers the documents that landed.
			l.stats.Errors += int64(len(bwe.WriteErrors))
			l.logger.Warn("Partial batch failure",
				"collection", label, "failed", len(bwe.WriteErrors), "batch_start", start)
		default:
			l.stats.Errors++
			return inserted, updated, fmt.Errorf("bulk write %s: %w", label, err)
		}

		if res != nil {
			inserted += res.UpsertedCount
			updated += res.ModifiedCount
		}
	}

	l.logger.Info("Loaded documents", "collection", label,
		"inserted", inserted, "updated", updated, "total", len(models))
	return inserted, updated, nil
}

// SubredditCount is one row of the per-subreddit post summary.
type SubredditCount struct {
	Subreddit string  `bson:"_id"`
	Count     int64   `bson:"count"`
	AvgScore  float64 `bson:"avg_score"`
}

// PostSummary reports the stored post total and a per-subreddit breakdown.
func (l *Loader) PostSummary(ctx context.Context) (int64, []SubredditCount, error) {
	total, err := l.posts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, nil, fmt.Errorf("count posts: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$subreddit"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_score", Value: bson.D{{Key: "$avg", Value: "$score"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}
	cursor, err := l.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return total, nil, fmt.Errorf("aggregate posts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []SubredditCount
	if err := cursor.All(ctx, &rows); err != nil {
		return total, nil, fmt.Errorf("decode post summary: %w", err)
	}
	return total, rows, nil
}

// RecentPosts returns the n most recently created stored posts.
func (l *Loader) RecentPosts(ctx context.Context, n int) ([]record.Post, error) {
	return sortedDocs[record.Post](ctx, l.posts, "created_utc", n)
}

// MostCommentedPosts returns the n stored posts with the most comments.
func (l *Loader) MostCommentedPosts(ctx context.Context, n int) ([]record.Post, error) {
	return sortedDocs[record.Post](ctx, l.posts, "num_comments", n)
}

// TopComments returns the n highest-scoring stored comments.
func (l *Loader) TopComments(ctx context.Context, n int) ([]record.Comment, error) {
	return sortedDocs[record.Comment](ctx, l.comments, "score", n)
}

func sortedDocs[T any](ctx context.Context, coll collection, field string, n int) ([]T, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: field, Value: -1}}}},
		{{Key: "$limit", Value: n}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sort by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents sorted by %s: %w", field, err)
	}
	return docs, nil
}

// DepthCount is one row of the comment depth distribution.
type DepthCount struct {
	Depth int   `bson:"_id"`
	Count int64 `bson:"count"`
}

// CommentSummary reports the stored comment total and how comments distribute
// across nesting depths.
func (l *Loader) CommentSummary(ctx context.Context) (int64, []DepthCount, error) {
	total, err := l.comments.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, nil, fmt.Errorf("count comments: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$depth"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cursor, err := l.comments.Aggregate(ctx, pipeline)
	if err != nil {
		return total, nil, fmt.Errorf("aggregate comments: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []DepthCount
	if err := cursor.All(ctx, &rows); err != nil {
		return total, nil, fmt.Errorf("decode comment summary: %w", err)
	}
	return total, rows, nil
}
