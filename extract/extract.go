// Package extract pulls posts and comment forests out of the Reddit API and
// normalizes them into flat documents, skipping checkpointed posts and
// surviving per-item failures.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reddit-etl/record"
	"reddit-etl/reddit"
)

const defaultMaxAttempts = 3

// Client is the slice of the Reddit API the engine consumes.
type Client interface {
	About(ctx context.Context, subreddit string) (*reddit.Subreddit, error)
	Posts(ctx context.Context, subreddit, sort string, limit int) ([]*reddit.Submission, error)
	CommentTree(ctx context.Context, postID string, moreLimit int) ([]*reddit.Comment, error)
}

// Governor blocks until the next remote call fits under the rate ceiling.
type Governor interface {
	Wait(ctx context.Context) error
}

// Checkpoints records which posts previous runs fully processed.
type Checkpoints interface {
	IsProcessed(id string) bool
	MarkProcessed(ctx context.Context, id string) error
}

// Config controls what a run extracts.
type Config struct {
	Subreddits []string
	Sort       string
	PostLimit  int

	FetchComments    bool
	ReplaceMoreLimit int // negative expands every "more" stub
	MaxCommentDepth  int // negative keeps all depths

	DelayBetweenSubreddits time.Duration
	DelayBetweenPosts      time.Duration

	MaxAttempts int
}

// Stats counts what a run did. The engine is the only writer; Stats() hands
// out copies.
type Stats struct {
	PostsFetched       int64
	PostsProcessed     int64
	CommentsFetched    int64
	Errors             int64
	SkippedCheckpoints int64
	RateLimitWaits     int64
}

// LogValue implements slog.LogValuer for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("posts_fetched", s.PostsFetched),
		slog.Int64("posts_processed", s.PostsProcessed),
		slog.Int64("comments_fetched", s.CommentsFetched),
		slog.Int64("errors", s.Errors),
		slog.Int64("skipped_checkpoints", s.SkippedCheckpoints),
		slog.Int64("rate_limit_waits", s.RateLimitWaits),
	)
}

// Extractor is the extraction engine. It is driven from a single control
// flow per run.
type Extractor struct {
	client     Client
	governor   Governor
	checkpoint Checkpoints // nil disables checkpointing
	cfg        Config
	logger     *slog.Logger

	stats Stats

	// Retry pacing. Tests shrink these so retries finish instantly.
	throttleUnit time.Duration
	serverDelay  time.Duration
	backoffUnit  time.Duration

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New creates an extraction engine. A nil checkpoint store disables
// checkpoint skipping and saving.
func New(client Client, governor Governor, checkpoint Checkpoints, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Extractor{
		client:       client,
		governor:     governor,
		checkpoint:   checkpoint,
		cfg:          cfg,
		logger:       logger,
		throttleUnit: time.Minute,
		serverDelay:  30 * time.Second,
		backoffUnit:  time.Second,
		sleep:        sleepContext,
		now:          time.Now,
	}
}

// Stats returns a snapshot of the run counters.
func (e *Extractor) Stats() Stats { return e.stats }

// FetchPosts lists up to PostLimit posts from each configured subreddit,
// skipping checkpointed IDs. A failing subreddit is logged, counted, and
// skipped; it never aborts the whole fetch.
func (e *Extractor) FetchPosts(ctx context.Context) []*reddit.Submission {
	sort := e.cfg.Sort
	switch sort {
	case reddit.SortNew, reddit.SortTop, reddit.SortHot:
	default:
		e.logger.Warn("Unknown sort order, using hot", "sort", sort)
		sort = reddit.SortHot
	}

	var all []*reddit.Submission
	for _, name := range e.cfg.Subreddits {
		if ctx.Err() != nil {
			break
		}
		e.logger.Info("Fetching posts", "subreddit", name, "sort", sort, "limit", e.cfg.PostLimit)

		ok := e.callWithRetry(ctx, "resolve subreddit", func(ctx context.Context) error {
			_, err := e.client.About(ctx, name)
			return err
		})
		if !ok {
			e.logger.Error("Could not resolve subreddit", "subreddit", name)
			continue
		}

		if err := e.governor.Wait(ctx); err != nil {
			break
		}
		posts, err := e.client.Posts(ctx, name, sort, e.cfg.PostLimit)
		if err != nil {
			e.logger.Error("Error fetching subreddit", "subreddit", name, "error", err)
			e.stats.Errors++
			continue
		}

		count := 0
		for _, p := range posts {
			if e.checkpoint != nil && e.checkpoint.IsProcessed(p.ID) {
				e.logger.Debug("Skipping checkpointed post", "post_id", p.ID)
				e.stats.SkippedCheckpoints++
				continue
			}
			all = append(all, p)
			count++
		}
		e.logger.Info("Fetched posts", "subreddit", name, "count", count)

		if err := e.sleep(ctx, e.cfg.DelayBetweenSubreddits); err != nil {
			break
		}
	}

	e.stats.PostsFetched = int64(len(all))
	e.logger.Info("Total posts fetched", "count", len(all))
	return all
}

// PostRecord converts a submission into the document the pipeline stores.
// Submissions missing an ID or title are rejected and counted as errors.
func (e *Extractor) PostRecord(sub *reddit.Submission) (*record.Post, error) {
	if sub.ID == "" || sub.Title == "" {
		e.stats.Errors++
		return nil, fmt.Errorf("submission missing required fields (id=%q)", sub.ID)
	}

	author := sub.Author
	if author == "" {
		author = record.DeletedAuthor
	}
	name := sub.Name
	if name == "" {
		name = reddit.PrefixLink + sub.ID
	}

	return &record.Post{
		RedditID:  sub.ID,
		Name:      name,
		Permalink: sub.Permalink,
		URL:       sub.URL,

		Title:         sub.Title,
		Selftext:      sub.Selftext,
		SelftextHTML:  sub.SelftextHTML,
		SelftextPlain: plainText(sub.SelftextHTML),

		Subreddit:   sub.Subreddit,
		SubredditID: sub.SubredditID,

		Author:         author,
		AuthorFullname: sub.AuthorFullname,

		CreatedUTC: sub.CreatedUTC,
		Created:    time.Unix(int64(sub.CreatedUTC), 0).UTC(),

		Score:         sub.Score,
		UpvoteRatio:   sub.UpvoteRatio,
		NumComments:   sub.NumComments,
		NumCrossposts: sub.NumCrossposts,

		IsSelf:            sub.IsSelf,
		IsVideo:           sub.IsVideo,
		IsOriginalContent: sub.IsOriginalContent,
		Over18:            sub.Over18,
		Spoiler:           sub.Spoiler,
		Stickied:          sub.Stickied,
		Locked:            sub.Locked,
		Archived:          sub.Archived,

		Thumbnail:         sub.Thumbnail,
		LinkFlairText:     sub.LinkFlairText,
		LinkFlairCSSClass: sub.LinkFlairCSSClass,
		Domain:            sub.Domain,

		Gilded:              sub.Gilded,
		TotalAwardsReceived: sub.TotalAwardsReceived,

		ExtractedAt: e.now().UTC(),
	}, nil
}

// Comments fetches and flattens a post's comment forest, resolving each
// comment's depth and dropping those beyond the configured maximum. A single
// comment's failure is skipped, never fatal to the rest.
func (e *Extractor) Comments(ctx context.Context, sub *reddit.Submission) []*record.Comment {
	if !e.cfg.FetchComments || sub.NumComments == 0 {
		return nil
	}
	e.logger.Info("Fetching comments", "post_id", sub.ID, "num_comments", sub.NumComments)

	var tree []*reddit.Comment
	ok := e.callWithRetry(ctx, "fetch comments", func(ctx context.Context) error {
		var err error
		tree, err = e.client.CommentTree(ctx, sub.ID, e.cfg.ReplaceMoreLimit)
		return err
	})
	if !ok {
		e.logger.Error("Failed to fetch comments", "post_id", sub.ID)
		return nil
	}
	if len(tree) == 0 {
		e.logger.Info("No comments", "post_id", sub.ID)
		return nil
	}

	parents := make(map[string]string, len(tree))
	for _, c := range tree {
		if c.ID != "" && c.ParentID != "" {
			parents[c.ID] = c.ParentID
		}
	}

	out := make([]*record.Comment, 0, len(tree))
	for _, c := range tree {
		depth := Depth(c.ParentID, parents)
		if e.cfg.MaxCommentDepth >= 0 && depth > e.cfg.MaxCommentDepth {
			continue
		}
		rec, err := e.commentRecord(c, sub.ID, depth)
		if err != nil {
			e.logger.Debug("Skipping comment", "error", err)
			continue
		}
		out = append(out, rec)
	}

	e.stats.CommentsFetched += int64(len(out))
	e.logger.Info("Fetched comments", "post_id", sub.ID, "count", len(out))
	return out
}

func (e *Extractor) commentRecord(c *reddit.Comment, submissionID string, depth int) (*record.Comment, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("comment missing id (parent=%q)", c.ParentID)
	}

	author := c.Author
	if author == "" {
		author = record.DeletedAuthor
	}
	body := c.Body
	if body == "" {
		body = record.DeletedBody
	}
	name := c.Name
	if name == "" {
		name = reddit.PrefixComment + c.ID
	}

	return &record.Comment{
		RedditID:  c.ID,
		Name:      name,
		Permalink: c.Permalink,

		SubmissionID: submissionID,
		LinkID:       c.LinkID,

		ParentID: c.ParentID,
		IsRoot:   strings.HasPrefix(c.ParentID, reddit.PrefixLink),
		Depth:    depth,

		Body:      body,
		BodyHTML:  c.BodyHTML,
		BodyPlain: plainText(c.BodyHTML),

		Author:          author,
		AuthorFullname:  c.AuthorFullname,
		AuthorFlairText: c.AuthorFlairText,

		CreatedUTC: c.CreatedUTC,
		Created:    time.Unix(int64(c.CreatedUTC), 0).UTC(),
		Edited:     float64(c.Edited),

		Score:            c.Score,
		Ups:              c.Ups,
		Downs:            c.Downs,
		Controversiality: c.Controversiality,

		Stickied:      c.Stickied,
		Distinguished: c.Distinguished,
		IsSubmitter:   c.IsSubmitter,

		Subreddit:   c.Subreddit,
		SubredditID: c.SubredditID,

		Gilded:              c.Gilded,
		TotalAwardsReceived: c.TotalAwardsReceived,

		ExtractedAt: e.now().UTC(),
	}, nil
}

// ExtractAll runs the full extraction pass: list posts, then per post build
// the document, fetch its comments, and checkpoint it. One post's failure is
// logged and the loop continues. The returned error is non-nil only when the
// context is cancelled mid-run; partial results are still returned.
func (e *Extractor) ExtractAll(ctx context.Context) ([]*record.Post, []*record.Comment, error) {
	subs := e.FetchPosts(ctx)

	var posts []*record.Post
	var comments []*record.Comment

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return posts, comments, err
		}

		rec, err := e.PostRecord(sub)
		if err != nil {
			e.logger.Warn("Skipping post", "post_id", sub.ID, "error", err)
			continue
		}
		posts = append(posts, rec)
		e.stats.PostsProcessed++
		e.logger.Info("Extracted post", "post_id", rec.RedditID, "index", i+1, "total", len(subs))

		if e.cfg.FetchComments {
			comments = append(comments, e.Comments(ctx, sub)...)
			if i < len(subs)-1 {
				if err := e.sleep(ctx, e.cfg.DelayBetweenPosts); err != nil {
					return posts, comments, err
				}
			}
		}

		// Checkpoint only after the post and its comments are fully done, so
		// a crash never marks a half-processed post as complete.
		if e.checkpoint != nil {
			if err := e.checkpoint.MarkProcessed(ctx, rec.RedditID); err != nil {
				e.stats.Errors++
				e.logger.Error("Failed to save checkpoint", "post_id", rec.RedditID, "error", err)
			}
		}
	}

	e.logger.Info("Extraction complete", "posts", len(posts), "comments", len(comments), "stats", e.stats)
	return posts, comments, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
