package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"reddit-etl/reddit"
)

type fakeClient struct {
	subreddits map[string]*reddit.Subreddit
	posts      map[string][]*reddit.Submission
	trees      map[string][]*reddit.Comment

	aboutErr error
	postsErr error
	treeErr  error

	sortSeen      string
	treeCalls     int
	moreLimitSeen int
}

func (c *fakeClient) About(_ context.Context, name string) (*reddit.Subreddit, error) {
	if c.aboutErr != nil {
		return nil, c.aboutErr
	}
	if s, ok := c.subreddits[name]; ok {
		return s, nil
	}
	return &reddit.Subreddit{DisplayName: name}, nil
}

func (c *fakeClient) Posts(_ context.Context, name, sort string, _ int) ([]*reddit.Submission, error) {
	c.sortSeen = sort
	if c.postsErr != nil {
		return nil, c.postsErr
	}
	return c.posts[name], nil
}

func (c *fakeClient) CommentTree(_ context.Context, postID string, moreLimit int) ([]*reddit.Comment, error) {
	c.treeCalls++
	c.moreLimitSeen = moreLimit
	if c.treeErr != nil {
		return nil, c.treeErr
	}
	return c.trees[postID], nil
}

type fakeCheckpoints struct {
	done    map[string]bool
	marked  []string
	markErr error
}

func (f *fakeCheckpoints) IsProcessed(id string) bool { return f.done[id] }

func (f *fakeCheckpoints) MarkProcessed(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	return nil
}

func submission(id, title string) *reddit.Submission {
	return &reddit.Submission{
		ID:        id,
		Name:      reddit.PrefixLink + id,
		Title:     title,
		Author:    "someone",
		Subreddit: "golang",
	}
}

func newTestExtractor(client Client, cp Checkpoints, cfg Config) *Extractor {
	e := New(client, &countingGovernor{}, cp, cfg, discardLogger())
	e.throttleUnit = time.Millisecond
	e.serverDelay = time.Millisecond
	e.backoffUnit = time.Millisecond
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func TestExtractAllSkipsPostMissingTitle(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{
			"golang": {
				submission("p1", "first"),
				submission("p2", ""),
				submission("p3", "third"),
			},
		},
	}
	e := newTestExtractor(client, nil, Config{Subreddits: []string{"golang"}, Sort: reddit.SortHot})

	posts, _, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if posts[0].RedditID != "p1" || posts[1].RedditID != "p3" {
		t.Errorf("Expected p1 and p3, got %q and %q", posts[0].RedditID, posts[1].RedditID)
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Expected 1 error for the rejected post, got %d", got)
	}
	if got := e.Stats().PostsProcessed; got != 2 {
		t.Errorf("Expected 2 posts processed, got %d", got)
	}
}

func TestFetchPostsSkipsCheckpointed(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{
			"golang": {
				submission("abc", "seen before"),
				submission("def", "new"),
			},
		},
	}
	cp := &fakeCheckpoints{done: map[string]bool{"abc": true}}
	e := newTestExtractor(client, cp, Config{Subreddits: []string{"golang"}, Sort: reddit.SortNew})

	posts := e.FetchPosts(context.Background())
	if len(posts) != 1 || posts[0].ID != "def" {
		t.Fatalf("Expected only the unseen post, got %v", posts)
	}
	if got := e.Stats().SkippedCheckpoints; got != 1 {
		t.Errorf("Expected 1 skipped checkpoint, got %d", got)
	}
	if got := e.Stats().PostsFetched; got != 1 {
		t.Errorf("Expected PostsFetched to exclude skipped posts, got %d", got)
	}
}

func TestFetchPostsUnknownSortFallsBackToHot(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{"golang": {submission("p1", "t")}},
	}
	e := newTestExtractor(client, nil, Config{Subreddits: []string{"golang"}, Sort: "rising"})

	e.FetchPosts(context.Background())
	if client.sortSeen != reddit.SortHot {
		t.Errorf("Expected fallback to %q, client saw %q", reddit.SortHot, client.sortSeen)
	}
}

func TestFetchPostsSubredditFailureSkipsSource(t *testing.T) {
	client := &fakeClient{
		posts:    map[string][]*reddit.Submission{"golang": {submission("p1", "t")}},
		aboutErr: errors.New("banned"),
	}
	e := newTestExtractor(client, nil, Config{Subreddits: []string{"golang"}, Sort: reddit.SortHot, MaxAttempts: 2})

	posts := e.FetchPosts(context.Background())
	if len(posts) != 0 {
		t.Fatalf("Expected no posts from a failing subreddit, got %d", len(posts))
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Expected 1 error, got %d", got)
	}
}

func TestFetchPostsListingFailureCountsAndContinues(t *testing.T) {
	client := &fakeClient{postsErr: errors.New("boom")}
	e := newTestExtractor(client, nil, Config{Subreddits: []string{"golang", "rust"}, Sort: reddit.SortHot})

	posts := e.FetchPosts(context.Background())
	if len(posts) != 0 {
		t.Fatalf("Expected no posts, got %d", len(posts))
	}
	if got := e.Stats().Errors; got != 2 {
		t.Errorf("Expected one error per failing subreddit, got %d", got)
	}
}

func commentFixture(id, parentID string, body string) *reddit.Comment {
	return &reddit.Comment{
		ID:       id,
		Name:     reddit.PrefixComment + id,
		ParentID: parentID,
		Body:     body,
		Author:   "someone",
	}
}

func TestCommentsResolveDepthAndRoot(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 3
	client := &fakeClient{
		trees: map[string][]*reddit.Comment{
			"p1": {
				commentFixture("c1", "t3_p1", "root"),
				commentFixture("c2", "t1_c1", "reply"),
				commentFixture("c3", "t1_c2", "deep"),
			},
		},
	}
	e := newTestExtractor(client, nil, Config{FetchComments: true, MaxCommentDepth: -1, ReplaceMoreLimit: -1})

	out := e.Comments(context.Background(), sub)
	if len(out) != 3 {
		t.Fatalf("Expected 3 comments, got %d", len(out))
	}
	wantDepths := map[string]int{"c1": 0, "c2": 1, "c3": 2}
	for _, c := range out {
		if c.Depth != wantDepths[c.RedditID] {
			t.Errorf("Comment %s depth = %d, want %d", c.RedditID, c.Depth, wantDepths[c.RedditID])
		}
		if wantRoot := c.RedditID == "c1"; c.IsRoot != wantRoot {
			t.Errorf("Comment %s IsRoot = %v, want %v", c.RedditID, c.IsRoot, wantRoot)
		}
		if c.SubmissionID != "p1" {
			t.Errorf("Comment %s SubmissionID = %q", c.RedditID, c.SubmissionID)
		}
	}
	if client.moreLimitSeen != -1 {
		t.Errorf("Expected the expansion limit to pass through, got %d", client.moreLimitSeen)
	}
	if got := e.Stats().CommentsFetched; got != 3 {
		t.Errorf("Expected 3 comments counted, got %d", got)
	}
}

func TestCommentsMaxDepthFilter(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 3
	client := &fakeClient{
		trees: map[string][]*reddit.Comment{
			"p1": {
				commentFixture("c1", "t3_p1", "root"),
				commentFixture("c2", "t1_c1", "reply"),
				commentFixture("c3", "t1_c2", "too deep"),
			},
		},
	}
	e := newTestExtractor(client, nil, Config{FetchComments: true, MaxCommentDepth: 1})

	out := e.Comments(context.Background(), sub)
	if len(out) != 2 {
		t.Fatalf("Expected the depth-2 comment dropped, got %d comments", len(out))
	}
	for _, c := range out {
		if c.Depth > 1 {
			t.Errorf("Comment %s exceeds the depth limit at %d", c.RedditID, c.Depth)
		}
	}
}

func TestCommentsMissingParentKeepsPartialDepth(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 1
	client := &fakeClient{
		trees: map[string][]*reddit.Comment{
			"p1": {commentFixture("c2", "t1_ghost", "orphan")},
		},
	}
	e := newTestExtractor(client, nil, Config{FetchComments: true, MaxCommentDepth: -1})

	out := e.Comments(context.Background(), sub)
	if len(out) != 1 {
		t.Fatalf("Expected the orphaned comment kept, got %d", len(out))
	}
	if out[0].Depth != 0 {
		t.Errorf("Expected partial depth 0 for an unknown parent, got %d", out[0].Depth)
	}
}

func TestCommentsDisabled(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 10
	client := &fakeClient{}
	e := newTestExtractor(client, nil, Config{FetchComments: false})

	if out := e.Comments(context.Background(), sub); out != nil {
		t.Fatalf("Expected no comments when fetching is disabled, got %d", len(out))
	}
	if client.treeCalls != 0 {
		t.Errorf("Expected no API call, got %d", client.treeCalls)
	}
}

func TestCommentsSkipsPostWithNone(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 0
	client := &fakeClient{}
	e := newTestExtractor(client, nil, Config{FetchComments: true})

	e.Comments(context.Background(), sub)
	if client.treeCalls != 0 {
		t.Errorf("Expected no API call for a post without comments, got %d", client.treeCalls)
	}
}

func TestCommentsDeletedFieldsSubstituted(t *testing.T) {
	sub := submission("p1", "t")
	sub.NumComments = 1
	c := commentFixture("c1", "t3_p1", "")
	c.Author = ""
	client := &fakeClient{trees: map[string][]*reddit.Comment{"p1": {c}}}
	e := newTestExtractor(client, nil, Config{FetchComments: true, MaxCommentDepth: -1})

	out := e.Comments(context.Background(), sub)
	if len(out) != 1 {
		t.Fatalf("Expected 1 comment, got %d", len(out))
	}
	if out[0].Author != "[deleted]" || out[0].Body != "[deleted]" {
		t.Errorf("Expected deleted placeholders, got author=%q body=%q", out[0].Author, out[0].Body)
	}
}

func TestExtractAllMarksCheckpointsInOrder(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{
			"golang": {submission("p1", "a"), submission("p2", "b")},
		},
	}
	cp := &fakeCheckpoints{done: map[string]bool{}}
	e := newTestExtractor(client, cp, Config{Subreddits: []string{"golang"}, Sort: reddit.SortHot})

	if _, _, err := e.ExtractAll(context.Background()); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(cp.marked) != 2 || cp.marked[0] != "p1" || cp.marked[1] != "p2" {
		t.Errorf("Expected checkpoints [p1 p2], got %v", cp.marked)
	}
}

func TestExtractAllCheckpointFailureCountsError(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{"golang": {submission("p1", "a")}},
	}
	cp := &fakeCheckpoints{done: map[string]bool{}, markErr: errors.New("disk full")}
	e := newTestExtractor(client, cp, Config{Subreddits: []string{"golang"}, Sort: reddit.SortHot})

	posts, _, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("Expected the post still returned, got %d", len(posts))
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Expected checkpoint failure counted, got %d errors", got)
	}
}

func TestExtractAllCancelledContextReturnsPartial(t *testing.T) {
	client := &fakeClient{
		posts: map[string][]*reddit.Submission{"golang": {submission("p1", "a")}},
	}
	e := newTestExtractor(client, nil, Config{Subreddits: []string{"golang"}, Sort: reddit.SortHot})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.ExtractAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPostRecordFieldMapping(t *testing.T) {
	sub := &reddit.Submission{
		ID:           "p1",
		Title:        "hello",
		SelftextHTML: "<div><p>body &amp; soul</p></div>",
		CreatedUTC:   1700000000,
		Score:        42,
		Over18:       true,
	}
	e := newTestExtractor(&fakeClient{}, nil, Config{})
	fixed := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	rec, err := e.PostRecord(sub)
	if err != nil {
		t.Fatalf("PostRecord: %v", err)
	}
	if rec.Name != "t3_p1" {
		t.Errorf("Expected synthesized fullname t3_p1, got %q", rec.Name)
	}
	if rec.Author != "[deleted]" {
		t.Errorf("Expected deleted placeholder for missing author, got %q", rec.Author)
	}
	if rec.SelftextPlain != "body & soul" {
		t.Errorf("Expected plain text extraction, got %q", rec.SelftextPlain)
	}
	if want := time.Unix(1700000000, 0).UTC(); !rec.Created.Equal(want) {
		t.Errorf("Created = %v, want %v", rec.Created, want)
	}
	if !rec.ExtractedAt.Equal(fixed) {
		t.Errorf("ExtractedAt = %v, want %v", rec.ExtractedAt, fixed)
	}
	if !rec.Over18 || rec.Score != 42 {
		t.Error("Flag or score fields did not carry over")
	}
}
