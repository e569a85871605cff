// Package record defines the documents the pipeline persists.
package record

import "time"

// DeletedAuthor is the sentinel stored when an author account is removed.
const DeletedAuthor = "[deleted]"

// DeletedBody is the sentinel stored when a comment body is unavailable.
const DeletedBody = "[deleted]"

// Post is one stored submission, keyed on RedditID.
type Post struct {
	RedditID  string `bson:"reddit_id"`
	Name      string `bson:"name"`
	Permalink string `bson:"permalink"`
	URL       string `bson:"url"`

	Title         string `bson:"title"`
	Selftext      string `bson:"selftext"`
	SelftextHTML  string `bson:"selftext_html,omitempty"`
	SelftextPlain string `bson:"selftext_plain,omitempty"`

	Subreddit   string `bson:"subreddit"`
	SubredditID string `bson:"subreddit_id"`

	Author         string `bson:"author"`
	AuthorFullname string `bson:"author_fullname,omitempty"`

	CreatedUTC float64   `bson:"created_utc"`
	Created    time.Time `bson:"created"`

	Score         int     `bson:"score"`
	UpvoteRatio   float64 `bson:"upvote_ratio"`
	NumComments   int     `bson:"num_comments"`
	NumCrossposts int     `bson:"num_crossposts"`

	IsSelf            bool `bson:"is_self"`
	IsVideo           bool `bson:"is_video"`
	IsOriginalContent bool `bson:"is_original_content"`
	Over18            bool `bson:"over_18"`
	Spoiler           bool `bson:"spoiler"`
	Stickied          bool `bson:"stickied"`
	Locked            bool `bson:"locked"`
	Archived          bool `bson:"archived"`

	Thumbnail         string `bson:"thumbnail,omitempty"`
	LinkFlairText     string `bson:"link_flair_text,omitempty"`
	LinkFlairCSSClass string `bson:"link_flair_css_class,omitempty"`
	Domain            string `bson:"domain,omitempty"`

	Gilded              int `bson:"gilded"`
	TotalAwardsReceived int `bson:"total_awards_received"`

	ExtractedAt time.Time `bson:"extracted_at"`
}

// Comment is one stored comment, keyed on RedditID. Depth is the resolved
// nesting level relative to the post: 0 means a direct reply to the post.
type Comment struct {
	RedditID  string `bson:"reddit_id"`
	Name      string `bson:"name"`
	Permalink string `bson:"permalink"`

	SubmissionID string `bson:"submission_id"`
	LinkID       string `bson:"link_id"`

	ParentID string `bson:"parent_id"`
	IsRoot   bool   `bson:"is_root"`
	Depth    int    `bson:"depth"`

	Body      string `bson:"body"`
	BodyHTML  string `bson:"body_html,omitempty"`
	BodyPlain string `bson:"body_plain,omitempty"`

	Author          string `bson:"author"`
	AuthorFullname  string `bson:"author_fullname,omitempty"`
	AuthorFlairText string `bson:"author_flair_text,omitempty"`

	CreatedUTC float64   `bson:"created_utc"`
	Created    time.Time `bson:"created"`
	Edited     float64   `bson:"edited"` // epoch seconds, 0 when never edited

	Score            int `bson:"score"`
	Ups              int `bson:"ups"`
	Downs            int `bson:"downs"`
	Controversiality int `bson:"controversiality"`

	Stickied      bool   `bson:"stickied"`
	Distinguished string `bson:"distinguished,omitempty"`
	IsSubmitter   bool   `bson:"is_submitter"`

	Subreddit   string `bson:"subreddit"`
	SubredditID string `bson:"subreddit_id"`

	Gilded              int `bson:"gilded"`
	TotalAwardsReceived int `bson:"total_awards_received"`

	ExtractedAt time.Time `bson:"extracted_at"`
}
