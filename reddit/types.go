package reddit

import "encoding/json"

// Fullname prefixes used by parent and link references.
const (
	PrefixComment = "t1_"
	PrefixLink    = "t3_"
)

const (
	kindComment   = "t1"
	kindLink      = "t3"
	kindSubreddit = "t5"
	kindMore      = "more"
)

// Subreddit is the slice of a subreddit's about record the pipeline needs.
type Subreddit struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// Submission is a post as the listing endpoints return it.
type Submission struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink"`
	URL       string `json:"url"`

	Title        string `json:"title"`
	Selftext     string `json:"selftext"`
	SelftextHTML string `json:"selftext_html"`

	Subreddit   string `json:"subreddit"`
	SubredditID string `json:"subreddit_id"`

	Author         string `json:"author"`
	AuthorFullname string `json:"author_fullname"`

	CreatedUTC float64 `json:"created_utc"`

	Score         int     `json:"score"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	NumComments   int     `json:"num_comments"`
	NumCrossposts int     `json:"num_crossposts"`

	IsSelf            bool `json:"is_self"`
	IsVideo           bool `json:"is_video"`
	IsOriginalContent bool `json:"is_original_content"`
	Over18            bool `json:"over_18"`
	Spoiler           bool `json:"spoiler"`
	Stickied          bool `json:"stickied"`
	Locked            bool `json:"locked"`
	Archived          bool `json:"archived"`

	Thumbnail         string `json:"thumbnail"`
	LinkFlairText     string `json:"link_flair_text"`
	LinkFlairCSSClass string `json:"link_flair_css_class"`
	Domain            string `json:"domain"`

	Gilded              int `json:"gilded"`
	TotalAwardsReceived int `json:"total_awards_received"`
}

// Comment is a comment as the tree endpoints return it. ParentID is a
// fullname: a t1_ prefix means the parent is another comment, a t3_ prefix
// means the parent is the post itself.
type Comment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink"`
	LinkID    string `json:"link_id"`
	ParentID  string `json:"parent_id"`

	Body     string `json:"body"`
	BodyHTML string `json:"body_html"`

	Author          string `json:"author"`
	AuthorFullname  string `json:"author_fullname"`
	AuthorFlairText string `json:"author_flair_text"`

	CreatedUTC float64    `json:"created_utc"`
	Edited     EditedTime `json:"edited"`

	Score            int `json:"score"`
	Ups              int `json:"ups"`
	Downs            int `json:"downs"`
	Controversiality int `json:"controversiality"`

	Stickied      bool   `json:"stickied"`
	Distinguished string `json:"distinguished"`
	IsSubmitter   bool   `json:"is_submitter"`

	Subreddit   string `json:"subreddit"`
	SubredditID string `json:"subreddit_id"`

	Gilded              int `json:"gilded"`
	TotalAwardsReceived int `json:"total_awards_received"`

	Replies Replies `json:"replies"`
}

// EditedTime is the API's edited marker: false when never edited, otherwise
// an epoch timestamp. Very old comments report a bare true.
type EditedTime float64

// UnmarshalJSON accepts false, true, null, or a number.
func (e *EditedTime) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "false", "null":
		*e = 0
		return nil
	case "true":
		*e = 1
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*e = EditedTime(f)
	return nil
}

// Replies is a comment's child listing. The API sends an empty string
// instead of a listing when a comment has no replies, so decoding has to be
// lenient.
type Replies struct {
	children []thing
}

// UnmarshalJSON accepts a listing object, an empty string, or null.
func (r *Replies) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] == '"' || string(data) == "null" {
		r.children = nil
		return nil
	}
	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	r.children = l.Data.Children
	return nil
}

// thing is the API's kind/data envelope.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

// more is the stub left in a comment tree where children were elided.
type more struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}
