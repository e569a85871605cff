// Package reddit is a minimal client for the Reddit JSON API: application
// OAuth, subreddit listings, and comment forests with "load more" expansion.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	defaultAuthURL = "https://www.reddit.com"

	maxPageSize     = 100 // listing endpoints cap limit at 100 per page
	maxMoreChildren = 100 // morechildren accepts at most 100 IDs per call
	commentPageSize = 500
)

// Sort orders supported by the listing endpoints.
const (
	SortNew = "new"
	SortTop = "top"
	SortHot = "hot"
)

// Credentials identify the application to the API.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Client talks to the Reddit JSON API with an application OAuth token.
// It is used from a single control flow and does not synchronize the token
// cache.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	creds      Credentials

	baseURL string
	authURL string

	token       string
	tokenExpiry time.Time
}

// New creates a client. A nil httpClient gets a 30 second timeout.
func New(creds Credentials, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		creds:      creds,
		baseURL:    defaultBaseURL,
		authURL:    defaultAuthURL,
	}
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	c.logger.Info("Reddit client closed")
}

// About resolves a subreddit by name, verifying it exists and is reachable.
func (c *Client) About(ctx context.Context, subreddit string) (*Subreddit, error) {
	var t thing
	if err := c.get(ctx, "/r/"+subreddit+"/about", nil, &t); err != nil {
		return nil, err
	}
	if t.Kind != kindSubreddit {
		return nil, fmt.Errorf("unexpected kind %q for r/%s", t.Kind, subreddit)
	}
	var sub Subreddit
	if err := json.Unmarshal(t.Data, &sub); err != nil {
		return nil, fmt.Errorf("decode subreddit r/%s: %w", subreddit, err)
	}
	return &sub, nil
}

// Posts lists up to limit submissions from a subreddit under the given sort,
// following the after cursor across pages. Top listings use a one-day window.
func (c *Client) Posts(ctx context.Context, subreddit, sort string, limit int) ([]*Submission, error) {
	var out []*Submission
	after := ""

	for len(out) < limit {
		page := limit - len(out)
		if page > maxPageSize {
			page = maxPageSize
		}

		q := url.Values{
			"limit":    {strconv.Itoa(page)},
			"raw_json": {"1"},
		}
		if sort == SortTop {
			q.Set("t", "day")
		}
		if after != "" {
			q.Set("after", after)
		}

		var l listing
		if err := c.get(ctx, fmt.Sprintf("/r/%s/%s", subreddit, sort), q, &l); err != nil {
			return nil, err
		}

		for _, ch := range l.Data.Children {
			if ch.Kind != kindLink {
				continue
			}
			var sub Submission
			if err := json.Unmarshal(ch.Data, &sub); err != nil {
				c.logger.Warn("Skipping undecodable submission", "subreddit", subreddit, "error", err)
				continue
			}
			out = append(out, &sub)
			if len(out) == limit {
				break
			}
		}

		if l.Data.After == "" || len(l.Data.Children) == 0 {
			break
		}
		after = l.Data.After
	}

	return out, nil
}

// CommentTree fetches a post's comment forest flattened to a list, expanding
// "more" stubs with up to moreLimit extra calls. A negative moreLimit expands
// everything; zero leaves stubs unexpanded.
func (c *Client) CommentTree(ctx context.Context, postID string, moreLimit int) ([]*Comment, error) {
	q := url.Values{
		"limit":    {strconv.Itoa(commentPageSize)},
		"raw_json": {"1"},
	}
	var pages []listing
	if err := c.get(ctx, "/comments/"+postID, q, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, fmt.Errorf("unexpected comments payload for post %s", postID)
	}

	var comments []*Comment
	var pending []string
	c.flatten(pages[1].Data.Children, &comments, &pending)

	expansions := 0
	for len(pending) > 0 {
		if moreLimit >= 0 && expansions >= moreLimit {
			c.logger.Debug("More-comment expansion limit reached",
				"post_id", postID, "expansions", expansions, "unexpanded", len(pending))
			break
		}

		batch := pending
		if len(batch) > maxMoreChildren {
			batch = batch[:maxMoreChildren]
		}
		pending = pending[len(batch):]

		things, err := c.moreChildren(ctx, PrefixLink+postID, batch)
		if err != nil {
			return nil, err
		}
		c.flatten(things, &comments, &pending)
		expansions++
	}

	return comments, nil
}

// flatten walks a comment forest depth-first, accumulating comments and the
// child IDs held by "more" stubs.
func (c *Client) flatten(children []thing, comments *[]*Comment, pending *[]string) {
	for _, ch := range children {
		switch ch.Kind {
		case kindMore:
			var m more
			if err := json.Unmarshal(ch.Data, &m); err != nil {
				c.logger.Warn("Skipping undecodable more stub", "error", err)
				continue
			}
			*pending = append(*pending, m.Children...)
		case kindComment:
			var cm Comment
			if err := json.Unmarshal(ch.Data, &cm); err != nil {
				c.logger.Warn("Skipping undecodable comment", "error", err)
				continue
			}
			replies := cm.Replies.children
			cm.Replies = Replies{}
			*comments = append(*comments, &cm)
			c.flatten(replies, comments, pending)
		}
	}
}

func (c *Client) moreChildren(ctx context.Context, linkFullname string, children []string) ([]thing, error) {
	q := url.Values{
		"link_id":  {linkFullname},
		"children": {strings.Join(children, ",")},
		"api_type": {"json"},
		"raw_json": {"1"},
	}
	var resp struct {
		JSON struct {
			Data struct {
				Things []thing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := c.get(ctx, "/api/morechildren", q, &resp); err != nil {
		return nil, err
	}
	return resp.JSON.Data.Things, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.creds.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("HTTP request failed", "url", u, "error", err)
		return &RequestError{URL: u, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("HTTP request completed",
		"url", u,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if err := statusError(resp.StatusCode, u); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", u, err)
	}
	return nil
}

// accessToken returns a cached application token, fetching a fresh one via
// the client-credentials grant when missing or near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	u := c.authURL + "/api/v1/access_token"
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("User-Agent", c.creds.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RequestError{URL: u, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close token response body", "error", closeErr)
		}
	}()

	if err := statusError(resp.StatusCode, u); err != nil {
		return "", err
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token from %s", u)
	}

	c.token = tok.AccessToken
	// Refresh a minute early so in-flight requests don't race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.logger.Info("Reddit access token acquired", "expires_in_s", tok.ExpiresIn)
	return c.token, nil
}

func statusError(code int, u string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return &ThrottledError{URL: u}
	case code >= 500:
		return &ServerError{URL: u, StatusCode: code}
	default:
		return fmt.Errorf("HTTP %d: %s", code, u)
	}
}
