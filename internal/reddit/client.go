// Package reddit is a typed HTTP client for the slice of the Reddit API the
// bot needs: streaming new submissions, comments and inbox mentions, and
// posting, editing and deleting its own replies.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrForbidden marks an action the bot account lacks privileges for, such as
// stickying a comment in a subreddit it does not moderate.
var ErrForbidden = errors.New("forbidden")

const (
	defaultBaseURL      = "https://oauth.reddit.com"
	defaultTokenURL     = "https://www.reddit.com/api/v1/access_token"
	defaultPollInterval = 5 * time.Second

	// Reddit allows 60 requests per minute for OAuth clients.
	defaultRequestsPerMinute = 60
)

// Config holds Reddit API credentials for a script-type app plus the
// subreddit rosters to stream.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	PollInterval time.Duration

	// RequestsPerMinute caps the request rate; defaults to Reddit's limit.
	RequestsPerMinute int

	SubmissionSubreddits []string
	CommentSubreddits    []string
}

// Client talks to the Reddit API. It is driven by the bot's single control
// loop and is not safe for concurrent use.
type Client struct {
	baseURL      string
	userAgent    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration

	submissions *stream
	comments    *stream
	mentions    *stream
}

// NewClient authenticates with the password grant and prepares the three
// item streams. A failure here is a startup handshake failure and should
// terminate the process.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}
	requestsPerMinute := cfg.RequestsPerMinute
	if requestsPerMinute == 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	token, err := conf.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with reddit: %w", err)
	}

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		userAgent:    cfg.UserAgent,
		httpClient:   conf.Client(ctx, token),
		limiter:      rate.NewLimiter(rate.Limit(requestsPerMinute)/60.0, 1),
		pollInterval: pollInterval,
	}
	client.submissions = newStream(client, "/r/"+strings.Join(cfg.SubmissionSubreddits, "+")+"/new")
	client.comments = newStream(client, "/r/"+strings.Join(cfg.CommentSubreddits, "+")+"/comments")
	client.mentions = newStream(client, "/message/mentions")
	return client, nil
}

// Me returns the username of the authenticated account.
func (c *Client) Me(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/api/v1/me", nil, &me); err != nil {
		return "", fmt.Errorf("failed to fetch identity: %w", err)
	}
	return me.Name, nil
}

// NextSubmissions returns the next batch of unseen submissions, oldest
// first. An empty batch means the stream is caught up.
func (c *Client) NextSubmissions(ctx context.Context) ([]*Submission, error) {
	things, err := c.submissions.next(ctx)
	if err != nil {
		return nil, err
	}
	return decodeSubmissions(things)
}

// NextComments returns the next batch of unseen comments from the tracked
// subreddits, oldest first.
func (c *Client) NextComments(ctx context.Context) ([]*Comment, error) {
	things, err := c.comments.next(ctx)
	if err != nil {
		return nil, err
	}
	return decodeComments(things)
}

// NextMentions returns the next batch of unseen username mentions.
func (c *Client) NextMentions(ctx context.Context) ([]*Comment, error) {
	things, err := c.mentions.next(ctx)
	if err != nil {
		return nil, err
	}
	return decodeComments(things)
}

// SubmissionByID refetches a single submission.
func (c *Client) SubmissionByID(ctx context.Context, id string) (*Submission, error) {
	things, err := c.info(ctx, "t3_"+id)
	if err != nil {
		return nil, err
	}
	submissions, err := decodeSubmissions(things)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, fmt.Errorf("submission %s not found", id)
	}
	return submissions[0], nil
}

// CommentByID refetches a single comment.
func (c *Client) CommentByID(ctx context.Context, id string) (*Comment, error) {
	things, err := c.info(ctx, "t1_"+id)
	if err != nil {
		return nil, err
	}
	comments, err := decodeComments(things)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("comment %s not found", id)
	}
	return comments[0], nil
}

// Reply posts a comment under the given submission or comment.
func (c *Client) Reply(ctx context.Context, parentFullname, text string) (*Reply, error) {
	var response struct {
		JSON struct {
			Errors [][]json.RawMessage `json:"errors"`
			Data   struct {
				Things []thing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {text},
	}
	if err := c.post(ctx, "/api/comment", form, &response); err != nil {
		return nil, fmt.Errorf("failed to post reply: %w", err)
	}
	if len(response.JSON.Errors) > 0 {
		return nil, fmt.Errorf("reddit rejected reply: %s", response.JSON.Errors[0])
	}
	if len(response.JSON.Data.Things) == 0 {
		return nil, fmt.Errorf("reddit returned no comment for reply")
	}

	var posted Comment
	if err := json.Unmarshal(response.JSON.Data.Things[0].Data, &posted); err != nil {
		return nil, fmt.Errorf("failed to decode posted reply: %w", err)
	}
	return &Reply{
		ID:        posted.ID,
		Fullname:  posted.Fullname(),
		Body:      posted.Body,
		Permalink: posted.Permalink,
	}, nil
}

// EditReply replaces the reply's text in place.
func (c *Client) EditReply(ctx context.Context, reply *Reply, text string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {reply.Fullname},
		"text":     {text},
	}
	if err := c.post(ctx, "/api/editusertext", form, nil); err != nil {
		return fmt.Errorf("failed to edit reply: %w", err)
	}
	reply.Body = text
	return nil
}

// DeleteReply removes the reply.
func (c *Client) DeleteReply(ctx context.Context, reply *Reply) error {
	form := url.Values{"id": {reply.Fullname}}
	if err := c.post(ctx, "/api/del", form, nil); err != nil {
		return fmt.Errorf("failed to delete reply: %w", err)
	}
	return nil
}

// DistinguishSticky pins the reply to the top of its submission. Returns
// ErrForbidden when the bot is not a moderator there.
func (c *Client) DistinguishSticky(ctx context.Context, reply *Reply) error {
	form := url.Values{
		"api_type": {"json"},
		"id":       {reply.Fullname},
		"how":      {"yes"},
		"sticky":   {"true"},
	}
	if err := c.post(ctx, "/api/distinguish", form, nil); err != nil {
		return err
	}
	return nil
}

// TopLevelComments lists the comments directly under a submission, in
// display order.
func (c *Client) TopLevelComments(ctx context.Context, submissionID string) ([]*Comment, error) {
	var listings []listing
	if err := c.get(ctx, "/comments/"+submissionID, url.Values{"depth": {"1"}}, &listings); err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	if len(listings) < 2 {
		return nil, nil
	}
	return decodeComments(listings[1].Data.Children)
}

// StartTime returns the creation time of the item the previous bot instance
// replied to last, or the current time if the account has no comments. Items
// created before this watermark are never processed, which prevents
// double-replies across redeployments.
func (c *Client) StartTime(ctx context.Context) (float64, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Str("user", me).Msg("Logged in")

	var latest listing
	if err := c.get(ctx, "/user/"+me+"/comments", url.Values{"limit": {"1"}}, &latest); err != nil {
		return 0, fmt.Errorf("failed to fetch latest comment: %w", err)
	}
	if len(latest.Data.Children) == 0 {
		return float64(time.Now().Unix()), nil
	}

	comments, err := decodeComments(latest.Data.Children)
	if err != nil || len(comments) == 0 {
		return 0, fmt.Errorf("failed to decode latest comment: %w", err)
	}

	parents, err := c.info(ctx, comments[0].ParentID)
	if err != nil {
		return 0, err
	}
	if len(parents) == 0 {
		return float64(time.Now().Unix()), nil
	}
	var parent struct {
		CreatedUTC float64 `json:"created_utc"`
	}
	if err := json.Unmarshal(parents[0].Data, &parent); err != nil {
		return 0, fmt.Errorf("failed to decode parent item: %w", err)
	}
	return parent.CreatedUTC, nil
}

func (c *Client) info(ctx context.Context, fullname string) ([]thing, error) {
	var result listing
	if err := c.get(ctx, "/api/info", url.Values{"id": {fullname}}, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", fullname, err)
	}
	return result.Data.Children, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v interface{}) error {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrForbidden)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reddit API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeSubmissions(things []thing) ([]*Submission, error) {
	submissions := make([]*Submission, 0, len(things))
	for _, item := range things {
		if item.Kind != "t3" {
			continue
		}
		var submission Submission
		if err := json.Unmarshal(item.Data, &submission); err != nil {
			return nil, fmt.Errorf("failed to decode submission: %w", err)
		}
		submissions = append(submissions, &submission)
	}
	return submissions, nil
}

func decodeComments(things []thing) ([]*Comment, error) {
	comments := make([]*Comment, 0, len(things))
	for _, item := range things {
		if item.Kind != "t1" {
			continue
		}
		var comment Comment
		if err := json.Unmarshal(item.Data, &comment); err != nil {
			return nil, fmt.Errorf("failed to decode comment: %w", err)
		}
		comments = append(comments, &comment)
	}
	return comments, nil
}
