package reddit

import (
	"encoding/json"
	"strings"
)

// Submission is a Reddit post, either a self (text) post or a link post.
type Submission struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	SelfText          string   `json:"selftext"`
	URL               string   `json:"url"`
	Permalink         string   `json:"permalink"`
	Author            string   `json:"author"`
	Subreddit         string   `json:"subreddit"`
	RemovedByCategory string   `json:"removed_by_category"`
	IsSelf            bool     `json:"is_self"`
	CreatedUTC        float64  `json:"created_utc"`
}

// Fullname returns the API identifier used when replying.
func (s *Submission) Fullname() string {
	return "t3_" + s.ID
}

// AuthorDeleted reports whether the author account is gone.
func (s *Submission) AuthorDeleted() bool {
	return s.Author == "" || s.Author == "[deleted]"
}

// Comment is a Reddit comment. Mentions arrive as comments with Context set.
type Comment struct {
	ID         string   `json:"id"`
	Body       string   `json:"body"`
	Author     string   `json:"author"`
	Permalink  string   `json:"permalink"`
	Context    string   `json:"context"`
	Subreddit  string   `json:"subreddit"`
	ParentID   string   `json:"parent_id"`
	BannedBy   BannedBy `json:"banned_by"`
	Stickied   bool     `json:"stickied"`
	CreatedUTC float64  `json:"created_utc"`
}

// Fullname returns the API identifier used when replying.
func (c *Comment) Fullname() string {
	return "t1_" + c.ID
}

// AuthorDeleted reports whether the author account is gone.
func (c *Comment) AuthorDeleted() bool {
	return c.Author == "" || c.Author == "[deleted]"
}

// BannedBy is the moderator who removed a comment. The API serializes it as
// a username, null, the boolean false, or the boolean true for spam-filter
// removals, so plain string decoding breaks. Anything other than null/false
// means removed.
type BannedBy string

// BannedBySpamFilter marks a removal with no moderator name attached.
const BannedBySpamFilter BannedBy = "[removed]"

func (b *BannedBy) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "false" {
		*b = ""
		return nil
	}
	if trimmed == "true" {
		*b = BannedBySpamFilter
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*b = BannedBy(name)
	return nil
}

// Reply is a comment this bot posted. Body tracks the last text we posted
// or edited in, for the textual idempotence check on revisit.
type Reply struct {
	ID        string
	Fullname  string
	Body      string
	Permalink string
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}
