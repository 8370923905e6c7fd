package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crombird/internal/crom"
	"github.com/crombird/internal/parse"
	"github.com/crombird/internal/reddit"
	"github.com/crombird/internal/response"
)

type fakeSource struct {
	submissionsByID map[string]*reddit.Submission
	commentsByID    map[string]*reddit.Comment
	topComments     []*reddit.Comment

	replyErr  error
	stickyErr error

	posted   []*reddit.Reply
	edited   []*reddit.Reply
	deleted  []*reddit.Reply
	stickied []*reddit.Reply

	nextID int
}

func (f *fakeSource) NextSubmissions(ctx context.Context) ([]*reddit.Submission, error) {
	return nil, nil
}

func (f *fakeSource) NextComments(ctx context.Context) ([]*reddit.Comment, error) {
	return nil, nil
}

func (f *fakeSource) NextMentions(ctx context.Context) ([]*reddit.Comment, error) {
	return nil, nil
}

func (f *fakeSource) SubmissionByID(ctx context.Context, id string) (*reddit.Submission, error) {
	submission, ok := f.submissionsByID[id]
	if !ok {
		return nil, fmt.Errorf("no submission %s", id)
	}
	return submission, nil
}

func (f *fakeSource) CommentByID(ctx context.Context, id string) (*reddit.Comment, error) {
	comment, ok := f.commentsByID[id]
	if !ok {
		return nil, fmt.Errorf("no comment %s", id)
	}
	return comment, nil
}

func (f *fakeSource) Reply(ctx context.Context, parentFullname, text string) (*reddit.Reply, error) {
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.nextID++
	reply := &reddit.Reply{
		ID:        fmt.Sprintf("r%d", f.nextID),
		Fullname:  fmt.Sprintf("t1_r%d", f.nextID),
		Body:      text,
		Permalink: "/r/test/comments/abc/_/r" + fmt.Sprint(f.nextID),
	}
	f.posted = append(f.posted, reply)
	return reply, nil
}

func (f *fakeSource) EditReply(ctx context.Context, reply *reddit.Reply, text string) error {
	reply.Body = text
	f.edited = append(f.edited, reply)
	return nil
}

func (f *fakeSource) DeleteReply(ctx context.Context, reply *reddit.Reply) error {
	f.deleted = append(f.deleted, reply)
	return nil
}

func (f *fakeSource) DistinguishSticky(ctx context.Context, reply *reddit.Reply) error {
	if f.stickyErr != nil {
		return f.stickyErr
	}
	f.stickied = append(f.stickied, reply)
	return nil
}

func (f *fakeSource) TopLevelComments(ctx context.Context, submissionID string) ([]*reddit.Comment, error) {
	return f.topComments, nil
}

type fakeSearcher struct {
	results []crom.Result
	err     error
	queries [][]parse.Query
}

func (f *fakeSearcher) Search(ctx context.Context, queries []parse.Query) ([]crom.Result, error) {
	f.queries = append(f.queries, queries)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) IncResponse(itemType, subreddit string) {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[itemType+"/"+subreddit]++
}

func newTestBot(cfg Config) (*Bot, *fakeSource, *fakeSearcher, *fakeCounter) {
	source := &fakeSource{
		submissionsByID: map[string]*reddit.Submission{},
		commentsByID:    map[string]*reddit.Comment{},
	}
	searcher := &fakeSearcher{results: []crom.Result{pageResult("SCP-173", "http://scp-wiki.wikidot.com/scp-173")}}
	counter := &fakeCounter{}
	bot := New(source, searcher, counter, cfg)
	return bot, source, searcher, counter
}

func pageResult(title, url string) crom.Result {
	return crom.Result{Page: &crom.PageMatch{Page: &crom.Page{
		URL:       url,
		Title:     title,
		Rating:    100,
		CreatedAt: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
	}}}
}

func selfPost(id, title, selfText string, created float64) *reddit.Submission {
	return &reddit.Submission{
		ID:         id,
		Title:      title,
		SelfText:   selfText,
		IsSelf:     true,
		Author:     "someone",
		Subreddit:  "SCP",
		Permalink:  "/r/SCP/comments/" + id,
		CreatedUTC: created,
	}
}

func linkPost(id, title, url string, created float64) *reddit.Submission {
	return &reddit.Submission{
		ID:         id,
		Title:      title,
		URL:        url,
		Author:     "someone",
		Subreddit:  "SCP",
		Permalink:  "/r/SCP/comments/" + id,
		CreatedUTC: created,
	}
}

func userComment(id, author, body string, created float64) *reddit.Comment {
	return &reddit.Comment{
		ID:         id,
		Author:     author,
		Body:       body,
		Subreddit:  "SCP",
		Permalink:  "/r/SCP/comments/abc/_/" + id,
		CreatedUTC: created,
	}
}

func TestWatermarkSkipsOldItems(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{StartTime: 1000})

	require.False(t, bot.processSubmission(context.Background(), selfPost("s1", "SCP-173", "", 1000), nil, nil))
	require.False(t, bot.processComment(context.Background(), userComment("c1", "someone", "SCP-173", 900), "comment", nil, nil))

	require.Empty(t, source.posted)
	require.Empty(t, searcher.queries)
}

func TestSubmissionReplyIsPostedAndTracked(t *testing.T) {
	bot, source, _, counter := newTestBot(Config{})

	replied := bot.processSubmission(context.Background(), selfPost("s1", "What is SCP-173?", "", 10), nil, nil)
	require.True(t, replied)

	require.Len(t, source.posted, 1)
	require.Contains(t, source.posted[0].Body, "SCP-173")
	require.Contains(t, bot.repliedSubmissions, "s1")
	require.Equal(t, 1, counter.counts["submission/SCP"])
	require.Len(t, source.stickied, 1)
}

func TestLinkSubmissionQueriesNormalizedURL(t *testing.T) {
	bot, _, searcher, _ := newTestBot(Config{WikiDomains: []string{"scp-wiki.wikidot.com"}})

	submission := linkPost("s1", "A story", "https://www.scpwiki.com/scp-3000?utm=x#comments", 10)
	require.True(t, bot.processSubmission(context.Background(), submission, nil, nil))

	require.Len(t, searcher.queries, 1)
	require.Equal(t, parse.Query{
		Kind:    parse.QueryURL,
		Value:   "http://scp-wiki.wikidot.com/scp-3000",
		SiteURL: parse.PrimarySite,
	}, searcher.queries[0][0])
}

func TestLinkSubmissionToInternationalWiki(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{
		WikiDomains: []string{"scp-wiki.wikidot.com", "scp-jp.wikidot.com"},
	})

	submission := linkPost("s1", "A story", "http://scp-jp.wikidot.com/scp-173-jp", 10)
	require.True(t, bot.processSubmission(context.Background(), submission, nil, nil))

	require.Len(t, searcher.queries, 1)
	require.Equal(t, parse.Query{
		Kind:    parse.QueryURL,
		Value:   "http://scp-jp.wikidot.com/scp-173-jp",
		SiteURL: parse.PrimarySite,
	}, searcher.queries[0][0])
	require.Len(t, source.posted, 1)
}

func TestLinkSubmissionOutsideWikiDomainsIgnored(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{WikiDomains: []string{"scp-wiki.wikidot.com"}})

	submission := linkPost("s1", "Nothing here", "https://example.com/page", 10)
	require.False(t, bot.processSubmission(context.Background(), submission, nil, nil))
	require.Empty(t, source.posted)
}

func TestNoReplyOnEmptyResults(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{})
	searcher.results = nil

	require.False(t, bot.processSubmission(context.Background(), selfPost("s1", "SCP-173", "", 10), nil, nil))
	require.Len(t, searcher.queries, 1)
	require.Empty(t, source.posted)
	require.Empty(t, bot.repliedSubmissions)
}

func TestSearchFailureIsSilent(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{})
	searcher.err = fmt.Errorf("api down")

	require.False(t, bot.processSubmission(context.Background(), selfPost("s1", "SCP-173", "", 10), nil, nil))
	require.Empty(t, source.posted)
}

func TestCommentReply(t *testing.T) {
	bot, source, _, counter := newTestBot(Config{})

	require.True(t, bot.processComment(context.Background(), userComment("c1", "someone", "I like SCP-173", 10), "comment", nil, nil))
	require.Len(t, source.posted, 1)
	require.Contains(t, bot.repliedComments, "c1")
	require.Equal(t, 1, counter.counts["comment/SCP"])
	require.Empty(t, source.stickied)
}

func TestCommentFilters(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{
		BotAccounts:       []string{"CromBird"},
		CommentSubreddits: []string{"SCP"},
	})
	ctx := context.Background()

	deleted := userComment("c1", "", "SCP-173", 10)
	require.False(t, bot.processComment(ctx, deleted, "comment", nil, nil))

	own := userComment("c2", "crombird", "SCP-173", 10)
	require.False(t, bot.processComment(ctx, own, "comment", nil, nil))

	banned := userComment("c3", "someone", "SCP-173", 10)
	banned.BannedBy = "a_moderator"
	require.False(t, bot.processComment(ctx, banned, "comment", nil, nil))

	mentionInMonitored := userComment("c4", "someone", "SCP-173", 10)
	require.False(t, bot.processComment(ctx, mentionInMonitored, "mention", nil, nil))

	mentionElsewhere := userComment("c5", "someone", "SCP-173", 10)
	mentionElsewhere.Subreddit = "writing"
	mentionElsewhere.Context = "/r/writing/comments/abc/_/c5"
	require.True(t, bot.processComment(ctx, mentionElsewhere, "mention", nil, nil))

	require.Len(t, source.posted, 1)
}

func TestRevisitEditsChangedSubmission(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	original := selfPost("s1", "Thoughts", "SCP-173 is neat", 10)
	require.True(t, bot.processSubmission(ctx, original, nil, nil))
	require.Len(t, source.posted, 1)

	edited := selfPost("s1", "Thoughts", "SCP-096 is neater", 10)
	source.submissionsByID["s1"] = edited

	pending := bot.revisitSubmissions(ctx)
	require.Len(t, pending, 1)
	require.Empty(t, bot.repliedSubmissions)

	searcher.results = []crom.Result{pageResult("SCP-096", "http://scp-wiki.wikidot.com/scp-096")}
	require.True(t, bot.processSubmission(ctx, pending[0].submission, pending[0].queries, pending[0].reply))
	require.Len(t, source.edited, 1)
	require.Len(t, source.posted, 1)
}

func TestRevisitIdenticalTextLeavesReplyAlone(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	original := selfPost("s1", "Thoughts", "SCP-173 is neat", 10)
	require.True(t, bot.processSubmission(ctx, original, nil, nil))

	source.submissionsByID["s1"] = selfPost("s1", "Thoughts", "SCP-173 is neat", 10)

	require.Empty(t, bot.revisitSubmissions(ctx))
	require.Empty(t, bot.repliedSubmissions)
	require.Empty(t, source.edited)
	require.Empty(t, source.deleted)
}

func TestRevisitSameQueriesSkipsEdit(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	original := selfPost("s1", "Thoughts", "SCP-173 is neat", 10)
	require.True(t, bot.processSubmission(ctx, original, nil, nil))

	// The edit only touched prose around the same reference.
	source.submissionsByID["s1"] = selfPost("s1", "Thoughts", "SCP-173 is very neat", 10)

	pending := bot.revisitSubmissions(ctx)
	require.Len(t, pending, 1)
	require.False(t, bot.processSubmission(ctx, pending[0].submission, pending[0].queries, pending[0].reply))
	require.Empty(t, source.edited)
}

func TestRevisitUnchangedReplyTextSkipsEdit(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{})
	ctx := context.Background()

	queries := parse.Parse("SCP-173 here", parse.SubmissionSelfText)
	replyText := response.Format(searcher.results, true, "")
	reply := &reddit.Reply{ID: "r1", Fullname: "t1_r1", Body: replyText}

	// Query set changed, produced text did not.
	previous := []parse.Query{{Kind: parse.QueryFreeform, Value: "SCP-049"}}
	require.NotEqual(t, previous, queries)

	submission := selfPost("s1", "", "SCP-173 here", 10)
	require.False(t, bot.processSubmission(ctx, submission, previous, reply))
	require.Empty(t, source.edited)
	require.Empty(t, source.posted)
}

func TestRevisitDeletesRemovedSubmissionReply(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	require.True(t, bot.processSubmission(ctx, selfPost("s1", "SCP-173", "", 10), nil, nil))

	removed := selfPost("s1", "SCP-173", "", 10)
	removed.RemovedByCategory = "moderator"
	source.submissionsByID["s1"] = removed

	require.Empty(t, bot.revisitSubmissions(ctx))
	require.Len(t, source.deleted, 1)
	require.Empty(t, bot.repliedSubmissions)
}

func TestSpamFilteredCommentTreatedAsRemoved(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	// Reddit sends banned_by as the boolean true for spam-filter removals.
	var spam reddit.Comment
	require.NoError(t, json.Unmarshal(
		[]byte(`{"id":"c1","author":"someone","body":"SCP-173","subreddit":"SCP","banned_by":true,"created_utc":10}`),
		&spam))

	require.False(t, bot.processComment(ctx, &spam, "comment", nil, nil))
	require.Empty(t, source.posted)

	// A comment removed after the bot replied loses its reply on revisit.
	require.True(t, bot.processComment(ctx, userComment("c2", "someone", "SCP-173", 10), "comment", nil, nil))
	removed := userComment("c2", "someone", "SCP-173", 10)
	removed.BannedBy = reddit.BannedBySpamFilter
	source.commentsByID["c2"] = removed

	require.Empty(t, bot.revisitComments(ctx))
	require.Len(t, source.deleted, 1)
	require.Empty(t, bot.repliedComments)
}

func TestRevisitDeletesRemovedCommentReply(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	require.True(t, bot.processComment(ctx, userComment("c1", "someone", "SCP-173", 10), "comment", nil, nil))

	removed := userComment("c1", "someone", "SCP-173", 10)
	removed.BannedBy = "a_moderator"
	source.commentsByID["c1"] = removed

	require.Empty(t, bot.revisitComments(ctx))
	require.Len(t, source.deleted, 1)
	require.Empty(t, bot.repliedComments)
}

func TestRevisitEditsChangedComment(t *testing.T) {
	bot, source, searcher, _ := newTestBot(Config{})
	bot.now = func() time.Time { return time.Unix(5000, 0) }
	ctx := context.Background()

	require.True(t, bot.processComment(ctx, userComment("c1", "someone", "SCP-173", 10), "comment", nil, nil))
	source.commentsByID["c1"] = userComment("c1", "someone", "SCP-096", 10)

	pending := bot.revisitComments(ctx)
	require.Len(t, pending, 1)
	searcher.results = []crom.Result{pageResult("SCP-096", "http://scp-wiki.wikidot.com/scp-096")}
	require.True(t, bot.processComment(ctx, pending[0].comment, "comment", pending[0].queries, pending[0].reply))
	require.Len(t, source.edited, 1)
	require.Len(t, source.posted, 1)
}

func TestRevisitWaitsForAge(t *testing.T) {
	bot, _, _, _ := newTestBot(Config{})
	ctx := context.Background()

	created := float64(time.Now().Unix())
	require.True(t, bot.processSubmission(ctx, selfPost("s1", "SCP-173", "", created), nil, nil))

	require.Empty(t, bot.revisitSubmissions(ctx))
	require.Contains(t, bot.repliedSubmissions, "s1")
}

func TestStickySkippedWhenTopCommentAlreadyStickied(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	stickied := userComment("c0", "AutoModerator", "rules", 1)
	stickied.Stickied = true
	source.topComments = []*reddit.Comment{stickied}

	require.True(t, bot.processSubmission(context.Background(), selfPost("s1", "SCP-173", "", 10), nil, nil))
	require.Empty(t, source.stickied)
}

func TestStickyForbiddenIsSwallowed(t *testing.T) {
	bot, source, _, _ := newTestBot(Config{})
	source.stickyErr = fmt.Errorf("distinguish: %w", reddit.ErrForbidden)

	require.True(t, bot.processSubmission(context.Background(), selfPost("s1", "SCP-173", "", 10), nil, nil))
	require.Len(t, source.posted, 1)
}

func TestNormalizePermalink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.scpwiki.com/scp-3000?x=1#top", "http://scp-wiki.wikidot.com/scp-3000"},
		{"https://scpwiki.com/scp-3000", "http://scp-wiki.wikidot.com/scp-3000"},
		{"https://www.scp-wiki.net/scp-3000", "http://scp-wiki.wikidot.com/scp-3000"},
		{"http://scp-wiki.wikidot.com/scp-3000", "http://scp-wiki.wikidot.com/scp-3000"},
		{"/r/SCP/comments/abc/title/", "http://www.reddit.com/r/SCP/comments/abc/title/"},
		{"https://example.com/a?utm=1", "http://example.com/a"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, normalizePermalink(tt.in), tt.in)
	}
}

func TestQueriesEqual(t *testing.T) {
	a := []parse.Query{{Kind: parse.QueryFreeform, Value: "SCP-173"}}
	same := []parse.Query{{Kind: parse.QueryFreeform, Value: "SCP-173"}}
	reordered := []parse.Query{
		{Kind: parse.QueryFreeform, Value: "SCP-049"},
		{Kind: parse.QueryFreeform, Value: "SCP-173"},
	}
	forward := []parse.Query{
		{Kind: parse.QueryFreeform, Value: "SCP-173"},
		{Kind: parse.QueryFreeform, Value: "SCP-049"},
	}

	require.True(t, queriesEqual(a, same))
	require.False(t, queriesEqual(a, nil))
	require.False(t, queriesEqual(forward, reordered))
	require.False(t, queriesEqual(a, forward))
}
