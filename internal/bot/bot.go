// Package bot drives the reply lifecycle: it drains the three item streams,
// decides whether to create, edit or delete replies, and tracks replied-to
// items for a single revisit after a fixed delay.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crombird/internal/crom"
	"github.com/crombird/internal/parse"
	"github.com/crombird/internal/reddit"
	"github.com/crombird/internal/response"
)

// DefaultRevisitAge is how long after an item's creation it is checked for
// stealth edits or removal. Later edits show Reddit's edited asterisk, so a
// stale reply no longer looks wrong.
const DefaultRevisitAge = 2 * time.Minute

// Source is the slice of the Reddit client the bot depends on.
type Source interface {
	NextSubmissions(ctx context.Context) ([]*reddit.Submission, error)
	NextComments(ctx context.Context) ([]*reddit.Comment, error)
	NextMentions(ctx context.Context) ([]*reddit.Comment, error)
	SubmissionByID(ctx context.Context, id string) (*reddit.Submission, error)
	CommentByID(ctx context.Context, id string) (*reddit.Comment, error)
	Reply(ctx context.Context, parentFullname, text string) (*reddit.Reply, error)
	EditReply(ctx context.Context, reply *reddit.Reply, text string) error
	DeleteReply(ctx context.Context, reply *reddit.Reply) error
	DistinguishSticky(ctx context.Context, reply *reddit.Reply) error
	TopLevelComments(ctx context.Context, submissionID string) ([]*reddit.Comment, error)
}

// Searcher resolves extracted queries against the wiki.
type Searcher interface {
	Search(ctx context.Context, queries []parse.Query) ([]crom.Result, error)
}

// Counter receives one increment per successful reply create or edit.
type Counter interface {
	IncResponse(itemType, subreddit string)
}

// Config tunes the bot's filters and timing.
type Config struct {
	// StartTime is the watermark: items created at or before it were the
	// previous instance's responsibility and are never touched.
	StartTime float64

	// CommentSubreddits are the subreddits streamed for comments; mentions
	// arriving from these are skipped since the comment stream handles them.
	CommentSubreddits []string

	// BotAccounts are authors never replied to.
	BotAccounts []string

	// WikiDomains are link-submission hosts that warrant a URL lookup.
	WikiDomains []string

	// RevisitAge defaults to DefaultRevisitAge.
	RevisitAge time.Duration
}

type trackedSubmission struct {
	submission *reddit.Submission
	queries    []parse.Query
	reply      *reddit.Reply
}

type trackedComment struct {
	comment *reddit.Comment
	queries []parse.Query
	reply   *reddit.Reply
}

// Bot is the single-threaded control loop. All state below is mutated only
// by Run's goroutine; no locking.
type Bot struct {
	source   Source
	searcher Searcher
	counter  Counter

	startTime         float64
	revisitAge        time.Duration
	commentSubreddits map[string]bool
	botAccounts       map[string]bool
	wikiDomains       map[string]bool

	// Items replied to, awaiting their one revisit.
	repliedSubmissions map[string]*trackedSubmission
	repliedComments    map[string]*trackedComment

	now func() time.Time
}

// New creates a bot. Subreddit, account and domain filters are matched
// case-insensitively.
func New(source Source, searcher Searcher, counter Counter, cfg Config) *Bot {
	revisitAge := cfg.RevisitAge
	if revisitAge == 0 {
		revisitAge = DefaultRevisitAge
	}
	return &Bot{
		source:             source,
		searcher:           searcher,
		counter:            counter,
		startTime:          cfg.StartTime,
		revisitAge:         revisitAge,
		commentSubreddits:  lowerSet(cfg.CommentSubreddits),
		botAccounts:        lowerSet(cfg.BotAccounts),
		wikiDomains:        lowerSet(cfg.WikiDomains),
		repliedSubmissions: make(map[string]*trackedSubmission),
		repliedComments:    make(map[string]*trackedComment),
		now:                time.Now,
	}
}

// Run loops forever, draining each stream to its caught-up sentinel before
// moving on, with a revisit sweep in between. Returns only when ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		submissions, err := b.source.NextSubmissions(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Submission stream failed")
		}
		for _, submission := range submissions {
			b.processSubmission(ctx, submission, nil, nil)
		}

		comments, err := b.source.NextComments(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Comment stream failed")
		}
		for _, comment := range comments {
			b.processComment(ctx, comment, "comment", nil, nil)
		}

		for _, tracked := range b.revisitSubmissions(ctx) {
			b.processSubmission(ctx, tracked.submission, tracked.queries, tracked.reply)
		}
		for _, tracked := range b.revisitComments(ctx) {
			b.processComment(ctx, tracked.comment, "comment", tracked.queries, tracked.reply)
		}

		mentions, err := b.source.NextMentions(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Mention stream failed")
		}
		for _, mention := range mentions {
			b.processComment(ctx, mention, "mention", nil, nil)
		}
	}
}

// revisitSubmissions sweeps the cache for submissions past the revisit age.
// Every swept item leaves the cache for good; edited ones are returned for
// reprocessing, removed ones get their reply deleted.
func (b *Bot) revisitSubmissions(ctx context.Context) []*trackedSubmission {
	var edited []*trackedSubmission
	cutoff := b.now().Add(-b.revisitAge)

	for id, tracked := range b.repliedSubmissions {
		if !time.Unix(int64(tracked.submission.CreatedUTC), 0).Before(cutoff) {
			continue
		}
		// The wait has passed; this item is checked exactly once.
		delete(b.repliedSubmissions, id)

		updated, err := b.source.SubmissionByID(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("submission", id).Msg("Failed to refetch submission")
			continue
		}
		if updated.AuthorDeleted() || updated.RemovedByCategory != "" {
			if err := b.source.DeleteReply(ctx, tracked.reply); err != nil {
				log.Error().Err(err).Str("submission", id).Msg("Failed to delete reply")
			}
		} else if updated.SelfText != tracked.submission.SelfText {
			log.Info().Str("permalink", permalinkURL(tracked.submission.Permalink)).Msg("Submission updated")
			edited = append(edited, &trackedSubmission{
				submission: updated,
				queries:    tracked.queries,
				reply:      tracked.reply,
			})
		}
	}
	return edited
}

func (b *Bot) revisitComments(ctx context.Context) []*trackedComment {
	var edited []*trackedComment
	cutoff := b.now().Add(-b.revisitAge)

	for id, tracked := range b.repliedComments {
		if !time.Unix(int64(tracked.comment.CreatedUTC), 0).Before(cutoff) {
			continue
		}
		delete(b.repliedComments, id)

		updated, err := b.source.CommentByID(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("comment", id).Msg("Failed to refetch comment")
			continue
		}
		if updated.AuthorDeleted() || updated.BannedBy != "" {
			if err := b.source.DeleteReply(ctx, tracked.reply); err != nil {
				log.Error().Err(err).Str("comment", id).Msg("Failed to delete reply")
			}
		} else if updated.Body != tracked.comment.Body {
			log.Info().Str("permalink", permalinkURL(tracked.comment.Permalink)).Msg("Comment updated")
			edited = append(edited, &trackedComment{
				comment: updated,
				queries: tracked.queries,
				reply:   tracked.reply,
			})
		}
	}
	return edited
}

// processSubmission runs the full pipeline for one submission. With a
// previous reply supplied (the revisit path) it edits instead of creating,
// and only when both the query set and the reply text changed.
func (b *Bot) processSubmission(ctx context.Context, submission *reddit.Submission, previousQueries []parse.Query, previousReply *reddit.Reply) bool {
	// The previous instance handled everything before the watermark.
	if submission.CreatedUTC <= b.startTime {
		return false
	}

	// The wiki API only resolves URLs under the wikidot domains, so
	// normalize first to maximise the chance of a hit.
	normalizedURL := normalizePermalink(submission.URL)

	var queries []parse.Query

	// A submission linking to a wiki page warrants a mention even without
	// any text.
	if !submission.IsSelf && b.wikiDomains[strings.ToLower(hostOf(normalizedURL))] {
		queries = append(queries, parse.Query{
			Kind:    parse.QueryURL,
			Value:   normalizedURL,
			SiteURL: parse.PrimarySite,
		})
	}

	queries = append(queries, parse.Parse(submission.Title, parse.SubmissionTitle)...)
	if submission.IsSelf {
		queries = append(queries, parse.Parse(submission.SelfText, parse.SubmissionSelfText)...)
	}

	if len(queries) == 0 || queriesEqual(queries, previousQueries) {
		return false
	}

	logRequest("Submission", submission.Permalink, queries)
	results, err := b.searcher.Search(ctx, queries)
	if err != nil {
		log.Error().Err(err).Str("permalink", permalinkURL(submission.Permalink)).Msg("Search failed")
		return false
	}
	if len(results) == 0 {
		return false
	}

	// If the submission links to a wiki article, skip its rating: it is
	// likely fresh and the number would be stale within hours.
	submissionURL := ""
	if !submission.IsSelf {
		submissionURL = normalizedURL
	}
	replyText := response.Format(results, true, submissionURL)

	var reply *reddit.Reply
	switch {
	case previousReply == nil:
		reply, err = b.source.Reply(ctx, submission.Fullname(), replyText)
		if err != nil {
			log.Error().Err(err).Str("permalink", permalinkURL(submission.Permalink)).Msg("Failed to reply")
			return false
		}
		b.repliedSubmissions[submission.ID] = &trackedSubmission{
			submission: submission,
			queries:    queries,
			reply:      reply,
		}
	case previousReply.Body != replyText:
		if err := b.source.EditReply(ctx, previousReply, replyText); err != nil {
			log.Error().Err(err).Str("permalink", permalinkURL(submission.Permalink)).Msg("Failed to edit reply")
			return false
		}
		reply = previousReply
	default:
		return false
	}

	log.Info().Str("permalink", permalinkURL(reply.Permalink)).Msg("Replied")
	b.counter.IncResponse("submission", submission.Subreddit)

	if previousReply == nil {
		b.stickyReply(ctx, submission, reply)
	}
	return true
}

// stickyReply tries to pin a fresh reply, deferring to any existing sticky
// (usually AutoModerator) and failing silently where the bot cannot
// moderate.
func (b *Bot) stickyReply(ctx context.Context, submission *reddit.Submission, reply *reddit.Reply) {
	comments, err := b.source.TopLevelComments(ctx, submission.ID)
	if err != nil {
		log.Error().Err(err).Str("submission", submission.ID).Msg("Failed to list comments for sticky check")
		return
	}
	if len(comments) > 0 && comments[0].Stickied {
		return
	}
	if err := b.source.DistinguishSticky(ctx, reply); err != nil && !errors.Is(err, reddit.ErrForbidden) {
		log.Error().Err(err).Str("submission", submission.ID).Msg("Failed to sticky reply")
	}
}

// processComment handles comments and mentions; commentType labels the
// metrics and picks the mention-specific filters.
func (b *Bot) processComment(ctx context.Context, comment *reddit.Comment, commentType string, previousQueries []parse.Query, previousReply *reddit.Reply) bool {
	if comment.CreatedUTC <= b.startTime {
		return false
	}
	// Quickly deleted or removed.
	if comment.AuthorDeleted() {
		return false
	}
	if b.botAccounts[strings.ToLower(comment.Author)] {
		return false
	}
	if commentType == "comment" && comment.BannedBy != "" {
		return false
	}
	// Mentions inside monitored subreddits are the comment handler's job.
	if commentType == "mention" && b.commentSubreddits[strings.ToLower(comment.Subreddit)] {
		return false
	}

	queries := parse.Parse(comment.Body, parse.CommentBody)
	if len(queries) == 0 || queriesEqual(queries, previousQueries) {
		return false
	}

	logLocation := comment.Permalink
	logType := "Comment"
	if commentType == "mention" {
		logLocation = comment.Context
		logType = "Mention"
	}
	logRequest(logType, logLocation, queries)

	results, err := b.searcher.Search(ctx, queries)
	if err != nil {
		log.Error().Err(err).Str("permalink", permalinkURL(logLocation)).Msg("Search failed")
		return false
	}
	if len(results) == 0 {
		return false
	}

	replyText := response.Format(results, false, "")

	var reply *reddit.Reply
	switch {
	case previousReply == nil:
		reply, err = b.source.Reply(ctx, comment.Fullname(), replyText)
		if err != nil {
			log.Error().Err(err).Str("permalink", permalinkURL(comment.Permalink)).Msg("Failed to reply")
			return false
		}
		b.repliedComments[comment.ID] = &trackedComment{
			comment: comment,
			queries: queries,
			reply:   reply,
		}
	case previousReply.Body != replyText:
		if err := b.source.EditReply(ctx, previousReply, replyText); err != nil {
			log.Error().Err(err).Str("permalink", permalinkURL(comment.Permalink)).Msg("Failed to edit reply")
			return false
		}
		reply = previousReply
	default:
		return false
	}

	log.Info().Str("permalink", permalinkURL(reply.Permalink)).Msg("Replied")
	b.counter.IncResponse(commentType, comment.Subreddit)
	return true
}

// queriesEqual compares positionally: any change in count, order or content
// counts as changed.
func queriesEqual(a, b []parse.Query) bool {
	if b == nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalizePermalink rewrites a submission URL into the canonical form the
// wiki API stores: query and fragment stripped, absolute against
// reddit.com, http scheme, mirror domains folded into the wikidot one.
func normalizePermalink(input string) string {
	parsed, err := url.Parse(input)
	if err != nil {
		return input
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""

	base := &url.URL{Scheme: "https", Host: "www.reddit.com", Path: "/"}
	clean := base.ResolveReference(parsed).String()

	clean = strings.Replace(clean, "https://", "http://", 1)
	clean = strings.ReplaceAll(clean, "//scpwiki.com", "//scp-wiki.wikidot.com")
	clean = strings.ReplaceAll(clean, "//www.scpwiki.com", "//scp-wiki.wikidot.com")
	clean = strings.ReplaceAll(clean, "//www.scp-wiki.net", "//scp-wiki.wikidot.com")
	return clean
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

func permalinkURL(permalink string) string {
	if strings.HasPrefix(permalink, "/") {
		return "https://www.reddit.com" + permalink
	}
	return permalink
}

func logRequest(itemType, permalink string, queries []parse.Query) {
	formatted := make([]string, 0, len(queries))
	for _, query := range queries {
		formatted = append(formatted, fmt.Sprintf("%d: %s (%s)", query.Kind, query.Value, query.SiteURL))
	}
	log.Info().
		Str("permalink", permalinkURL(permalink)).
		Str("queries", strings.Join(formatted, ", ")).
		Msg(itemType)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[strings.ToLower(value)] = true
	}
	return set
}
