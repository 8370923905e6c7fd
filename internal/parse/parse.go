// Package parse turns raw Reddit text into SCP wiki search queries. The
// pipeline is a fixed sequence of match stages, each of which removes the
// spans it consumed before the next stage runs.
package parse

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// PrimarySite is the English SCP wiki, the default resolution target.
const PrimarySite = "http://scp-wiki.wikidot.com"

// QueryKind classifies how a reference was spelled in the source text, which
// decides the resolution strategy downstream.
type QueryKind int

const (
	// QueryURL is a normalized absolute link found outside of prose, e.g. a
	// link submission.
	QueryURL QueryKind = iota
	// QueryFreeform is either [[...]] syntax or a loose SCP number with no
	// international marker; resolved by full-text search.
	QueryFreeform
	// QueryBare is a strict SCP number tied to a detected international
	// branch; resolved by direct page URL.
	QueryBare
)

// Context tells Parse what kind of text it is looking at.
type Context int

const (
	SubmissionTitle Context = iota
	SubmissionSelfText
	CommentBody
)

// Query is a single extracted mention. Value preserves the source casing.
type Query struct {
	Kind    QueryKind
	Value   string
	SiteURL string
}

// Overridable for the April 1st tests.
var now = time.Now

type internationalPattern struct {
	re      *regexp2.Regexp // search form
	full    *regexp2.Regexp // anchored form, for testing [[...]] contents
	siteURL string
}

// Branch-specific SCP number formats that focus the lookup on a particular
// INT wiki. Evaluated in order; each pattern's matches are consumed before
// the next is tried.
var internationalPatterns = buildInternationalPatterns([]struct {
	pattern string
	siteURL string
}{
	{`SCP[- ]?(\d{3,4}[- ]FR)(?!\w)`, "http://fondationscp.wikidot.com"},
	// Require a dash for IT because "it" also happens to be an english word.
	{`SCP[- ]?(\d{3,4}-?IT)(?!\w)`, "http://fondazionescp.wikidot.com"},
	{`SCP[- ]?(ES[- ]\d{3,4})(?!\w)`, "http://lafundacionscp.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]CS)(?!\w)`, "http://scp-cs.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]SK)(?!\w)`, "http://scp-cs.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]EL)(?!\w)`, "http://scp-el.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]ID)(?!\w)`, "http://scp-id.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]INT)(?!\w)`, "http://scp-int.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]JP)(?!\w)`, "http://scp-jp.wikidot.com"},
	{`SCP[- ]?(PL[- ]\d{3,4})(?!\w)`, "http://scp-pl.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]PT)(?!\w)`, "http://scp-pt-br.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]RU)(?!\w)`, "http://scp-ru.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]?TH)(?!\w)`, "http://scp-th.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]UA)(?!\w)`, "http://scp-ukrainian.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]VN)(?!\w)`, "http://scp-vn.wikidot.com"},
	{`SCP[- ]?(CN[- ]\d{3,4})(?!\w)`, "http://scp-wiki-cn.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]DE)(?!\w)`, "http://scp-wiki-de.wikidot.com"},
	{`SCP[- ]?(ZH[- ]\d{3,4})(?!\w)`, "http://scp-zh-tr.wikidot.com"},
	{`SCP[- ]?(\d{3,4}[- ]KO)(?!\w)`, "http://scpko.wikidot.com"},
})

var (
	// The [[...]] syntax. An explicit command to the bot, so it survives the
	// false-positive sweep below.
	modernRe = regexp2.MustCompile(`\[\[([^\]]*?)\]\]`, regexp2.None)

	// Non-international mentions use a much more lenient format, so they are
	// matched only after every international pattern had its chance.
	bareRe = regexp2.MustCompile(`((?:SCP)[- ]\d{3,4}(?:-[A-Z0-9]+)*)(?!\w)`, regexp2.IgnoreCase)

	// April fools. https://www.reddit.com/r/SCP/comments/61u0mv/marvin_and_scp2/
	scp2Re = regexp2.MustCompile(`(?:^|[^0-9])(2)(?:[^0-9]|$)`, regexp2.None)

	// Spans that look like SCP numbers but aren't. Stripped in order, from
	// highest to lowest priority, before bare matching.
	falsePositives = []*regexp2.Regexp{
		regexp2.MustCompile(`>!(.+?)!<`, regexp2.Singleline),     // spoiler tags
		regexp2.MustCompile(`(?:http|https)://[^ ]*`, regexp2.IgnoreCase), // URLs
		regexp2.MustCompile(`\d+[.,]\d+`, regexp2.None),          // decimal points
		regexp2.MustCompile(`/?u/[A-Z0-9_-]+`, regexp2.IgnoreCase), // username mentions
	}
)

func buildInternationalPatterns(table []struct {
	pattern string
	siteURL string
}) []internationalPattern {
	patterns := make([]internationalPattern, 0, len(table))
	for _, entry := range table {
		patterns = append(patterns, internationalPattern{
			re:      regexp2.MustCompile(entry.pattern, regexp2.IgnoreCase),
			full:    regexp2.MustCompile(`\A`+entry.pattern+`\z`, regexp2.IgnoreCase),
			siteURL: entry.siteURL,
		})
	}
	return patterns
}

// Parse extracts wiki references from text. The result preserves source
// order and may contain duplicates; deduplication happens at resolution.
func Parse(input string, context Context) []Query {
	remaining := input
	var queries []Query

	// Markdown structure hides false positives: a mention inside a code
	// span, a quote or a link label is not a real reference. Titles are not
	// markdown, so they skip this.
	if context != SubmissionTitle {
		remaining = SanitizeMarkdown(input)
	}

	// Match [[...]] everywhere before anything else is stripped.
	for _, m := range findAll(modernRe, remaining) {
		inner := m.GroupByNumber(1).String()
		if strings.TrimSpace(inner) == "" {
			continue
		}
		queries = append(queries, Query{
			Kind:    QueryFreeform,
			Value:   inner,
			SiteURL: internationalSiteFor(inner),
		})
	}
	remaining = removeAll(modernRe, remaining)

	for _, falsePositive := range falsePositives {
		remaining = removeAll(falsePositive, remaining)
	}

	// Match international formats by branch, consuming each branch's spans
	// so the lenient pattern below cannot double-match them.
	for _, p := range internationalPatterns {
		matches := findAll(p.re, remaining)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			queries = append(queries, Query{
				Kind:    QueryBare,
				Value:   m.GroupByNumber(1).String(),
				SiteURL: p.siteURL,
			})
		}
		remaining = removeAll(p.re, remaining)
	}

	// Bare non-international mentions on whatever text is left.
	for _, m := range findAll(bareRe, remaining) {
		queries = append(queries, Query{
			Kind:    QueryFreeform,
			Value:   m.GroupByNumber(1).String(),
			SiteURL: PrimarySite,
		})
	}

	if context == CommentBody {
		today := now()
		if today.Month() == time.April && today.Day() == 1 {
			if ok, _ := scp2Re.MatchString(remaining); ok {
				queries = append(queries, Query{
					Kind:    QueryBare,
					Value:   "2",
					SiteURL: PrimarySite,
				})
			}
		}
	}

	return queries
}

// internationalSiteFor checks [[...]] contents against the international
// formats so that e.g. [[SCP-173-JP]] resolves against the JP wiki.
func internationalSiteFor(value string) string {
	for _, p := range internationalPatterns {
		if ok, _ := p.full.MatchString(value); ok {
			return p.siteURL
		}
	}
	return PrimarySite
}

func findAll(re *regexp2.Regexp, s string) []*regexp2.Match {
	var matches []*regexp2.Match
	m, _ := re.FindStringMatch(s)
	for m != nil {
		matches = append(matches, m)
		m, _ = re.FindNextMatch(m)
	}
	return matches
}

func removeAll(re *regexp2.Regexp, s string) string {
	out, err := re.Replace(s, "", -1, -1)
	if err != nil {
		return s
	}
	return out
}
