// Package response renders resolved wiki entities into Reddit-flavored
// markdown replies.
package response

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/crombird/internal/crom"
)

const (
	primaryHost       = "scp-wiki.wikidot.com"
	internationalHost = "scp-int.wikidot.com"
)

// Pages credit several kinds of contributors; display them in this order.
var attributionOrder = []string{"SUBMITTER", "TRANSLATOR", "REWRITE", "AUTHOR", "MAINTAINER"}

// Overridable for the timeago tests.
var now = time.Now

// Format renders resolved entities into reply text. For submissions the
// reply opens with a heading and hides the rating of the submission's own
// URL (fresh articles have meaningless ratings). Comments mentioning more
// than ten entities collapse into a one-line summary.
func Format(results []crom.Result, isSubmission bool, submissionURL string) string {
	if len(results) > 10 && !isSubmission {
		return formatShort(results)
	}

	var b strings.Builder
	if isSubmission {
		b.WriteString("**Articles mentioned in this submission**\n\n")
	}

	for _, result := range results {
		if result.Page != nil && result.Page.Page != nil {
			b.WriteString(formatPage(result.Page.Page, result.Page.MatchingPages, pageOptions{
				asListItem:      len(results) > 1,
				isSubmissionURL: result.Page.Page.URL == submissionURL,
			}))
		} else if result.User != nil {
			b.WriteString(formatUser(result.User, len(results) > 1))
		}
	}

	return b.String()
}

func formatShort(results []crom.Result) string {
	parts := make([]string, 0, len(results))

	for _, result := range results {
		switch {
		case result.Page != nil && result.Page.Page != nil:
			page := result.Page.Page
			parts = append(parts, fmt.Sprintf("[%s](%s)", page.Title, httpsify(page.URL)))
		case result.User != nil:
			user := result.User
			if user.UserPage != nil && user.UserPage.URL != "" {
				parts = append(parts, fmt.Sprintf("[*%s*](%s)", user.DisplayName, httpsify(user.UserPage.URL)))
			} else {
				parts = append(parts, user.DisplayName)
			}
		}
	}

	return strings.Join(parts, ", ") + "."
}

type pageOptions struct {
	asListItem      bool
	isSubmissionURL bool
	isTranslation   bool
}

func formatPage(page *crom.Page, matchingPages []*crom.Page, opts pageOptions) string {
	var b strings.Builder

	alternateTitle := ""
	if len(page.AlternateTitles) > 0 {
		alternateTitle = page.AlternateTitles[0].Title
	}

	attributions := make([]crom.Attribution, len(page.Attributions))
	copy(attributions, page.Attributions)
	sort.SliceStable(attributions, func(i, j int) bool {
		return attributionRank(attributions[i].Type) < attributionRank(attributions[j].Type)
	})

	if opts.asListItem {
		b.WriteString("- ")
	}
	b.WriteString("[**")
	b.WriteString(page.Title)
	if alternateTitle != "" && alternateTitle != page.Title {
		// The word joiner keeps Reddit from line-breaking between the title
		// and the dash.
		b.WriteString(" ⁠- ")
		b.WriteString(alternateTitle)
	}
	b.WriteString("**](")
	b.WriteString(httpsify(page.URL))
	b.WriteString(")")
	if !opts.isSubmissionURL {
		b.WriteString(fmt.Sprintf(" (%s)", formatRating(page.Rating)))
	}

	if len(attributions) > 0 {
		b.WriteString(" ")

		if now().Sub(page.CreatedAt) < 7*24*time.Hour {
			b.WriteString("posted ")
			b.WriteString(humanize.Time(page.CreatedAt))
			b.WriteString(" ")
		}

		var names []string
		seen := make(map[string]bool)
		appendName := func(name string) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		if opts.isTranslation {
			// On a translation, the original authors were already credited
			// one line up; only name the translators.
			for _, attribution := range attributions {
				if attribution.Type == "TRANSLATOR" {
					appendName(attribution.User.DisplayName)
				}
			}
		}
		if len(names) == 0 {
			for _, attribution := range attributions {
				appendName(attribution.User.DisplayName)
			}
		}

		b.WriteString("by *")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("*")
	}

	if hostOf(page.URL) != primaryHost && matchingPages != nil {
		if english := findEnglishTranslation(matchingPages); english != nil {
			b.WriteString("\n")
			if opts.asListItem {
				b.WriteString("  - ") // indent as an inner list
			} else {
				b.WriteString("\n") // start a new paragraph
			}
			b.WriteString("Translated: ")
			b.WriteString(formatPage(english, nil, pageOptions{isTranslation: true}))
		}
	}

	b.WriteString("\n")
	return b.String()
}

// findEnglishTranslation prefers the page's mirror on the main English wiki
// and falls back to the international hub.
func findEnglishTranslation(matchingPages []*crom.Page) *crom.Page {
	for _, page := range matchingPages {
		if hostOf(page.URL) == primaryHost {
			return page
		}
	}
	for _, page := range matchingPages {
		if hostOf(page.URL) == internationalHost {
			return page
		}
	}
	return nil
}

func formatUser(user *crom.User, asListItem bool) string {
	var b strings.Builder

	if asListItem {
		b.WriteString("- ")
	}
	b.WriteString("**")
	if user.UserPage != nil && user.UserPage.URL != "" {
		b.WriteString(fmt.Sprintf("[%s](%s)", user.DisplayName, httpsify(user.UserPage.URL)))
	} else {
		b.WriteString(user.DisplayName)
	}
	b.WriteString(fmt.Sprintf("** (*ranked #%d, total rating: %s, mean rating: %s)*",
		user.Statistics.Rank,
		formatRating(user.Statistics.TotalRating),
		formatMeanRating(user.Statistics.MeanRating)))

	b.WriteString("\n")
	return b.String()
}

func attributionRank(attributionType string) int {
	for i, known := range attributionOrder {
		if known == attributionType {
			return i
		}
	}
	return len(attributionOrder)
}

func formatRating(rating int) string {
	if rating >= 0 {
		return fmt.Sprintf("+%d", rating)
	}
	return strconv.Itoa(rating)
}

func formatMeanRating(rating json.Number) string {
	formatted := rating.String()
	if formatted == "" {
		formatted = "0"
	}
	if strings.HasPrefix(formatted, "-") {
		return formatted
	}
	return "+" + formatted
}

func httpsify(pageURL string) string {
	if rest, ok := strings.CutPrefix(pageURL, "http://"); ok {
		return "https://" + rest
	}
	return pageURL
}

func hostOf(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
