package crom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crombird/internal/parse"
)

// The Crom API rejects larger batches.
const batchSize = 25

const wikidotPageInfoFragment = `
fragment WikidotPageInfo on WikidotPage {
  __typename
  url
  title
  rating
  createdAt
  alternateTitles {
    title
  }
  attributions {
    type
    user {
      displayName
    }
  }
}
`

const userInfoFragment = `
fragment UserInfo on User {
  __typename
  displayName
  statistics(siteUrl: $siteUrl) {
    rank
    totalRating
    meanRating
    pageCount
  }
  ... on WikidotUser {
    userPage(siteUrl: $siteUrl) {
      url
    }
  }
  ... on UserWikidotNameReference {
    userPage(siteUrl: $siteUrl) {
      url
    }
  }
}
`

const pageByURLQuery = wikidotPageInfoFragment + `
query PageByUrl($pageUrl: URL!) {
  wikidotPage(url: $pageUrl) {
    ...WikidotPageInfo
  }
  matchingPages(url: $pageUrl) {
    __typename
    ...on WikidotPage {
      ...WikidotPageInfo
    }
  }
}
`

const pageByFreeformTextQuery = userInfoFragment + `
query PageByFreeformText($text: String!, $siteUrl: URL!) {
  searchPages_v1(query: $text, siteUrl: $siteUrl) {
    url
  }
  searchUsers_v1(query: $text, siteUrl: $siteUrl) {
    ...UserInfo
  }
}
`

// searchData is the union of the two query shapes; each response populates
// one half.
type searchData struct {
	WikidotPage   *Page   `json:"wikidotPage"`
	MatchingPages []*Page `json:"matchingPages"`
	SearchPages   []struct {
		URL string `json:"url"`
	} `json:"searchPages_v1"`
	SearchUsers []*User `json:"searchUsers_v1"`
}

// Searcher resolves parsed queries into pages and users.
type Searcher struct {
	client *Client
}

// NewSearcher wraps a Crom client.
func NewSearcher(client *Client) *Searcher {
	return &Searcher{client: client}
}

// Search resolves a sequence of extracted queries. Results keep first-seen
// order and are deduplicated by page URL or user display name,
// case-insensitively. Queries that resolve to nothing are skipped.
func (s *Searcher) Search(ctx context.Context, queries []parse.Query) ([]Result, error) {
	var responses []json.RawMessage
	for _, group := range chunk(queries, batchSize) {
		gqlQueries := make([]GraphQLQuery, 0, len(group))
		for _, query := range group {
			gqlQueries = append(gqlQueries, buildQuery(query))
		}
		batch, err := s.client.QueryBatch(ctx, gqlQueries)
		if err != nil {
			return nil, err
		}
		responses = append(responses, batch...)
	}

	var results []Result
	for i, response := range responses {
		var data searchData
		if err := json.Unmarshal(response, &data); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}

		switch {
		case len(data.SearchUsers) > 0 && strings.EqualFold(data.SearchUsers[0].DisplayName, queries[i].Value):
			results = append(results, Result{User: data.SearchUsers[0]})

		case data.WikidotPage != nil:
			results = append(results, Result{Page: &PageMatch{
				Page:          data.WikidotPage,
				MatchingPages: data.MatchingPages,
			}})

		case len(data.SearchPages) > 0:
			// The search only returns page URLs; fetch the full page for
			// the top hit.
			raw, err := s.client.Query(ctx, GraphQLQuery{
				Query:     pageByURLQuery,
				Variables: map[string]interface{}{"pageUrl": data.SearchPages[0].URL},
			})
			if err != nil {
				return nil, err
			}
			var full searchData
			if err := json.Unmarshal(raw, &full); err != nil {
				return nil, fmt.Errorf("failed to decode page response: %w", err)
			}
			results = append(results, Result{Page: &PageMatch{
				Page:          full.WikidotPage,
				MatchingPages: full.MatchingPages,
			}})
		}
	}

	return uniqueResults(results), nil
}

func buildQuery(query parse.Query) GraphQLQuery {
	switch query.Kind {
	case parse.QueryURL:
		return GraphQLQuery{
			Query:     pageByURLQuery,
			Variables: map[string]interface{}{"pageUrl": strings.ToLower(query.Value)},
		}
	case parse.QueryBare:
		urlSegment := strings.ReplaceAll(strings.ToLower(query.Value), " ", "-")
		return GraphQLQuery{
			Query: pageByURLQuery,
			Variables: map[string]interface{}{
				"pageUrl": fmt.Sprintf("%s/scp-%s", query.SiteURL, urlSegment),
			},
		}
	default:
		return GraphQLQuery{
			Query: pageByFreeformTextQuery,
			Variables: map[string]interface{}{
				"text":    strings.ToLower(query.Value),
				"siteUrl": query.SiteURL,
			},
		}
	}
}

func chunk(queries []parse.Query, size int) [][]parse.Query {
	var groups [][]parse.Query
	for start := 0; start < len(queries); start += size {
		end := start + size
		if end > len(queries) {
			end = len(queries)
		}
		groups = append(groups, queries[start:end])
	}
	return groups
}

func uniqueResults(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	unique := make([]Result, 0, len(results))
	for _, result := range results {
		var key string
		if result.Page != nil && result.Page.Page != nil {
			key = strings.ToLower(result.Page.Page.URL)
		} else if result.User != nil {
			key = strings.ToLower(result.User.DisplayName)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, result)
	}
	return unique
}
