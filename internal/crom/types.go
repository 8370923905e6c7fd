package crom

import (
	"encoding/json"
	"time"
)

// Page is a wiki page as returned by the Crom API.
type Page struct {
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	Rating          int              `json:"rating"`
	CreatedAt       time.Time        `json:"createdAt"`
	AlternateTitles []AlternateTitle `json:"alternateTitles"`
	Attributions    []Attribution    `json:"attributions"`
}

// AlternateTitle is a translated display title for a page.
type AlternateTitle struct {
	Title string `json:"title"`
}

// Attribution credits a user for a page. Type is one of SUBMITTER,
// TRANSLATOR, REWRITE, AUTHOR or MAINTAINER.
type Attribution struct {
	Type string `json:"type"`
	User struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// User is a wiki contributor profile.
type User struct {
	DisplayName string         `json:"displayName"`
	Statistics  UserStatistics `json:"statistics"`
	UserPage    *UserPage      `json:"userPage"`
}

// UserStatistics are per-site contribution numbers. MeanRating keeps the
// API's own numeric literal so a trailing-zero float renders as sent.
type UserStatistics struct {
	Rank        int         `json:"rank"`
	TotalRating int         `json:"totalRating"`
	MeanRating  json.Number `json:"meanRating"`
	PageCount   int         `json:"pageCount"`
}

// UserPage points at the user's profile page, when one exists.
type UserPage struct {
	URL string `json:"url"`
}

// PageMatch pairs a resolved page with the equivalent pages on other
// branches, used to surface translations.
type PageMatch struct {
	Page          *Page
	MatchingPages []*Page
}

// Result is one resolved entity. Exactly one of Page or User is set.
type Result struct {
	Page *PageMatch
	User *User
}
