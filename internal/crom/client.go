// Package crom resolves extracted wiki references against the Crom GraphQL
// API.
package crom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the Crom API endpoints and credentials.
type Config struct {
	APIEndpoint  string
	AuthEndpoint string
	ClientID     string
	ClientSecret string
}

// GraphQLQuery is one document in a batched request.
type GraphQLQuery struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type queryResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// authState classifies a request outcome for the reauth control flow.
type authState int

const (
	authOK authState = iota
	authNeedsReauth
	authFailed
)

// Client is an OAuth2 client-credentials HTTP client for the Crom API.
// It is not safe for concurrent use; the bot's single control loop is the
// only caller.
type Client struct {
	apiEndpoint string
	creds       *clientcredentials.Config
	httpClient  *http.Client
	token       *oauth2.Token
}

// NewClient creates a Crom API client. No token is fetched until the first
// query.
func NewClient(cfg Config) *Client {
	return &Client{
		apiEndpoint: cfg.APIEndpoint,
		creds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthEndpoint,
		},
		httpClient: &http.Client{},
	}
}

// Query executes a single GraphQL document.
func (c *Client) Query(ctx context.Context, query GraphQLQuery) (json.RawMessage, error) {
	results, err := c.QueryBatch(ctx, []GraphQLQuery{query})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// QueryBatch posts a batch of GraphQL documents and returns one data payload
// per document, in order. An expired credential is refreshed and the batch
// retried exactly once before the failure surfaces.
func (c *Client) QueryBatch(ctx context.Context, queries []GraphQLQuery) ([]json.RawMessage, error) {
	batchID := uuid.NewString()
	log.Debug().Str("batch_id", batchID).Int("queries", len(queries)).Msg("Posting Crom query batch")

	for attempt := 0; attempt < 2; attempt++ {
		if err := c.ensureToken(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch Crom token: %w", err)
		}

		data, state, err := c.post(ctx, queries)
		switch state {
		case authOK:
			return data, nil
		case authNeedsReauth:
			// Token expired mid-flight. Drop it so the next pass fetches a
			// fresh one.
			log.Debug().Str("batch_id", batchID).Msg("Crom token expired, refreshing")
			c.token = nil
		case authFailed:
			return nil, err
		}
	}

	return nil, fmt.Errorf("crom request failed after token refresh")
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != nil && c.token.Valid() {
		return nil
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

func (c *Client) post(ctx context.Context, queries []GraphQLQuery) ([]json.RawMessage, authState, error) {
	payload, err := json.Marshal(queries)
	if err != nil {
		return nil, authFailed, fmt.Errorf("failed to encode query batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, authFailed, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, authFailed, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, authNeedsReauth, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, authFailed, fmt.Errorf("crom API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var responses []queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, authFailed, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(responses) != len(queries) {
		return nil, authFailed, fmt.Errorf("crom API returned %d responses for %d queries", len(responses), len(queries))
	}

	data := make([]json.RawMessage, 0, len(responses))
	for _, response := range responses {
		if len(response.Errors) > 0 {
			return nil, authFailed, fmt.Errorf("crom API returned errors: %s", response.Errors[0])
		}
		data = append(data, response.Data)
	}
	return data, authOK, nil
}
