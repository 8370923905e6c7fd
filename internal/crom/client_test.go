package crom

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, api http.HandlerFunc) (*Client, *int) {
	t.Helper()

	tokenFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches++
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok","token_type":"bearer"}`)
	})
	mux.HandleFunc("/graphql", api)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		APIEndpoint:  server.URL + "/graphql",
		AuthEndpoint: server.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	return client, &tokenFetches
}

func TestQueryBatchPostsWithBearerToken(t *testing.T) {
	var authHeader string
	var payload []GraphQLQuery

	client, tokenFetches := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		io.WriteString(w, `[{"data":{"ok":true}},{"data":{"ok":false}}]`)
	})

	data, err := client.QueryBatch(context.Background(), []GraphQLQuery{
		{Query: "query A"},
		{Query: "query B"},
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer tok", authHeader)
	require.Len(t, payload, 2)
	require.Equal(t, "query A", payload[0].Query)
	require.Len(t, data, 2)
	require.JSONEq(t, `{"ok":true}`, string(data[0]))
	require.Equal(t, 1, *tokenFetches)
}

func TestQueryBatchRefreshesExpiredTokenOnce(t *testing.T) {
	calls := 0
	client, tokenFetches := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `[{"data":{}}]`)
	})

	_, err := client.QueryBatch(context.Background(), []GraphQLQuery{{Query: "q"}})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, *tokenFetches)
}

func TestQueryBatchSurfacesRepeatedAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.QueryBatch(context.Background(), []GraphQLQuery{{Query: "q"}})
	require.Error(t, err)
}

func TestQueryBatchSurfacesGraphQLErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"data":null,"errors":[{"message":"boom"}]}]`)
	})

	_, err := client.QueryBatch(context.Background(), []GraphQLQuery{{Query: "q"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestQueryBatchSurfacesHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream broke")
	})

	_, err := client.QueryBatch(context.Background(), []GraphQLQuery{{Query: "q"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
