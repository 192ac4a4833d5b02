package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarkopopovski/persona-chat/exchange"
)

func TestClientExchange(t *testing.T) {
	var got exchange.Request
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/chat/completion", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"hi there","usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", NewIdentityHolder("token-alice"))

	result, err := client.Exchange(context.Background(), exchange.Request{Message: "hi", ChatSessionID: "s-1", ProjectID: "p-1"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-alice", auth)
	assert.Equal(t, exchange.Request{Message: "hi", ChatSessionID: "s-1", ProjectID: "p-1"}, got)
	assert.Equal(t, "hi there", result.Message)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 5, result.Usage.TotalTokens)
}

func TestClientMapsErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not Found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, NewIdentityHolder("token-alice"))

	_, err := client.ListMessages(context.Background(), "s-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestClientSessionsRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/projects/{projectID}/chat-sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"s-2","project_id":"` + r.PathValue("projectID") + `","name":"Chat B"}]}`))
	})
	mux.HandleFunc("POST /api/v1/projects/{projectID}/chat-sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"data":{"id":"s-3","project_id":"p-1","name":"` + body["name"] + `"}}`))
	})
	mux.HandleFunc("DELETE /api/v1/chat-sessions/{chatSessionID}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Successfully deleted"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL, NewIdentityHolder("token-alice"))

	sessions, err := client.ListSessions(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "p-1", sessions[0].ProjectID)

	created, err := client.CreateSession(ctx, "p-1", "Chat C")
	require.NoError(t, err)
	assert.Equal(t, "Chat C", created.Name)

	assert.NoError(t, client.DeleteSession(ctx, "s-3"))
}

func TestClientSignedOut(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", NewIdentityHolder(""))

	_, err := client.ListSessions(context.Background(), "p-1")
	assert.ErrorIs(t, err, ErrSignedOut)
}

func TestClientLeavesDeadlinesToCaller(t *testing.T) {
	client := NewClient("http://localhost:8080", NewIdentityHolder("token-alice"))
	assert.Zero(t, client.httpClient.Timeout)

	custom := &http.Client{}
	assert.Same(t, custom, client.WithHTTPClient(custom).httpClient)
}
