// Package chatclient is the client side of the chat exchange: an HTTP API
// client, the per-project session list and the controller that drives
// sends, rate limiting and transcript refreshes.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/zarkopopovski/persona-chat/exchange"
	"github.com/zarkopopovski/persona-chat/models"
)

const maxResponseSize = 10 * 1024 * 1024

var ErrSignedOut = errors.New("signed out")

// APIError is a non-2xx answer from the chat service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat service returned status %d", e.Status)
	}
	return fmt.Sprintf("chat service returned status %d: %s", e.Status, e.Message)
}

// Client calls the chat service REST API with the token held by Identity.
// It sets no request timeout of its own; deadlines come from the caller's
// context or from a client passed to WithHTTPClient.
type Client struct {
	baseURL    string
	identity   *IdentityHolder
	httpClient *http.Client
}

func NewClient(baseURL string, identity *IdentityHolder) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		identity:   identity,
		httpClient: &http.Client{},
	}
}

func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

func (c *Client) Exchange(ctx context.Context, req exchange.Request) (*exchange.Result, error) {
	result := &exchange.Result{}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/completion", req, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListSessions(ctx context.Context, projectID string) ([]models.ChatSession, error) {
	var envelope struct {
		Data []models.ChatSession `json:"data"`
	}
	path := "/api/v1/projects/" + url.PathEscape(projectID) + "/chat-sessions"
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) CreateSession(ctx context.Context, projectID, name string) (*models.ChatSession, error) {
	var envelope struct {
		Data *models.ChatSession `json:"data"`
	}
	path := "/api/v1/projects/" + url.PathEscape(projectID) + "/chat-sessions"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"name": name}, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, errors.New("create session: empty response")
	}
	return envelope.Data, nil
}

func (c *Client) DeleteSession(ctx context.Context, chatSessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/chat-sessions/"+url.PathEscape(chatSessionID), nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, chatSessionID string) ([]models.Message, error) {
	var envelope struct {
		Data []models.Message `json:"data"`
	}
	path := "/api/v1/chat-sessions/" + url.PathEscape(chatSessionID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token := c.identity.Token()
	if token == "" {
		return ErrSignedOut
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &errBody) == nil {
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
