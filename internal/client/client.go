// Package client talks to a running lifecycle server: the JSON API over
// HTTP and the health service over gRPC.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is returned for any non-2xx answer. Body keeps the server's
// JSON payload, which for /reset and /notify-check still carries a result.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL authenticating with a bearer token.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

func (c *Client) Reset(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/reset", map[string]string{"userId": userID})
}

func (c *Client) NotifyCheck(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/notify-check", map[string]string{"userId": userID})
}

func (c *Client) Enroll(ctx context.Context, userID, email string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/users", map[string]string{"userId": userID, "email": email})
}

func (c *Client) Progress(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/progress", nil)
}

func (c *Client) CreateTask(ctx context.Context, userID, title string, sustainable bool) (json.RawMessage, error) {
	body := map[string]any{"title": title, "isSustainable": sustainable}
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/tasks", body)
}

func (c *Client) CompleteTask(ctx context.Context, userID, taskID string) (json.RawMessage, error) {
	path := "/users/" + url.PathEscape(userID) + "/tasks/" + url.PathEscape(taskID) + "/complete"
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return payload, &APIError{StatusCode: resp.StatusCode, Body: payload}
	}
	return payload, nil
}
