package clientsync

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

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

// APIError is a non-2xx response from the blitz API.
type APIError struct {
	Status  int
	Kind    domain.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blitz api: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client talks to the blitz REST API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Join enters a session by code. Joining twice returns the same membership.
func (c *Client) Join(ctx context.Context, code, displayName string) (app.JoinResult, error) {
	var res app.JoinResult
	err := c.do(ctx, http.MethodPost, "/api/blitz/join", map[string]string{"code": code, "displayName": displayName}, &res)
	return res, err
}

func (c *Client) FetchState(ctx context.Context, sessionID string) (domain.State, error) {
	var state domain.State
	err := c.do(ctx, http.MethodGet, "/api/blitz/sessions/"+url.PathEscape(sessionID), nil, &state)
	return state, err
}

// SocketURL derives the realtime endpoint from the API base URL.
func (c *Client) SocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error struct {
				Kind    domain.Kind `json:"kind"`
				Message string      `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Kind: payload.Error.Kind, Message: payload.Error.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
