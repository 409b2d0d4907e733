package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient makes REST calls to the devtool server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:9222").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetStatus fetches /api/status.
func (c *HTTPClient) GetStatus() (*Status, error) {
	var s Status
	if err := c.do(http.MethodGet, "/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetHistory fetches /api/history.
func (c *HTTPClient) GetHistory() (*History, error) {
	var h History
	if err := c.do(http.MethodGet, "/api/history", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetSessions fetches /api/sessions.
func (c *HTTPClient) GetSessions() ([]*SessionInfo, error) {
	var out []*SessionInfo
	if err := c.do(http.MethodGet, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReloadSession sends POST /api/sessions/{id}/reload.
func (c *HTTPClient) ReloadSession(id string) error {
	return c.do(http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/reload", nil)
}

// DestroySession sends DELETE /api/sessions/{id}.
func (c *HTTPClient) DestroySession(id string) error {
	return c.do(http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil)
}

func (c *HTTPClient) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(body))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
