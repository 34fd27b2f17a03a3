// Package api is the REST client for the federation backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joss/fedcli/internal/logging"
)

// Client issues authenticated requests under the API root.
type Client struct {
	baseURL string
	http    HTTPClient
	tokens  TokenSource
	log     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

// New creates a client for baseURL (e.g. http://host:8080/api). tokens may be
// nil for unauthenticated use such as login.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		log:     logging.New("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// send performs the request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.TimedEvent("request", start, map[string]interface{}{"method": method, "path": path}, err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp, path)
		c.log.TimedEvent("request", start, map[string]interface{}{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}, apiErr)
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("request", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return data, nil
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// doText sends a request whose response is plain text.
func (c *Client) doText(ctx context.Context, method, path string, body any) (string, error) {
	data, err := c.send(ctx, method, path, body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
