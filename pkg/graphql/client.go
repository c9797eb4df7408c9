// Package graphql provides a minimal client for the upstream monitoring GraphQL API.
package graphql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for creating a new GraphQL client.
type Config struct {
	HTTPClient  HTTPDoer // Optional; defaults to an http.Client with HTTPTimeout
	Endpoint    string
	HeaderName  string // Auth header name, sent verbatim
	HeaderValue string
	HTTPTimeout time.Duration
}

// Client issues single GraphQL requests against one endpoint.
type Client struct {
	httpClient  HTTPDoer
	endpoint    string
	headerName  string
	headerValue string
}

// New creates a new GraphQL client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid GraphQL endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid GraphQL endpoint %q: scheme must be http or https", cfg.Endpoint)
	}
	if cfg.HeaderName == "" {
		return nil, errors.New("auth header name is required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient:  doer,
		endpoint:    cfg.Endpoint,
		headerName:  cfg.HeaderName,
		headerValue: cfg.HeaderValue,
	}, nil
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}
