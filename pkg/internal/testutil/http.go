// Package testutil provides mock implementations and testing utilities for the lead service.
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// MockHTTPDoer implements graphql.HTTPDoer for testing.
// Responses are queued per method and URL; the last queued response repeats
// once the queue is drained.
type MockHTTPDoer struct {
	responses map[string][]mockResponse
	errors    map[string]error
	calls     []HTTPCall
	mu        sync.Mutex
}

type mockResponse struct {
	body       []byte
	statusCode int
}

// HTTPCall records a single HTTP call.
type HTTPCall struct {
	Header http.Header
	Method string
	URL    string
	Body   []byte
}

// NewMockHTTPDoer creates a new MockHTTPDoer.
func NewMockHTTPDoer() *MockHTTPDoer {
	return &MockHTTPDoer{
		responses: make(map[string][]mockResponse),
		errors:    make(map[string]error),
	}
}

// Do records the request and returns the next configured response.
func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("mock: failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	m.calls = append(m.calls, HTTPCall{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})

	key := makeKey(req.Method, req.URL.String())
	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	queue := m.responses[key]
	if len(queue) == 0 {
		return newResponse(http.StatusNotFound, []byte(`{"message":"not found"}`)), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}
	return newResponse(next.statusCode, next.body), nil
}

// QueueResponse appends a raw response for a method and URL.
func (m *MockHTTPDoer) QueueResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := makeKey(method, url)
	m.responses[key] = append(m.responses[key], mockResponse{statusCode: statusCode, body: []byte(body)})
}

// SetError configures a transport error for a method and URL.
func (m *MockHTTPDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		err = errors.New("mock transport error")
	}
	m.errors[makeKey(method, url)] = err
}

// Calls returns all recorded HTTP calls.
func (m *MockHTTPDoer) Calls() []HTTPCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]HTTPCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

func newResponse(statusCode int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func makeKey(method, url string) string {
	return method + ":" + url
}
