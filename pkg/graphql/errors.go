package graphql

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransportError reports a network failure or a non-200 HTTP response.
// StatusCode is zero when no response was received.
type TransportError struct {
	Err        error
	Body       string // Response body, truncated to maxErrorBodySize
	StatusCode int
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("graphql transport: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("graphql request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("graphql request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt: network
// errors, rate limiting and server errors. Caller cancellation is not.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, context.Canceled)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ProtocolError reports a response body that is not a GraphQL JSON envelope.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("graphql protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// GraphQLError reports an `errors` array in the response envelope.
// Only the first message is kept.
type GraphQLError struct {
	Message string
	Count   int
}

func (e *GraphQLError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("graphql error: %s (and %d more)", e.Message, e.Count-1)
	}
	return "graphql error: " + e.Message
}
