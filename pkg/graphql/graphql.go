package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	maxQuerySize        = 100000
	maxGraphQLVarLength = 10000
	maxGraphQLVarNum    = 1000000
	maxResponseSize     = 64 << 20
	maxErrorBodySize    = 512
	defaultHTTPTimeout  = 30 * time.Second
)

// Data maps query-root field names to their raw JSON payloads.
type Data map[string]json.RawMessage

// Field returns the payload for a root field, or false when it is absent or null.
func (d Data) Field(name string) (json.RawMessage, bool) {
	raw, ok := d[name]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Decode unmarshals a root field into v. A missing field is not an error and
// leaves v untouched.
func (d Data) Decode(name string, v any) error {
	raw, ok := d.Field(name)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

type envelope struct {
	Data   Data `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Post sends one GraphQL request and returns the `data` object of the response.
// It does not retry; see TransportError.Retryable for callers that do.
func (c *Client) Post(ctx context.Context, query string, variables map[string]any) (Data, error) {
	if err := validateGraphQLVariables(variables); err != nil {
		return nil, fmt.Errorf("invalid GraphQL variables: %w", err)
	}

	queryType := extractGraphQLQueryType(query)
	querySize := len(query)

	if querySize > maxQuerySize {
		return nil, fmt.Errorf("GraphQL query too large: %d chars (max %d)", querySize, maxQuerySize)
	}

	slog.DebugContext(ctx, "Executing GraphQL query", "component", "graphql", "type", queryType, "size", querySize, "variables", len(variables))

	payload := map[string]any{
		"query":     query,
		"variables": variables,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	req.Header.Set(c.headerName, c.headerValue)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer drainAndCloseBody(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		truncated := truncate(string(body), maxErrorBodySize)
		slog.WarnContext(ctx, "GraphQL query failed", "component", "graphql", "type", queryType, "status", resp.StatusCode, "body", truncated)
		return nil, &TransportError{
			Err:        errors.New(http.StatusText(resp.StatusCode)),
			StatusCode: resp.StatusCode,
			Body:       truncated,
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("failed to decode GraphQL response: %w", err)}
	}

	if len(env.Errors) > 0 {
		slog.WarnContext(ctx, "GraphQL query returned errors", "component", "graphql", "type", queryType,
			"first", env.Errors[0].Message, "count", len(env.Errors))
		return nil, &GraphQLError{Message: env.Errors[0].Message, Count: len(env.Errors)}
	}

	if env.Data == nil {
		env.Data = Data{}
	}

	slog.InfoContext(ctx, "GraphQL query completed", "component", "graphql", "type", queryType, "duration", time.Since(start), "bytes", len(body))
	return env.Data, nil
}

// validateGraphQLVariables validates GraphQL variables to prevent injection.
func validateGraphQLVariables(variables map[string]any) error {
	for key, value := range variables {
		if key == "" || strings.ContainsAny(key, "{}[]\"'$ \n\r\t") {
			return fmt.Errorf("invalid character in variable key: %q", key)
		}

		switch v := value.(type) {
		case string:
			if strings.Contains(v, "__schema") || strings.Contains(v, "__type") {
				return errors.New("introspection queries not allowed in variables")
			}
			if len(v) > maxGraphQLVarLength {
				return fmt.Errorf("variable value too long: %d chars", len(v))
			}
		case int:
			if v < 0 || v > maxGraphQLVarNum {
				return fmt.Errorf("numeric variable out of range: %d", v)
			}
		}
	}
	return nil
}

// extractGraphQLQueryType returns a short label for a query, used in logs.
// It prefers the operation name, then the first selected root field.
func extractGraphQLQueryType(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "unknown-graphql"
	}

	if rest, ok := strings.CutPrefix(query, "query"); ok {
		rest = strings.TrimSpace(rest)
		if name := leadingIdentifier(rest); name != "" {
			return name
		}
	}

	open := strings.Index(query, "{")
	if open == -1 {
		return "unknown-graphql"
	}
	if name := leadingIdentifier(strings.TrimSpace(query[open+1:])); name != "" {
		return name
	}
	return "unknown-graphql"
}

func leadingIdentifier(s string) string {
	end := 0
	for end < len(s) {
		ch := s[end]
		if ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (end > 0 && ch >= '0' && ch <= '9') {
			end++
			continue
		}
		break
	}
	return s[:end]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
