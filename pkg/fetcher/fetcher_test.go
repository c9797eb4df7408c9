package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/graphql"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/internal/testutil"
)

func newUpstreamFetcher(t *testing.T, upstream *testutil.FakeUpstream, cfg Config) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	client, err := graphql.New(graphql.Config{
		Endpoint:    srv.URL,
		HeaderName:  "X-Console-Auth",
		HeaderValue: "token-123",
	})
	if err != nil {
		t.Fatalf("graphql.New() error = %v", err)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 5 * time.Millisecond
	}
	return New(client, cfg)
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	upstream := &testutil.FakeUpstream{Records: testutil.SyntheticRecords(250)}
	f := newUpstreamFetcher(t, upstream, Config{})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 250 {
		t.Errorf("got %d records, want 250", len(records))
	}
	if got := upstream.PageCalls(); fmt.Sprint(got) != "[1 2 3 4]" {
		t.Errorf("page calls = %v, want [1 2 3 4]", got)
	}
	if records[0].ID != "sys-00001" || records[249].ID != "sys-00250" {
		t.Errorf("records out of order: first %q last %q", records[0].ID, records[249].ID)
	}
	if upstream.FallbackCalls() != 0 {
		t.Errorf("unexpected fallback call")
	}
	if got := upstream.LastHeader().Get("X-Console-Auth"); got != "token-123" {
		t.Errorf("auth header = %q", got)
	}
}

func TestFetchAll_CapsAtMaxRecords(t *testing.T) {
	tests := []struct {
		name      string
		pageSize  int
		wantPages int
	}{
		{"cap reached on page boundary", 100, 50},
		{"last page truncated", 300, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &testutil.FakeUpstream{Records: testutil.SyntheticRecords(5001), PageSize: tt.pageSize}
			f := newUpstreamFetcher(t, upstream, Config{})

			records, err := f.FetchAll(context.Background())
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if len(records) != DefaultMaxRecords {
				t.Errorf("got %d records, want %d", len(records), DefaultMaxRecords)
			}
			if got := len(upstream.PageCalls()); got != tt.wantPages {
				t.Errorf("page calls = %d, want %d", got, tt.wantPages)
			}
			if records[len(records)-1].ID != "sys-05000" {
				t.Errorf("last record = %q, want sys-05000", records[len(records)-1].ID)
			}
		})
	}
}

func TestFetchAll_RepeatedPageTerminatesAndKeepsDuplicates(t *testing.T) {
	upstream := &testutil.FakeUpstream{Records: testutil.SyntheticRecords(100), RepeatFirstPage: true}
	f := newUpstreamFetcher(t, upstream, Config{})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != DefaultMaxRecords {
		t.Fatalf("got %d records, want %d", len(records), DefaultMaxRecords)
	}
	if got := len(upstream.PageCalls()); got > 50 {
		t.Errorf("loop ran %d iterations, want at most 50", got)
	}
	if records[0].ID != records[100].ID {
		t.Errorf("expected duplicate ids to be retained, got %q and %q", records[0].ID, records[100].ID)
	}
}

func TestFetchAll_FallbackOnFirstPageGraphQLError(t *testing.T) {
	upstream := &testutil.FakeUpstream{
		Records:         testutil.SyntheticRecords(10),
		PageErrors:      map[int]string{1: `Cannot query field "allSystemsV1"`},
		FallbackRecords: testutil.SyntheticRecords(3),
	}
	f := newUpstreamFetcher(t, upstream, Config{})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3 from fallback", len(records))
	}
	if got := upstream.FallbackCalls(); got != 1 {
		t.Errorf("fallback calls = %d, want 1", got)
	}
	if got := upstream.PageCalls(); len(got) != 1 {
		t.Errorf("GraphQL errors must not be retried, page calls = %v", got)
	}
}

func TestFetchAll_RetriesTransientThenFallsBack(t *testing.T) {
	upstream := &testutil.FakeUpstream{
		PageStatus:      map[int]int{1: http.StatusServiceUnavailable},
		FallbackRecords: testutil.SyntheticRecords(2),
	}
	f := newUpstreamFetcher(t, upstream, Config{RetryAttempts: 3})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if got := upstream.PageCalls(); fmt.Sprint(got) != "[1 1 1]" {
		t.Errorf("page calls = %v, want three attempts at page 1", got)
	}
	if got := upstream.FallbackCalls(); got != 1 {
		t.Errorf("fallback calls = %d, want 1", got)
	}
}

func TestFetchAll_ClientErrorNotRetried(t *testing.T) {
	upstream := &testutil.FakeUpstream{
		PageStatus:      map[int]int{1: http.StatusBadRequest},
		FallbackRecords: testutil.SyntheticRecords(1),
	}
	f := newUpstreamFetcher(t, upstream, Config{RetryAttempts: 3})

	if _, err := f.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if got := upstream.PageCalls(); len(got) != 1 {
		t.Errorf("page calls = %v, want a single attempt", got)
	}
}

func TestFetchAll_PartialResultsOnLaterPageError(t *testing.T) {
	upstream := &testutil.FakeUpstream{
		Records:    testutil.SyntheticRecords(450),
		PageStatus: map[int]int{3: http.StatusInternalServerError},
	}
	f := newUpstreamFetcher(t, upstream, Config{RetryAttempts: 2})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 200 {
		t.Errorf("got %d records, want 200 from pages 1-2", len(records))
	}
	if upstream.FallbackCalls() != 0 {
		t.Error("fallback must only run when nothing was accumulated")
	}
	if got := upstream.PageCalls(); fmt.Sprint(got) != "[1 2 3 3]" {
		t.Errorf("page calls = %v, want [1 2 3 3]", got)
	}
}

func TestFetchAll_FallbackFailureWrapsBothErrors(t *testing.T) {
	upstream := &testutil.FakeUpstream{
		PageErrors:     map[int]string{1: "schema mismatch"},
		FallbackStatus: http.StatusBadGateway,
	}
	f := newUpstreamFetcher(t, upstream, Config{RetryAttempts: 1})

	_, err := f.FetchAll(context.Background())
	if err == nil {
		t.Fatal("expected error when both page and fallback fail")
	}
	var ge *graphql.GraphQLError
	if !errors.As(err, &ge) {
		t.Errorf("expected page GraphQLError in chain: %v", err)
	}
	var te *graphql.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadGateway {
		t.Errorf("expected fallback TransportError in chain: %v", err)
	}
}

func TestFetchAll_EmptyUpstream(t *testing.T) {
	upstream := &testutil.FakeUpstream{}
	f := newUpstreamFetcher(t, upstream, Config{})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", records)
	}
	if upstream.FallbackCalls() != 0 {
		t.Error("an empty first page is not an error and must not fall back")
	}
}

func TestFetchAll_SecondRootKey(t *testing.T) {
	upstream := &testutil.FakeUpstream{RootKey: "allSystems", Records: testutil.SyntheticRecords(5)}
	f := newUpstreamFetcher(t, upstream, Config{})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 5 {
		t.Errorf("got %d records, want 5", len(records))
	}
}

// stubPoster answers every request with the same payload.
type stubPoster struct {
	err     error
	payload string
	calls   int
	mu      sync.Mutex
}

func (s *stubPoster) Post(ctx context.Context, _ string, _ map[string]any) (graphql.Data, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, &graphql.TransportError{Err: err}
	}
	if s.err != nil {
		return nil, s.err
	}
	var data graphql.Data
	if err := json.Unmarshal([]byte(s.payload), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func TestFetchAll_PageCeiling(t *testing.T) {
	poster := &stubPoster{payload: `{"allSystemsV1":[{"id":"only"}]}`}
	f := New(poster, Config{MaxPages: 5})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 5 || poster.calls != 5 {
		t.Errorf("records = %d, calls = %d, want 5 and 5", len(records), poster.calls)
	}
}

func TestFetchAll_SingleRecordPagesReachCap(t *testing.T) {
	poster := &stubPoster{payload: `{"allSystemsV1":[{"id":"only"}]}`}
	f := New(poster, Config{MaxRecords: 1200})

	records, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1200 || poster.calls != 1200 {
		t.Errorf("records = %d, calls = %d, want 1200 and 1200", len(records), poster.calls)
	}
	if f.cfg.MaxPages != 1201 {
		t.Errorf("MaxPages = %d, want MaxRecords+1", f.cfg.MaxPages)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poster := &stubPoster{payload: `{"allSystemsV1":[]}`}

	_, err := New(poster, Config{}).FetchAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractRecords(t *testing.T) {
	keys := []string{"allSystems", "systems"}
	tests := []struct {
		name    string
		payload string
		wantIDs string
		wantErr bool
	}{
		{name: "bare list", payload: `{"allSystems":[{"id":"a"},{"id":"b"}]}`, wantIDs: "[a b]"},
		{name: "wrapped list", payload: `{"allSystems":{"count":1,"systems":[{"id":"w"}]}}`, wantIDs: "[w]"},
		{name: "null elements skipped", payload: `{"allSystems":[null,{"id":"x"},null]}`, wantIDs: "[x]"},
		{name: "first key empty", payload: `{"allSystems":[],"systems":[{"id":"s"}]}`, wantIDs: "[s]"},
		{name: "first key null", payload: `{"allSystems":null,"systems":[{"id":"s"}]}`, wantIDs: "[s]"},
		{name: "wrapper without systems", payload: `{"allSystems":{"count":0}}`, wantIDs: "[]"},
		{name: "nothing", payload: `{}`, wantIDs: "[]"},
		{name: "wrong shape", payload: `{"allSystems":"oops"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data graphql.Data
			if err := json.Unmarshal([]byte(tt.payload), &data); err != nil {
				t.Fatalf("bad test payload: %v", err)
			}
			records, err := extractRecords(data, keys)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractRecords() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			ids := make([]string, len(records))
			for i := range records {
				ids[i] = records[i].ID
			}
			if got := fmt.Sprint(ids); got != tt.wantIDs {
				t.Errorf("ids = %s, want %s", got, tt.wantIDs)
			}
		})
	}
}

func TestCountDuplicates(t *testing.T) {
	upstream := testutil.SyntheticRecords(3)
	upstream = append(upstream, upstream[0], upstream[1])
	raw, err := json.Marshal(map[string]any{"allSystemsV1": upstream})
	if err != nil {
		t.Fatal(err)
	}
	var data graphql.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	records, err := extractRecords(data, []string{"allSystemsV1"})
	if err != nil {
		t.Fatal(err)
	}
	if got := countDuplicates(records); got != 2 {
		t.Errorf("countDuplicates() = %d, want 2", got)
	}
}
