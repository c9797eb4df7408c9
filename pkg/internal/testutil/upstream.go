package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// FakeUpstream is a programmable GraphQL server that mimics the monitoring API:
// paginated requests carry a "page" variable, anything else is the one-shot
// full listing.
type FakeUpstream struct {
	PageStatus      map[int]int    // page -> HTTP status to fail with
	PageErrors      map[int]string // page -> GraphQL error message
	RootKey         string         // default "allSystemsV1"
	FallbackRootKey string         // default "allSystems"
	Records         []map[string]any
	FallbackRecords []map[string]any
	PageSize        int // default 100
	FallbackStatus  int // non-zero fails the fallback with this HTTP status
	RepeatFirstPage bool

	headers       []http.Header
	pageCalls     []int
	fallbackCalls int
	mu            sync.Mutex
}

type graphQLRequest struct {
	Variables map[string]any `json:"variables"`
	Query     string         `json:"query"`
}

// ServeHTTP implements http.Handler.
func (f *FakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.headers = append(f.headers, r.Header.Clone())
	pageValue, paginated := req.Variables["page"]
	var page int
	if paginated {
		if n, ok := pageValue.(float64); ok {
			page = int(n)
		}
		f.pageCalls = append(f.pageCalls, page)
	} else {
		f.fallbackCalls++
	}
	f.mu.Unlock()

	if !paginated {
		f.serveFallback(w)
		return
	}

	if status, ok := f.PageStatus[page]; ok {
		http.Error(w, fmt.Sprintf("page %d unavailable", page), status)
		return
	}
	if msg, ok := f.PageErrors[page]; ok {
		writeJSON(w, map[string]any{"errors": []any{map[string]any{"message": msg}}})
		return
	}

	rootKey := f.RootKey
	if rootKey == "" {
		rootKey = "allSystemsV1"
	}
	writeJSON(w, map[string]any{"data": map[string]any{rootKey: f.page(page)}})
}

func (f *FakeUpstream) serveFallback(w http.ResponseWriter) {
	if f.FallbackStatus != 0 {
		http.Error(w, "fallback unavailable", f.FallbackStatus)
		return
	}
	rootKey := f.FallbackRootKey
	if rootKey == "" {
		rootKey = "allSystems"
	}
	records := f.FallbackRecords
	if records == nil {
		records = []map[string]any{}
	}
	writeJSON(w, map[string]any{"data": map[string]any{rootKey: records}})
}

func (f *FakeUpstream) page(page int) []map[string]any {
	size := f.PageSize
	if size <= 0 {
		size = 100
	}
	if f.RepeatFirstPage {
		page = 1
	}
	start := (page - 1) * size
	if page < 1 || start >= len(f.Records) {
		return []map[string]any{}
	}
	end := min(start+size, len(f.Records))
	return f.Records[start:end]
}

// PageCalls returns the page numbers requested so far, in order.
func (f *FakeUpstream) PageCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]int, len(f.pageCalls))
	copy(calls, f.pageCalls)
	return calls
}

// FallbackCalls returns how many non-paginated requests were served.
func (f *FakeUpstream) FallbackCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fallbackCalls
}

// TotalCalls returns the number of requests of either kind.
func (f *FakeUpstream) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pageCalls) + f.fallbackCalls
}

// LastHeader returns the headers of the most recent request.
func (f *FakeUpstream) LastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1]
}

// SyntheticRecords builds n minimal records with ids sys-00001, sys-00002, ...
func SyntheticRecords(n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"id":         fmt.Sprintf("sys-%05d", i+1),
			"name":       fmt.Sprintf("System %d", i+1),
			"status":     "Connected",
			"location":   "Karachi, Sindh",
			"deployedAt": "2021-06-01T10:00:00",
		}
	}
	return records
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
