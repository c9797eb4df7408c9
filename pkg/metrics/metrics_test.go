package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/internal/testutil"
)

func TestMiddleware_LabelsByRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/leads", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodGet)

	for _, path := range []string{"/api/leads", "/api/leads", "/api/items/1", "/api/items/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	if got := promtest.ToFloat64(m.httpRequests.WithLabelValues("/api/leads", "GET", "200")); got != 2 {
		t.Errorf("leads requests = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.httpRequests.WithLabelValues("/api/items/{id}", "GET", "500")); got != 2 {
		t.Errorf("templated route requests = %v, want 2", got)
	}
}

func TestCacheObserver(t *testing.T) {
	m := New()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.RefreshSucceeded(42, 1500*time.Millisecond)
	m.RefreshFailed(time.Second)

	if got := promtest.ToFloat64(m.cacheHits); got != 2 {
		t.Errorf("cache hits = %v", got)
	}
	if got := promtest.ToFloat64(m.cacheMisses); got != 1 {
		t.Errorf("cache misses = %v", got)
	}
	if got := promtest.ToFloat64(m.cachedLeads); got != 42 {
		t.Errorf("cached leads = %v", got)
	}
	if got := promtest.ToFloat64(m.refreshes.WithLabelValues("success")); got != 1 {
		t.Errorf("successful refreshes = %v", got)
	}
	if got := promtest.ToFloat64(m.refreshes.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed refreshes = %v", got)
	}
	if got := promtest.ToFloat64(m.lastRefresh); got <= 0 {
		t.Errorf("last refresh timestamp = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.CacheHit()
	m.CacheMiss()
	m.RefreshSucceeded(1, time.Second)
	m.RefreshFailed(time.Second)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestInstrumentDoer(t *testing.T) {
	m := New()
	doer := testutil.NewMockHTTPDoer()
	doer.QueueResponse(http.MethodPost, "https://up.example/graphql", http.StatusOK, `{"data":{}}`)
	doer.SetError(http.MethodPost, "https://down.example/graphql", errors.New("connection refused"))
	wrapped := m.InstrumentDoer(doer)

	req, _ := http.NewRequest(http.MethodPost, "https://up.example/graphql", strings.NewReader("{}"))
	resp, err := wrapped.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	req, _ = http.NewRequest(http.MethodPost, "https://down.example/graphql", strings.NewReader("{}"))
	if _, err := wrapped.Do(req); err == nil {
		t.Fatal("expected transport error")
	}

	if got := promtest.ToFloat64(m.upstreamRequests.WithLabelValues("200")); got != 1 {
		t.Errorf("200 upstream requests = %v", got)
	}
	if got := promtest.ToFloat64(m.upstreamRequests.WithLabelValues("error")); got != 1 {
		t.Errorf("failed upstream requests = %v", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.CacheHit()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"leads_cache_hits_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
