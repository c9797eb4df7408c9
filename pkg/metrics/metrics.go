// Package metrics exposes Prometheus collectors for the HTTP surface, the lead
// cache and upstream GraphQL traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leads"

// Metrics owns a private registry so tests and multiple instances never collide.
type Metrics struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	refreshes        *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	cachedLeads      prometheus.Gauge
	lastRefresh      prometheus.Gauge
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Requests served from the cached lead list.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Requests that required a refresh.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Lead refreshes by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_refresh_duration_seconds",
			Help:      "Duration of fetch-and-score refreshes.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		cachedLeads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_leads",
			Help:      "Number of leads in the current cache entry.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "GraphQL requests sent upstream by HTTP status (\"error\" for transport failures).",
		}, []string{"status"}),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Histogram of upstream GraphQL request durations.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.cacheHits,
		m.cacheMisses,
		m.refreshes,
		m.refreshDuration,
		m.cachedLeads,
		m.lastRefresh,
		m.upstreamRequests,
		m.upstreamDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and durations labelled by the matched
// mux route template, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		route := routeLabel(r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RefreshSucceeded implements cache.Observer.
func (m *Metrics) RefreshSucceeded(records int, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues("success").Inc()
	m.refreshDuration.Observe(d.Seconds())
	m.cachedLeads.Set(float64(records))
	m.lastRefresh.SetToCurrentTime()
}

// RefreshFailed implements cache.Observer.
func (m *Metrics) RefreshFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues("failure").Inc()
	m.refreshDuration.Observe(d.Seconds())
}

// Doer matches graphql.HTTPDoer.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type instrumentedDoer struct {
	next Doer
	m    *Metrics
}

// InstrumentDoer wraps next so every upstream request is counted and timed.
func (m *Metrics) InstrumentDoer(next Doer) Doer {
	return &instrumentedDoer{next: next, m: m}
}

func (d *instrumentedDoer) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := d.next.Do(req)
	if d.m == nil {
		return resp, err
	}
	d.m.upstreamDuration.Observe(time.Since(start).Seconds())
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	d.m.upstreamRequests.WithLabelValues(status).Inc()
	return resp, err
}
