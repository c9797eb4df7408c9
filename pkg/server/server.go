// Package server exposes the lead cache over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/cache"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/metrics"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/scoring"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// staleFactor times the cache TTL is how old the last refresh may get before
// /healthz reports the service unhealthy.
const staleFactor = 4

// LeadStore is the cache surface the handlers need. *cache.LeadCache implements it.
type LeadStore interface {
	Get(ctx context.Context, forceRefresh bool) (cache.Entry, error)
	Cached(ctx context.Context) (cache.Entry, error)
	Snapshot() (cache.Entry, bool)
	TTL() time.Duration
}

// Config wires a Server.
type Config struct {
	Store       LeadStore
	Metrics     *metrics.Metrics
	AccessLog   io.Writer // nil uses os.Stdout
	Now         func() time.Time
	CORSOrigins []string
}

// Server routes the lead API.
type Server struct {
	store     LeadStore
	metrics   *metrics.Metrics
	accessLog io.Writer
	now       func() time.Time
	origins   []string
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		accessLog: cfg.AccessLog,
		now:       cfg.Now,
		origins:   cfg.CORSOrigins,
	}
	if s.accessLog == nil {
		s.accessLog = os.Stdout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	return s
}

// Router returns the bare route table without outer middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.HandleFunc("/api/leads", s.handleLeads).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	return r
}

// Handler returns the full handler chain: recovery, access log, CORS, routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	h = handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
	)(h)
	h = handlers.CombinedLoggingHandler(s.accessLog, h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Get(r.Context(), refreshRequested(r))
	if err != nil {
		s.writeFailure(w, r, "list leads", err)
		return
	}
	leads := entry.Leads
	if leads == nil {
		leads = []types.ScoredLead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Get(r.Context(), refreshRequested(r))
	if err != nil {
		s.writeFailure(w, r, "summarize leads", err)
		return
	}
	writeJSON(w, http.StatusOK, scoring.Summarize(entry.Leads, entry.Timestamp))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	entry, ok := s.store.Snapshot()
	if !ok {
		writeText(w, http.StatusOK, "empty - no refresh completed yet\n")
		return
	}

	age := s.now().Sub(entry.Timestamp)
	status, code := "ok", http.StatusOK
	if age > staleFactor*s.store.TTL() {
		status, code = "stale", http.StatusServiceUnavailable
	}
	writeText(w, code, fmt.Sprintf("%s - %d leads cached (age: %s, last refresh: %s)\n",
		status, len(entry.Leads), age.Round(time.Second), entry.Timestamp.UTC().Format(time.RFC3339)))
}

func (*Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Lead Potential Service\nEndpoints: /api/leads, /api/summary, /api/export, /healthz, /metrics\n")
}

// refreshRequested reads the refresh query flag. Unrecognized values are false.
func refreshRequested(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("refresh"))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (*Server) writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.ErrorContext(r.Context(), "Request failed", "component", "server", "operation", op,
		"path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "component", "server", "error", err)
		http.Error(w, `{"detail":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("Failed to write response", "component", "server", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Warn("Failed to write response", "component", "server", "error", err)
	}
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	slog.Error("Recovered from handler panic", "component", "server", "panic", v)
}
