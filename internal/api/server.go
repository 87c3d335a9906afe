// Package api serves the HTTP surface: the random stream, seed expansion,
// stored results, xpub discovery, backend health and the backend proxies.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/infra/backend"
	"github.com/vietddude/seedscan/internal/infra/probe"
	"github.com/vietddude/seedscan/internal/infra/provider"
	"github.com/vietddude/seedscan/internal/infra/storage"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
	"github.com/vietddude/seedscan/internal/scan/stream"
)

// Expander builds result documents and summaries for a seed.
type Expander interface {
	Aggregate(ctx context.Context, seedHex string, depth int, mode aggregate.Mode) (*domain.ResultDocument, error)
	Summarize(ctx context.Context, seedHex string, depth int, mode aggregate.Mode) (*domain.Summary, error)
}

// Backend is the external job and auth API.
type Backend interface {
	Health(ctx context.Context) (*backend.Health, error)
	Forward(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Component is one dependency reported by /health/detailed.
type Component struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators of the server.
type Deps struct {
	Expander Expander
	Provider provider.AddressProvider
	Results  storage.ResultRepository
	Backend  Backend

	// Checker is nil when no external check URL is configured.
	Checker     stream.Checker
	CheckURL    string
	StreamDepth int

	// DefaultMode applies to expansions that name no discovery mode. The
	// stream's hd option always defaults to address.
	DefaultMode aggregate.Mode

	HealthProbe probe.Config
	Components  []Component
	Logger      *slog.Logger
}

// Server provides the HTTP endpoints.
type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new server listening on port.
func NewServer(port int, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.HealthProbe.MaxAttempts == 0 {
		deps.HealthProbe = probe.DefaultConfig
	}

	mux := http.NewServeMux()
	s := &Server{
		deps:   deps,
		logger: logger,
		mux:    mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			// No write timeout: the random stream is long-lived.
		},
	}

	mux.HandleFunc("GET /api/random/stream", s.handleStream)
	mux.HandleFunc("GET /api/random/expand", s.handleExpand)
	mux.HandleFunc("POST /api/random/expand", s.handleExpand)
	mux.HandleFunc("GET /api/random/results", s.handleListResults)
	mux.HandleFunc("GET /api/random/results/{id}", s.handleGetResult)
	mux.HandleFunc("GET /api/blockchair/xpub", s.handleXpub)
	mux.HandleFunc("GET /api/health", s.handleBackendHealth)
	s.registerProxies()

	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overall := "healthy"
	report := make(map[string]componentStatus, len(s.deps.Components))
	for _, c := range s.deps.Components {
		if err := c.Check(ctx); err != nil {
			report[c.Name] = componentStatus{Status: "error", Error: err.Error()}
			overall = "degraded"
			continue
		}
		report[c.Name] = componentStatus{Status: "ok"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     overall,
		"components": report,
	})
}
