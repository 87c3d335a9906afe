package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vietddude/seedscan/internal/infra/backend"
	"github.com/vietddude/seedscan/internal/infra/probe"
)

const defaultXpubLimit = 250

func (s *Server) handleXpub(w http.ResponseWriter, r *http.Request) {
	xpub := r.URL.Query().Get("xpub")
	if xpub == "" {
		writeError(w, http.StatusBadRequest, "xpub is required")
		return
	}
	if s.deps.Provider == nil {
		writeError(w, http.StatusBadGateway, "provider not configured")
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = defaultXpubLimit
	}

	res, err := s.deps.Provider.FetchXpub(r.Context(), xpub, limit)
	if err != nil {
		s.logger.Warn("xpub lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backend == nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": "backend not configured"})
		return
	}

	h, err := probe.Probe(r.Context(), func(ctx context.Context) (*backend.Health, error) {
		return s.deps.Backend.Health(ctx)
	}, s.deps.HealthProbe)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type route struct {
	pattern  string
	target   func(r *http.Request) string
	validate func(body []byte) error
}

func fixed(path string) func(*http.Request) string {
	return func(*http.Request) string { return path }
}

func scanPath(suffix string) func(*http.Request) string {
	return func(r *http.Request) string {
		return "/scan/" + url.PathEscape(r.PathValue("id")) + suffix
	}
}

func (s *Server) registerProxies() {
	routes := []route{
		{pattern: "POST /api/scan/start", target: fixed("/scan/start")},
		{pattern: "GET /api/scan/{id}/status", target: scanPath("/status")},
		{pattern: "GET /api/scan/{id}/results", target: scanPath("/results")},
		{pattern: "GET /api/auth/me", target: fixed("/auth/me")},
		{pattern: "POST /api/auth/logout", target: fixed("/auth/logout")},
		{pattern: "POST /api/auth/register", target: fixed("/auth/register")},
		{pattern: "POST /api/utils/hex", target: fixed("/utils/hex/generate"), validate: backend.ValidateHexRequest},
		{pattern: "POST /api/utils/derive", target: fixed("/utils/derive/from-hex")},
	}
	for _, rt := range routes {
		s.mux.HandleFunc(rt.pattern, s.proxy(rt))
	}
}

func (s *Server) proxy(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Backend == nil {
			writeError(w, http.StatusBadGateway, "backend not configured")
			return
		}

		var body []byte
		if r.Method != http.MethodGet {
			var err error
			body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if rt.validate != nil {
			if err := rt.validate(body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		resp, err := s.deps.Backend.Forward(r.Context(), backend.Request{
			Method: r.Method,
			Path:   rt.target(r),
			Cookie: r.Header.Get("Cookie"),
			Body:   body,
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("backend proxy failed", "path", r.URL.Path, "error", err)
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		for _, c := range resp.SetCookie {
			w.Header().Add("Set-Cookie", c)
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}
