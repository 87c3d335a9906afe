package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/core/hd"
	"github.com/vietddude/seedscan/internal/infra/storage"
	"github.com/vietddude/seedscan/internal/metrics"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
	"github.com/vietddude/seedscan/internal/scan/stream"
)

const (
	defaultExpandDepth = 100
	maxBodyBytes       = 1 << 20
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{32,128}$`)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	opts := stream.ParseOptions(r.URL.Query())

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	e := stream.NewEmitter(opts, stream.Deps{
		Summarizer: s.deps.Expander,
		Checker:    s.deps.Checker,
		CheckURL:   s.deps.CheckURL,
		Depth:      s.deps.StreamDepth,
		Logger:     s.logger,
	})

	s.logger.Debug("random stream opened", "ips", opts.IPS, "check", opts.Check, "mode", opts.Mode)
	if err := e.Run(r.Context(), sse); err != nil {
		s.logger.Debug("random stream ended", "error", err)
	}
}

// parseDepth reads depth in [1, hd.MaxDepth]; missing, zero or garbage means the default.
func parseDepth(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		return defaultExpandDepth
	}
	return min(hd.MaxDepth, max(1, n))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	seedHex := q.Get("hex")
	if seedHex == "" && r.Method == http.MethodPost {
		var body struct {
			Hex string `json:"hex"`
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
			return
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
				return
			}
		}
		seedHex = body.Hex
	}

	mode := aggregate.ParseMode(q.Get("mode"))
	if q.Get("mode") == "" && s.deps.DefaultMode != "" {
		mode = s.deps.DefaultMode
	}
	if !hexPattern.MatchString(seedHex) {
		metrics.ExpansionsTotal.WithLabelValues(string(mode), "invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid hex")
		return
	}
	depth := parseDepth(q.Get("depth"))

	doc, err := s.deps.Expander.Aggregate(r.Context(), seedHex, depth, mode)
	if err != nil {
		if domain.IsValidation(err) {
			metrics.ExpansionsTotal.WithLabelValues(string(mode), "invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		metrics.ExpansionsTotal.WithLabelValues(string(mode), "error").Inc()
		s.logger.Error("expansion failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if src, ok := domain.ParseSource(strings.ToLower(q.Get("source"))); ok {
		doc.Source = src
	}

	if s.deps.Results != nil {
		if err := s.deps.Results.Save(r.Context(), doc); err != nil {
			s.logger.Warn("failed to persist result", "id", doc.ID, "error", err)
		}
	}

	metrics.ExpansionsTotal.WithLabelValues(string(mode), "ok").Inc()
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	doc, err := s.deps.Results.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrResultNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load result", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeJSON(w, http.StatusOK, []*domain.ResultDocument{})
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	docs, err := s.deps.Results.ListRecent(r.Context(), min(limit, 200))
	if err != nil {
		s.logger.Error("failed to list results", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
