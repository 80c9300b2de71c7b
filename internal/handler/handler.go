// Package handler exposes research runs and stored reports over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Researcher runs one research request; *research.Runner implements it.
type Researcher interface {
	Run(ctx context.Context, query, root string, cfg config.ResearchConfig) (*research.Report, error)
}

// ResearchRequest is the body of POST /api/v1/research. Unset optional
// fields fall back to the server's research defaults.
type ResearchRequest struct {
	Query               string   `json:"query"`
	Workspace           string   `json:"workspace"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	ConfidenceTarget    *float64 `json:"confidence_target,omitempty"`
	Strategies          []string `json:"strategies,omitempty"`
	NoCache             bool     `json:"no_cache,omitempty"`
}

func (req ResearchRequest) apply(cfg config.ResearchConfig) config.ResearchConfig {
	if req.MaxIterations != nil {
		cfg.MaxIterations = *req.MaxIterations
	}
	if req.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.ConfidenceTarget != nil {
		cfg.ConfidenceTarget = *req.ConfidenceTarget
	}
	if len(req.Strategies) > 0 {
		cfg.EnabledStrategies = req.Strategies
	}
	return cfg
}

type Options struct {
	Defaults  config.ResearchConfig
	Workspace config.WorkspaceConfig
	// BaseDir, when set, is the directory every requested workspace must
	// resolve inside. Relative workspaces are resolved against it.
	BaseDir string
}

type Handler struct {
	runner Researcher
	cache  *cache.ReportCache
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// New builds a handler. reportCache and reports may be nil.
func New(runner Researcher, reportCache *cache.ReportCache, reports store.Store, opts Options) *Handler {
	return &Handler{
		runner: runner,
		cache:  reportCache,
		store:  reports,
		opts:   opts,
		logger: logger.WithComponent("research-handler"),
	}
}

// Routes registers every API route on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/research", h.Research)
	mux.HandleFunc("GET /api/v1/research", h.ListReports)
	mux.HandleFunc("GET /api/v1/research/{id}", h.GetReport)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Research(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ResearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "field 'query' is required")
		return
	}
	root, err := h.resolveWorkspace(req.Workspace)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	cfg := req.apply(h.opts.Defaults)

	run := func() (*research.Report, error) {
		return h.runner.Run(ctx, req.Query, root, cfg)
	}
	var rep *research.Report
	cacheHit := false
	if h.cache != nil && !req.NoCache {
		key, keyErr := h.cacheKey(ctx, req.Query, root, cfg)
		if keyErr != nil {
			h.writeAppError(w, keyErr)
			return
		}
		rep, cacheHit, err = h.cache.GetOrCompute(ctx, key, run)
	} else {
		rep, err = run()
	}
	if err != nil {
		log.Warn("research failed", "query", req.Query, "workspace", root, "error", err)
		h.writeAppError(w, err)
		return
	}

	log.Info("research served",
		"run_id", rep.RunID,
		"status", rep.Status,
		"confidence", rep.ConfidenceScore,
		"cache_hit", cacheHit,
	)
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}
	rep, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	list, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reports": list})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

// resolveWorkspace cleans the requested workspace and, when a base directory
// is configured, rejects paths outside it.
func (h *Handler) resolveWorkspace(ws string) (string, error) {
	base := h.opts.BaseDir
	if strings.TrimSpace(ws) == "" {
		if base == "" {
			return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "field 'workspace' is required")
		}
		return filepath.Clean(base), nil
	}
	if base == "" {
		if !filepath.IsAbs(ws) {
			return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "workspace must be an absolute path")
		}
		return filepath.Clean(ws), nil
	}
	root := ws
	if !filepath.IsAbs(root) {
		root = filepath.Join(base, root)
	}
	root = filepath.Clean(root)
	rel, err := filepath.Rel(filepath.Clean(base), root)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusForbidden, "workspace %q is outside the allowed base", ws)
	}
	return root, nil
}

func (h *Handler) cacheKey(ctx context.Context, query, root string, cfg config.ResearchConfig) (string, error) {
	files, err := workspace.NewLister(h.opts.Workspace).List(ctx, root)
	if err != nil {
		return "", err
	}
	return cache.Key(query, root, workspace.Fingerprint(files, ""), cfg), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
}
