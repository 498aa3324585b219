package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/weft-scraper/internal/database"
	"github.com/maltedev/weft-scraper/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ArtifactSource provides the catalog to serve.
type ArtifactSource interface {
	Latest(ctx context.Context) (*models.Artifact, error)
}

type RunLister interface {
	Runs(ctx context.Context, limit int) ([]database.Run, error)
}

type OutboxStats interface {
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type Handlers struct {
	source ArtifactSource
	runs   RunLister
	outbox OutboxStats
	logger *slog.Logger
}

func NewHandlers(source ArtifactSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		source: source,
		logger: logger.With("component", "api"),
	}
}

// WithRuns enables the run history endpoint.
func (h *Handlers) WithRuns(runs RunLister) *Handlers {
	h.runs = runs
	return h
}

// WithOutbox adds outbox counters to the health report.
func (h *Handlers) WithOutbox(outbox OutboxStats) *Handlers {
	h.outbox = outbox
	return h
}

type ProductsResponse struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Total       int              `json:"total"`
	Count       int              `json:"count"`
	Offset      int              `json:"offset"`
	Products    []models.Product `json:"products"`
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}
	status := http.StatusOK

	artifact, err := h.source.Latest(r.Context())
	switch {
	case err == nil:
		health["catalog"] = map[string]interface{}{
			"generatedAt": artifact.GeneratedAt,
			"count":       artifact.Count,
		}
	case errors.Is(err, models.ErrNoArtifact):
		health["status"] = "warning"
		health["message"] = "no catalog available yet"
	default:
		h.logger.Error("failed to load catalog", "error", err)
		health["status"] = "error"
		health["message"] = "catalog source unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.outbox != nil {
		pending, _ := h.outbox.CountByStatus(r.Context(), database.OutboxStatusPending, database.OutboxStatusFailed)
		deadLetter, _ := h.outbox.CountByStatus(r.Context(), database.OutboxStatusDeadLetter)
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if deadLetter > 0 && status == http.StatusOK {
			health["status"] = "warning"
			health["message"] = "outbox has dead letter events"
		}
	}

	h.respondJSON(w, status, health)
}

// ListProducts serves the catalog filtered by category, name substring and
// page window.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := intParam(query.Get("limit"), defaultLimit)
	if err != nil || limit < 1 {
		h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := intParam(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		h.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	artifact, ok := h.loadArtifact(w, r)
	if !ok {
		return
	}

	category := strings.TrimSpace(query.Get("category"))
	needle := strings.ToLower(strings.TrimSpace(query.Get("q")))

	matched := make([]models.Product, 0, len(artifact.Products))
	for _, p := range artifact.Products {
		if category != "" && p.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		matched = append(matched, p)
	}

	page := []models.Product{}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[offset:end]
	}

	h.respondJSON(w, http.StatusOK, ProductsResponse{
		GeneratedAt: artifact.GeneratedAt,
		Total:       len(matched),
		Count:       len(page),
		Offset:      offset,
		Products:    page,
	})
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	artifact, ok := h.loadArtifact(w, r)
	if !ok {
		return
	}

	counts := make(map[string]int)
	for _, p := range artifact.Products {
		counts[p.Category]++
	}

	categories := make([]CategoryCount, 0, len(counts))
	for _, name := range artifact.Categories() {
		categories = append(categories, CategoryCount{Name: name, Count: counts[name]})
	}

	h.respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	artifact, ok := h.loadArtifact(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, artifact)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondError(w, http.StatusNotFound, "run history is not available")
		return
	}

	limit, err := intParam(r.URL.Query().Get("limit"), 20)
	if err != nil || limit < 1 {
		h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	runs, err := h.runs.Runs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}

	h.respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) loadArtifact(w http.ResponseWriter, r *http.Request) (*models.Artifact, bool) {
	artifact, err := h.source.Latest(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNoArtifact) {
			h.respondError(w, http.StatusNotFound, "no catalog available yet")
			return nil, false
		}
		h.logger.Error("failed to load catalog", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load catalog")
		return nil, false
	}
	return artifact, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
