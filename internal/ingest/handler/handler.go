// Package handler exposes the ingestion control surface over HTTP: manual
// triggers, run status, and store statistics.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amlwatch/internal/domain"
	"amlwatch/internal/ingest/scheduler"
	"amlwatch/pkg/platform/httputil"
)

// Control is the scheduler surface the handler drives.
type Control interface {
	Trigger(name string) error
	Status(name string) (scheduler.SourceStatus, error)
	Sources() []string
}

// StatsStore is the read side of the entity store.
type StatsStore interface {
	Count(ctx context.Context) (int64, error)
	CountByType(ctx context.Context) (map[domain.EntityType]int64, error)
}

// Handler wires ingestion endpoints to the scheduler and store.
type Handler struct {
	control Control
	store   StatsStore
	logger  *slog.Logger
}

func New(control Control, store StatsStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{control: control, store: store, logger: logger}
}

// Register mounts ingestion endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest/{source}", h.HandleTrigger)
	r.Get("/ingest/{source}/status", h.HandleStatus)
	r.Get("/ingest/sources", h.HandleSources)
	r.Get("/stats", h.HandleStats)
}

// HandleTrigger handles POST /ingest/{source}. The run proceeds in the
// background; 202 means admitted, not finished.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	if err := h.control.Trigger(name); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ingestion triggered", "source", name)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"source": name,
		"state":  string(scheduler.StateRunning),
	})
}

// HandleStatus handles GET /ingest/{source}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	status, err := h.control.Status(name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleSources handles GET /ingest/sources.
func (h *Handler) HandleSources(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{
		"sources": h.control.Sources(),
	})
}

// statsResponse is the GET /stats body.
type statsResponse struct {
	TotalEntities int64            `json:"total_entities"`
	ByType        map[string]int64 `json:"by_type"`
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.store.Count(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count entities", "error", err)
		httputil.WriteError(w, err)
		return
	}
	byType, err := h.store.CountByType(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count entities by type", "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := statsResponse{TotalEntities: total, ByType: make(map[string]int64, len(byType))}
	for entityType, count := range byType {
		resp.ByType[string(entityType)] = count
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
