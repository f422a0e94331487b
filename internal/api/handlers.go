package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bobarin/narrator/internal/db"
	"github.com/bobarin/narrator/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerationReader interface {
	GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	generations GenerationReader
	deps        map[string]Pinger
	logger      *zap.Logger
}

func NewHandler(generations GenerationReader, deps map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		generations: generations,
		deps:        deps,
		logger:      logger,
	}
}

// GetGeneration handles GET /v1/generations/{id}
func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid generation ID")
		return
	}

	gen, err := h.generations.GetGeneration(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Generation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get generation", zap.Stringer("generation_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get generation")
		return
	}

	respondJSON(w, http.StatusOK, gen)
}

// Ready reports 503 until every dependency answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	status := http.StatusOK
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondJSON(w, status, map[string]any{"checks": checks})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
