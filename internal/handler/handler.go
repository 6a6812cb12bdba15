package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/studymate/internal/analytics"
	"github.com/pavelanni/studymate/internal/i18n"
	"github.com/pavelanni/studymate/internal/model"
	"github.com/pavelanni/studymate/internal/rag"
	"github.com/pavelanni/studymate/internal/store"
)

const maxRequestBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	rag       *rag.Engine
	analytics *analytics.Analyzer
	config    model.ServeConfig
	keyHash   []byte
}

// New creates a new Handler. When an API key is configured its bcrypt hash
// is kept and every /api request must present the key.
func New(s *store.Store, engine *rag.Engine, a *analytics.Analyzer, cfg model.ServeConfig) (*Handler, error) {
	h := &Handler{store: s, rag: engine, analytics: a, config: cfg}
	if cfg.APIKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.APIKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash api key: %w", err)
		}
		h.keyHash = hash
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(i18n.Middleware(h.config.Lang))
		r.Use(h.requireAPIKey)

		r.Post("/rag/query", h.handleQuery)
		r.Get("/rag/headlines", h.handleAllHeadlines)
		r.Post("/rag/headlines/{setID}", h.handleHeadlines)
		r.Post("/rag/gap-analysis/{setID}", h.handleContentGaps)

		r.Get("/progress/overview", h.handleOverview)
		r.Get("/progress/gaps/{setID}", h.handleGaps)
		r.Get("/progress/recommendations", h.handleRecommendations)
		r.Post("/progress/session", h.handleLogSession)
		r.Post("/progress/quiz", h.handleLogQuiz)
		r.Post("/progress/interaction", h.handleLogInteraction)

		r.Get("/sets", h.handleListSets)
		r.Post("/sets", h.handleCreateSet)
		r.Patch("/sets/{setID}", h.handleUpdateSet)
		r.Delete("/sets/{setID}", h.handleDeleteSet)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrGenerationFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	body := errorBody{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return nil
}

// queryLimit parses the limit query parameter. Zero means the default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", model.ErrInvalidInput)
	}
	return n, nil
}

// existingSet returns the set named by the setID path parameter.
func (h *Handler) existingSet(r *http.Request) (model.Set, error) {
	id := chi.URLParam(r, "setID")
	set, err := h.store.GetSet(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Set{}, fmt.Errorf("set %s: %w", id, model.ErrNotFound)
	}
	return set, err
}
