package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/studymate/internal/model"
)

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	rows, err := h.analytics.ProgressOverview(r.Context())
	if err != nil {
		writeError(w, "failed to load progress", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.analytics.AnalyzeGaps(r.Context(), chi.URLParam(r, "setID"))
	if err != nil {
		writeError(w, "failed to analyze gaps", err)
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.analytics.ProgressOverview(r.Context())
	if err != nil {
		writeError(w, "failed to load progress", err)
		return
	}
	writeJSON(w, http.StatusOK, h.analytics.Recommend(r.Context(), rows))
}

func (h *Handler) handleLogSession(w http.ResponseWriter, r *http.Request) {
	var in model.SessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	session, err := h.analytics.LogSession(r.Context(), in)
	if err != nil {
		writeError(w, "failed to log session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleLogQuiz(w http.ResponseWriter, r *http.Request) {
	var in model.QuizInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	result, err := h.analytics.LogQuizResult(r.Context(), in)
	if err != nil {
		writeError(w, "failed to log quiz result", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	var in model.InteractionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	it, err := h.analytics.LogInteraction(r.Context(), in)
	if err != nil {
		writeError(w, "failed to log interaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}
