package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pavelanni/studymate/internal/model"
)

type queryRequest struct {
	Query string `json:"query"`
	SetID string `json:"setId"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, "query is required", model.ErrInvalidInput)
		return
	}

	res, err := h.rag.Answer(r.Context(), req.Query, req.SetID)
	if err != nil {
		writeError(w, "failed to process query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAllHeadlines(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	headlines, err := h.rag.AllHeadlines(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to generate headlines", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"headlines": headlines})
}

type headlinesRequest struct {
	Limit int `json:"limit"`
}

func (h *Handler) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	var req headlinesRequest
	// The body is optional.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", err)
		return
	}
	if req.Limit < 0 {
		writeError(w, "invalid limit", fmt.Errorf("%w: limit must not be negative", model.ErrInvalidInput))
		return
	}
	set, err := h.existingSet(r)
	if err != nil {
		writeError(w, "failed to load set", err)
		return
	}

	headlines, err := h.rag.Headlines(r.Context(), set.ID, req.Limit)
	if err != nil {
		writeError(w, "failed to generate headlines", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"headlines": headlines})
}

func (h *Handler) handleContentGaps(w http.ResponseWriter, r *http.Request) {
	set, err := h.existingSet(r)
	if err != nil {
		writeError(w, "failed to load set", err)
		return
	}
	coverage, err := h.rag.AnalyzeContent(r.Context(), set.ID)
	if err != nil {
		writeError(w, "failed to analyze content", err)
		return
	}
	writeJSON(w, http.StatusOK, coverage)
}
