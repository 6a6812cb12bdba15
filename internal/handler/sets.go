package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/studymate/internal/model"
)

type setRequest struct {
	Name       *string `json:"name"`
	Subject    *string `json:"subject"`
	Grade      *string `json:"grade"`
	Difficulty *string `json:"difficulty"`
}

// apply copies the fields present in the request onto set.
func (req setRequest) apply(set *model.Set) {
	if req.Name != nil {
		set.Name = strings.TrimSpace(*req.Name)
	}
	if req.Subject != nil {
		set.Subject = *req.Subject
	}
	if req.Grade != nil {
		set.Grade = *req.Grade
	}
	if req.Difficulty != nil {
		set.Difficulty = *req.Difficulty
	}
}

func (h *Handler) handleListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListSets(r.Context())
	if err != nil {
		writeError(w, "failed to list sets", err)
		return
	}
	if sets == nil {
		sets = []model.Set{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *Handler) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	var set model.Set
	req.apply(&set)
	if set.Name == "" {
		writeError(w, "name is required", fmt.Errorf("%w: name is required", model.ErrInvalidInput))
		return
	}

	created, err := h.store.CreateSet(r.Context(), set)
	if err != nil {
		writeError(w, "failed to create set", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	set, err := h.existingSet(r)
	if err != nil {
		writeError(w, "failed to load set", err)
		return
	}
	req.apply(&set)
	if set.Name == "" {
		writeError(w, "name must not be empty", fmt.Errorf("%w: name must not be empty", model.ErrInvalidInput))
		return
	}

	if err := h.store.UpdateSet(r.Context(), set); err != nil {
		writeError(w, "failed to update set", err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "setID")
	err := h.store.DeleteSet(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, "set not found", fmt.Errorf("set %s: %w", id, model.ErrNotFound))
		return
	}
	if err != nil {
		writeError(w, "failed to delete set", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
