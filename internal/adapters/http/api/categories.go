package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CategoryHandler serves ranking and report routes.
type CategoryHandler struct {
	deps Dependencies
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(deps Dependencies) *CategoryHandler {
	return &CategoryHandler{deps: deps}
}

// HandleRankings handles GET /v1/categories/{categoryID}/rankings.
func (h *CategoryHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Rankings(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleReport handles GET /v1/categories/{categoryID}/report.
func (h *CategoryHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Report(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
