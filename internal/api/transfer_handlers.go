package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hyperengineering/waypoint/internal/types"
	"github.com/hyperengineering/waypoint/internal/validation"
)

// ExportGoal handles GET .../goals/{goalID}/export, returning the goal as
// a portable transfer document.
func (h *Handler) ExportGoal(w http.ResponseWriter, r *http.Request) {
	doc, err := h.codec.Export(r.Context(), goalRef(r))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ImportGoal handles POST .../import, materializing a transfer document as
// a new goal in the category.
func (h *Handler) ImportGoal(w http.ResponseWriter, r *http.Request) {
	var doc types.TransferDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	goalID, err := h.codec.Import(r.Context(), categoryRef(r), doc)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: goalID})
}

// GeneratePlan handles POST /assistant/plan, turning a free-form prompt
// into a transfer document the client can review and import.
func (h *Handler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req types.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if verr := validation.ValidateRequired("prompt", req.Prompt); verr != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
		return
	}

	doc, err := h.planner.Plan(r.Context(), req.Prompt)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
