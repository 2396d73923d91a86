package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/waypoint/internal/assistant"
	"github.com/hyperengineering/waypoint/internal/ratio"
	"github.com/hyperengineering/waypoint/internal/settlement"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
	"github.com/hyperengineering/waypoint/internal/validation"
)

// Handler implements the API handlers
type Handler struct {
	docs    store.DocStore
	trees   *tree.Repository
	ratios  *ratio.Engine
	settle  *settlement.Engine
	codec   *transfer.Codec
	planner assistant.Planner

	apiKey        string
	webhookSecret string
	version       string
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Docs    store.DocStore
	Trees   *tree.Repository
	Ratios  *ratio.Engine
	Settle  *settlement.Engine
	Codec   *transfer.Codec
	Planner assistant.Planner

	APIKey        string
	WebhookSecret string
	Version       string
}

// NewHandler creates a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		docs:          cfg.Docs,
		trees:         cfg.Trees,
		ratios:        cfg.Ratios,
		settle:        cfg.Settle,
		codec:         cfg.Codec,
		planner:       cfg.Planner,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		version:       cfg.Version,
	}
}

// goalRef resolves the addressed goal from URL parameters. The legacy
// routes carry no category id, which selects the legacy scheme.
func goalRef(r *http.Request) types.GoalRef {
	return types.GoalRef{
		UserID:     chi.URLParam(r, "userID"),
		CategoryID: chi.URLParam(r, "categoryID"),
		GoalID:     chi.URLParam(r, "goalID"),
	}
}

func categoryRef(r *http.Request) types.CategoryRef {
	return types.CategoryRef{
		UserID:     chi.URLParam(r, "userID"),
		CategoryID: chi.URLParam(r, "categoryID"),
	}
}

// parentQuery reads the ancestor step path from the parent query parameter
// as a comma-separated id list. Used by DELETE routes, which carry no body.
func parentQuery(r *http.Request) []string {
	raw := r.URL.Query().Get("parent")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
	})
}

// GetCategory handles GET /users/{userID}/categories/{categoryID}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	raw, err := h.docs.Get(r.Context(), store.CategoryPath(categoryRef(r)))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// GetGoal handles GET .../goals/{goalID}, returning the materialized tree.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	subtree, err := h.trees.GetSubtree(r.Context(), goalRef(r))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subtree)
}

// CreateGoal handles POST .../goals
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req types.AddGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("title", req.Title))
	c.Add(validation.ValidateUTF8("title", req.Title))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	id, err := h.trees.AddGoal(r.Context(), categoryRef(r), types.Goal{Title: req.Title})
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
}

// UpdateGoal handles PATCH .../goals/{goalID}
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req types.AddGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if err := validation.ValidateRequired("title", req.Title); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	err := h.trees.UpdateGoal(r.Context(), goalRef(r), map[string]any{"title": req.Title})
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGoal handles DELETE .../goals/{goalID}
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.trees.DeleteGoal(r.Context(), goalRef(r)); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateStep handles POST .../goals/{goalID}/steps
func (h *Handler) CreateStep(w http.ResponseWriter, r *http.Request) {
	var req types.AddStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if err := validation.ValidateRequired("title", req.Title); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	id, err := h.trees.AddStep(r.Context(), goalRef(r), req.ParentPath, types.Step{Title: req.Title})
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
}

// UpdateStep handles PATCH .../goals/{goalID}/steps/{stepID}
func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if err := validation.ValidateRequired("title", req.Title); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	err := h.trees.UpdateStep(r.Context(), goalRef(r), req.ParentPath, chi.URLParam(r, "stepID"), map[string]any{"title": req.Title})
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteStep handles DELETE .../goals/{goalID}/steps/{stepID}
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	err := h.trees.DeleteStep(r.Context(), goalRef(r), parentQuery(r), chi.URLParam(r, "stepID"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTodo handles POST .../goals/{goalID}/todos
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req types.AddTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if err := validation.ValidateRequired("task", req.Task); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	todo := types.Todo{Task: req.Task, IsFinished: req.IsFinished, Weight: req.Weight}
	id, err := h.trees.AddTodo(r.Context(), goalRef(r), req.ParentPath, todo)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
}

// UpdateTodo handles PATCH .../goals/{goalID}/todos/{todoID}. Only the
// fields present in the request are merged; ratios are not recomputed here.
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	fields := make(map[string]any)
	if req.Task != nil {
		if verr := validation.ValidateRequired("task", *req.Task); verr != nil {
			WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
			return
		}
		fields["task"] = *req.Task
	}
	if req.IsFinished != nil {
		fields["isFinished"] = *req.IsFinished
	}
	if req.Weight != nil {
		fields["weight"] = *req.Weight
	}
	if len(fields) == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "No fields to update")
		return
	}

	err := h.trees.UpdateTodo(r.Context(), goalRef(r), req.ParentPath, chi.URLParam(r, "todoID"), fields)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTodo handles DELETE .../goals/{goalID}/todos/{todoID}
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	err := h.trees.DeleteTodo(r.Context(), goalRef(r), parentQuery(r), chi.URLParam(r, "todoID"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecalculateRatio handles POST .../goals/{goalID}/ratio, recomputing the
// goal's ratio from its leaves and returning the fresh value.
func (h *Handler) RecalculateRatio(w http.ResponseWriter, r *http.Request) {
	value, err := h.ratios.RecalculateGoal(r.Context(), goalRef(r))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RatioResponse{Ratio: value})
}
