package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/types"
)

// Commit handles POST .../goals/{goalID}/commitment, opening a checkout
// session that stakes money on the goal.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req types.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	result, err := h.settle.Commit(r.Context(), goalRef(r), req.Amount)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VerifyCommitment handles POST .../goals/{goalID}/commitment/verify,
// confirming the payment and locking the goal.
func (h *Handler) VerifyCommitment(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	result, err := h.settle.Confirm(r.Context(), goalRef(r), req.SessionID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearCommitment handles DELETE .../goals/{goalID}/commitment, dropping
// an unconfirmed stake.
func (h *Handler) ClearCommitment(w http.ResponseWriter, r *http.Request) {
	result, err := h.settle.ClearPending(r.Context(), goalRef(r))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Settle handles POST .../goals/{goalID}/settlement, refunding newly
// reached milestones.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	result, err := h.settle.Settle(r.Context(), goalRef(r))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StripeWebhook handles POST /webhooks/stripe. Completed checkout sessions
// confirm their goal; every other event type is acknowledged and dropped.
// The endpoint is public; authenticity comes from the signature check.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Unreadable payload")
		return
	}

	event, err := payment.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		slog.Warn("webhook rejected", "error", err)
		WriteProblem(w, r, http.StatusBadRequest, "Invalid webhook signature")
		return
	}

	if event.SessionID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ref := types.GoalRef{
		UserID:     event.Metadata.UserID,
		CategoryID: event.Metadata.CategoryID,
		GoalID:     event.Metadata.GoalID,
	}
	if _, err := h.settle.Confirm(r.Context(), ref, event.SessionID); err != nil {
		// 500 makes the gateway retry the delivery later
		slog.Error("webhook confirmation failed", "session_id", event.SessionID, "goal_id", ref.GoalID, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Confirmation failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}
