// Package settlement drives the commitment lifecycle of a goal: staking
// money on it, locking it once payment is confirmed, and releasing the
// stake back in quarters as completion milestones are reached.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
)

// GoalSource reads goal documents. Implemented by the tree repository.
type GoalSource interface {
	GetGoal(ctx context.Context, ref types.GoalRef) (*types.Goal, error)
}

// RatioSource recomputes a goal's completion ratio from its leaves.
// Implemented by the ratio engine.
type RatioSource interface {
	RecalculateGoal(ctx context.Context, ref types.GoalRef) (int, error)
}

// Engine owns every write to the settlement fields of a goal document:
// stake, sessionId, locked, chargeRef, refundedMilestones and the two
// settlement timestamps.
type Engine struct {
	docs    store.DocStore
	goals   GoalSource
	ratios  RatioSource
	gateway payment.Gateway
	now     func() time.Time
}

// NewEngine creates a settlement engine.
func NewEngine(docs store.DocStore, goals GoalSource, ratios RatioSource, gateway payment.Gateway) *Engine {
	return &Engine{
		docs:    docs,
		goals:   goals,
		ratios:  ratios,
		gateway: gateway,
		now:     time.Now,
	}
}

// Commit opens a checkout session staking amount on the goal and records
// the pending session on the goal document. The goal stays editable until
// the payment is confirmed.
func (e *Engine) Commit(ctx context.Context, ref types.GoalRef, amount int64) (*types.CommitResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if ref.Schema() == types.SchemaLegacy {
		return nil, tree.ErrLegacyReadOnly
	}

	goal, err := e.goals.GetGoal(ctx, ref)
	if err != nil {
		return nil, err
	}
	if goal.Locked {
		return nil, ErrAlreadyLocked
	}

	sess, err := e.gateway.CreateSession(ctx, amount, metadataFor(ref))
	if err != nil {
		return nil, err
	}

	err = e.docs.Merge(ctx, store.GoalPath(ref), map[string]any{
		"sessionId": sess.ID,
		"stake":     amount,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("commitment session created",
		"goal_id", ref.GoalID,
		"user_id", ref.UserID,
		"session_id", sess.ID,
		"stake", amount,
	)
	return &types.CommitResult{SessionURL: sess.URL}, nil
}

// Confirm verifies that the checkout session completed and belongs to this
// goal, then locks the goal. Confirming an already locked goal succeeds
// without touching the gateway, so retried callbacks are harmless.
func (e *Engine) Confirm(ctx context.Context, ref types.GoalRef, sessionID string) (*types.ConfirmResult, error) {
	goal, err := e.goals.GetGoal(ctx, ref)
	if err != nil {
		return nil, err
	}
	if goal.Locked {
		return &types.ConfirmResult{Locked: true, AlreadyLocked: true}, nil
	}

	if sessionID == "" {
		sessionID = goal.SessionID
	}
	if sessionID == "" {
		return nil, ErrNoPendingSession
	}
	if goal.SessionID != "" && goal.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	sess, err := e.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Metadata.UserID != ref.UserID ||
		sess.Metadata.CategoryID != ref.CategoryID ||
		sess.Metadata.GoalID != ref.GoalID {
		return nil, ErrSessionMismatch
	}
	if !sess.Paid {
		return nil, ErrPaymentIncomplete
	}

	err = e.docs.Merge(ctx, store.GoalPath(ref), map[string]any{
		"locked":             true,
		"chargeRef":          sess.ChargeRef,
		"paymentCompletedAt": e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("goal locked",
		"goal_id", ref.GoalID,
		"user_id", ref.UserID,
		"session_id", sessionID,
	)
	return &types.ConfirmResult{Locked: true}, nil
}

// ClearPending removes an unconfirmed commitment, dropping the session id
// and stake from the goal. Locked goals cannot be cleared.
func (e *Engine) ClearPending(ctx context.Context, ref types.GoalRef) (*types.ClearResult, error) {
	goal, err := e.goals.GetGoal(ctx, ref)
	if err != nil {
		return nil, err
	}
	if goal.Locked {
		return nil, ErrAlreadyLocked
	}
	if goal.SessionID == "" && goal.Stake == 0 {
		return &types.ClearResult{Cleared: false}, nil
	}

	err = e.docs.Merge(ctx, store.GoalPath(ref), map[string]any{
		"sessionId": nil,
		"stake":     nil,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("pending commitment cleared", "goal_id", ref.GoalID, "user_id", ref.UserID)
	return &types.ClearResult{Cleared: true}, nil
}

// Settle recomputes the goal's ratio and refunds one quarter of the stake
// for every newly reached milestone, ascending. A gateway failure on one
// milestone is logged and skipped; the milestone stays unrefunded and is
// retried on the next pass. The document is written once, after the
// gateway calls.
func (e *Engine) Settle(ctx context.Context, ref types.GoalRef) (*types.SettleResult, error) {
	goal, err := e.goals.GetGoal(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !goal.Locked || goal.Stake <= 0 || goal.ChargeRef == "" {
		return nil, ErrNotSettleable
	}
	if goal.FullyRefunded() {
		return &types.SettleResult{Refunded: false, RefundedMilestones: goal.RefundedMilestones, Message: "stake fully refunded"}, nil
	}

	ratio, err := e.ratios.RecalculateGoal(ctx, ref)
	if err != nil {
		return nil, err
	}

	perMilestone := goal.Stake / int64(len(types.Milestones))
	meta := metadataFor(ref)

	refunded := append([]int(nil), goal.RefundedMilestones...)
	var newlyRefunded []int
	var total int64
	for _, m := range types.Milestones {
		if ratio < m || goal.HasRefunded(m) {
			continue
		}
		refundID, err := e.gateway.RefundPartial(ctx, goal.ChargeRef, perMilestone, m, meta)
		if err != nil {
			slog.Warn("milestone refund failed, will retry",
				"goal_id", ref.GoalID,
				"milestone", m,
				"error", err,
			)
			continue
		}
		slog.Info("milestone refunded",
			"goal_id", ref.GoalID,
			"milestone", m,
			"amount", perMilestone,
			"refund_id", refundID,
		)
		refunded = append(refunded, m)
		newlyRefunded = append(newlyRefunded, m)
		total += perMilestone
	}

	if len(newlyRefunded) == 0 {
		return &types.SettleResult{Refunded: false, RefundedMilestones: refunded, Message: "no milestones eligible"}, nil
	}

	err = e.docs.Merge(ctx, store.GoalPath(ref), map[string]any{
		"refundedMilestones": refunded,
		"lastRefundedAt":     e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	return &types.SettleResult{
		Refunded:           true,
		RefundedMilestones: refunded,
		RefundAmount:       total,
	}, nil
}

// IsConflict reports whether err represents a state conflict rather than a
// caller mistake, for HTTP status mapping.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyLocked) ||
		errors.Is(err, ErrSessionMismatch) ||
		errors.Is(err, ErrPaymentIncomplete) ||
		errors.Is(err, ErrNotSettleable) ||
		errors.Is(err, ErrNoPendingSession)
}

func metadataFor(ref types.GoalRef) payment.Metadata {
	return payment.Metadata{
		UserID:     ref.UserID,
		CategoryID: ref.CategoryID,
		GoalID:     ref.GoalID,
	}
}
