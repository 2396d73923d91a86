// Package ratio computes completion ratios bottom-up from leaf todo state.
// Both aggregates are recomputed from scratch on every invocation: slower
// than an incremental counter, but immune to drift.
package ratio

import (
	"context"
	"log/slog"
	"math"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/types"
)

// TreeSource provides the flattened leaf view the engine aggregates over.
// Implemented by the tree repository.
type TreeSource interface {
	FlattenTodos(ctx context.Context, ref types.GoalRef) ([]types.TodoNode, error)
	ListGoalIDs(ctx context.Context, ref types.CategoryRef) ([]string, error)
}

// Engine owns the derived ratio fields: Goal.ratio and
// Category.achievementRatio. Nothing else writes them.
type Engine struct {
	trees TreeSource
	docs  store.DocStore
}

// NewEngine creates a ratio engine over the given tree source and store.
func NewEngine(trees TreeSource, docs store.DocStore) *Engine {
	return &Engine{trees: trees, docs: docs}
}

// Compute returns the integer percentage of finished todos, rounded
// half-away-from-zero. An empty multiset is 0, not an error. Weight is
// deliberately not consulted; aggregation is an unweighted count.
func Compute(todos []types.TodoNode) int {
	if len(todos) == 0 {
		return 0
	}

	finished := 0
	for _, t := range todos {
		if t.IsFinished {
			finished++
		}
	}
	return int(math.Round(100 * float64(finished) / float64(len(todos))))
}

// RecalculateGoal recomputes the goal's ratio from its flattened todo set,
// persists it, refreshes the owning category, and returns the new value.
func (e *Engine) RecalculateGoal(ctx context.Context, ref types.GoalRef) (int, error) {
	todos, err := e.trees.FlattenTodos(ctx, ref)
	if err != nil {
		return 0, err
	}

	value := Compute(todos)
	if err := e.docs.Merge(ctx, store.GoalPath(ref), map[string]any{"ratio": value}); err != nil {
		return 0, err
	}

	slog.Debug("goal ratio recalculated",
		"goal_id", ref.GoalID,
		"ratio", value,
		"todos", len(todos),
	)

	if ref.Schema() == types.SchemaCurrent {
		if err := e.RecalculateCategory(ctx, ref.Category()); err != nil {
			return 0, err
		}
	}
	return value, nil
}

// RecalculateCategory recomputes the category's achievement ratio over the
// union of every goal's flattened todo multiset and persists it.
func (e *Engine) RecalculateCategory(ctx context.Context, ref types.CategoryRef) error {
	goalIDs, err := e.trees.ListGoalIDs(ctx, ref)
	if err != nil {
		return err
	}

	var union []types.TodoNode
	for _, goalID := range goalIDs {
		todos, err := e.trees.FlattenTodos(ctx, types.GoalRef{
			UserID:     ref.UserID,
			CategoryID: ref.CategoryID,
			GoalID:     goalID,
		})
		if err != nil {
			return err
		}
		union = append(union, todos...)
	}

	value := Compute(union)
	if err := e.docs.Merge(ctx, store.CategoryPath(ref), map[string]any{"achievementRatio": value}); err != nil {
		return err
	}

	slog.Debug("category ratio recalculated",
		"category_id", ref.CategoryID,
		"ratio", value,
		"goals", len(goalIDs),
		"todos", len(union),
	)
	return nil
}
