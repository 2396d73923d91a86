package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/types"
)

// Recalculator recomputes derived completion ratios after structural
// changes. Implemented by the ratio engine.
type Recalculator interface {
	RecalculateCategory(ctx context.Context, ref types.CategoryRef) error
}

// Repository owns the shape of the goal tree: creation and deletion of
// goals, steps and todos. Derived ratio fields and settlement fields are
// written by the engines, never here.
type Repository struct {
	docs        store.DocStore
	recalc      Recalculator
	maxDepth    int
	concurrency int
}

// NewRepository creates a repository over the given document store.
// maxDepth bounds materialization; concurrency bounds per-level fan-out.
func NewRepository(docs store.DocStore, maxDepth, concurrency int) *Repository {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Repository{docs: docs, maxDepth: maxDepth, concurrency: concurrency}
}

// BindRecalculator attaches the ratio engine. Bound after construction
// because the engine reads the tree through this repository.
func (r *Repository) BindRecalculator(rc Recalculator) {
	r.recalc = rc
}

// GetGoal reads the goal document alone, without its subtree.
func (r *Repository) GetGoal(ctx context.Context, ref types.GoalRef) (*types.Goal, error) {
	raw, err := r.docs.Get(ctx, store.GoalPath(ref))
	if err != nil {
		return nil, err
	}
	var goal types.Goal
	if err := json.Unmarshal(raw, &goal); err != nil {
		return nil, fmt.Errorf("decode goal %s: %w", ref.GoalID, err)
	}
	return &goal, nil
}

// GetSubtree materializes the goal and its full step/todo tree.
func (r *Repository) GetSubtree(ctx context.Context, ref types.GoalRef) (*types.GoalTree, error) {
	goal, err := r.GetGoal(ctx, ref)
	if err != nil {
		return nil, err
	}

	steps, todos, err := r.materialize(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &types.GoalTree{
		ID:     ref.GoalID,
		Goal:   *goal,
		Steps:  steps,
		Todos:  todos,
		Schema: ref.Schema(),
	}, nil
}

// ListTodos returns the todos attached directly to the node at stepPath.
// An absent collection (or a scheme without todos) yields an empty slice.
func (r *Repository) ListTodos(ctx context.Context, ref types.GoalRef, stepPath []string) ([]types.TodoNode, error) {
	parent, name, ok := store.TodoCollection(ref, stepPath)
	if !ok {
		return nil, nil
	}

	docs, err := r.docs.List(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	todos := make([]types.TodoNode, 0, len(docs))
	for _, doc := range docs {
		var todo types.Todo
		if err := json.Unmarshal(doc.Data, &todo); err != nil {
			return nil, fmt.Errorf("decode todo %s: %w", doc.ID, err)
		}
		todos = append(todos, types.TodoNode{ID: doc.ID, Todo: todo})
	}
	if len(todos) == 0 {
		return nil, nil
	}
	return todos, nil
}

// GetChildSteps returns the direct child steps of the node at stepPath,
// without materializing their own subtrees. Absent collection yields an
// empty slice.
func (r *Repository) GetChildSteps(ctx context.Context, ref types.GoalRef, stepPath []string) ([]types.StepNode, error) {
	parent, name, ok := store.StepsCollection(ref, stepPath)
	if !ok {
		return nil, nil
	}

	docs, err := r.docs.List(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	steps := make([]types.StepNode, 0, len(docs))
	for _, doc := range docs {
		var step types.Step
		if err := json.Unmarshal(doc.Data, &step); err != nil {
			return nil, fmt.Errorf("decode step %s: %w", doc.ID, err)
		}
		steps = append(steps, types.StepNode{ID: doc.ID, Title: step.Title})
	}
	return steps, nil
}

// AddGoal creates a goal in the category and returns its id.
func (r *Repository) AddGoal(ctx context.Context, ref types.CategoryRef, goal types.Goal) (string, error) {
	if ref.CategoryID == "" {
		return "", ErrLegacyReadOnly
	}
	parent, name := store.GoalsCollection(ref)
	return r.docs.Insert(ctx, parent, name, goal)
}

// UpdateGoal merges title-level fields onto the goal. Rejected while the
// goal is locked; the engines bypass this method for the fields they own.
func (r *Repository) UpdateGoal(ctx context.Context, ref types.GoalRef, fields map[string]any) error {
	if err := r.requireEditable(ctx, ref); err != nil {
		return err
	}
	return r.docs.Merge(ctx, store.GoalPath(ref), fields)
}

// DeleteGoal removes the goal and its entire subtree, then refreshes the
// category ratio. Deleting an absent goal succeeds with a warning.
func (r *Repository) DeleteGoal(ctx context.Context, ref types.GoalRef) error {
	path := store.GoalPath(ref)
	if _, err := r.docs.Get(ctx, path); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("goal already absent on delete", "goal_id", ref.GoalID, "user_id", ref.UserID)
			return nil
		}
		return err
	}

	if err := r.docs.DeletePrefix(ctx, path); err != nil {
		return err
	}
	if err := r.docs.Delete(ctx, path); err != nil {
		return err
	}

	return r.recalculateCategory(ctx, ref)
}

// AddStep creates a step under the goal or under the step at stepPath.
func (r *Repository) AddStep(ctx context.Context, ref types.GoalRef, stepPath []string, step types.Step) (string, error) {
	if err := r.requireEditable(ctx, ref); err != nil {
		return "", err
	}
	if err := r.requireStepExists(ctx, ref, stepPath); err != nil {
		return "", err
	}

	parent, name, ok := store.StepsCollection(ref, stepPath)
	if !ok {
		return "", ErrLegacyReadOnly
	}
	return r.docs.Insert(ctx, parent, name, step)
}

// UpdateStep merges fields onto the step at stepPath+stepID.
func (r *Repository) UpdateStep(ctx context.Context, ref types.GoalRef, stepPath []string, stepID string, fields map[string]any) error {
	if err := r.requireEditable(ctx, ref); err != nil {
		return err
	}

	path, ok := store.StepDoc(ref, stepPath, stepID)
	if !ok {
		return ErrLegacyReadOnly
	}
	if _, err := r.docs.Get(ctx, path); err != nil {
		return err
	}
	return r.docs.Merge(ctx, path, fields)
}

// DeleteStep removes the step and everything beneath it. Idempotent.
func (r *Repository) DeleteStep(ctx context.Context, ref types.GoalRef, stepPath []string, stepID string) error {
	if err := r.requireEditable(ctx, ref); err != nil {
		return err
	}

	path, ok := store.StepDoc(ref, stepPath, stepID)
	if !ok {
		return ErrLegacyReadOnly
	}
	if _, err := r.docs.Get(ctx, path); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("step already absent on delete", "goal_id", ref.GoalID, "step_id", stepID)
			return nil
		}
		return err
	}

	if err := r.docs.DeletePrefix(ctx, path); err != nil {
		return err
	}
	return r.docs.Delete(ctx, path)
}

// AddTodo creates a todo under the node at stepPath and refreshes the
// category ratio.
func (r *Repository) AddTodo(ctx context.Context, ref types.GoalRef, stepPath []string, todo types.Todo) (string, error) {
	if err := r.requireEditable(ctx, ref); err != nil {
		return "", err
	}
	if err := r.requireStepExists(ctx, ref, stepPath); err != nil {
		return "", err
	}

	parent, name, ok := store.TodoCollection(ref, stepPath)
	if !ok {
		return "", ErrLegacyReadOnly
	}
	id, err := r.docs.Insert(ctx, parent, name, todo)
	if err != nil {
		return "", err
	}

	if err := r.recalculateCategory(ctx, ref); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTodo merges fields onto a todo. Ratio recomputation is a distinct,
// explicitly invoked operation, so none happens here. A locked goal still
// accepts completion toggles; without them no milestone could be reached.
func (r *Repository) UpdateTodo(ctx context.Context, ref types.GoalRef, stepPath []string, todoID string, fields map[string]any) error {
	if err := r.requireTodoEditable(ctx, ref, fields); err != nil {
		return err
	}

	path, ok := store.TodoDoc(ref, stepPath, todoID)
	if !ok {
		return ErrLegacyReadOnly
	}
	if _, err := r.docs.Get(ctx, path); err != nil {
		return err
	}
	return r.docs.Merge(ctx, path, fields)
}

// DeleteTodo removes a todo and refreshes the category ratio. Idempotent.
func (r *Repository) DeleteTodo(ctx context.Context, ref types.GoalRef, stepPath []string, todoID string) error {
	if err := r.requireEditable(ctx, ref); err != nil {
		return err
	}

	path, ok := store.TodoDoc(ref, stepPath, todoID)
	if !ok {
		return ErrLegacyReadOnly
	}
	if _, err := r.docs.Get(ctx, path); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("todo already absent on delete", "goal_id", ref.GoalID, "todo_id", todoID)
			return nil
		}
		return err
	}

	if err := r.docs.Delete(ctx, path); err != nil {
		return err
	}
	return r.recalculateCategory(ctx, ref)
}

// requireEditable rejects structural edits on locked or legacy goals and
// reports a missing goal as not found.
func (r *Repository) requireEditable(ctx context.Context, ref types.GoalRef) error {
	if ref.Schema() == types.SchemaLegacy {
		return ErrLegacyReadOnly
	}
	goal, err := r.GetGoal(ctx, ref)
	if err != nil {
		return err
	}
	if goal.Locked {
		return ErrGoalLocked
	}
	return nil
}

// requireTodoEditable is requireEditable relaxed for todo patches: on a
// locked goal, a patch touching only isFinished is still allowed.
func (r *Repository) requireTodoEditable(ctx context.Context, ref types.GoalRef, fields map[string]any) error {
	if ref.Schema() == types.SchemaLegacy {
		return ErrLegacyReadOnly
	}
	goal, err := r.GetGoal(ctx, ref)
	if err != nil {
		return err
	}
	if !goal.Locked {
		return nil
	}
	for field := range fields {
		if field != "isFinished" {
			return ErrGoalLocked
		}
	}
	return nil
}

// requireStepExists verifies the deepest ancestor step in stepPath exists.
func (r *Repository) requireStepExists(ctx context.Context, ref types.GoalRef, stepPath []string) error {
	if len(stepPath) == 0 {
		return nil
	}
	path, ok := store.StepDoc(ref, stepPath[:len(stepPath)-1], stepPath[len(stepPath)-1])
	if !ok {
		return ErrLegacyReadOnly
	}
	_, err := r.docs.Get(ctx, path)
	return err
}

func (r *Repository) recalculateCategory(ctx context.Context, ref types.GoalRef) error {
	if r.recalc == nil || ref.Schema() == types.SchemaLegacy {
		return nil
	}
	return r.recalc.RecalculateCategory(ctx, ref.Category())
}
