package tree

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/types"
)

// frame tracks one node of the level currently being expanded.
type frame struct {
	path []string
	node *types.StepNode
}

// materialize walks the step tree breadth-first, one level at a time, with
// fan-out bounded by the configured concurrency. An explicit frontier
// instead of call recursion keeps memory bounded and lets the depth guard
// catch malformed self-referencing data. The result does not depend on the
// concurrency limit: listings are ordered by id and nodes keep their slots.
func (r *Repository) materialize(ctx context.Context, ref types.GoalRef) ([]types.StepNode, []types.TodoNode, error) {
	rootTodos, err := r.ListTodos(ctx, ref, nil)
	if err != nil {
		return nil, nil, err
	}

	roots, err := r.GetChildSteps(ctx, ref, nil)
	if err != nil {
		return nil, nil, err
	}

	level := make([]frame, 0, len(roots))
	for i := range roots {
		level = append(level, frame{path: []string{roots[i].ID}, node: &roots[i]})
	}

	for depth := 1; len(level) > 0; depth++ {
		if depth > r.maxDepth {
			return nil, nil, fmt.Errorf("%w: depth %d at goal %s", ErrDepthExceeded, depth, ref.GoalID)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i := range level {
			fr := level[i]
			g.Go(func() error {
				children, err := r.GetChildSteps(gctx, ref, fr.path)
				if err != nil {
					return err
				}
				todos, err := r.ListTodos(gctx, ref, fr.path)
				if err != nil {
					return err
				}
				fr.node.Steps = children
				fr.node.Todos = todos
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		var next []frame
		for _, fr := range level {
			for i := range fr.node.Steps {
				child := &fr.node.Steps[i]
				childPath := make([]string, 0, len(fr.path)+1)
				childPath = append(childPath, fr.path...)
				childPath = append(childPath, child.ID)
				next = append(next, frame{path: childPath, node: child})
			}
		}
		level = next
	}

	return roots, rootTodos, nil
}

// FlattenTodos collects every todo reachable from the goal, both its
// direct todos and those at every depth of its step tree, into one flat
// multiset. This is the input to ratio aggregation.
func (r *Repository) FlattenTodos(ctx context.Context, ref types.GoalRef) ([]types.TodoNode, error) {
	steps, todos, err := r.materialize(ctx, ref)
	if err != nil {
		return nil, err
	}

	all := make([]types.TodoNode, 0, len(todos))
	all = append(all, todos...)
	collectTodos(steps, &all)
	return all, nil
}

func collectTodos(steps []types.StepNode, acc *[]types.TodoNode) {
	for _, s := range steps {
		*acc = append(*acc, s.Todos...)
		collectTodos(s.Steps, acc)
	}
}

// ListGoalIDs returns the ids of every goal in the category.
func (r *Repository) ListGoalIDs(ctx context.Context, ref types.CategoryRef) ([]string, error) {
	parent, name := store.GoalsCollection(ref)
	docs, err := r.docs.List(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}
