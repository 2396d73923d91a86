package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/waypoint/internal/types"
)

// buildNested creates a chain of steps depth levels deep under the goal,
// with one todo on the deepest step, and returns the full step path.
func buildNested(t *testing.T, h *harness, ref types.GoalRef, depth int) []string {
	t.Helper()
	ctx := context.Background()

	var path []string
	for i := 0; i < depth; i++ {
		id, err := h.repo.AddStep(ctx, ref, path, types.Step{Title: "level"})
		if err != nil {
			t.Fatalf("AddStep() at depth %d error = %v", i, err)
		}
		path = append(path, id)
	}
	if _, err := h.repo.AddTodo(ctx, ref, path, types.Todo{Task: "deep", IsFinished: true}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}
	return path
}

func TestGetSubtreeMaterializesNestedSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.seedGoal(t, "goal")

	buildNested(t, h, ref, 3)
	if _, err := h.repo.AddTodo(ctx, ref, nil, types.Todo{Task: "direct"}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}

	subtree, err := h.repo.GetSubtree(ctx, ref)
	if err != nil {
		t.Fatalf("GetSubtree() error = %v", err)
	}

	if len(subtree.Todos) != 1 || subtree.Todos[0].Task != "direct" {
		t.Errorf("direct todos = %+v", subtree.Todos)
	}

	node := subtree.Steps
	for level := 0; level < 3; level++ {
		if len(node) != 1 {
			t.Fatalf("level %d has %d steps, want 1", level, len(node))
		}
		if level == 2 {
			if len(node[0].Todos) != 1 || node[0].Todos[0].Task != "deep" {
				t.Errorf("deepest todos = %+v", node[0].Todos)
			}
		}
		node = node[0].Steps
	}
}

func TestMaterializeDepthGuard(t *testing.T) {
	h := newHarness(t)
	ref := h.seedGoal(t, "goal")
	buildNested(t, h, ref, 4)

	// a second repository with a tighter bound reads the same data
	shallow := NewRepository(h.docs, 2, 4)
	_, err := shallow.GetSubtree(context.Background(), ref)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("GetSubtree() error = %v, want ErrDepthExceeded", err)
	}
}

func TestFlattenTodosSpansAllDepths(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.seedGoal(t, "goal")

	if _, err := h.repo.AddTodo(ctx, ref, nil, types.Todo{Task: "root", IsFinished: true}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}
	stepID, err := h.repo.AddStep(ctx, ref, nil, types.Step{Title: "step"})
	if err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	if _, err := h.repo.AddTodo(ctx, ref, []string{stepID}, types.Todo{Task: "mid"}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}
	buildNested(t, h, ref, 2)

	todos, err := h.repo.FlattenTodos(ctx, ref)
	if err != nil {
		t.Fatalf("FlattenTodos() error = %v", err)
	}
	if len(todos) != 3 {
		t.Fatalf("FlattenTodos() returned %d todos, want 3", len(todos))
	}

	finished := 0
	for _, todo := range todos {
		if todo.IsFinished {
			finished++
		}
	}
	if finished != 2 {
		t.Errorf("finished = %d, want 2", finished)
	}
}

func TestListGoalIDs(t *testing.T) {
	h := newHarness(t)
	first := h.seedGoal(t, "one")
	second := h.seedGoal(t, "two")

	ids, err := h.repo.ListGoalIDs(context.Background(), first.Category())
	if err != nil {
		t.Fatalf("ListGoalIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListGoalIDs() returned %d ids, want 2", len(ids))
	}
	if ids[0] != first.GoalID || ids[1] != second.GoalID {
		t.Errorf("ids = %v", ids)
	}
}
