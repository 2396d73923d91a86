// Package transfer serializes goal subtrees to a portable document form
// and materializes such documents back into storage. The same document
// shape carries backups, cross-account copies and assistant-generated
// plans.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
	"github.com/hyperengineering/waypoint/internal/validation"
)

// IDPolicy decides what happens to document ids on import.
type IDPolicy string

const (
	// IDPolicyRegenerate assigns fresh ids to every imported node. This is
	// the default; it makes repeated imports of the same document safe.
	IDPolicyRegenerate IDPolicy = "regenerate"
	// IDPolicyPreserve keeps the ids carried in the document, generating
	// ids only where the document has none.
	IDPolicyPreserve IDPolicy = "preserve"
)

// DocumentError reports validation failures of a transfer document. No
// write happens when validation fails.
type DocumentError struct {
	Violations []validation.ValidationError
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("transfer document failed validation with %d violations", len(e.Violations))
}

// TreeSource materializes goal subtrees. Implemented by the tree
// repository.
type TreeSource interface {
	GetSubtree(ctx context.Context, ref types.GoalRef) (*types.GoalTree, error)
}

// Codec exports goal subtrees to transfer documents and imports them back.
type Codec struct {
	docs   store.DocStore
	trees  TreeSource
	recalc tree.Recalculator
	policy IDPolicy
}

// NewCodec creates a codec. An empty policy means regenerate.
func NewCodec(docs store.DocStore, trees TreeSource, recalc tree.Recalculator, policy IDPolicy) *Codec {
	if policy == "" {
		policy = IDPolicyRegenerate
	}
	return &Codec{docs: docs, trees: trees, recalc: recalc, policy: policy}
}

// Export serializes the goal and its subtree into a transfer document.
func (c *Codec) Export(ctx context.Context, ref types.GoalRef) (*types.TransferDocument, error) {
	subtree, err := c.trees.GetSubtree(ctx, ref)
	if err != nil {
		return nil, err
	}

	ratio := subtree.Ratio
	return &types.TransferDocument{
		ID:    subtree.ID,
		Title: subtree.Title,
		Ratio: &ratio,
		Steps: exportSteps(subtree.Steps),
		Todos: exportTodos(subtree.Todos),
	}, nil
}

func exportSteps(steps []types.StepNode) []types.TransferStep {
	out := make([]types.TransferStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, types.TransferStep{
			ID:    s.ID,
			Title: s.Title,
			Steps: exportSteps(s.Steps),
			Todos: exportTodos(s.Todos),
		})
	}
	return out
}

func exportTodos(todos []types.TodoNode) []types.TransferTodo {
	if len(todos) == 0 {
		return nil
	}
	out := make([]types.TransferTodo, 0, len(todos))
	for _, t := range todos {
		out = append(out, types.TransferTodo{
			ID:         t.ID,
			Task:       t.Task,
			IsFinished: t.IsFinished,
			Weight:     t.Weight,
		})
	}
	return out
}

// Import validates the document and materializes it as a new goal in the
// category, returning the new goal's id. Writes are sequential, not
// transactional; on a mid-import failure the partially written goal is
// removed best-effort and the error names it.
func (c *Codec) Import(ctx context.Context, ref types.CategoryRef, doc types.TransferDocument) (string, error) {
	if ref.CategoryID == "" {
		return "", tree.ErrLegacyReadOnly
	}
	if violations := validation.ValidateTransferDocument(doc); len(violations) > 0 {
		return "", &DocumentError{Violations: violations}
	}

	goal := types.Goal{Title: doc.Title, Ratio: *doc.Ratio}
	parent, name := store.GoalsCollection(ref)

	goalID := doc.ID
	var err error
	if c.policy == IDPolicyPreserve && goalID != "" {
		err = c.docs.Put(ctx, parent.Child(name, goalID), goal)
	} else {
		goalID, err = c.docs.Insert(ctx, parent, name, goal)
	}
	if err != nil {
		return "", err
	}

	goalRef := types.GoalRef{UserID: ref.UserID, CategoryID: ref.CategoryID, GoalID: goalID}
	if err := c.writeLevel(ctx, goalRef, nil, doc.Steps, doc.Todos); err != nil {
		c.cleanup(ctx, goalRef)
		return "", fmt.Errorf("import goal %s: %w", goalID, err)
	}

	if c.recalc != nil {
		if err := c.recalc.RecalculateCategory(ctx, ref); err != nil {
			return "", err
		}
	}
	return goalID, nil
}

func (c *Codec) writeLevel(ctx context.Context, ref types.GoalRef, stepPath []string, steps []types.TransferStep, todos []types.TransferTodo) error {
	if len(todos) > 0 {
		parent, name, ok := store.TodoCollection(ref, stepPath)
		if !ok {
			return tree.ErrLegacyReadOnly
		}
		for _, t := range todos {
			todo := types.Todo{Task: t.Task, IsFinished: t.IsFinished, Weight: t.Weight}
			if c.policy == IDPolicyPreserve && t.ID != "" {
				if err := c.docs.Put(ctx, parent.Child(name, t.ID), todo); err != nil {
					return err
				}
				continue
			}
			if _, err := c.docs.Insert(ctx, parent, name, todo); err != nil {
				return err
			}
		}
	}

	for _, s := range steps {
		parent, name, ok := store.StepsCollection(ref, stepPath)
		if !ok {
			return tree.ErrLegacyReadOnly
		}
		step := types.Step{Title: s.Title}

		stepID := s.ID
		var err error
		if c.policy == IDPolicyPreserve && stepID != "" {
			err = c.docs.Put(ctx, parent.Child(name, stepID), step)
		} else {
			stepID, err = c.docs.Insert(ctx, parent, name, step)
		}
		if err != nil {
			return err
		}

		childPath := make([]string, 0, len(stepPath)+1)
		childPath = append(childPath, stepPath...)
		childPath = append(childPath, stepID)
		if err := c.writeLevel(ctx, ref, childPath, s.Steps, s.Todos); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) cleanup(ctx context.Context, ref types.GoalRef) {
	path := store.GoalPath(ref)
	if err := c.docs.DeletePrefix(ctx, path); err != nil {
		slog.Warn("cleanup of partial import failed", "goal_id", ref.GoalID, "error", err)
		return
	}
	if err := c.docs.Delete(ctx, path); err != nil {
		slog.Warn("cleanup of partial import failed", "goal_id", ref.GoalID, "error", err)
	}
}
