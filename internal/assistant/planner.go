// Package assistant turns a free-form prompt into a structured goal plan
// using a language model. The output is an ordinary transfer document, so
// materializing a generated plan is just an import.
package assistant

import (
	"context"
	"errors"

	"github.com/hyperengineering/waypoint/internal/types"
)

// ErrUnavailable wraps model API failures so callers can map them to an
// upstream error status.
var ErrUnavailable = errors.New("assistant unavailable")

// Planner generates a goal plan from a natural-language prompt.
type Planner interface {
	Plan(ctx context.Context, prompt string) (*types.TransferDocument, error)
}
