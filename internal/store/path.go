package store

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/waypoint/internal/types"
)

// Path addresses a document or collection in the hierarchical store as
// alternating collection/item segments. An even-length path addresses a
// document; appending a collection name yields a collection path.
type Path []string

// String renders the path in users/{uid}/... form.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Child returns the path of a document inside a sub-collection.
func (p Path) Child(collection, id string) Path {
	out := make(Path, 0, len(p)+2)
	out = append(out, p...)
	return append(out, collection, id)
}

// Parent returns the owning document path (two segments up).
func (p Path) Parent() Path {
	if len(p) < 2 {
		return nil
	}
	return p[:len(p)-2]
}

// Collection returns the collection segment of a document path.
func (p Path) Collection() string {
	if len(p) < 2 {
		return ""
	}
	return p[len(p)-2]
}

// ID returns the final item segment of a document path.
func (p Path) ID() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Validate checks that the path is a well-formed document address.
func (p Path) Validate() error {
	if len(p) == 0 || len(p)%2 != 0 {
		return fmt.Errorf("%w: %q has %d segments", ErrInvalidPath, p.String(), len(p))
	}
	for _, seg := range p {
		if seg == "" || strings.Contains(seg, "/") {
			return fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPath, seg, p.String())
		}
	}
	return nil
}

// ParsePath splits a slash-joined path into segments and validates it.
func ParsePath(s string) (Path, error) {
	p := Path(strings.Split(strings.Trim(s, "/"), "/"))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// The scheme helpers below resolve the current and legacy storage layouts.
// This is the only place that knows which collection names exist at which
// depth; everything above works with refs and step paths.

// CategoryPath returns the document path of a category.
func CategoryPath(ref types.CategoryRef) Path {
	return Path{"users", ref.UserID, "category", ref.CategoryID}
}

// GoalPath returns the document path of a goal under either scheme.
func GoalPath(ref types.GoalRef) Path {
	if ref.Schema() == types.SchemaLegacy {
		return Path{"users", ref.UserID, "goals", ref.GoalID}
	}
	return CategoryPath(ref.Category()).Child("goals", ref.GoalID)
}

// GoalsCollection returns the parent path and collection name that hold a
// user's goals for the scheme selected by the ref.
func GoalsCollection(ref types.CategoryRef) (Path, string) {
	if ref.CategoryID == "" {
		return Path{"users", ref.UserID}, "goals"
	}
	return CategoryPath(ref), "goals"
}

// StepsCollection returns the parent path and collection name for the child
// steps of the node addressed by stepPath. ok is false when the scheme has
// no deeper step level (the legacy layout stops at subStep).
func StepsCollection(ref types.GoalRef, stepPath []string) (parent Path, name string, ok bool) {
	parent = GoalPath(ref)
	if ref.Schema() == types.SchemaLegacy {
		switch len(stepPath) {
		case 0:
			return parent, "steps", true
		case 1:
			return parent.Child("steps", stepPath[0]), "subStep", true
		default:
			return nil, "", false
		}
	}
	for _, stepID := range stepPath {
		parent = parent.Child("steps", stepID)
	}
	return parent, "steps", true
}

// StepDoc returns the document path of the step named by stepPath+stepID.
// ok is false when the scheme cannot address that depth.
func StepDoc(ref types.GoalRef, stepPath []string, stepID string) (Path, bool) {
	parent, name, ok := StepsCollection(ref, stepPath)
	if !ok {
		return nil, false
	}
	return parent.Child(name, stepID), true
}

// TodoCollection returns the parent path and collection name for the todos
// attached to the node addressed by stepPath. The legacy layout carries no
// todos, so ok is false there.
func TodoCollection(ref types.GoalRef, stepPath []string) (parent Path, name string, ok bool) {
	if ref.Schema() == types.SchemaLegacy {
		return nil, "", false
	}
	parent = GoalPath(ref)
	for _, stepID := range stepPath {
		parent = parent.Child("steps", stepID)
	}
	return parent, "todo", true
}

// TodoDoc returns the document path of a todo under the node at stepPath.
func TodoDoc(ref types.GoalRef, stepPath []string, todoID string) (Path, bool) {
	parent, name, ok := TodoCollection(ref, stepPath)
	if !ok {
		return nil, false
	}
	return parent.Child(name, todoID), true
}

// GoalRefFromPath recovers a goal ref from a stored goal document path.
// It recognizes both schemes; ok is false for paths that are not goal docs.
func GoalRefFromPath(p Path) (types.GoalRef, bool) {
	switch {
	case len(p) == 6 && p[0] == "users" && p[2] == "category" && p[4] == "goals":
		return types.GoalRef{UserID: p[1], CategoryID: p[3], GoalID: p[5]}, true
	case len(p) == 4 && p[0] == "users" && p[2] == "goals":
		return types.GoalRef{UserID: p[1], GoalID: p[3]}, true
	}
	return types.GoalRef{}, false
}

// CategoryRefFromPath recovers a category ref from a category document path.
func CategoryRefFromPath(p Path) (types.CategoryRef, bool) {
	if len(p) == 4 && p[0] == "users" && p[2] == "category" {
		return types.CategoryRef{UserID: p[1], CategoryID: p[3]}, true
	}
	return types.CategoryRef{}, false
}
