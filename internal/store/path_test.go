package store

import (
	"reflect"
	"testing"

	"github.com/hyperengineering/waypoint/internal/types"
)

func TestPathValidate(t *testing.T) {
	tests := []struct {
		name    string
		path    Path
		wantErr bool
	}{
		{"document path", Path{"users", "u1", "category", "c1"}, false},
		{"empty", Path{}, true},
		{"odd segments", Path{"users", "u1", "goals"}, true},
		{"empty segment", Path{"users", ""}, true},
		{"slash in segment", Path{"users", "a/b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("/users/u1/goals/g1/")
	if err != nil {
		t.Fatalf("ParsePath() error = %v", err)
	}
	want := Path{"users", "u1", "goals", "g1"}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("ParsePath() = %v, want %v", p, want)
	}

	if _, err := ParsePath("users/u1/goals"); err == nil {
		t.Error("expected error for collection path")
	}
}

func TestPathAccessors(t *testing.T) {
	p := Path{"users", "u1", "category", "c1", "goals", "g1"}
	if p.ID() != "g1" {
		t.Errorf("ID() = %q", p.ID())
	}
	if p.Collection() != "goals" {
		t.Errorf("Collection() = %q", p.Collection())
	}
	if got := p.Parent(); !reflect.DeepEqual(got, Path{"users", "u1", "category", "c1"}) {
		t.Errorf("Parent() = %v", got)
	}
	if got := p.Child("steps", "s1"); got.String() != "users/u1/category/c1/goals/g1/steps/s1" {
		t.Errorf("Child() = %v", got)
	}
}

func TestGoalPathSchemes(t *testing.T) {
	current := types.GoalRef{UserID: "u1", CategoryID: "c1", GoalID: "g1"}
	if got := GoalPath(current).String(); got != "users/u1/category/c1/goals/g1" {
		t.Errorf("current GoalPath = %q", got)
	}

	legacy := types.GoalRef{UserID: "u1", GoalID: "g1"}
	if got := GoalPath(legacy).String(); got != "users/u1/goals/g1" {
		t.Errorf("legacy GoalPath = %q", got)
	}
}

func TestStepsCollectionDepth(t *testing.T) {
	current := types.GoalRef{UserID: "u1", CategoryID: "c1", GoalID: "g1"}

	parent, name, ok := StepsCollection(current, []string{"s1", "s2"})
	if !ok {
		t.Fatal("current scheme should nest arbitrarily")
	}
	if name != "steps" || parent.String() != "users/u1/category/c1/goals/g1/steps/s1/steps/s2" {
		t.Errorf("StepsCollection = %v %q", parent, name)
	}

	legacy := types.GoalRef{UserID: "u1", GoalID: "g1"}

	parent, name, ok = StepsCollection(legacy, []string{"s1"})
	if !ok || name != "subStep" || parent.String() != "users/u1/goals/g1/steps/s1" {
		t.Errorf("legacy depth 1 = %v %q ok=%v", parent, name, ok)
	}

	if _, _, ok := StepsCollection(legacy, []string{"s1", "s2"}); ok {
		t.Error("legacy scheme has no third step level")
	}
}

func TestTodoCollectionLegacyUnsupported(t *testing.T) {
	legacy := types.GoalRef{UserID: "u1", GoalID: "g1"}
	if _, _, ok := TodoCollection(legacy, nil); ok {
		t.Error("legacy scheme carries no todos")
	}

	current := types.GoalRef{UserID: "u1", CategoryID: "c1", GoalID: "g1"}
	parent, name, ok := TodoCollection(current, []string{"s1"})
	if !ok || name != "todo" || parent.String() != "users/u1/category/c1/goals/g1/steps/s1" {
		t.Errorf("TodoCollection = %v %q ok=%v", parent, name, ok)
	}
}

func TestGoalRefFromPath(t *testing.T) {
	tests := []struct {
		name string
		path Path
		want types.GoalRef
		ok   bool
	}{
		{
			"current scheme",
			Path{"users", "u1", "category", "c1", "goals", "g1"},
			types.GoalRef{UserID: "u1", CategoryID: "c1", GoalID: "g1"},
			true,
		},
		{
			"legacy scheme",
			Path{"users", "u1", "goals", "g1"},
			types.GoalRef{UserID: "u1", GoalID: "g1"},
			true,
		},
		{"step doc", Path{"users", "u1", "category", "c1", "goals", "g1", "steps", "s1"}, types.GoalRef{}, false},
		{"category doc", Path{"users", "u1", "category", "c1"}, types.GoalRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GoalRefFromPath(tt.path)
			if ok != tt.ok || got != tt.want {
				t.Errorf("GoalRefFromPath(%v) = %+v, %v; want %+v, %v", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCategoryRefFromPath(t *testing.T) {
	ref, ok := CategoryRefFromPath(Path{"users", "u1", "category", "c1"})
	if !ok || ref.UserID != "u1" || ref.CategoryID != "c1" {
		t.Errorf("CategoryRefFromPath = %+v, %v", ref, ok)
	}
	if _, ok := CategoryRefFromPath(Path{"users", "u1", "goals", "g1"}); ok {
		t.Error("goal path should not resolve as category")
	}
}
