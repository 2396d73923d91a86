package types

import (
	"encoding/json"
	"time"
)

// SchemaVersion identifies which storage path scheme a goal was resolved
// from. It is decided once at the storage boundary; business logic never
// branches on it.
type SchemaVersion string

const (
	// SchemaCurrent is the category-scoped scheme:
	// users/{uid}/category/{categoryID}/goals/{goalID}[/steps/{stepID}]*
	SchemaCurrent SchemaVersion = "current"
	// SchemaLegacy is the flat scheme with a fixed two-level step tree:
	// users/{uid}/goals/{goalID}/steps/{stepID}/subStep/{subStepID}
	// Legacy goals are read-only; structural writes are rejected.
	SchemaLegacy SchemaVersion = "legacy"
)

// Milestones are the completion thresholds that each release 25% of a
// goal's stake, always evaluated in ascending order.
var Milestones = []int{25, 50, 75, 100}

// GoalRef addresses a goal. An empty CategoryID selects the legacy scheme.
type GoalRef struct {
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId,omitempty"`
	GoalID     string `json:"goalId"`
}

// Schema returns the storage scheme this ref resolves to.
func (r GoalRef) Schema() SchemaVersion {
	if r.CategoryID == "" {
		return SchemaLegacy
	}
	return SchemaCurrent
}

// Category returns the category portion of the ref.
func (r GoalRef) Category() CategoryRef {
	return CategoryRef{UserID: r.UserID, CategoryID: r.CategoryID}
}

// CategoryRef addresses a category.
type CategoryRef struct {
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId"`
}

// Category is the stored category document. AchievementRatio is derived;
// it is written only by the ratio engine.
type Category struct {
	AchievementRatio int `json:"achievementRatio"`
}

// Goal is the stored goal document. Ratio is owned by the ratio engine;
// Stake, Locked, SessionID, ChargeRef and RefundedMilestones are owned by
// the settlement engine. The tree repository owns Title and the subtree.
type Goal struct {
	Title string `json:"title"`
	Ratio int    `json:"ratio"`

	Stake              int64      `json:"stake,omitempty"`
	Locked             bool       `json:"locked,omitempty"`
	SessionID          string     `json:"sessionId,omitempty"`
	ChargeRef          string     `json:"chargeRef,omitempty"`
	RefundedMilestones []int      `json:"refundedMilestones,omitempty"`
	PaymentCompletedAt *time.Time `json:"paymentCompletedAt,omitempty"`
	LastRefundedAt     *time.Time `json:"lastRefundedAt,omitempty"`
}

// HasRefunded reports whether the milestone is already in the refunded set.
func (g Goal) HasRefunded(milestone int) bool {
	for _, m := range g.RefundedMilestones {
		if m == milestone {
			return true
		}
	}
	return false
}

// FullyRefunded reports whether every milestone has been refunded.
func (g Goal) FullyRefunded() bool {
	for _, m := range Milestones {
		if !g.HasRefunded(m) {
			return false
		}
	}
	return true
}

// Step is the stored step document. Steps carry no ratio of their own;
// aggregation treats every level uniformly.
type Step struct {
	Title string `json:"title"`
}

// Todo is the stored leaf task document. Weight is carried as declared
// difficulty but does not influence ratio aggregation.
type Todo struct {
	Task       string  `json:"task"`
	IsFinished bool    `json:"isFinished"`
	Weight     float64 `json:"weight,omitempty"`
}

// TodoNode is a todo with its document id, as materialized from storage.
type TodoNode struct {
	ID string `json:"id"`
	Todo
}

// StepNode is a step with its children, as materialized from storage.
// Child steps are independent of the todos attached directly to the step.
type StepNode struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Steps []StepNode `json:"steps"`
	Todos []TodoNode `json:"todos,omitempty"`
}

// GoalTree is a goal with its fully materialized subtree.
type GoalTree struct {
	ID string `json:"id"`
	Goal
	Steps  []StepNode    `json:"steps"`
	Todos  []TodoNode    `json:"todos,omitempty"`
	Schema SchemaVersion `json:"-"`
}

// MarshalJSON ensures a nil Steps slice in StepNode marshals as [] not null.
func (s StepNode) MarshalJSON() ([]byte, error) {
	if s.Steps == nil {
		s.Steps = []StepNode{}
	}
	type Alias StepNode
	return json.Marshal(Alias(s))
}

// MarshalJSON ensures a nil Steps slice in GoalTree marshals as [] not null.
func (t GoalTree) MarshalJSON() ([]byte, error) {
	if t.Steps == nil {
		t.Steps = []StepNode{}
	}
	type Alias GoalTree
	return json.Marshal(Alias(t))
}

// TransferTodo is a todo in a transfer document.
type TransferTodo struct {
	ID         string  `json:"id,omitempty"`
	Task       string  `json:"task"`
	IsFinished bool    `json:"isFinished"`
	Weight     float64 `json:"weight,omitempty"`
}

// TransferStep is a step subtree in a transfer document.
type TransferStep struct {
	ID    string         `json:"id,omitempty"`
	Title string         `json:"title"`
	Steps []TransferStep `json:"steps"`
	Todos []TransferTodo `json:"todos,omitempty"`
}

// TransferDocument is the portable serialization of a goal subtree, used
// for export/import and for materializing assistant-generated plans.
// Ratio is a pointer so import can distinguish absent from zero.
type TransferDocument struct {
	ID    string         `json:"id,omitempty"`
	Title string         `json:"title"`
	Ratio *int           `json:"ratio"`
	Steps []TransferStep `json:"steps"`
	Todos []TransferTodo `json:"todos,omitempty"`
}

// MarshalJSON ensures a nil Steps slice in TransferStep marshals as [].
func (s TransferStep) MarshalJSON() ([]byte, error) {
	if s.Steps == nil {
		s.Steps = []TransferStep{}
	}
	type Alias TransferStep
	return json.Marshal(Alias(s))
}

// MarshalJSON ensures a nil Steps slice in TransferDocument marshals as [].
func (d TransferDocument) MarshalJSON() ([]byte, error) {
	if d.Steps == nil {
		d.Steps = []TransferStep{}
	}
	type Alias TransferDocument
	return json.Marshal(Alias(d))
}

// CommitResult is returned when a stake is committed: the caller redirects
// the user to the gateway checkout URL.
type CommitResult struct {
	SessionURL string `json:"url"`
}

// ConfirmResult reports the outcome of payment verification.
type ConfirmResult struct {
	Locked        bool `json:"locked"`
	AlreadyLocked bool `json:"alreadyLocked,omitempty"`
}

// SettleResult reports the outcome of a settlement pass.
type SettleResult struct {
	Refunded           bool   `json:"refunded"`
	RefundedMilestones []int  `json:"refundedMilestones,omitempty"`
	RefundAmount       int64  `json:"refundAmount,omitempty"`
	Message            string `json:"message,omitempty"`
}

// ClearResult reports whether pending commitment fields were removed.
type ClearResult struct {
	Cleared bool `json:"success"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// AddGoalRequest creates a goal in a category.
type AddGoalRequest struct {
	Title string `json:"title"`
}

// AddStepRequest creates a step under the goal or under the step named by
// ParentPath (ancestor step ids, outermost first).
type AddStepRequest struct {
	ParentPath []string `json:"parentPath"`
	Title      string   `json:"title"`
}

// UpdateStepRequest renames a step.
type UpdateStepRequest struct {
	ParentPath []string `json:"parentPath"`
	Title      string   `json:"title"`
}

// AddTodoRequest creates a todo under the goal or the step at ParentPath.
type AddTodoRequest struct {
	ParentPath []string `json:"parentPath"`
	Task       string   `json:"task"`
	IsFinished bool     `json:"isFinished"`
	Weight     float64  `json:"weight,omitempty"`
}

// UpdateTodoRequest patches a todo. Nil fields are left untouched.
type UpdateTodoRequest struct {
	ParentPath []string `json:"parentPath"`
	Task       *string  `json:"task,omitempty"`
	IsFinished *bool    `json:"isFinished,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
}

// CommitRequest stakes an amount on a goal.
type CommitRequest struct {
	Amount int64 `json:"amount"`
}

// VerifyRequest confirms a checkout session. An empty SessionID falls back
// to the session recorded on the goal.
type VerifyRequest struct {
	SessionID string `json:"sessionId"`
}

// PlanRequest asks the assistant for a goal plan.
type PlanRequest struct {
	Prompt string `json:"prompt"`
}

// CreatedResponse reports the id of a newly created document.
type CreatedResponse struct {
	ID string `json:"id"`
}

// RatioResponse reports a freshly recomputed goal ratio.
type RatioResponse struct {
	Ratio int `json:"ratio"`
}
