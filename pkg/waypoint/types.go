package waypoint

import "fmt"

// GoalRef addresses a goal. An empty CategoryID selects the legacy
// read-only scheme.
type GoalRef struct {
	UserID     string
	CategoryID string
	GoalID     string
}

// Todo is a leaf task.
type Todo struct {
	ID         string  `json:"id"`
	Task       string  `json:"task"`
	IsFinished bool    `json:"isFinished"`
	Weight     float64 `json:"weight,omitempty"`
}

// Step is a step with its children.
type Step struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
	Todos []Todo `json:"todos,omitempty"`
}

// GoalTree is a goal with its fully materialized subtree.
type GoalTree struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Ratio              int    `json:"ratio"`
	Stake              int64  `json:"stake,omitempty"`
	Locked             bool   `json:"locked,omitempty"`
	RefundedMilestones []int  `json:"refundedMilestones,omitempty"`
	Steps              []Step `json:"steps"`
	Todos              []Todo `json:"todos,omitempty"`
}

// Category is a category document.
type Category struct {
	AchievementRatio int `json:"achievementRatio"`
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

// TransferDocument is the portable serialization of a goal subtree.
type TransferDocument struct {
	ID    string         `json:"id,omitempty"`
	Title string         `json:"title"`
	Ratio *int           `json:"ratio"`
	Steps []TransferStep `json:"steps"`
	Todos []TransferTodo `json:"todos,omitempty"`
}

// CommitResult carries the checkout URL the user must be redirected to.
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

// Health is the health check payload.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// AddTodoParams creates a todo under the goal or under the step named by
// ParentPath (ancestor step ids, outermost first).
type AddTodoParams struct {
	ParentPath []string `json:"parentPath"`
	Task       string   `json:"task"`
	IsFinished bool     `json:"isFinished"`
	Weight     float64  `json:"weight,omitempty"`
}

// UpdateTodoParams patches a todo. Nil fields are left untouched.
type UpdateTodoParams struct {
	ParentPath []string `json:"parentPath"`
	Task       *string  `json:"task,omitempty"`
	IsFinished *bool    `json:"isFinished,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
}

// FieldError is a single field violation inside an APIError.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is an RFC 7807 problem response from the service.
type APIError struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Title, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Title, e.Status)
}
