package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/waypoint/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidatePositiveAmount returns an error if the monetary amount is not
// strictly positive.
func ValidatePositiveAmount(field string, value int64) *ValidationError {
	if value <= 0 {
		return &ValidationError{
			Field:   field,
			Message: "must be a positive amount",
		}
	}
	return nil
}

// ValidateRange returns an error if the value is outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateTransferDocument checks a transfer document before any write
// happens: the goal needs a title and an explicit ratio, every step needs a
// title and every todo needs a task.
func ValidateTransferDocument(doc types.TransferDocument) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("title", doc.Title))
	c.Add(ValidateUTF8("title", doc.Title))
	if doc.Ratio == nil {
		c.Add(&ValidationError{Field: "ratio", Message: "is required"})
	}
	validateTransferTodos(&c, "todos", doc.Todos)
	validateTransferSteps(&c, "steps", doc.Steps)
	return c.Errors()
}

func validateTransferSteps(c *Collector, prefix string, steps []types.TransferStep) {
	for i, step := range steps {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		c.Add(ValidateRequired(field+".title", step.Title))
		c.Add(ValidateUTF8(field+".title", step.Title))
		validateTransferTodos(c, field+".todos", step.Todos)
		validateTransferSteps(c, field+".steps", step.Steps)
	}
}

func validateTransferTodos(c *Collector, prefix string, todos []types.TransferTodo) {
	for i, todo := range todos {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		c.Add(ValidateRequired(field+".task", todo.Task))
		c.Add(ValidateUTF8(field+".task", todo.Task))
	}
}
