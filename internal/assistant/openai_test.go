package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type mockChat struct {
	content string
	err     error
	params  openai.ChatCompletionNewParams
}

func (m *mockChat) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestPlan(t *testing.T) {
	chat := &mockChat{content: `{
		"title": "learn the piano",
		"ratio": 0,
		"steps": [
			{
				"title": "fundamentals",
				"steps": [],
				"todos": [
					{"task": "practice scales", "isFinished": true, "weight": 1}
				]
			}
		],
		"todos": [
			{"task": "buy a keyboard", "isFinished": false}
		]
	}`}
	planner := &OpenAI{chat: chat, model: "gpt-4o-mini"}

	doc, err := planner.Plan(context.Background(), "I want to learn the piano")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if doc.Title != "learn the piano" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Ratio == nil || *doc.Ratio != 0 {
		t.Errorf("ratio = %v, want 0", doc.Ratio)
	}
	if doc.ID == "" {
		t.Error("goal id not filled")
	}
	if len(doc.Steps) != 1 || doc.Steps[0].ID == "" {
		t.Fatalf("steps = %+v", doc.Steps)
	}
	if len(doc.Steps[0].Todos) != 1 || doc.Steps[0].Todos[0].ID == "" {
		t.Fatalf("step todos = %+v", doc.Steps[0].Todos)
	}
	if doc.Steps[0].Todos[0].IsFinished {
		t.Error("generated todo not reset to unfinished")
	}
	if len(doc.Todos) != 1 || doc.Todos[0].Task != "buy a keyboard" {
		t.Errorf("direct todos = %+v", doc.Todos)
	}
}

func TestPlanMissingRatio(t *testing.T) {
	chat := &mockChat{content: `{"title": "g", "steps": [], "todos": []}`}
	planner := &OpenAI{chat: chat, model: "gpt-4o-mini"}

	doc, err := planner.Plan(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if doc.Ratio == nil || *doc.Ratio != 0 {
		t.Errorf("ratio = %v, want defaulted 0", doc.Ratio)
	}
}

func TestPlanAPIError(t *testing.T) {
	chat := &mockChat{err: errors.New("rate limited")}
	planner := &OpenAI{chat: chat, model: "gpt-4o-mini"}

	if _, err := planner.Plan(context.Background(), "prompt"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Plan() error = %v, want ErrUnavailable", err)
	}
}

func TestPlanMalformedJSON(t *testing.T) {
	chat := &mockChat{content: "not json"}
	planner := &OpenAI{chat: chat, model: "gpt-4o-mini"}

	if _, err := planner.Plan(context.Background(), "prompt"); err == nil {
		t.Error("Plan() accepted malformed JSON")
	}
}
