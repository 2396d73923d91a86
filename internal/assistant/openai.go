package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/waypoint/internal/types"
)

// Compile-time interface check
var _ Planner = (*OpenAI)(nil)

// ChatService defines the interface for making chat completion API calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements the planner using OpenAI's chat completions API in
// JSON mode.
type OpenAI struct {
	chat  ChatService
	model openai.ChatModel
}

// NewOpenAI creates a new OpenAI planner.
func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		chat:  client.Chat.Completions,
		model: openai.ChatModel(model),
	}
}

const systemPrompt = `You are an expert task planner.
From the user's input, generate a hierarchical goal, step and task structure.

Respond with a single JSON object of this shape:
{
  "title": "goal title",
  "ratio": 0,
  "steps": [
    {
      "title": "step title",
      "steps": [],
      "todos": [
        {"task": "concrete task", "isFinished": false, "weight": 1}
      ]
    }
  ],
  "todos": []
}

Rules:
1. The goal is the large objective; steps are mid-size work items and may nest.
2. Todos are concrete actionable tasks.
3. ratio always starts at 0 and isFinished always starts false.
4. weight expresses difficulty and is usually 1.
5. Structure the hierarchy logically.
6. Return only the JSON object, no surrounding text.`

// Plan generates a goal plan from the prompt. Missing ids are filled so
// the document can be imported with id preservation.
func (o *OpenAI) Plan(ctx context.Context, prompt string) (*types.TransferDocument, error) {
	completion, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.F(o.model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		}),
		Temperature: openai.F(0.7),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	var doc types.TransferDocument
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &doc); err != nil {
		return nil, fmt.Errorf("decode generated plan: %w", err)
	}

	normalize(&doc)
	return &doc, nil
}

// ModelName returns the chat model name.
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

// normalize fills ids the model left blank and forces a fresh plan: ratio
// present and every todo unfinished.
func normalize(doc *types.TransferDocument) {
	if doc.ID == "" {
		doc.ID = ulid.Make().String()
	}
	if doc.Ratio == nil {
		zero := 0
		doc.Ratio = &zero
	}
	normalizeTodos(doc.Todos)
	normalizeSteps(doc.Steps)
}

func normalizeSteps(steps []types.TransferStep) {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = ulid.Make().String()
		}
		normalizeTodos(steps[i].Todos)
		normalizeSteps(steps[i].Steps)
	}
}

func normalizeTodos(todos []types.TransferTodo) {
	for i := range todos {
		if todos[i].ID == "" {
			todos[i].ID = ulid.Make().String()
		}
		todos[i].IsFinished = false
	}
}
