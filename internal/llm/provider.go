// Package llm abstracts the conversational model behind a Provider that
// accepts a message transcript plus a tool schema and returns either final
// text or a set of requested tool invocations.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds every single model call.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the llm package.
var (
	ErrNoChoices = errors.New("model returned no choices")
)

// Provider is the interface all model providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string
	// Generate sends the transcript and tool schema to the model.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents one model turn.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []Tool
}

// Message is one transcript entry. Role is "system", "user", "assistant",
// or "tool"; ToolCalls is set on assistant entries that requested tools,
// ToolCallID on tool-result entries.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool is one function-schema entry handed to the model, filtered by role
// before every turn.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Response is the model's answer for one turn. When ToolCalls is empty the
// turn is terminal and Content is the final text.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	ToolCalls    []ToolCall
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}
