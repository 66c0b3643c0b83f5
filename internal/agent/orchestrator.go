// Package agent implements the bounded conversation loop between the
// model and the tool registry.
//
// Each turn hands the model the transcript plus the role-filtered tool
// schema. The model either answers in text, which ends the conversation,
// or requests tool invocations, which are dispatched sequentially and fed
// back as tool messages for the next turn. The loop never exceeds the
// iteration ceiling, so a model that keeps requesting tools cannot spin
// forever.
package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/llm"
	banotel "github.com/ovenworks/banneton/internal/otel"
	"github.com/ovenworks/banneton/internal/tool"
)

var tracer = banotel.Tracer("github.com/ovenworks/banneton/internal/agent")

const (
	// DefaultMaxIterations bounds the model-tool loop per conversation.
	DefaultMaxIterations = 3
	// MaxMessageLength caps the user message accepted into a conversation.
	MaxMessageLength = 4000
	// TimeoutToolCall bounds each individual tool dispatch.
	TimeoutToolCall = 30 * time.Second

	fallbackResponse = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// Orchestrator runs conversations against a provider and a tool registry.
type Orchestrator struct {
	registry      *tool.Registry
	provider      llm.Provider
	model         string
	maxIterations int
}

// Config holds the dependencies for constructing an Orchestrator.
type Config struct {
	Registry      *tool.Registry
	Provider      llm.Provider
	Model         string
	MaxIterations int // <= 0 uses DefaultMaxIterations
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Orchestrator{
		registry:      cfg.Registry,
		provider:      cfg.Provider,
		model:         cfg.Model,
		maxIterations: maxIter,
	}
}

// ExecutedTool records one dispatched tool invocation and its envelope.
type ExecutedTool struct {
	Name   string      `json:"name"`
	Result tool.Result `json:"result"`
}

// ChatResponse is the outcome of one conversation.
type ChatResponse struct {
	ConversationID string
	Response       string
	ToolCalls      []ExecutedTool
	Role           string
	FallbackMode   bool // true when the model was unreachable and a canned reply was returned
}

// ValidateMessage trims the inbound user message and enforces the
// emptiness and length bounds. Entry points call it before resolving an
// execution context, so rejected input never touches the store.
func ValidateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if len(message) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return message, nil
}

// Run executes one bounded conversation for the verified execution
// context. Provider failures degrade to a fallback reply rather than an
// error; only invalid input is rejected.
func (o *Orchestrator) Run(ctx context.Context, ec *execctx.Context, message string) (*ChatResponse, error) {
	message, err := ValidateMessage(message)
	if err != nil {
		return nil, err
	}

	convID := "conv_" + uuid.New().String()[:12]
	ctx, span := tracer.Start(ctx, "agent.conversation",
		trace.WithAttributes(
			attribute.String("conversation_id", convID),
			attribute.String("tenant_id", ec.TenantID()),
			attribute.String("user.role", ec.Role()),
		))
	defer span.End()

	resp := &ChatResponse{ConversationID: convID, Role: ec.Role()}
	transcript := []llm.Message{
		{Role: "system", Content: SystemPrompt(ec.Role())},
		{Role: "user", Content: message},
	}
	schemas := o.registry.Schemas(ec.Role())

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		modelResp, err := o.generate(ctx, transcript, schemas)
		if err != nil {
			log.Error().Err(err).
				Str("conversation_id", convID).
				Int("iteration", iteration).
				Func(banotel.LogTraceFields(ctx)).
				Msg("model_unreachable_fallback")
			span.RecordError(err)
			resp.Response = fallbackResponse
			resp.FallbackMode = true
			return resp, nil
		}

		if len(modelResp.ToolCalls) == 0 {
			resp.Response = modelResp.Content
			span.SetAttributes(attribute.Int("agent.iterations", iteration))
			return resp, nil
		}

		transcript = append(transcript, llm.Message{
			Role:      "assistant",
			Content:   modelResp.Content,
			ToolCalls: modelResp.ToolCalls,
		})
		resp.Response = modelResp.Content

		for _, call := range modelResp.ToolCalls {
			result := o.dispatch(ctx, call, ec)
			resp.ToolCalls = append(resp.ToolCalls, ExecutedTool{Name: call.Name, Result: result})
			transcript = append(transcript, toolMessage(call.ID, result))
		}
	}

	// Ceiling reached: answer with whatever text the model produced last.
	log.Warn().
		Str("conversation_id", convID).
		Int("max_iterations", o.maxIterations).
		Func(banotel.LogTraceFields(ctx)).
		Msg("conversation_iteration_ceiling_reached")
	span.SetAttributes(attribute.Int("agent.iterations", o.maxIterations))
	return resp, nil
}

// generate calls the provider, retrying once on failure before the
// fallback path takes over.
func (o *Orchestrator) generate(ctx context.Context, transcript []llm.Message, schemas []llm.Tool) (*llm.Response, error) {
	req := &llm.Request{
		Model:    o.model,
		Messages: transcript,
		Tools:    schemas,
	}
	resp, err := o.provider.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	log.Warn().Err(err).Msg("model_call_failed_retrying")
	return o.provider.Generate(ctx, req)
}

// dispatch runs one requested tool invocation with its own timeout. The
// registry guarantees a Result for every call, including unknown names.
func (o *Orchestrator) dispatch(ctx context.Context, call llm.ToolCall, ec *execctx.Context) tool.Result {
	callCtx, cancel := context.WithTimeout(ctx, TimeoutToolCall)
	defer cancel()
	result := o.registry.Dispatch(callCtx, call.Name, call.Arguments, ec)
	log.Debug().
		Str("tool", call.Name).
		Bool("success", result.Success).
		Func(banotel.LogTraceFields(ctx)).
		Msg("tool_dispatched")
	return result
}

// toolMessage serializes a result envelope into the transcript entry the
// model reads on its next turn.
func toolMessage(callID string, result tool.Result) llm.Message {
	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte(`{"success":false,"error":"result serialization failed"}`)
	}
	return llm.Message{
		Role:       "tool",
		Content:    string(raw),
		ToolCallID: callID,
	}
}
