package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// LLMProvider is the interface that all LLM backends must implement.
//
// Complete must return immediately with a channel and stream chunks from a
// goroutine; the channel is closed when the response is finished. Errors raised
// after streaming begins are delivered as a chunk with Error set.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	Models() []Model

	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []CompletionMessage `json:"messages"`
	Tools     []Tool              `json:"tools,omitempty"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// CompletionMessage is a single message in provider-neutral form.
// Role is one of "user", "assistant", "system" or "tool". A tool message
// carries results for calls made in the preceding assistant message.
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one streamed piece of a completion.
type CompletionChunk struct {
	Text         string           `json:"text,omitempty"`
	ToolCall     *models.ToolCall `json:"tool_call,omitempty"`
	Done         bool             `json:"done,omitempty"`
	Error        error            `json:"-"`
	InputTokens  int              `json:"input_tokens,omitempty"`
	OutputTokens int              `json:"output_tokens,omitempty"`
}

// Model describes an LLM model's capabilities.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Tool is a capability the model can call.
type Tool interface {
	Name() string

	Description() string

	// Schema returns the JSON Schema of the tool's parameters.
	Schema() json.RawMessage

	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the output of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ResponseChunk is streamed to callers of Runtime.Stream.
type ResponseChunk struct {
	Text string `json:"text,omitempty"`
	// ToolCall reports a call as it is recorded in history, resolved or pending.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	// Message is set once per persisted history entry produced by the turn.
	Message *models.Message `json:"message,omitempty"`
	Error   error           `json:"-"`
}
