package agent

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// funcTool implements Tool for tests.
type funcTool struct {
	name   string
	schema json.RawMessage
	calls  atomic.Int32
	fn     func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func newFuncTool(name string, fn func(ctx context.Context, params json.RawMessage) (*ToolResult, error)) *funcTool {
	return &funcTool{name: name, fn: fn}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return "test tool " + t.name }
func (t *funcTool) Schema() json.RawMessage {
	if t.schema != nil {
		return t.schema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t *funcTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.calls.Add(1)
	return t.fn(ctx, params)
}

// independentTool marks a funcTool as free of shared state.
type independentTool struct{ *funcTool }

func (independentTool) Independent() bool { return true }

func constTool(name, content string) *funcTool {
	return newFuncTool(name, func(context.Context, json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: content}, nil
	})
}

func mustBuild(t *testing.T, b *RegistryBuilder) *Registry {
	t.Helper()
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return reg
}

func assistantWithCalls(id string, calls ...models.ToolCall) models.Message {
	return models.Message{ID: id, Role: models.RoleAssistant, ToolCalls: calls}
}

func call(id, name string) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Input: json.RawMessage(`{}`)}
}

func decisionMsg(id string, decisions ...models.ToolDecision) models.Message {
	return models.Message{ID: id, Role: models.RoleUser, Decisions: decisions}
}

// scriptedProvider replays one scripted response per Complete call.
type scriptedProvider struct {
	mu        sync.Mutex
	responses [][]*CompletionChunk
	requests  []*CompletionRequest
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var chunks []*CompletionChunk
	if len(p.responses) > 0 {
		chunks = p.responses[0]
		p.responses = p.responses[1:]
	} else {
		chunks = []*CompletionChunk{{Text: "done"}, {Done: true}}
	}
	p.mu.Unlock()

	ch := make(chan *CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []Model     { return nil }
func (p *scriptedProvider) SupportsTools() bool { return true }

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) lastRequest() *CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func toolCallChunk(id, name, input string) *CompletionChunk {
	return &CompletionChunk{ToolCall: &models.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}}
}
