// Package memory exposes the session's key/value memory to the model.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/chatagent/internal/agent"
	memstore "github.com/haasonsaas/chatagent/internal/memory"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// KeyInput names one memory.
type KeyInput struct {
	Key string `json:"key" jsonschema:"description=The unique identifier for the memory"`
}

// StoreInput is the input for storeMemory.
type StoreInput struct {
	Key   string `json:"key" jsonschema:"description=The unique identifier for this memory"`
	Value string `json:"value" jsonschema:"description=The information to remember"`
}

// ErrReservedKey is returned for keys that hold MCP bearer tokens. Those live
// in the same store but are managed by the connection manager only.
var ErrReservedKey = errors.New("memory key is reserved")

func checkKey(key string) error {
	if strings.HasPrefix(key, models.MCPTokenKeyPrefix) {
		return fmt.Errorf("%w: keys starting with %q hold server credentials", ErrReservedKey, models.MCPTokenKeyPrefix)
	}
	return nil
}

type base struct {
	memory *memstore.Manager
}

func (b base) store(ctx context.Context) (*memstore.Store, error) {
	session, err := agent.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	return b.memory.ForSession(session.ID), nil
}

// StoreTool upserts a memory.
type StoreTool struct{ base }

func NewStoreTool(memory *memstore.Manager) *StoreTool { return &StoreTool{base{memory}} }

func (t *StoreTool) Name() string { return "storeMemory" }

func (t *StoreTool) Description() string {
	return "Store information in the agent's memory for future reference"
}

func (t *StoreTool) Schema() json.RawMessage { return agent.SchemaFor[StoreInput]() }

func (t *StoreTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input StoreInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := checkKey(input.Key); err != nil {
		return nil, err
	}
	store, err := t.store(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Store(ctx, input.Key, input.Value); err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Remembered: %s = %s", input.Key, input.Value)}, nil
}

// RetrieveTool reads one memory.
type RetrieveTool struct{ base }

func NewRetrieveTool(memory *memstore.Manager) *RetrieveTool { return &RetrieveTool{base{memory}} }

func (t *RetrieveTool) Name() string { return "retrieveMemory" }

func (t *RetrieveTool) Description() string { return "Retrieve information from the agent's memory" }

func (t *RetrieveTool) Schema() json.RawMessage { return agent.SchemaFor[KeyInput]() }

func (t *RetrieveTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input KeyInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := checkKey(input.Key); err != nil {
		return nil, err
	}
	store, err := t.store(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok, err := store.Retrieve(ctx, input.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("I don't have any memory stored for '%s'", input.Key)}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("I remember: %s = %s", input.Key, entry.Value)}, nil
}

// ListTool lists every memory. Bearer tokens for MCP servers are kept in the
// same store but never shown.
type ListTool struct{ base }

func NewListTool(memory *memstore.Manager) *ListTool { return &ListTool{base{memory}} }

func (t *ListTool) Name() string { return "listMemories" }

func (t *ListTool) Description() string { return "List all memories the agent has stored" }

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	store, err := t.store(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, e := range entries {
		if strings.HasPrefix(e.Key, models.MCPTokenKeyPrefix) {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", e.Key, e.Value)
	}
	if sb.Len() == 0 {
		return &agent.ToolResult{Content: "I don't have any memories stored yet."}, nil
	}
	return &agent.ToolResult{Content: "Here are my memories:" + sb.String()}, nil
}

// ForgetTool deletes one memory.
type ForgetTool struct{ base }

func NewForgetTool(memory *memstore.Manager) *ForgetTool { return &ForgetTool{base{memory}} }

func (t *ForgetTool) Name() string { return "forgetMemory" }

func (t *ForgetTool) Description() string {
	return "Remove a specific memory from the agent's storage"
}

func (t *ForgetTool) Schema() json.RawMessage { return agent.SchemaFor[KeyInput]() }

func (t *ForgetTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input KeyInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := checkKey(input.Key); err != nil {
		return nil, err
	}
	store, err := t.store(ctx)
	if err != nil {
		return nil, err
	}
	existed, err := store.Forget(ctx, input.Key)
	if err != nil {
		return nil, err
	}
	if !existed {
		return &agent.ToolResult{Content: fmt.Sprintf("I didn't have any memory stored for '%s'", input.Key)}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("I've forgotten the information about '%s'", input.Key)}, nil
}
