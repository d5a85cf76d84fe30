package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry of a session's conversation history.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Decisions []ToolDecision `json:"decisions,omitempty"` // Human approvals for calls in the previous message
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToolCall represents an LLM's request to execute a tool.
// A nil Result marks the call as pending.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input"`
	Result *ToolResult     `json:"result,omitempty"`
}

// Pending reports whether the call still awaits a result.
func (c ToolCall) Pending() bool {
	return c.Result == nil
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Decision is a human verdict on a confirmation-required tool call.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// ToolDecision binds a decision to a tool call id.
type ToolDecision struct {
	ToolCallID string   `json:"tool_call_id"`
	Decision   Decision `json:"decision"`
}

// DecisionFor returns the decision recorded for the given call id, if any.
func (m Message) DecisionFor(toolCallID string) (Decision, bool) {
	for _, d := range m.Decisions {
		if d.ToolCallID == toolCallID {
			return d.Decision, true
		}
	}
	return "", false
}

// PendingToolCalls returns the calls of the message with no result.
func (m Message) PendingToolCalls() []ToolCall {
	var pending []ToolCall
	for _, call := range m.ToolCalls {
		if call.Pending() {
			pending = append(pending, call)
		}
	}
	return pending
}

// Clone returns a deep copy of the message. Tool inputs and metadata values are shared
// because they are never mutated in place.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call
			if call.Result != nil {
				r := *call.Result
				out.ToolCalls[i].Result = &r
			}
		}
	}
	if m.Decisions != nil {
		out.Decisions = append([]ToolDecision(nil), m.Decisions...)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Session represents a conversation thread.
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
