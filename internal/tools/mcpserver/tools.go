// Package mcpserver lets the model register remote MCP servers and use their
// tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/internal/mcp"
)

// RegisterInput is the input for mcpServerTool.
type RegisterInput struct {
	URL         string `json:"url" jsonschema:"minLength=1,description=The full URL of the remote MCP server"`
	BearerToken string `json:"bearerToken,omitempty" jsonschema:"description=Optional bearer token for authentication"`
}

// ServerInput names a registered server.
type ServerInput struct {
	ServerID string `json:"serverId" jsonschema:"description=ID returned when the server was registered"`
}

// CallInput is the input for callMcpTool.
type CallInput struct {
	ServerID  string         `json:"serverId" jsonschema:"description=ID returned when the server was registered"`
	Tool      string         `json:"tool" jsonschema:"description=Name of the tool on the server"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"description=Arguments passed to the tool"`
}

func managerFor(ctx context.Context, hub *mcp.Hub) (*mcp.Manager, error) {
	session, err := agent.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	return hub.ForSession(session.ID), nil
}

// RegisterTool is mcpServerTool.
type RegisterTool struct{ hub *mcp.Hub }

func NewRegisterTool(hub *mcp.Hub) *RegisterTool { return &RegisterTool{hub: hub} }

func (t *RegisterTool) Name() string { return "mcpServerTool" }

func (t *RegisterTool) Description() string { return "Register remote MCP servers in chat" }

func (t *RegisterTool) Schema() json.RawMessage { return agent.SchemaFor[RegisterInput]() }

func (t *RegisterTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input RegisterInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	m, err := managerFor(ctx, t.hub)
	if err != nil {
		return nil, err
	}

	if token := strings.TrimSpace(input.BearerToken); token != "" {
		id, err := m.ConnectWithBearerToken(ctx, input.URL, token)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("Error connecting to MCP server: %v", err), IsError: true}, nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("MCP server connected successfully using bearer token (server id: %s)", id)}, nil
	}

	res, err := m.Connect(ctx, input.URL)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error connecting to MCP server: %v", err), IsError: true}, nil
	}
	encoded, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &agent.ToolResult{Content: string(encoded)}, nil
}

// ListToolsTool is listMcpTools.
type ListToolsTool struct{ hub *mcp.Hub }

func NewListToolsTool(hub *mcp.Hub) *ListToolsTool { return &ListToolsTool{hub: hub} }

func (t *ListToolsTool) Name() string { return "listMcpTools" }

func (t *ListToolsTool) Description() string {
	return "List the tools offered by a registered MCP server"
}

func (t *ListToolsTool) Schema() json.RawMessage { return agent.SchemaFor[ServerInput]() }

func (t *ListToolsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input ServerInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	m, err := managerFor(ctx, t.hub)
	if err != nil {
		return nil, err
	}
	tools, err := m.ListTools(ctx, input.ServerID)
	if err != nil {
		return nil, agent.ExternalServiceError("mcp", err)
	}
	if len(tools) == 0 {
		return &agent.ToolResult{Content: "The server has no tools."}, nil
	}
	encoded, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tools: %w", err)
	}
	return &agent.ToolResult{Content: string(encoded)}, nil
}

// CallTool is callMcpTool. It is registered as confirmation-required.
type CallTool struct{ hub *mcp.Hub }

func NewCallTool(hub *mcp.Hub) *CallTool { return &CallTool{hub: hub} }

func (t *CallTool) Name() string { return "callMcpTool" }

func (t *CallTool) Description() string { return "Call a tool on a registered MCP server" }

func (t *CallTool) Schema() json.RawMessage { return agent.SchemaFor[CallInput]() }

func (t *CallTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input CallInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	m, err := managerFor(ctx, t.hub)
	if err != nil {
		return nil, err
	}
	args, err := json.Marshal(input.Arguments)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	if input.Arguments == nil {
		args = json.RawMessage(`{}`)
	}
	res, err := m.CallTool(ctx, input.ServerID, input.Tool, args)
	if err != nil {
		return nil, agent.ExternalServiceError("mcp", err)
	}
	return &agent.ToolResult{Content: renderContent(res), IsError: res.IsError}, nil
}

func renderContent(res *mcp.ToolCallResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch c.Type {
		case "text":
			parts = append(parts, c.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content %s]", c.Type, c.MimeType))
		}
	}
	return strings.Join(parts, "\n")
}
