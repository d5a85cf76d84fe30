package mcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// ServerState tracks a registered server through authorization.
type ServerState string

const (
	StateAuthenticating ServerState = "authenticating"
	StateReady          ServerState = "ready"
	StateFailed         ServerState = "failed"
)

// ConnectResult is returned when a server is registered for OAuth.
type ConnectResult struct {
	ServerID string `json:"serverId"`
	AuthURL  string `json:"authUrl,omitempty"`
}

// ServerInfo describes a registered server.
type ServerInfo struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	State     ServerState `json:"state"`
	AuthURL   string      `json:"authUrl,omitempty"`
	Name      string      `json:"name,omitempty"`
	Bearer    bool        `json:"bearer"`
	LastError string      `json:"lastError,omitempty"`
}

// Tool is a tool advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallResult is the result of tools/call.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

type ToolResultContent struct {
	Type     string `json:"type"` // text | image | resource
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error returned by a server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type listToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
