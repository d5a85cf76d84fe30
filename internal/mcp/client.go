package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnauthorized is returned when a server rejects the request's credentials.
var ErrUnauthorized = errors.New("mcp server requires authorization")

const sessionHeader = "Mcp-Session-Id"

// Client speaks JSON-RPC to one MCP server over streamable HTTP. Responses may
// be plain JSON or a single-event SSE stream.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
}

// NewClient creates a client for url. Authorization is the job of the
// http.Client's transport.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{url: url, http: httpClient, logger: logger.With("mcp_url", url)}
}

// Initialize performs the initialize handshake and returns the server name.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (string, error) {
	raw, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("initialize: %w", err)
	}
	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("parse initialize result: %w", err)
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		c.logger.WarnContext(ctx, "initialized notification failed", "error", err)
	}
	return res.ServerInfo.Name, nil
}

// ListTools returns every tool the server advertises, following cursors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	cursor := ""
	for page := 0; page < 50; page++ {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}
		raw, err := c.call(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		var res listToolsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("parse tools/list result: %w", err)
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return tools, nil
}

// CallTool invokes a tool with JSON arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	raw, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	var res ToolCallResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &res, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	resp, err := c.post(ctx, jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method}, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp jsonrpcResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = readSSEResponse(resp.Body, id)
	} else {
		err = json.NewDecoder(resp.Body).Decode(&rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	resp, err := c.post(ctx, jsonrpcRequest{JSONRPC: "2.0", Method: method}, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) post(ctx context.Context, req jsonrpcRequest, params any) (*http.Response, error) {
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	c.mu.Lock()
	if c.sessionID != "" {
		httpReq.Header.Set(sessionHeader, c.sessionID)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if sid := resp.Header.Get(sessionHeader); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusAccepted && req.ID == nil:
		return resp, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// readSSEResponse returns the first JSON-RPC response in an event stream that
// answers id.
func readSSEResponse(r io.Reader, id string) (jsonrpcResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() (jsonrpcResponse, bool) {
		defer data.Reset()
		if data.Len() == 0 {
			return jsonrpcResponse{}, false
		}
		var resp jsonrpcResponse
		if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
			return jsonrpcResponse{}, false
		}
		if fmt.Sprint(resp.ID) != id {
			return jsonrpcResponse{}, false
		}
		return resp, true
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if resp, ok := flush(); ok {
				return resp, nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if resp, ok := flush(); ok {
		return resp, nil
	}
	if err := scanner.Err(); err != nil {
		return jsonrpcResponse{}, err
	}
	return jsonrpcResponse{}, errors.New("event stream ended without a response")
}
