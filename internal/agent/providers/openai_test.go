package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

type stubTool struct {
	name   string
	schema string
}

func (s stubTool) Name() string            { return s.name }
func (s stubTool) Description() string     { return "stub " + s.name }
func (s stubTool) Schema() json.RawMessage { return json.RawMessage(s.schema) }
func (s stubTool) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "ok"}, nil
}

func drain(t *testing.T, ch <-chan *agent.CompletionChunk) (string, []models.ToolCall, *agent.CompletionChunk, error) {
	t.Helper()
	var text strings.Builder
	var calls []models.ToolCall
	var done *agent.CompletionChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return text.String(), calls, done, nil
			}
			if chunk.Error != nil {
				return text.String(), calls, done, chunk.Error
			}
			text.WriteString(chunk.Text)
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			}
			if chunk.Done {
				done = chunk
			}
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func writeOpenAIStream(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestConvertToOpenAIMessages(t *testing.T) {
	msgs := []agent.CompletionMessage{
		{Role: "user", Content: "weather in Paris?"},
		{Role: "assistant", ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "getWeatherInformation", Input: json.RawMessage(`{"city":"Paris"}`)},
			{ID: "c2", Name: "getLocalTime"},
		}},
		{Role: "tool", ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Content: "sunny"},
			{ToolCallID: "c2", Content: "10am"},
		}},
	}

	got := convertToOpenAIMessages(msgs, "be brief")
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem || got[0].Content != "be brief" {
		t.Errorf("system message = %+v", got[0])
	}
	if len(got[2].ToolCalls) != 2 || got[2].ToolCalls[1].Function.Arguments != "{}" {
		t.Errorf("assistant tool calls = %+v", got[2].ToolCalls)
	}
	if got[3].Role != openai.ChatMessageRoleTool || got[3].ToolCallID != "c1" || got[4].ToolCallID != "c2" {
		t.Errorf("tool messages = %+v %+v", got[3], got[4])
	}
}

func TestConvertToOpenAIToolsInvalidSchema(t *testing.T) {
	tools := convertToOpenAITools([]agent.Tool{stubTool{name: "bad", schema: "not json"}})
	params, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("Parameters = %#v, want empty object schema", tools[0].Function.Parameters)
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{Model: "gpt-4o"})
	perr, ok := GetProviderError(err)
	if !ok || perr.Reason != ReasonAuth {
		t.Fatalf("Complete() error = %v, want auth provider error", err)
	}
}

func TestOpenAIStreamsTextAndToolCalls(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		writeOpenAIStream(w,
			`{"id":"1","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"content":"check."}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"getLocalTime","arguments":""}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"getWeatherInformation","arguments":"{\"city\":"}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"1","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`,
		)
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Model:    "gpt-4o",
		System:   "sys",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
		Tools:    []agent.Tool{stubTool{name: "getWeatherInformation", schema: `{"type":"object"}`}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	text, calls, done, err := drain(t, ch)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if text != "Let me check." {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want 2", calls)
	}
	if calls[0].ID != "call_a" || string(calls[0].Input) != `{"city":"Paris"}` {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].ID != "call_b" || string(calls[1].Input) != "{}" {
		t.Errorf("second call = %+v", calls[1])
	}
	if done == nil || done.InputTokens != 12 || done.OutputTokens != 7 {
		t.Errorf("done chunk = %+v", done)
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Errorf("request tools = %v", body["tools"])
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		writeOpenAIStream(w, `{"id":"1","choices":[{"index":0,"delta":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	text, _, _, err := drain(t, ch)
	if err != nil || text != "ok" {
		t.Fatalf("text = %q, err = %v", text, err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestOpenAIAuthErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "bad", BaseURL: server.URL, RetryDelay: time.Millisecond})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{Model: "gpt-4o"})
	perr, ok := GetProviderError(err)
	if !ok {
		t.Fatalf("error = %v, want provider error", err)
	}
	if perr.Reason != ReasonAuth || perr.Status != http.StatusUnauthorized {
		t.Errorf("provider error = %+v", perr)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}
