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
)

func writeAnthropicStream(w http.ResponseWriter, events ...[2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e[0], e[1])
	}
}

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}
	if p.Name() != "anthropic" || !p.SupportsTools() || len(p.Models()) == 0 {
		t.Errorf("unexpected provider metadata")
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	msgs := []agent.CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "calling", ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "getLocalTime", Input: json.RawMessage(`{"location":"Tokyo"}`)},
		}},
		{Role: "tool", ToolResults: []models.ToolResult{{ToolCallID: "t1", Content: "10am"}}},
		{Role: "user"},
	}

	got, err := convertAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (system and empty messages skipped)", len(got))
	}
	if got[1].Role != "assistant" || len(got[1].Content) != 2 {
		t.Errorf("assistant message = %+v", got[1])
	}
	if got[2].Role != "user" || got[2].Content[0].OfToolResult == nil {
		t.Errorf("tool result should travel in a user message: %+v", got[2])
	}
}

func TestConvertAnthropicMessagesInvalidInput(t *testing.T) {
	_, err := convertAnthropicMessages([]agent.CompletionMessage{
		{Role: "assistant", ToolCalls: []models.ToolCall{{ID: "x", Name: "n", Input: json.RawMessage(`[1`)}}},
	})
	if err == nil {
		t.Fatal("expected error for malformed tool input")
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	tools, err := convertAnthropicTools([]agent.Tool{
		stubTool{name: "getWeatherInformation", schema: `{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`},
	})
	if err != nil {
		t.Fatalf("convertAnthropicTools() error = %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil || tools[0].OfTool.Name != "getWeatherInformation" {
		t.Fatalf("tools = %+v", tools)
	}

	if _, err := convertAnthropicTools([]agent.Tool{stubTool{name: "bad", schema: "nope"}}); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestAnthropicStreamsTextAndToolUse(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		writeAnthropicStream(w,
			[2]string{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":21,"output_tokens":1}}}`},
			[2]string{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking"}}`},
			[2]string{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			[2]string{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"getWeatherInformation","input":{}}}`},
			[2]string{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`},
			[2]string{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`},
			[2]string{"content_block_stop", `{"type":"content_block_stop","index":1}`},
			[2]string{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":9}}`},
			[2]string{"message_stop", `{"type":"message_stop"}`},
		)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Model:    "gpt-4o",
		System:   "sys",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "weather in Oslo"}},
		Tools:    []agent.Tool{stubTool{name: "getWeatherInformation", schema: `{"type":"object"}`}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	text, calls, done, err := drain(t, ch)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if text != "Checking" {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 1 || calls[0].ID != "toolu_1" || string(calls[0].Input) != `{"city":"Oslo"}` {
		t.Fatalf("calls = %+v", calls)
	}
	if done == nil || done.InputTokens != 21 || done.OutputTokens != 9 {
		t.Errorf("done chunk = %+v", done)
	}
	if body["model"] != DefaultAnthropicModel {
		t.Errorf("model = %v, want non-claude model replaced by default", body["model"])
	}
}

func TestAnthropicErrorClassification(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("request-id", "req_42")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "bad", BaseURL: server.URL, RetryDelay: time.Millisecond})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	_, _, _, err = drain(t, ch)
	perr, ok := GetProviderError(err)
	if !ok {
		t.Fatalf("stream error = %v, want provider error", err)
	}
	if perr.Reason != ReasonAuth || perr.Message != "invalid x-api-key" || perr.Code != "authentication_error" {
		t.Errorf("provider error = %+v", perr)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestAnthropicRetriesOverload(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(529)
			fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		writeAnthropicStream(w,
			[2]string{"message_start", `{"type":"message_start","message":{"id":"m","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":1,"output_tokens":1}}}`},
			[2]string{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"fine"}}`},
			[2]string{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			[2]string{"message_stop", `{"type":"message_stop"}`},
		)
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "k", BaseURL: server.URL, RetryDelay: time.Millisecond})
	ch, _ := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	text, _, _, err := drain(t, ch)
	if err != nil || text != "fine" {
		t.Fatalf("text = %q, err = %v", text, err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}
