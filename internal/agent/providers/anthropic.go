package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// DefaultAnthropicModel is used when a request names no model.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// maxEmptyStreamEvents bounds consecutive events that carry nothing useful
// before the stream is treated as malformed.
const maxEmptyStreamEvents = 50

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// AnthropicProvider streams messages from the Anthropic API.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider creates a provider. The API key is required.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultAnthropicModel
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// retries are handled here so they can be observed per attempt
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

func (p *AnthropicProvider) SupportsTools() bool {
	return true
}

// Complete streams a message. Conversion errors are returned directly; API
// failures arrive on the channel. A stream that fails before its first event
// is retried when the failure is transient.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	model := string(params.Model)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var first bool
		err := p.Retry(ctx, IsRetryable, func() error {
			stream = p.client.Messages.NewStreaming(ctx, params)
			first = stream.Next()
			if !first && stream.Err() != nil {
				err := p.wrapError(stream.Err(), model)
				stream.Close()
				return err
			}
			return nil
		})
		if err != nil {
			p.send(ctx, chunks, &agent.CompletionChunk{Error: err})
			return
		}
		defer stream.Close()
		if !first {
			p.send(ctx, chunks, &agent.CompletionChunk{Done: true})
			return
		}
		p.processStream(ctx, stream, chunks, model)
	}()
	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" || !strings.HasPrefix(model, "claude") {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

func (p *AnthropicProvider) send(ctx context.Context, chunks chan<- *agent.CompletionChunk, chunk *agent.CompletionChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// processStream consumes a stream whose first event is already current.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder
	var inputTokens, outputTokens int
	emptyEvents := 0

	for {
		event := stream.Current()
		useful := true

		switch event.Type {
		case "message_start":
			inputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text == "" {
					useful = false
					break
				}
				if !p.send(ctx, chunks, &agent.CompletionChunk{Text: delta.Text}) {
					return
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			default:
				useful = false
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if strings.TrimSpace(input) == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				if !p.send(ctx, chunks, &agent.CompletionChunk{ToolCall: currentToolCall}) {
					return
				}
				currentToolCall = nil
			}

		case "message_delta":
			if out := event.AsMessageDelta().Usage.OutputTokens; out > 0 {
				outputTokens = int(out)
			}

		case "message_stop":
			p.send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return

		case "error":
			p.send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(errors.New("anthropic stream error"), model)})
			return

		default:
			useful = false
		}

		if useful {
			emptyEvents = 0
		} else if emptyEvents++; emptyEvents >= maxEmptyStreamEvents {
			p.send(ctx, chunks, &agent.CompletionChunk{
				Error: p.wrapError(fmt.Errorf("stream appears malformed: received %d consecutive empty events", emptyEvents), model),
			})
			return
		}

		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		p.send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(err, model)})
		return
	}
	p.send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
}

// convertAnthropicMessages maps provider-neutral messages onto Anthropic
// content blocks. Tool results travel in user messages.
func convertAnthropicMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			input := map[string]any{}
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		param.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, param)
	}
	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(p.Name(), model, err)
	}

	perr := (&ProviderError{
		Provider: p.Name(),
		Model:    model,
		Cause:    err,
		Reason:   ReasonUnknown,
		Message:  "anthropic request failed",
	}).WithStatus(apiErr.StatusCode)

	requestID := apiErr.RequestID
	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			perr = perr.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			perr = perr.WithCode(payload.Error.Type)
		}
		if payload.RequestID != "" {
			requestID = payload.RequestID
		}
	}
	if requestID != "" {
		perr = perr.WithRequestID(requestID)
	}
	return perr
}
