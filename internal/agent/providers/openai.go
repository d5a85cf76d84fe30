package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for a compatible gateway.
	BaseURL string

	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider streams chat completions from the OpenAI API.
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
}

// NewOpenAIProvider creates a provider. An empty key is accepted so the
// process can start; Complete then fails with an auth error.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{BaseProvider: NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay)}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return p
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
	}
}

func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete opens a streaming completion, retrying transient failures.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, &ProviderError{
			Reason:   ReasonAuth,
			Provider: p.Name(),
			Model:    req.Model,
			Message:  "OpenAI API key not configured",
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      convertToOpenAIMessages(req.Messages, req.System),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, IsRetryable, func() error {
		var err error
		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return p.wrapError(err, req.Model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, req.Model, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, model string, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	send := func(chunk *agent.CompletionChunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	pending := make(map[int]*models.ToolCall)
	flush := func() bool {
		indexes := make([]int, 0, len(pending))
		for idx := range pending {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			tc := pending[idx]
			if tc.Name == "" {
				continue
			}
			if len(tc.Input) == 0 {
				tc.Input = json.RawMessage("{}")
			}
			if !send(&agent.CompletionChunk{ToolCall: tc}) {
				return false
			}
		}
		pending = make(map[int]*models.ToolCall)
		return true
	}

	var inputTokens, outputTokens int
	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if flush() {
					send(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
				}
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			send(&agent.CompletionChunk{Error: p.wrapError(err, model), Done: true})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if !send(&agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call := pending[idx]
			if call == nil {
				call = &models.ToolCall{}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.Input = append(call.Input, tc.Function.Arguments...)
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flush() {
				return
			}
		}
	}
}

func convertToOpenAIMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args := string(tc.Input)
				if args == "" {
					args = "{}"
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	return result
}

func convertToOpenAITools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schema,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := &ProviderError{Provider: p.Name(), Model: model, Cause: err, Reason: ReasonUnknown}
		perr = perr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			perr = perr.WithCode(code)
		} else if apiErr.Type != "" {
			perr = perr.WithCode(apiErr.Type)
		}
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(p.Name(), model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError(p.Name(), model, fmt.Errorf("openai: %w", err))
}
