package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// Limits applied to a single model step.
const (
	// MaxResponseTextSize bounds the text streamed in one step (1MB).
	MaxResponseTextSize = 1 << 20

	// MaxToolCallsPerStep bounds the tool calls accepted from one step.
	MaxToolCallsPerStep = 32
)

// stepOutcome says what the loop should do after a step.
type stepOutcome int

const (
	// stepDone means the model answered without calling tools.
	stepDone stepOutcome = iota
	// stepContinue means every call was resolved and the model should see the results.
	stepContinue
	// stepAwaiting means at least one call waits for a human decision.
	stepAwaiting
)

// turnState tracks one turn as it moves through its phases.
type turnState struct {
	session *models.Session
	history []models.Message
	phase   LoopPhase
	step    int
	emit    func(*ResponseChunk)
}

func (s *turnState) fail(cause error) error {
	return &LoopError{Phase: s.phase, Step: s.step, Cause: cause}
}

// step runs one model step: it streams a completion over the current history,
// records the assistant message, and resolves the calls it made.
//
// Auto calls run inline. Confirmation-required calls stay pending because the
// new message has no successor carrying decisions.
func (r *Runtime) step(ctx context.Context, state *turnState) (stepOutcome, error) {
	state.phase = PhaseStream

	req := &CompletionRequest{
		Model:     r.opts.Model,
		System:    r.systemPrompt(),
		Messages:  buildCompletionMessages(state.history),
		Tools:     r.registry.AsLLMTools(),
		MaxTokens: r.opts.MaxTokens,
	}

	llmCtx, span := r.opts.Tracer.TraceLLMRequest(ctx, r.provider.Name(), req.Model)
	text, calls, usage, err := r.collect(llmCtx, req, state.emit)
	status := "success"
	if err != nil {
		status = "error"
		r.opts.Tracer.RecordError(span, err)
	}
	span.End()
	r.opts.Metrics.RecordLLMRequest(r.provider.Name(), req.Model, status, usage.input, usage.output)
	if err != nil {
		return stepDone, err
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: state.session.ID,
		Role:      models.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
		CreatedAt: r.now(),
	}

	if len(msg.ToolCalls) > 0 {
		state.phase = PhaseExecuteTools
		resolved, err := r.reconciler.Reconcile(ctx, []models.Message{msg})
		if err != nil {
			return stepDone, err
		}
		msg = resolved[0]
		for i := range msg.ToolCalls {
			call := msg.ToolCalls[i]
			state.emit(&ResponseChunk{ToolCall: &call})
		}
	}

	state.history = append(state.history, msg)
	state.emit(&ResponseChunk{Message: &msg})

	switch {
	case len(msg.ToolCalls) == 0:
		return stepDone, nil
	case len(msg.PendingToolCalls()) > 0:
		return stepAwaiting, nil
	default:
		return stepContinue, nil
	}
}

type tokenUsage struct {
	input  int
	output int
}

// collect drains a completion stream, forwarding text as it arrives.
func (r *Runtime) collect(ctx context.Context, req *CompletionRequest, emit func(*ResponseChunk)) (string, []models.ToolCall, tokenUsage, error) {
	var usage tokenUsage

	completion, err := r.provider.Complete(ctx, req)
	if err != nil {
		return "", nil, usage, err
	}

	var text strings.Builder
	var calls []models.ToolCall

	for chunk := range completion {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return "", nil, usage, chunk.Error
		}
		if chunk.InputTokens > 0 {
			usage.input = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			usage.output = chunk.OutputTokens
		}

		if chunk.Text != "" {
			if text.Len()+len(chunk.Text) > MaxResponseTextSize {
				return "", nil, usage, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
			}
			text.WriteString(chunk.Text)
			emit(&ResponseChunk{Text: chunk.Text})
		}

		if chunk.ToolCall != nil {
			if len(calls) >= MaxToolCallsPerStep {
				return "", nil, usage, fmt.Errorf("tool calls exceed maximum of %d per step", MaxToolCallsPerStep)
			}
			call := *chunk.ToolCall
			call.Result = nil
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			calls = append(calls, call)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", nil, usage, err
	}
	return text.String(), calls, usage, nil
}

// buildCompletionMessages converts history into provider-neutral messages.
//
// An assistant message with tool calls is followed by a tool message carrying
// its results. Empty user messages (pure decision carriers) and system entries
// are left out.
func buildCompletionMessages(history []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			out = append(out, CompletionMessage{Role: string(models.RoleUser), Content: msg.Content})

		case models.RoleAssistant:
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}
			cm := CompletionMessage{Role: string(models.RoleAssistant), Content: msg.Content}
			var results []models.ToolResult
			for _, call := range msg.ToolCalls {
				stripped := call
				stripped.Result = nil
				cm.ToolCalls = append(cm.ToolCalls, stripped)
				if call.Result != nil {
					res := *call.Result
					res.ToolCallID = call.ID
					results = append(results, res)
				}
			}
			out = append(out, cm)
			if len(results) > 0 {
				out = append(out, CompletionMessage{Role: "tool", ToolResults: results})
			}
		}
	}
	return out
}

// prepareHistory fills identity fields on messages supplied by callers.
func prepareHistory(history []models.Message, sessionID string, now time.Time) []models.Message {
	out := make([]models.Message, len(history))
	for i, msg := range history {
		msg = msg.Clone()
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		if msg.Role == "" {
			msg.Role = models.RoleUser
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		out[i] = msg
	}
	return out
}

// newlyResolved lists calls that were pending in before and resolved in after.
// Both slices must describe the same messages.
func newlyResolved(before, after []models.Message) []models.ToolCall {
	var out []models.ToolCall
	for i := range after {
		if i >= len(before) {
			break
		}
		for j, call := range after[i].ToolCalls {
			if j < len(before[i].ToolCalls) && before[i].ToolCalls[j].Pending() && !call.Pending() {
				out = append(out, call)
			}
		}
	}
	return out
}
