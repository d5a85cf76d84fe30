package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/chatagent/internal/observability"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// ToolExecConfig configures tool execution behavior.
type ToolExecConfig struct {
	// Concurrency bounds how many adjacent independent auto calls may run at
	// once. Every other call always runs alone. Default: 1 (sequential).
	Concurrency int

	// PerToolTimeout bounds a single execution. Zero means no timeout.
	PerToolTimeout time.Duration
}

// DefaultToolExecConfig returns the default execution settings.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{Concurrency: 1}
}

// ToolExecutor runs registry tools with bounded concurrency, isolating each call
// so that one failure, panic or hang never affects another.
type ToolExecutor struct {
	registry *Registry
	config   ToolExecConfig
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewToolExecutor creates an executor. Zero config fields take defaults.
func NewToolExecutor(registry *Registry, config ToolExecConfig) *ToolExecutor {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &ToolExecutor{
		registry: registry,
		config:   config,
		logger:   slog.Default().With("component", "tool-exec"),
	}
}

// WithObservability attaches metrics and tracing. Either may be nil.
func (e *ToolExecutor) WithObservability(metrics *observability.Metrics, tracer *observability.Tracer) *ToolExecutor {
	e.metrics = metrics
	e.tracer = tracer
	return e
}

// WithLogger sets the logger.
func (e *ToolExecutor) WithLogger(logger *slog.Logger) *ToolExecutor {
	if logger != nil {
		e.logger = logger.With("component", "tool-exec")
	}
	return e
}

// ToolExecResult is the outcome of one call.
type ToolExecResult struct {
	Index    int
	ToolCall models.ToolCall
	Result   models.ToolResult
	Duration time.Duration
	TimedOut bool
}

// ExecuteInOrder runs calls in input order, each one starting after the
// previous has finished. A run of adjacent calls to independent auto tools is
// the only exception: it goes through ExecuteConcurrently as one batch.
func (e *ToolExecutor) ExecuteInOrder(ctx context.Context, calls []models.ToolCall) []ToolExecResult {
	results := make([]ToolExecResult, 0, len(calls))
	for i := 0; i < len(calls); {
		end := i + 1
		if e.independent(calls[i]) {
			for end < len(calls) && e.independent(calls[end]) {
				end++
			}
		}
		for _, res := range e.ExecuteConcurrently(ctx, calls[i:end]) {
			res.Index += i
			results = append(results, res)
		}
		i = end
	}
	return results
}

func (e *ToolExecutor) independent(call models.ToolCall) bool {
	desc, ok := e.registry.Resolve(call.Name)
	return ok && desc.Mode == ToolModeAuto && desc.Independent
}

// ExecuteConcurrently runs every call with bounded concurrency and returns
// results in input order. Callers must only batch calls whose relative order
// cannot be observed.
func (e *ToolExecutor) ExecuteConcurrently(ctx context.Context, calls []models.ToolCall) []ToolExecResult {
	results := make([]ToolExecResult, len(calls))

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ToolExecResult{
					Index:    idx,
					ToolCall: call,
					Result:   models.ToolResult{ToolCallID: call.ID, Content: "Error: tool execution canceled", IsError: true},
				}
				return
			}

			start := time.Now()
			result, timedOut := e.Execute(ctx, call)
			results[idx] = ToolExecResult{
				Index:    idx,
				ToolCall: call,
				Result:   result,
				Duration: time.Since(start),
				TimedOut: timedOut,
			}
		}(i, tc)
	}

	wg.Wait()
	return results
}

// Execute runs a single call and always produces a result. Errors and panics
// become error results.
func (e *ToolExecutor) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, bool) {
	mode := "unknown"
	if desc, ok := e.registry.Resolve(call.Name); ok {
		mode = string(desc.Mode)
	}

	ctx = observability.AddToolCallID(ctx, call.ID)
	ctx, span := e.tracer.TraceToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	start := time.Now()
	result, timedOut := e.executeWithTimeout(ctx, call)
	outcome := "success"
	switch {
	case timedOut:
		outcome = "timeout"
	case result.IsError:
		outcome = "error"
	}
	e.metrics.RecordToolCall(call.Name, mode, outcome, time.Since(start))
	if result.IsError {
		e.tracer.RecordError(span, errors.New(result.Content))
	}
	return result, timedOut
}

func (e *ToolExecutor) executeWithTimeout(ctx context.Context, call models.ToolCall) (models.ToolResult, bool) {
	type execResult struct {
		result *ToolResult
		err    error
	}

	if e.config.PerToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.PerToolTimeout)
		defer cancel()
	}

	resultChan := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked",
					"tool", call.Name,
					"tool_call_id", call.ID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				resultChan <- execResult{err: fmt.Errorf("%w: %v", ErrToolPanic, r)}
			}
		}()
		result, err := e.registry.Invoke(ctx, call.Name, call.Input)
		if ctx.Err() != nil {
			e.logger.Warn("tool execution completed after cancellation, result discarded",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"session_id", observability.GetSessionID(ctx),
			)
		}
		resultChan <- execResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		cause := fmt.Errorf("tool execution canceled: %w", ctx.Err())
		if timedOut {
			cause = fmt.Errorf("%w after %v", ErrToolTimeout, e.config.PerToolTimeout)
		}
		return errorResult(call, cause), timedOut
	case res := <-resultChan:
		if res.err != nil && e.config.PerToolTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errorResult(call, fmt.Errorf("%w after %v", ErrToolTimeout, e.config.PerToolTimeout)), true
		}
		if res.err != nil {
			return errorResult(call, res.err), false
		}
		if res.result == nil {
			return models.ToolResult{ToolCallID: call.ID}, false
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    res.result.Content,
			IsError:    res.result.IsError,
		}, false
	}
}

func errorResult(call models.ToolCall, err error) models.ToolResult {
	toolErr := NewToolError(call.Name, err).WithToolCallID(call.ID)
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    toolErr.Render(),
		IsError:    true,
	}
}
