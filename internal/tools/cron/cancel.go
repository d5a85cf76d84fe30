package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/chatagent/internal/agent"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
)

// CancelInput is the input for cancelScheduledTask.
type CancelInput struct {
	TaskID string `json:"taskId" jsonschema:"description=The ID of the task to cancel"`
}

// CancelTool cancels one of the session's tasks by id.
type CancelTool struct {
	scheduler *croncore.Scheduler
}

// NewCancelTool creates the cancelScheduledTask tool.
func NewCancelTool(scheduler *croncore.Scheduler) *CancelTool {
	return &CancelTool{scheduler: scheduler}
}

func (t *CancelTool) Name() string { return "cancelScheduledTask" }

func (t *CancelTool) Description() string { return "Cancel a scheduled task using its ID" }

func (t *CancelTool) Schema() json.RawMessage { return agent.SchemaFor[CancelInput]() }

func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input CancelInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	bridge, err := bridgeFor(ctx, t.scheduler)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.TaskID)
	ok, err := bridge.Cancel(ctx, id)
	switch {
	case err != nil:
		return &agent.ToolResult{Content: fmt.Sprintf("Error canceling task %s: %v", id, err), IsError: true}, nil
	case !ok:
		return textResult(fmt.Sprintf("Task %s not found.", id)), nil
	}
	return textResult(fmt.Sprintf("Task %s has been successfully canceled.", id)), nil
}
