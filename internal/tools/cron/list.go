package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/chatagent/internal/agent"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// ListTool lists the current session's scheduled tasks.
type ListTool struct {
	scheduler *croncore.Scheduler
}

// NewListTool creates the getScheduledTasks tool.
func NewListTool(scheduler *croncore.Scheduler) *ListTool {
	return &ListTool{scheduler: scheduler}
}

func (t *ListTool) Name() string { return "getScheduledTasks" }

func (t *ListTool) Description() string { return "List all tasks that have been scheduled" }

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

// taskView is the shape reported to the model.
type taskView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Cron        string `json:"cron,omitempty"`
	NextRun     string `json:"nextRun"`
	LastRun     string `json:"lastRun,omitempty"`
}

func viewOf(task models.ScheduledTask) taskView {
	v := taskView{
		ID:          task.ID,
		Description: task.Description,
		Type:        whenTypeOf(task.Trigger.Kind),
		Cron:        task.Trigger.Cron,
		NextRun:     task.NextRun.UTC().Format(time.RFC3339),
	}
	if !task.LastRun.IsZero() {
		v.LastRun = task.LastRun.UTC().Format(time.RFC3339)
	}
	return v
}

func whenTypeOf(kind models.TriggerKind) string {
	switch kind {
	case models.TriggerAt:
		return WhenScheduled
	case models.TriggerAfter:
		return WhenDelayed
	default:
		return WhenCron
	}
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	bridge, err := bridgeFor(ctx, t.scheduler)
	if err != nil {
		return nil, err
	}
	tasks, err := bridge.List(ctx)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error listing scheduled tasks: %v", err), IsError: true}, nil
	}
	if len(tasks) == 0 {
		return textResult("No scheduled tasks found."), nil
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOf(task))
	}
	encoded, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return textResult(string(encoded)), nil
}
