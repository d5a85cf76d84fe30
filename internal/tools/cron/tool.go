// Package cron exposes the session scheduler to the model as scheduleTask,
// getScheduledTasks and cancelScheduledTask.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/chatagent/internal/agent"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// Schedule kinds accepted in when.type.
const (
	WhenScheduled  = "scheduled"
	WhenDelayed    = "delayed"
	WhenCron       = "cron"
	WhenNoSchedule = "no-schedule"
)

var errNoSchedule = errors.New("no schedule")

// When selects one of the trigger kinds.
type When struct {
	Type           string `json:"type" jsonschema:"enum=scheduled,enum=delayed,enum=cron,enum=no-schedule,description=How the task is triggered"`
	Date           string `json:"date,omitempty" jsonschema:"description=Date and time for scheduled tasks (ISO 8601)"`
	DelayInSeconds *int64 `json:"delayInSeconds,omitempty" jsonschema:"description=Delay in seconds for delayed tasks"`
	Cron           string `json:"cron,omitempty" jsonschema:"description=Cron expression for recurring tasks"`
}

// ScheduleInput is the input for scheduleTask.
type ScheduleInput struct {
	When        When   `json:"when"`
	Description string `json:"description" jsonschema:"description=What the task should do when it runs"`
}

// ScheduleTool schedules a task that posts "Running scheduled task: ..." to the
// session when it fires.
type ScheduleTool struct {
	scheduler *croncore.Scheduler
}

// NewScheduleTool creates the scheduleTask tool.
func NewScheduleTool(scheduler *croncore.Scheduler) *ScheduleTool {
	return &ScheduleTool{scheduler: scheduler}
}

func (t *ScheduleTool) Name() string { return "scheduleTask" }

func (t *ScheduleTool) Description() string {
	return "A tool to schedule a task to be executed at a later time"
}

func (t *ScheduleTool) Schema() json.RawMessage { return agent.SchemaFor[ScheduleInput]() }

func (t *ScheduleTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input ScheduleInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	bridge, err := bridgeFor(ctx, t.scheduler)
	if err != nil {
		return nil, err
	}

	trigger, shown, err := triggerFor(input.When)
	if errors.Is(err, errNoSchedule) {
		return textResult("Not a valid schedule input"), nil
	}
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error scheduling task: %v", err), IsError: true}, nil
	}
	if _, err := bridge.Schedule(ctx, trigger, croncore.CallbackExecuteTask, input.Description); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error scheduling task: %v", err), IsError: true}, nil
	}
	return textResult(fmt.Sprintf("Task scheduled for type %q : %s", input.When.Type, shown)), nil
}

// triggerFor converts the model's when object. The second return value is the
// input echoed back in the result.
func triggerFor(when When) (models.Trigger, string, error) {
	switch strings.TrimSpace(when.Type) {
	case WhenScheduled:
		at, err := croncore.ParseTime(when.Date)
		if err != nil {
			return models.Trigger{}, "", err
		}
		return models.At(at), when.Date, nil
	case WhenDelayed:
		if when.DelayInSeconds == nil {
			return models.Trigger{}, "", errors.New("delayInSeconds is required")
		}
		return models.After(*when.DelayInSeconds), strconv.FormatInt(*when.DelayInSeconds, 10), nil
	case WhenCron:
		return models.Cron(when.Cron), when.Cron, nil
	default:
		return models.Trigger{}, "", errNoSchedule
	}
}

func bridgeFor(ctx context.Context, scheduler *croncore.Scheduler) (*croncore.Bridge, error) {
	session, err := agent.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if scheduler == nil {
		return nil, fmt.Errorf("%w: scheduler unavailable", agent.ErrHandlerFailure)
	}
	return scheduler.ForSession(session.ID), nil
}

func textResult(content string) *agent.ToolResult {
	return &agent.ToolResult{Content: content}
}
