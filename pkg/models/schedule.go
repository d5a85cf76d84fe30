package models

import "time"

// TriggerKind identifies how a scheduled task fires.
type TriggerKind string

const (
	TriggerAt    TriggerKind = "at"
	TriggerAfter TriggerKind = "after"
	TriggerCron  TriggerKind = "cron"
)

// Trigger describes when a scheduled task fires. Exactly one of At, DelaySeconds
// or Cron is meaningful, selected by Kind.
type Trigger struct {
	Kind         TriggerKind `json:"kind"`
	At           time.Time   `json:"at,omitempty"`
	DelaySeconds int64       `json:"delay_seconds,omitempty"`
	Cron         string      `json:"cron,omitempty"`
}

// At returns a trigger firing once at t.
func At(t time.Time) Trigger { return Trigger{Kind: TriggerAt, At: t} }

// After returns a trigger firing once after the given number of seconds.
func After(seconds int64) Trigger { return Trigger{Kind: TriggerAfter, DelaySeconds: seconds} }

// Cron returns a recurring trigger.
func Cron(expr string) Trigger { return Trigger{Kind: TriggerCron, Cron: expr} }

// ScheduledTask is a durable job owned by one session.
type ScheduledTask struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Trigger     Trigger   `json:"trigger"`
	Callback    string    `json:"callback"`
	Description string    `json:"description"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recurring reports whether the task re-arms after firing.
func (t ScheduledTask) Recurring() bool {
	return t.Trigger.Kind == TriggerCron
}
