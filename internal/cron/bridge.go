package cron

import (
	"context"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// Bridge is a Scheduler bound to one session. Tools receive a bridge so they
// can only see and cancel their own session's tasks.
type Bridge struct {
	scheduler *Scheduler
	sessionID string
}

// NewBridge returns a bridge for sessionID.
func NewBridge(s *Scheduler, sessionID string) *Bridge {
	return s.ForSession(sessionID)
}

// SessionID returns the bound session.
func (b *Bridge) SessionID() string { return b.sessionID }

// Schedule persists a task for the bound session.
func (b *Bridge) Schedule(ctx context.Context, trigger models.Trigger, callback, description string) (models.ScheduledTask, error) {
	return b.scheduler.Schedule(ctx, b.sessionID, trigger, callback, description)
}

// List returns the bound session's tasks.
func (b *Bridge) List(ctx context.Context) ([]models.ScheduledTask, error) {
	return b.scheduler.List(ctx, b.sessionID)
}

// Cancel removes one of the bound session's tasks. Cancel is best-effort: a
// task already claimed by the ticker still fires.
func (b *Bridge) Cancel(ctx context.Context, id string) (bool, error) {
	return b.scheduler.Cancel(ctx, b.sessionID, id)
}
