package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/chatagent/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// MemoryStore persists session-scoped memory entries.
type MemoryStore interface {
	PutMemory(ctx context.Context, sessionID string, entry models.MemoryEntry) error
	// GetMemory returns ErrNotFound when the key is absent.
	GetMemory(ctx context.Context, sessionID, key string) (models.MemoryEntry, error)
	// DeleteMemory returns ErrNotFound when the key is absent.
	DeleteMemory(ctx context.Context, sessionID, key string) error
	// ListMemory returns entries ordered by creation time, then key.
	ListMemory(ctx context.Context, sessionID string) ([]models.MemoryEntry, error)
	ClearMemory(ctx context.Context, sessionID string) error
}

// ScheduleStore persists scheduled tasks.
type ScheduleStore interface {
	SaveTask(ctx context.Context, task *models.ScheduledTask) error
	GetTask(ctx context.Context, id string) (*models.ScheduledTask, error)
	DeleteTask(ctx context.Context, id string) error
	// ListTasks returns a session's tasks ordered by creation time. An empty
	// sessionID lists every task.
	ListTasks(ctx context.Context, sessionID string) ([]*models.ScheduledTask, error)
	// DueTasks returns tasks whose next run is at or before now.
	DueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error)
}

// HistoryStore persists the message history of each session.
type HistoryStore interface {
	LoadHistory(ctx context.Context, sessionID string) ([]models.Message, error)
	SaveHistory(ctx context.Context, sessionID string, history []models.Message) error
	ClearHistory(ctx context.Context, sessionID string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Memory    MemoryStore
	Schedules ScheduleStore
	History   HistoryStore
	closer    func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
