package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// NewMemoryStores returns a StoreSet backed entirely by process memory.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Memory:    NewMemoryMemoryStore(),
		Schedules: NewMemoryScheduleStore(),
		History:   NewMemoryHistoryStore(),
	}
}

// MemoryMemoryStore provides an in-memory MemoryStore.
type MemoryMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]models.MemoryEntry
}

// NewMemoryMemoryStore creates an in-memory memory store.
func NewMemoryMemoryStore() *MemoryMemoryStore {
	return &MemoryMemoryStore{sessions: make(map[string]map[string]models.MemoryEntry)}
}

func (s *MemoryMemoryStore) PutMemory(ctx context.Context, sessionID string, entry models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.sessions[sessionID]
	if !ok {
		entries = make(map[string]models.MemoryEntry)
		s.sessions[sessionID] = entries
	}
	entries[entry.Key] = entry
	return nil
}

func (s *MemoryMemoryStore) GetMemory(ctx context.Context, sessionID, key string) (models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID][key]
	if !ok {
		return models.MemoryEntry{}, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryMemoryStore) DeleteMemory(ctx context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID][key]; !ok {
		return ErrNotFound
	}
	delete(s.sessions[sessionID], key)
	return nil
}

func (s *MemoryMemoryStore) ListMemory(ctx context.Context, sessionID string) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]models.MemoryEntry, 0, len(s.sessions[sessionID]))
	for _, entry := range s.sessions[sessionID] {
		entries = append(entries, entry)
	}
	sortMemory(entries)
	return entries, nil
}

func (s *MemoryMemoryStore) ClearMemory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func sortMemory(entries []models.MemoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// MemoryScheduleStore provides an in-memory ScheduleStore.
type MemoryScheduleStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.ScheduledTask
}

// NewMemoryScheduleStore creates an in-memory schedule store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{tasks: make(map[string]*models.ScheduledTask)}
}

func (s *MemoryScheduleStore) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemoryScheduleStore) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *MemoryScheduleStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryScheduleStore) ListTasks(ctx context.Context, sessionID string) ([]*models.ScheduledTask, error) {
	return s.filter(func(t *models.ScheduledTask) bool {
		return sessionID == "" || t.SessionID == sessionID
	}), nil
}

func (s *MemoryScheduleStore) DueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	return s.filter(func(t *models.ScheduledTask) bool {
		return !t.NextRun.After(now)
	}), nil
}

func (s *MemoryScheduleStore) filter(keep func(*models.ScheduledTask) bool) []*models.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		if keep(task) {
			clone := *task
			out = append(out, &clone)
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []*models.ScheduledTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// MemoryHistoryStore provides an in-memory HistoryStore.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Message
}

// NewMemoryHistoryStore creates an in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{sessions: make(map[string][]models.Message)}
}

func (s *MemoryHistoryStore) LoadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHistory(s.sessions[sessionID]), nil
}

func (s *MemoryHistoryStore) SaveHistory(ctx context.Context, sessionID string, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloneHistory(history)
	return nil
}

func (s *MemoryHistoryStore) ClearHistory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func cloneHistory(history []models.Message) []models.Message {
	out := make([]models.Message, len(history))
	for i, msg := range history {
		out[i] = msg.Clone()
	}
	return out
}
