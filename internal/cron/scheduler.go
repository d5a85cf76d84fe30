// Package cron schedules durable, session-owned tasks and fires them through
// named callbacks.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/chatagent/internal/observability"
	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// CallbackExecuteTask is the only callback the agent registers. It runs a chat
// turn for the owning session.
const CallbackExecuteTask = "executeTask"

// ErrUnknownCallback is returned when scheduling with an unregistered callback.
var ErrUnknownCallback = errors.New("unknown callback")

// Fire outcomes reported to metrics.
const (
	fireSuccess         = "success"
	fireError           = "error"
	fireUnknownCallback = "unknown_callback"
)

// Callback runs when a task fires.
type Callback func(ctx context.Context, task models.ScheduledTask) error

// Scheduler persists tasks in a ScheduleStore and fires due ones on a ticker.
// One-shot tasks are removed before they fire; cron tasks are re-armed.
type Scheduler struct {
	store        storage.ScheduleStore
	callbacks    map[string]Callback
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	now          func() time.Time
	tickInterval time.Duration
	concurrency  int

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "cron")
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// WithConcurrency bounds how many due tasks fire at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithObservability attaches metrics and tracing. Either may be nil.
func WithObservability(metrics *observability.Metrics, tracer *observability.Tracer) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
		s.tracer = tracer
	}
}

// WithCallback registers a named callback.
func WithCallback(name string, cb Callback) Option {
	return func(s *Scheduler) {
		s.RegisterCallback(name, cb)
	}
}

// NewScheduler creates a scheduler. A nil store keeps tasks in memory.
func NewScheduler(store storage.ScheduleStore, opts ...Option) *Scheduler {
	if store == nil {
		store = storage.NewMemoryScheduleStore()
	}
	s := &Scheduler{
		store:        store,
		callbacks:    make(map[string]Callback),
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
		concurrency:  4,
		sessionLocks: make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterCallback adds or replaces a named callback.
func (s *Scheduler) RegisterCallback(name string, cb Callback) {
	name = strings.TrimSpace(name)
	if s == nil || cb == nil || name == "" {
		return
	}
	s.mu.Lock()
	s.callbacks[name] = cb
	s.mu.Unlock()
}

func (s *Scheduler) callback(name string) (Callback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.callbacks[name]
	return cb, ok
}

// Start runs the ticker until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	s.logger.Info("scheduler started", "tick", s.tickInterval)
	return nil
}

// Stop waits for the ticker goroutine to exit, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce fires every due task and returns how many fired.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runDue(ctx)
}

// Schedule validates and persists a task for a session.
func (s *Scheduler) Schedule(ctx context.Context, sessionID string, trigger models.Trigger, callback, description string) (models.ScheduledTask, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.ScheduledTask{}, errors.New("session id required")
	}
	if _, ok := s.callback(callback); !ok {
		return models.ScheduledTask{}, fmt.Errorf("%w: %q", ErrUnknownCallback, callback)
	}

	now := s.now()
	if err := ValidateTrigger(trigger, now); err != nil {
		return models.ScheduledTask{}, err
	}
	next, err := NextRun(trigger, now)
	if err != nil {
		return models.ScheduledTask{}, err
	}

	task := models.ScheduledTask{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Trigger:     trigger,
		Callback:    callback,
		Description: description,
		NextRun:     next,
		CreatedAt:   now,
	}

	unlock := s.lockSession(sessionID)
	defer unlock()
	if err := s.store.SaveTask(ctx, &task); err != nil {
		return models.ScheduledTask{}, fmt.Errorf("save task: %w", err)
	}
	s.logger.InfoContext(ctx, "task scheduled",
		"session_id", sessionID,
		"task_id", task.ID,
		"kind", trigger.Kind,
		"next_run", next,
	)
	return task, nil
}

// List returns a session's tasks ordered by creation time.
func (s *Scheduler) List(ctx context.Context, sessionID string) ([]models.ScheduledTask, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id required")
	}
	tasks, err := s.store.ListTasks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]models.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, *t)
	}
	return out, nil
}

// Cancel removes a session's task. It reports false when the task does not
// exist or belongs to another session.
func (s *Scheduler) Cancel(ctx context.Context, sessionID, id string) (bool, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get task: %w", err)
	}
	if task.SessionID != sessionID {
		return false, nil
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete task: %w", err)
	}
	s.logger.InfoContext(ctx, "task canceled", "session_id", sessionID, "task_id", id)
	return true, nil
}

// ForSession returns a bridge bound to one session.
func (s *Scheduler) ForSession(sessionID string) *Bridge {
	return &Bridge{scheduler: s, sessionID: sessionID}
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "load due tasks", "error", err)
		return 0
	}

	var fired []models.ScheduledTask
	for _, task := range due {
		if s.claim(ctx, task, now) {
			fired = append(fired, *task)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, task := range fired {
		task := task
		g.Go(func() error {
			s.fire(gctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return len(fired)
}

// claim takes ownership of a due task before it fires: one-shot tasks are
// deleted and cron tasks are moved to their next run. It reports false when
// the task was canceled meanwhile or could not be updated.
func (s *Scheduler) claim(ctx context.Context, task *models.ScheduledTask, now time.Time) bool {
	unlock := s.lockSession(task.SessionID)
	defer unlock()

	if !task.Recurring() {
		err := s.store.DeleteTask(ctx, task.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return false
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "remove fired task", "task_id", task.ID, "error", err)
			return false
		}
		return true
	}

	next, err := NextRun(task.Trigger, now)
	if err != nil {
		s.logger.WarnContext(ctx, "cron task dropped", "task_id", task.ID, "error", err)
		_ = s.store.DeleteTask(ctx, task.ID)
		return false
	}
	if _, err := s.store.GetTask(ctx, task.ID); err != nil {
		return false
	}
	updated := *task
	updated.LastRun = now
	updated.NextRun = next
	if err := s.store.SaveTask(ctx, &updated); err != nil {
		s.logger.ErrorContext(ctx, "re-arm cron task", "task_id", task.ID, "error", err)
		return false
	}
	return true
}

func (s *Scheduler) fire(ctx context.Context, task models.ScheduledTask) {
	ctx = observability.AddSessionID(ctx, task.SessionID)
	ctx = observability.AddTaskID(ctx, task.ID)
	ctx, span := s.tracer.TraceScheduledTask(ctx, task.SessionID, task.ID)
	defer span.End()

	cb, ok := s.callback(task.Callback)
	if !ok {
		s.metrics.RecordScheduledFire(fireUnknownCallback)
		s.logger.WarnContext(ctx, "task has unknown callback", "callback", task.Callback)
		return
	}

	start := s.now()
	err := s.invoke(ctx, cb, task)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.metrics.RecordScheduledFire(fireError)
		s.logger.ErrorContext(ctx, "scheduled task failed", "callback", task.Callback, "error", err)
		return
	}
	s.metrics.RecordScheduledFire(fireSuccess)
	s.logger.InfoContext(ctx, "scheduled task fired", "callback", task.Callback, "duration", s.now().Sub(start))
}

func (s *Scheduler) invoke(ctx context.Context, cb Callback, task models.ScheduledTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(ctx, task)
}

func (s *Scheduler) lockSession(sessionID string) func() {
	s.sessionLocksMu.Lock()
	lock := s.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		s.sessionLocks[sessionID] = lock
	}
	lock.refs++
	s.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(s.sessionLocks, sessionID)
		}
		s.sessionLocksMu.Unlock()
	}
}
