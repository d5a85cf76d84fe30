package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/chatagent/internal/observability"
	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// Turn statuses reported to metrics.
const (
	TurnCompleted            = "completed"
	TurnAwaitingConfirmation = "awaiting_confirmation"
	TurnError                = "error"
)

// ScheduledTaskPrefix starts the user message appended when a scheduled task fires.
const ScheduledTaskPrefix = "Running scheduled task: "

// Options configures a Runtime.
type Options struct {
	// Model is the completion model. Default: gpt-4o.
	Model string

	// SystemPrompt overrides the default prompt. It is called once per step.
	SystemPrompt func(now time.Time) string

	// MaxSteps bounds model round-trips per turn. Default: 10.
	MaxSteps int

	// MaxTokens is the max tokens per completion. Default: 4096.
	MaxTokens int

	// ToolExec configures tool concurrency and timeouts.
	ToolExec ToolExecConfig

	// Preflight runs before every turn. A non-nil error aborts the turn and is
	// wrapped with ErrMissingCredential.
	Preflight func() error

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default runtime options.
func DefaultOptions() Options {
	return Options{
		Model:     "gpt-4o",
		MaxSteps:  10,
		MaxTokens: 4096,
		ToolExec:  DefaultToolExecConfig(),
	}
}

func mergeOptions(opts Options) Options {
	defaults := DefaultOptions()
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = defaults.Model
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaults.MaxSteps
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.ToolExec.Concurrency <= 0 {
		opts.ToolExec.Concurrency = defaults.ToolExec.Concurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// Runtime runs chat turns for many sessions.
//
// A turn reconciles the history it is given, then, unless a call still waits
// for a human decision, streams model steps until the model stops calling tools,
// a confirmation-required call is issued, or MaxSteps is reached. The resulting
// history is persisted per session.
//
// Turns for one session are serialized; different sessions run concurrently.
type Runtime struct {
	provider   LLMProvider
	registry   *Registry
	history    storage.HistoryStore
	opts       Options
	reconciler *Reconciler
	logger     *slog.Logger

	// sessionLocks ensures only one turn per session at a time. Entries are
	// reference counted and dropped when the last waiter unlocks.
	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewRuntime creates a runtime. A nil history store keeps history in memory.
func NewRuntime(provider LLMProvider, registry *Registry, history storage.HistoryStore, opts Options) *Runtime {
	opts = mergeOptions(opts)
	if history == nil {
		history = storage.NewMemoryHistoryStore()
	}
	logger := opts.Logger.With("component", "runtime")

	executor := NewToolExecutor(registry, opts.ToolExec).
		WithObservability(opts.Metrics, opts.Tracer).
		WithLogger(opts.Logger)

	return &Runtime{
		provider:     provider,
		registry:     registry,
		history:      history,
		opts:         opts,
		reconciler:   NewReconciler(registry, executor).WithLogger(opts.Logger),
		logger:       logger,
		sessionLocks: make(map[string]*sessionLock),
	}
}

// Registry returns the runtime's tool registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Turn runs a turn over a caller-supplied history, which replaces the stored one.
// It returns the reconciled and extended history.
func (r *Runtime) Turn(ctx context.Context, session *models.Session, history []models.Message) ([]models.Message, error) {
	return r.run(ctx, session, func([]models.Message) []models.Message { return history }, nil)
}

// Send appends msg to the stored history and runs a turn.
func (r *Runtime) Send(ctx context.Context, session *models.Session, msg models.Message) ([]models.Message, error) {
	return r.run(ctx, session, appendTo(msg), nil)
}

// Stream is Turn with incremental output. The channel is closed when the turn
// ends; a failure is delivered as a final chunk with Error set.
func (r *Runtime) Stream(ctx context.Context, session *models.Session, history []models.Message) (<-chan *ResponseChunk, error) {
	return r.stream(ctx, session, func([]models.Message) []models.Message { return history })
}

// StreamSend is Send with incremental output.
func (r *Runtime) StreamSend(ctx context.Context, session *models.Session, msg models.Message) (<-chan *ResponseChunk, error) {
	return r.stream(ctx, session, appendTo(msg))
}

// ExecuteTask is the callback fired by the scheduler: it appends a user message
// describing the task to the session's history and runs a turn.
func (r *Runtime) ExecuteTask(ctx context.Context, sessionID, description string) error {
	session := &models.Session{ID: sessionID}
	_, err := r.Send(ctx, session, models.Message{
		Role:    models.RoleUser,
		Content: ScheduledTaskPrefix + description,
	})
	return err
}

// History returns the stored history of a session.
func (r *Runtime) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	return r.history.LoadHistory(ctx, sessionID)
}

// ClearHistory removes the stored history of a session.
func (r *Runtime) ClearHistory(ctx context.Context, sessionID string) error {
	unlock := r.lockSession(sessionID)
	defer unlock()
	return r.history.ClearHistory(ctx, sessionID)
}

func appendTo(msg models.Message) func([]models.Message) []models.Message {
	return func(stored []models.Message) []models.Message {
		return append(stored, msg)
	}
}

func (r *Runtime) stream(ctx context.Context, session *models.Session, build func([]models.Message) []models.Message) (<-chan *ResponseChunk, error) {
	if err := r.validate(session); err != nil {
		return nil, err
	}

	chunks := make(chan *ResponseChunk, 64)
	go func() {
		defer close(chunks)
		emit := func(chunk *ResponseChunk) {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
			}
		}
		if _, err := r.run(ctx, session, build, emit); err != nil {
			emit(&ResponseChunk{Error: err})
		}
	}()
	return chunks, nil
}

func (r *Runtime) validate(session *models.Session) error {
	if r.provider == nil {
		return ErrNoProvider
	}
	if r.registry == nil {
		return errors.New("tool registry is nil")
	}
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return errors.New("session is required")
	}
	return nil
}

func (r *Runtime) run(ctx context.Context, session *models.Session, build func([]models.Message) []models.Message, emit func(*ResponseChunk)) ([]models.Message, error) {
	if err := r.validate(session); err != nil {
		return nil, err
	}
	if r.opts.Preflight != nil {
		if err := r.opts.Preflight(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingCredential, err)
		}
	}
	if emit == nil {
		emit = func(*ResponseChunk) {}
	}

	unlock := r.lockSession(session.ID)
	defer unlock()

	ctx = WithSession(ctx, session)
	ctx = observability.AddSessionID(ctx, session.ID)
	ctx, span := r.opts.Tracer.TraceTurn(ctx, session.ID)
	defer span.End()

	state := &turnState{session: session, phase: PhaseInit, emit: emit}

	stored, err := r.history.LoadHistory(ctx, session.ID)
	if err != nil {
		return r.finish(ctx, state, span, false, state.fail(fmt.Errorf("load history: %w", err)))
	}
	incoming := prepareHistory(build(stored), session.ID, r.now())

	state.phase = PhaseReconcile
	state.history, err = r.reconciler.Reconcile(ctx, incoming)
	if err != nil {
		state.history = incoming
		return r.finish(ctx, state, span, true, state.fail(err))
	}
	for _, call := range newlyResolved(incoming, state.history) {
		call := call
		emit(&ResponseChunk{ToolCall: &call})
	}

	if HasPending(state.history) {
		r.logger.DebugContext(ctx, "turn awaiting confirmation before model call")
		return r.finish(ctx, state, span, true, nil)
	}

	for state.step = 0; state.step < r.opts.MaxSteps; state.step++ {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, state, span, true, state.fail(err))
		}

		outcome, err := r.step(ctx, state)
		if err != nil {
			return r.finish(ctx, state, span, true, state.fail(err))
		}
		switch outcome {
		case stepDone, stepAwaiting:
			return r.finish(ctx, state, span, true, nil)
		}
	}

	r.logger.InfoContext(ctx, "turn reached max steps", "max_steps", r.opts.MaxSteps)
	return r.finish(ctx, state, span, true, nil)
}

// finish persists the history when save is set and records the turn outcome.
func (r *Runtime) finish(ctx context.Context, state *turnState, span trace.Span, save bool, turnErr error) ([]models.Message, error) {
	if save && state.history != nil {
		state.phase = PhasePersist
		if err := r.history.SaveHistory(ctx, state.session.ID, state.history); err != nil {
			r.logger.ErrorContext(ctx, "failed to persist history", "error", err)
			if turnErr == nil {
				turnErr = state.fail(fmt.Errorf("save history: %w", err))
			}
		}
	}

	switch {
	case turnErr != nil:
		r.opts.Tracer.RecordError(span, turnErr)
		r.opts.Metrics.RecordTurn(TurnError)
		r.logger.ErrorContext(ctx, "turn failed", "error", turnErr)
		return state.history, turnErr
	case HasPending(state.history):
		r.opts.Metrics.RecordTurn(TurnAwaitingConfirmation)
	default:
		r.opts.Metrics.RecordTurn(TurnCompleted)
	}
	return state.history, nil
}

func (r *Runtime) systemPrompt() string {
	if r.opts.SystemPrompt != nil {
		return r.opts.SystemPrompt(r.now())
	}
	return DefaultSystemPrompt(r.now())
}

func (r *Runtime) now() time.Time {
	return r.opts.Now()
}

func (r *Runtime) lockSession(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	r.sessionLocksMu.Lock()
	lock := r.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		r.sessionLocks[sessionID] = lock
	}
	lock.refs++
	r.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.sessionLocks, sessionID)
		}
		r.sessionLocksMu.Unlock()
	}
}

// NewUserMessage builds a user message for session.
func NewUserMessage(sessionID, content string) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
