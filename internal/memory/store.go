// Package memory provides the durable per-session key/value memory the agent
// reads and writes through its memory tools.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// Store is the memory of a single session. Every mutation is written through to
// the backing storage before it returns.
type Store struct {
	sessionID string
	backend   storage.MemoryStore
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Store or Manager.
type Option func(*options)

type options struct {
	now     func() time.Time
	logger  *slog.Logger
	idleTTL time.Duration
}

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIdleTTL sets how long a Manager keeps an unused session's Store.
// Only the Store handle is dropped; entries stay in the backing storage.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.idleTTL = ttl
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default(), idleTTL: DefaultIdleTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore returns the memory store for sessionID.
func NewStore(sessionID string, backend storage.MemoryStore, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{
		sessionID: sessionID,
		backend:   backend,
		now:       o.now,
		logger:    o.logger.With("component", "memory", "session_id", sessionID),
	}
}

// SessionID returns the owning session.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Store upserts key. Keys are opaque: the empty string is a key like any
// other. CreatedAt survives updates; UpdatedAt strictly increases.
func (s *Store) Store(ctx context.Context, key, value string) (models.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := models.MemoryEntry{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}

	existing, err := s.backend.GetMemory(ctx, s.sessionID, key)
	switch {
	case err == nil:
		entry.CreatedAt = existing.CreatedAt
		if !now.After(existing.UpdatedAt) {
			entry.UpdatedAt = existing.UpdatedAt.Add(time.Nanosecond)
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return models.MemoryEntry{}, fmt.Errorf("load memory %q: %w", key, err)
	}

	if err := s.backend.PutMemory(ctx, s.sessionID, entry); err != nil {
		return models.MemoryEntry{}, fmt.Errorf("store memory %q: %w", key, err)
	}
	s.logger.Debug("memory stored", "key", key)
	return entry, nil
}

// Retrieve returns the entry for key. A missing key is reported by ok=false.
func (s *Store) Retrieve(ctx context.Context, key string) (models.MemoryEntry, bool, error) {
	entry, err := s.backend.GetMemory(ctx, s.sessionID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.MemoryEntry{}, false, nil
		}
		return models.MemoryEntry{}, false, fmt.Errorf("retrieve memory %q: %w", key, err)
	}
	return entry, true, nil
}

// Forget deletes key and reports whether it existed.
func (s *Store) Forget(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.DeleteMemory(ctx, s.sessionID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("forget memory %q: %w", key, err)
	}
	s.logger.Debug("memory forgotten", "key", key)
	return true, nil
}

// List returns every entry in insertion order.
func (s *Store) List(ctx context.Context) ([]models.MemoryEntry, error) {
	entries, err := s.backend.ListMemory(ctx, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	return entries, nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.ClearMemory(ctx, s.sessionID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}
